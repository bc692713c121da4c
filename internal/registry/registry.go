// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

// Package registry owns the mapping between live WebSocket connections,
// authenticated users, and chat memberships.
//
// Four indices are maintained together: connection -> session state,
// user -> connections, user -> chats (a cache of authoritative membership,
// which lives in the chat service), and chat -> connections (derived, used
// only for fan-out targeting). All four mutate under a single reader-writer
// lock so no reader ever observes a partially applied update. Membership
// resolution is the only I/O on the admit path and happens outside the lock.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chirpchat/chirp-gateway/internal/metrics"
)

// MembershipSource resolves the authoritative chat memberships of a user.
// Called once per user per connection lifetime, when the user's first
// connection is admitted.
type MembershipSource interface {
	FindChatsForUser(ctx context.Context, userID string) ([]string, error)
}

// Session is a read-only snapshot of one live connection.
type Session struct {
	ID        string
	UserID    string
	LastAlive time.Time
}

// session is the registry's mutable per-connection state.
type session struct {
	userID    string
	lastAlive time.Time
}

// Registry tracks live connections and their chat memberships.
type Registry struct {
	memberships MembershipSource
	logger      zerolog.Logger

	mu        sync.RWMutex
	sessions  map[string]*session
	userConns map[string]map[string]struct{}
	userChats map[string]map[string]struct{}
	chatConns map[string]map[string]struct{}
}

// New creates an empty Registry backed by the given membership source.
func New(memberships MembershipSource, logger zerolog.Logger) *Registry {
	return &Registry{
		memberships: memberships,
		logger:      logger.With().Str("component", "registry").Logger(),
		sessions:    make(map[string]*session),
		userConns:   make(map[string]map[string]struct{}),
		userChats:   make(map[string]map[string]struct{}),
		chatConns:   make(map[string]map[string]struct{}),
	}
}

// Admit registers a new open connection for userID. On the user's first
// connection their chat memberships are resolved and cached; the connection
// is then indexed into every chat the user belongs to.
//
// The membership lookup happens outside the lock. If a concurrent Admit for
// the same user resolved first, its cached result wins.
func (r *Registry) Admit(ctx context.Context, connID, userID string) error {
	var resolved []string
	if !r.hasChatCache(userID) {
		chats, err := r.memberships.FindChatsForUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("resolve chats for user %s: %w", userID, err)
		}
		resolved = chats
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[connID] = &session{userID: userID, lastAlive: time.Now()}

	conns, ok := r.userConns[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.userConns[userID] = conns
	}
	conns[connID] = struct{}{}

	chats, cached := r.userChats[userID]
	if !cached {
		chats = make(map[string]struct{}, len(resolved))
		for _, chatID := range resolved {
			chats[chatID] = struct{}{}
		}
		r.userChats[userID] = chats
	}

	for chatID := range chats {
		r.addChatConnLocked(chatID, connID)
	}

	r.updateGaugesLocked()
	r.logger.Info().Str("conn_id", connID).Str("user_id", userID).
		Int("chats", len(chats)).Msg("connection admitted")
	return nil
}

// Remove drops a connection from every index. Idempotent; repeated calls
// for the same connection are no-ops. When the user's last connection
// closes, the user entry and the membership cache are dropped, so a later
// reconnect re-resolves membership fresh.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return
	}
	delete(r.sessions, connID)
	userID := sess.userID

	for chatID := range r.userChats[userID] {
		r.removeChatConnLocked(chatID, connID)
	}

	if conns, ok := r.userConns[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.userConns, userID)
			delete(r.userChats, userID)
		}
	}

	r.updateGaugesLocked()
	r.logger.Info().Str("conn_id", connID).Str("user_id", userID).Msg("connection removed")
}

// OnChatJoin records that the given users became members of chatID and
// indexes every open connection of those users into the chat's connection
// set. Users with no open connection are skipped; their membership is
// re-resolved on their next connect, so nothing is lost.
func (r *Registry) OnChatJoin(chatID string, userIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, userID := range userIDs {
		conns, online := r.userConns[userID]
		if !online {
			continue
		}
		chats, ok := r.userChats[userID]
		if !ok {
			chats = make(map[string]struct{})
			r.userChats[userID] = chats
		}
		chats[chatID] = struct{}{}
		for connID := range conns {
			r.addChatConnLocked(chatID, connID)
		}
	}
}

// OnChatLeave removes chatID from the user's cached chat set and removes
// every open connection of that user from the chat's connection set. The
// user's other chats and connections are unaffected.
func (r *Registry) OnChatLeave(chatID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if chats, ok := r.userChats[userID]; ok {
		delete(chats, chatID)
	}
	for connID := range r.userConns[userID] {
		r.removeChatConnLocked(chatID, connID)
	}
}

// ConnectionsForChat returns a snapshot of the connection IDs of users who
// are members of chatID and currently connected.
func (r *Registry) ConnectionsForChat(chatID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keysOf(r.chatConns[chatID])
}

// ConnectionsForUser returns a snapshot of the user's open connection IDs.
func (r *Registry) ConnectionsForUser(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keysOf(r.userConns[userID])
}

// ConnectionsSharingChatsWith returns the distinct connection IDs of
// everyone who shares at least one chat with userID, computed under a
// single consistent read. Used for profile image fan-out.
func (r *Registry) ConnectionsSharingChatsWith(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for chatID := range r.userChats[userID] {
		for connID := range r.chatConns[chatID] {
			seen[connID] = struct{}{}
		}
	}
	return keysOf(seen)
}

// IsMember reports whether chatID is in the user's cached chat set. Used
// to authorize inbound sends before invoking the messaging domain.
func (r *Registry) IsMember(userID, chatID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.userChats[userID][chatID]
	return ok
}

// UserOf returns the owning user of a connection, if it is still tracked.
func (r *Registry) UserOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[connID]
	if !ok {
		return "", false
	}
	return sess.userID, true
}

// Touch refreshes the last-alive timestamp of a connection. Called from
// the transport pong handler. Unknown connections are ignored.
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[connID]; ok {
		sess.lastAlive = time.Now()
	}
}

// Snapshot returns a point-in-time copy of all tracked sessions. The
// heartbeat monitor sweeps over this snapshot without holding the lock.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for connID, sess := range r.sessions {
		out = append(out, Session{ID: connID, UserID: sess.userID, LastAlive: sess.lastAlive})
	}
	return out
}

// ConnectionCount returns the number of tracked connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// hasChatCache reports whether the user's memberships are already cached.
func (r *Registry) hasChatCache(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.userChats[userID]
	return ok
}

// addChatConnLocked indexes a connection into a chat set. Caller holds mu.
func (r *Registry) addChatConnLocked(chatID, connID string) {
	conns, ok := r.chatConns[chatID]
	if !ok {
		conns = make(map[string]struct{})
		r.chatConns[chatID] = conns
	}
	conns[connID] = struct{}{}
}

// removeChatConnLocked drops a connection from a chat set, deleting the
// set when it empties. Caller holds mu.
func (r *Registry) removeChatConnLocked(chatID, connID string) {
	conns, ok := r.chatConns[chatID]
	if !ok {
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.chatConns, chatID)
	}
}

// updateGaugesLocked refreshes the online-user gauge. Caller holds mu.
func (r *Registry) updateGaugesLocked() {
	metrics.RegistryUsersOnline.Set(float64(len(r.userConns)))
}

func keysOf(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
