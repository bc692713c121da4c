// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package push

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/chirpchat/chirp-gateway/internal/config"
	"github.com/chirpchat/chirp-gateway/internal/metrics"
)

// retryDelays is the fixed backoff schedule. The last delay repeats for
// any further attempt; entries keep their first-dispatch timestamp across
// re-enqueues, so the max-age check in ProcessDue terminates retries.
var retryDelays = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
	600 * time.Second,
}

func delayFor(attempt int) time.Duration {
	if attempt >= len(retryDelays) {
		return retryDelays[len(retryDelays)-1]
	}
	return retryDelays[attempt]
}

// retryEntry is one queued redelivery, restricted to the recipients that
// failed temporarily.
type retryEntry struct {
	notification Notification
	attempt      int
	createdAt    time.Time
}

// Scheduler dispatches notifications through the provider and retries
// temporary failures. The retry queue is keyed by due time in Unix millis;
// a sweep pops every bucket whose key has elapsed.
//
// Implements suture.Service.
type Scheduler struct {
	provider Provider
	tokens   TokenStore
	cfg      config.PushConfig
	logger   zerolog.Logger
	breaker  *gobreaker.CircuitBreaker[[]RecipientResult]
	now      func() time.Time

	mu    sync.Mutex
	queue map[int64][]retryEntry
}

// NewScheduler creates the push retry scheduler. The circuit breaker trips
// after consecutive batch-level provider failures; while open, every
// dispatch is treated as a temporary failure for all recipients.
func NewScheduler(provider Provider, tokens TokenStore, cfg config.PushConfig, logger zerolog.Logger) *Scheduler {
	breaker := gobreaker.NewCircuitBreaker[[]RecipientResult](gobreaker.Settings{
		Name:    "push-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	s := &Scheduler{
		provider: provider,
		tokens:   tokens,
		cfg:      cfg,
		logger:   logger.With().Str("component", "push").Logger(),
		breaker:  breaker,
		now:      time.Now,
		queue:    make(map[int64][]retryEntry),
	}
	return s
}

// Send dispatches a notification. Per-recipient permanent failures
// deregister the token; temporary failures are re-enqueued for the
// recipients that failed. Never returns an error: push is best-effort and
// the caller must not care.
func (s *Scheduler) Send(ctx context.Context, n Notification) {
	s.dispatch(ctx, n, 0, s.now())
}

// dispatch delivers one attempt. createdAt is the first dispatch time and
// rides unchanged through every re-enqueue; ProcessDue drops the entry
// once its age exceeds the maximum retry age.
func (s *Scheduler) dispatch(ctx context.Context, n Notification, attempt int, createdAt time.Time) {
	if len(n.Recipients) == 0 {
		return
	}

	results, err := s.breaker.Execute(func() ([]RecipientResult, error) {
		return s.provider.Send(ctx, n)
	})
	if err != nil {
		// Batch-level failure, open breaker included: every recipient is
		// a temporary failure.
		s.logger.Warn().Err(err).Int("recipients", len(n.Recipients)).Int("attempt", attempt).
			Msg("push dispatch failed, retrying all recipients")
		metrics.PushOutcomes.WithLabelValues("temporary").Add(float64(len(n.Recipients)))
		s.enqueueRetry(n, n.Recipients, attempt, createdAt)
		return
	}

	var succeeded, permanent int
	var temporary []DeviceToken
	for _, res := range results {
		switch Classify(res.ErrorCode) {
		case OutcomeSucceeded:
			succeeded++
			metrics.PushOutcomes.WithLabelValues("succeeded").Inc()
		case OutcomePermanent:
			permanent++
			metrics.PushOutcomes.WithLabelValues("permanent").Inc()
			if derr := s.tokens.DeleteToken(ctx, res.Token.Token); derr != nil {
				s.logger.Error().Err(derr).Str("user_id", res.Token.UserID).
					Msg("deregister invalid token")
			}
		case OutcomeTemporary:
			metrics.PushOutcomes.WithLabelValues("temporary").Inc()
			temporary = append(temporary, res.Token)
		}
	}

	s.logger.Info().Int("succeeded", succeeded).Int("temporary", len(temporary)).
		Int("permanent", permanent).Int("attempt", attempt).Msg("push dispatched")

	if len(temporary) > 0 {
		retry := n
		retry.Recipients = temporary
		s.enqueueRetry(retry, temporary, attempt, createdAt)
	}
}

// enqueueRetry schedules a redelivery at now + delay[attempt] with the
// attempt counter advanced. createdAt is preserved so the entry's age
// keeps counting from the original dispatch.
func (s *Scheduler) enqueueRetry(n Notification, recipients []DeviceToken, attempt int, createdAt time.Time) {
	n.Recipients = recipients
	due := s.now().Add(delayFor(attempt)).UnixMilli()
	entry := retryEntry{notification: n, attempt: attempt + 1, createdAt: createdAt}

	s.mu.Lock()
	s.queue[due] = append(s.queue[due], entry)
	depth := s.queueDepthLocked()
	s.mu.Unlock()

	metrics.PushRetryQueueDepth.Set(float64(depth))
}

// ProcessDue pops every entry whose due time has elapsed and redelivers
// it, oldest bucket first. Entries older than the maximum retry age are
// dropped. One entry's failure never blocks the rest of the sweep:
// redelivery itself never returns an error.
func (s *Scheduler) ProcessDue(ctx context.Context) {
	now := s.now()
	cutoff := now.UnixMilli()

	s.mu.Lock()
	var dueKeys []int64
	for key := range s.queue {
		if key <= cutoff {
			dueKeys = append(dueKeys, key)
		}
	}
	sort.Slice(dueKeys, func(i, j int) bool { return dueKeys[i] < dueKeys[j] })

	var due []retryEntry
	for _, key := range dueKeys {
		due = append(due, s.queue[key]...)
		delete(s.queue, key)
	}
	depth := s.queueDepthLocked()
	s.mu.Unlock()

	metrics.PushRetryQueueDepth.Set(float64(depth))

	for _, entry := range due {
		if now.Sub(entry.createdAt) > s.cfg.MaxRetryAge {
			metrics.PushRetriesDropped.Inc()
			s.logger.Warn().Int("attempt", entry.attempt).
				Time("created_at", entry.createdAt).
				Msg("retry entry exceeded max age, dropped")
			continue
		}
		s.dispatch(ctx, entry.notification, entry.attempt, entry.createdAt)
	}
}

// queueDepthLocked counts queued entries. Caller holds the lock.
func (s *Scheduler) queueDepthLocked() int {
	depth := 0
	for _, entries := range s.queue {
		depth += len(entries)
	}
	return depth
}

// QueueDepth returns the number of queued retry entries.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueDepthLocked()
}

// Serve runs the retry sweep loop until the context is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("sweep_interval", s.cfg.SweepInterval).
		Dur("max_retry_age", s.cfg.MaxRetryAge).Msg("push retry scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Int("queued", s.QueueDepth()).Msg("push retry scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.ProcessDue(ctx)
		}
	}
}

func (s *Scheduler) String() string { return "push-retry-scheduler" }
