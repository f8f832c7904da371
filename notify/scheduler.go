// Package notify decides when a tenant should be told that its signing
// certificate is about to expire.
//
// A notification fires at most once per tenant, tier and remaining-day count
// within the dedup TTL. The dedup store is the only shared state; if it
// cannot be reached the scheduler fails open and emits the notification.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/georgepadayatti/taxsign/expiry"
	"github.com/georgepadayatti/taxsign/logging"
	"github.com/georgepadayatti/taxsign/metrics"
	"go.uber.org/zap"
)

// DefaultTTL is how long an emitted notification suppresses repeats.
const DefaultTTL = 24 * time.Hour

// Event is the payload handed to the messaging collaborator.
type Event struct {
	TenantID        string      `json:"tenant_id"`
	Tier            expiry.Tier `json:"tier"`
	DaysUntilExpiry int         `json:"days_until_expiry"`
	Title           string      `json:"title"`
	Message         string      `json:"message"`
	Urgency         string      `json:"urgency"`
	ActionRequired  string      `json:"action_required"`
}

// Scheduler emits expiry notifications.
type Scheduler struct {
	store      Store
	thresholds expiry.Thresholds
	ttl        time.Duration
	workers    int
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithThresholds overrides the tier thresholds.
func WithThresholds(th expiry.Thresholds) Option {
	return func(s *Scheduler) { s.thresholds = th }
}

// WithTTL overrides the dedup TTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Scheduler) { s.ttl = ttl }
}

// WithSweepWorkers bounds the concurrency of Sweep.
func WithSweepWorkers(n int) Option {
	return func(s *Scheduler) { s.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler creates a scheduler backed by store.
func NewScheduler(store Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:      store,
		thresholds: expiry.DefaultThresholds,
		ttl:        DefaultTTL,
		workers:    8,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	if s.workers < 1 {
		s.workers = 1
	}
	return s
}

// DedupKey is the store key for a tenant at a given state.
func DedupKey(tenantID string, state expiry.State) string {
	return fmt.Sprintf("cert-expiry:%s:%s:%d", tenantID, state.Tier, state.DaysUntilExpiry)
}

// MaybeNotify returns the notification to send for a certificate expiring at
// notAfter, or false when none is due or one was already sent.
func (s *Scheduler) MaybeNotify(ctx context.Context, tenantID string, notAfter, now time.Time) (*Event, bool) {
	state := expiry.ClassifyWith(notAfter, now, s.thresholds)
	if state.Tier == expiry.None {
		return nil, false
	}

	key := DedupKey(tenantID, state)
	fresh, err := s.store.TrySetIfAbsent(ctx, key, s.ttl)
	if err != nil {
		s.logger.Warn("Dedup store unavailable, sending notification anyway",
			zap.String("tenant_id", tenantID),
			zap.String("key", key),
			zap.Error(err))
		s.metrics.RecordDedupStoreFailure()
		fresh = true
	}
	if !fresh {
		s.logger.Debug("Expiry notification already sent",
			zap.String("tenant_id", tenantID),
			zap.Stringer("tier", state.Tier),
			zap.Int("days_until_expiry", state.DaysUntilExpiry))
		s.metrics.RecordNotification(state.Tier.String(), "deduplicated")
		return nil, false
	}

	c := CopyFor(state)
	event := &Event{
		TenantID:        tenantID,
		Tier:            state.Tier,
		DaysUntilExpiry: state.DaysUntilExpiry,
		Title:           c.Title,
		Message:         c.Message,
		Urgency:         c.Urgency,
		ActionRequired:  c.ActionRequired,
	}
	s.logger.Info("Expiry notification emitted",
		zap.String("tenant_id", tenantID),
		zap.Stringer("tier", state.Tier),
		zap.Int("days_until_expiry", state.DaysUntilExpiry))
	s.metrics.RecordNotification(state.Tier.String(), "emitted")
	return event, true
}
