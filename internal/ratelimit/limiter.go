package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// failOpenReset is the synthetic reset horizon reported when the counter
// store is unreachable and the limiter allows traffic anyway.
const failOpenReset = 60 * time.Second

// Result is the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time

	// Populated on denial: the offending window, its current count and
	// ceiling.
	LimitingWindow Window
	Current        int64
	Limit          int64

	// FailedOpen marks results that were allowed only because the counter
	// store could not be reached.
	FailedOpen bool
}

// Limiter enforces per-tenant, per-message-type ceilings over the minute,
// hour, and day windows using a shared atomic counter store.
//
// The check phase and the increment phase are two separate round-trips, so
// concurrent callers can both pass the check before either increments. The
// resulting transient over-admission is accepted under the fail-open design.
type Limiter struct {
	store  CounterStore
	tiers  TierResolver
	quotas QuotaResolver
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewLimiter creates a Limiter. loc controls where the day window resets at
// midnight; nil means time.Local.
func NewLimiter(store CounterStore, tiers TierResolver, quotas QuotaResolver, logger *slog.Logger, loc *time.Location) *Limiter {
	if loc == nil {
		loc = time.Local
	}
	return &Limiter{
		store:  store,
		tiers:  tiers,
		quotas: quotas,
		logger: logger.With("component", "rate_limiter"),
		loc:    loc,
		now:    time.Now,
	}
}

// CheckAndIncrement evaluates all three windows, most granular first. If any
// window is at or over its ceiling the check is denied and no counters are
// touched. Otherwise all three counters are incremented as one batch.
//
// Counter-store errors never deny traffic: the limiter fails open with a
// short synthetic reset and logs a warning.
func (l *Limiter) CheckAndIncrement(ctx context.Context, tenantID string, messageType MessageType) *Result {
	return l.evaluate(ctx, tenantID, messageType, true)
}

// CheckOnly performs the same evaluation without mutating any counters, for
// advisory checks.
func (l *Limiter) CheckOnly(ctx context.Context, tenantID string, messageType MessageType) *Result {
	return l.evaluate(ctx, tenantID, messageType, false)
}

func (l *Limiter) evaluate(ctx context.Context, tenantID string, messageType MessageType, increment bool) *Result {
	now := l.now().In(l.loc)
	tier := l.tiers.Resolve(tenantID)
	quota := l.quotas.Quota(tier, messageType)

	keys := make([]string, len(Windows))
	for i, w := range Windows {
		keys[i] = w.CounterKey(tenantID, string(messageType), now)
	}

	counts, err := l.store.Get(ctx, keys...)
	if err != nil {
		return l.failOpen(ctx, tenantID, messageType, now, err)
	}

	for i, w := range Windows {
		limit := quota.Limit(w)
		if counts[i] >= limit {
			checksDeniedCounter.WithLabelValues(string(messageType), string(w)).Inc()
			l.logger.InfoContext(ctx, "rate limit exceeded",
				"tenant_id", tenantID,
				"message_type", messageType,
				"window", w,
				"current", counts[i],
				"limit", limit,
			)
			return &Result{
				Allowed:        false,
				Remaining:      0,
				ResetAt:        w.NextReset(now, l.loc),
				LimitingWindow: w,
				Current:        counts[i],
				Limit:          limit,
			}
		}
	}

	if increment {
		entries := make([]IncrementEntry, len(Windows))
		for i, w := range Windows {
			entries[i] = IncrementEntry{Key: keys[i], TTL: w.TTL()}
		}
		if err := l.store.IncrementAndExpire(ctx, entries...); err != nil {
			return l.failOpen(ctx, tenantID, messageType, now, err)
		}
	}

	restrictive := quota.MostRestrictiveWindow()
	var current int64
	for i, w := range Windows {
		if w == restrictive {
			current = counts[i]
			break
		}
	}
	if increment {
		current++
	}
	remaining := quota.Limit(restrictive) - current
	if remaining < 0 {
		remaining = 0
	}

	checksAllowedCounter.WithLabelValues(string(messageType)).Inc()
	return &Result{
		Allowed:   true,
		Remaining: remaining,
		ResetAt:   restrictive.NextReset(now, l.loc),
	}
}

// failOpen converts a counter-store error into an allow. A missed quota
// breach is recoverable; a false rejection blocks legitimate traffic during
// an infrastructure blip.
func (l *Limiter) failOpen(ctx context.Context, tenantID string, messageType MessageType, now time.Time, err error) *Result {
	failOpenCounter.Inc()
	l.logger.WarnContext(ctx, "counter store unreachable, failing open",
		"error", err,
		"tenant_id", tenantID,
		"message_type", messageType,
	)
	return &Result{
		Allowed:    true,
		Remaining:  0,
		ResetAt:    now.Add(failOpenReset),
		FailedOpen: true,
	}
}

// Reset removes the current counters for (tenant, messageType) across all
// windows. Admin use only.
func (l *Limiter) Reset(ctx context.Context, tenantID string, messageType MessageType) error {
	now := l.now().In(l.loc)
	keys := make([]string, len(Windows))
	for i, w := range Windows {
		keys[i] = w.CounterKey(tenantID, string(messageType), now)
	}
	return l.store.Delete(ctx, keys...)
}
