// Package ratelimit implements fixed-window request limiting over the shared
// key-value store.
//
// Windows are aligned to multiples of the preset window since the Unix
// epoch, so a client may spend up to twice the ceiling across one window
// boundary. That burst is accepted.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"payrollhub.org/internal/fault"
	"payrollhub.org/internal/kv"
	"payrollhub.org/internal/obs"
)

// Decision describes an admitted request.
type Decision struct {
	Preset     string
	Count      int64
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
	// Degraded is set when the store failed and the preset failed open.
	Degraded bool
}

// Limiter checks identities against presets.
type Limiter struct {
	store   kv.Store
	presets map[string]Preset
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithPreset adds or replaces one preset.
func WithPreset(p Preset) Option {
	return func(l *Limiter) { l.presets[p.Name] = p }
}

// New builds a limiter with the default presets plus any overrides.
func New(store kv.Store, opts ...Option) (*Limiter, error) {
	l := &Limiter{
		store:   store,
		presets: DefaultPresets(),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, name := range Names(l.presets) {
		if err := l.presets[name].validate(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Preset returns the named policy.
func (l *Limiter) Preset(name string) (Preset, bool) {
	p, ok := l.presets[name]
	return p, ok
}

// Key is the counter key for identity in the window containing now.
func Key(preset, identity string, windowIndex int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", preset, identity, windowIndex)
}

// window returns the index of the window containing now and the time left
// in it.
func window(now time.Time, size time.Duration) (int64, time.Duration) {
	secs := int64(size / time.Second)
	unix := now.Unix()
	idx := unix / secs
	remaining := time.Duration(secs-unix%secs) * time.Second
	return idx, remaining
}

// Check counts one request for identity under preset. It returns a
// rate-limited fault once the window's ceiling is exceeded.
func (l *Limiter) Check(ctx context.Context, preset, identity string) (Decision, error) {
	p, ok := l.presets[preset]
	if !ok {
		return Decision{}, fault.Internal("unknown rate limit preset "+preset, nil)
	}
	if identity == "" {
		identity = "anonymous"
	}

	now := l.now()
	idx, retryAfter := window(now, p.Window)
	resetAt := time.Unix((idx+1)*int64(p.Window/time.Second), 0).UTC()
	key := Key(p.Name, identity, idx)

	count, err := l.store.Incr(ctx, key, p.Window)
	if err != nil {
		obs.RateLimitStoreErrors.WithLabelValues(p.Name).Inc()
		if p.FailOpen {
			l.logger.WarnContext(ctx, "ratelimit_store_unavailable", "preset", p.Name, "fail_open", true, "error", err)
			return Decision{Preset: p.Name, Limit: p.MaxRequests, Remaining: p.MaxRequests, ResetAt: resetAt, Degraded: true}, nil
		}
		l.logger.ErrorContext(ctx, "ratelimit_store_unavailable", "preset", p.Name, "fail_open", false, "error", err)
		return Decision{}, fault.Internal("rate limit store", err)
	}

	d := Decision{
		Preset:     p.Name,
		Count:      count,
		Limit:      p.MaxRequests,
		RetryAfter: retryAfter,
		ResetAt:    resetAt,
	}
	if count > int64(p.MaxRequests) {
		obs.RateLimitRejections.WithLabelValues(p.Name).Inc()
		l.logger.InfoContext(ctx, "rate_limited", "preset", p.Name, "identity", identity, "count", count, "retry_after", retryAfter.String())
		return d, fault.RateLimited(fmt.Sprintf("%s exceeded for %s", p.Name, identity), retryAfter)
	}
	d.Remaining = p.MaxRequests - int(count)
	return d, nil
}
