// Package gateway presents every AI provider behind one capability call.
// It owns retries, per-provider rate limits and concurrency caps, and the
// fallback chain; callers never see provider-specific wire formats.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/shortreel/shortreel/internal/ports"
)

var (
	// ErrProviderUnavailable is returned once every candidate provider for a
	// capability has been exhausted. Recoverable at segment granularity.
	ErrProviderUnavailable = errors.New("no provider available")

	// ErrInvalidResponse is returned when a provider's output cannot be
	// parsed into the expected schema. Not retried on the same provider.
	ErrInvalidResponse = errors.New("invalid provider response")
)

type Options struct {
	// MaxAttempts bounds retries per provider for transient failures.
	MaxAttempts int
	// BaseBackoff doubles per attempt: base, 2*base, 4*base, ...
	BaseBackoff time.Duration
	// CallTimeout is the hard per-call budget.
	CallTimeout time.Duration
	// MaxInflight caps concurrent calls per provider across all jobs.
	MaxInflight int64
	// RatePerSec limits request rate per provider across all jobs.
	RatePerSec float64
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 500 * time.Millisecond
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 90 * time.Second
	}
	if o.MaxInflight <= 0 {
		o.MaxInflight = 4
	}
	if o.RatePerSec <= 0 {
		o.RatePerSec = 5
	}
	return o
}

type slot struct {
	provider ports.ModelProvider
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
}

// Gateway is the one shared resource across jobs. Provider order is the
// configured preference order; per-call preferences may reorder it.
type Gateway struct {
	slots  []slot
	byName map[string]*slot
	opts   Options
	logger *slog.Logger

	// sleep is swappable in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(providers []ports.ModelProvider, opts Options, logger *slog.Logger) *Gateway {
	opts = opts.withDefaults()
	g := &Gateway{
		byName: make(map[string]*slot, len(providers)),
		opts:   opts,
		logger: logger,
		sleep:  sleepCtx,
	}
	for _, p := range providers {
		g.slots = append(g.slots, slot{
			provider: p,
			sem:      semaphore.NewWeighted(opts.MaxInflight),
			limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
		})
	}
	for i := range g.slots {
		g.byName[g.slots[i].provider.Name()] = &g.slots[i]
	}
	return g
}

// Infer routes one capability call through the provider chain. preferences
// may be nil, in which case the registration order is used.
func (g *Gateway) Infer(ctx context.Context, req ports.ModelRequest, preferences []string) (ports.ModelResult, error) {
	chain := g.chain(req.Capability, preferences)
	if len(chain) == 0 {
		return ports.ModelResult{}, fmt.Errorf("capability %s: %w", req.Capability, ErrProviderUnavailable)
	}

	var lastErr error
	for _, s := range chain {
		res, err := g.callProvider(ctx, s, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ports.ModelResult{}, ctx.Err()
		}
		g.logger.Warn("provider failed, advancing chain",
			"provider", s.provider.Name(), "capability", string(req.Capability), "error", err)
	}
	if errors.Is(lastErr, ErrInvalidResponse) {
		return ports.ModelResult{}, lastErr
	}
	return ports.ModelResult{}, fmt.Errorf("capability %s: %w: %v", req.Capability, ErrProviderUnavailable, lastErr)
}

func (g *Gateway) chain(cap ports.Capability, preferences []string) []*slot {
	var out []*slot
	seen := make(map[string]bool)
	add := func(s *slot) {
		name := s.provider.Name()
		if seen[name] || !supports(s.provider, cap) {
			return
		}
		seen[name] = true
		out = append(out, s)
	}
	for _, name := range preferences {
		if s, ok := g.byName[name]; ok {
			add(s)
		}
	}
	// Providers not named in the preferences still serve as fallbacks, in
	// registration order.
	for i := range g.slots {
		add(&g.slots[i])
	}
	return out
}

func (g *Gateway) callProvider(ctx context.Context, s *slot, req ports.ModelRequest) (ports.ModelResult, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return ports.ModelResult{}, err
	}
	defer s.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt < g.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := g.opts.BaseBackoff << (attempt - 1)
			if err := g.sleep(ctx, backoff); err != nil {
				return ports.ModelResult{}, err
			}
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return ports.ModelResult{}, err
		}

		callCtx, cancel := context.WithTimeout(ctx, g.opts.CallTimeout)
		res, err := s.provider.Infer(callCtx, req)
		cancel()
		if err == nil {
			res.Provider = s.provider.Name()
			return res, nil
		}
		lastErr = err
		if errors.Is(err, ErrInvalidResponse) {
			// A schema mismatch will not fix itself on retry.
			return ports.ModelResult{}, err
		}
		if !errors.Is(err, ports.ErrTransient) && !errors.Is(err, context.DeadlineExceeded) {
			return ports.ModelResult{}, err
		}
	}
	return ports.ModelResult{}, fmt.Errorf("retries exhausted: %w", lastErr)
}

func supports(p ports.ModelProvider, cap ports.Capability) bool {
	for _, c := range p.Capabilities() {
		if c == cap {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
