package scraper

import (
	"context"
	"time"

	"github.com/aluiziolira/go-scrape-discogs/config"
)

// RateState is the last quota reported by the upstream API. It is owned by
// the single crawl goroutine; introducing parallel fetches requires guarding
// it (and ExchangeRateTable) first.
type RateState struct {
	Remaining int
}

// Governor spaces upstream calls with a two-tier delay: a short spacing while
// quota is healthy and a long cooldown once it drops below Threshold.
type Governor struct {
	State     *RateState
	Threshold int
	Cooldown  time.Duration
	Spacing   time.Duration
	Metrics   *Metrics

	// Sleep waits for d or until ctx is done. Replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewGovernor builds a governor with an optimistic initial quota.
func NewGovernor(cfg *config.Config, metrics *Metrics) *Governor {
	return &Governor{
		State:     &RateState{Remaining: cfg.RateInitialRemaining},
		Threshold: cfg.RateThreshold,
		Cooldown:  cfg.RateCooldown,
		Spacing:   cfg.RateSpacing,
		Metrics:   metrics,
		Sleep:     sleepContext,
	}
}

// Observe records the absolute remaining-call count reported by the API.
func (g *Governor) Observe(remaining int) {
	g.State.Remaining = remaining
	g.Metrics.SetQuota(remaining)
}

// Delay returns the wait the next Throttle will apply.
func (g *Governor) Delay() time.Duration {
	if g.State.Remaining < g.Threshold {
		return g.Cooldown
	}
	return g.Spacing
}

// Throttle blocks for the current delay.
func (g *Governor) Throttle(ctx context.Context) error {
	d := g.Delay()
	if g.State.Remaining < g.Threshold {
		g.Metrics.IncThrottle("cooldown")
	} else {
		g.Metrics.IncThrottle("spacing")
	}
	sleep := g.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
