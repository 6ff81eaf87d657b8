// ABOUTME: Periodic health-check sweep over the path pool with bounded concurrency.
// ABOUTME: One unreachable path never fails the sweep; probe failures mark the path.

package balancer

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-routes/internal/route"
)

// HealthProber checks one path's liveness. Implementations talk to the
// remote agent-hosting server and report observed latency.
type HealthProber interface {
	Probe(ctx context.Context, r route.Route) (latencyMs float64, err error)
}

// ProbeFunc adapts a function to the HealthProber interface.
type ProbeFunc func(ctx context.Context, r route.Route) (float64, error)

func (f ProbeFunc) Probe(ctx context.Context, r route.Route) (float64, error) {
	return f(ctx, r)
}

// CheckHealth probes every path in the pool with bounded concurrency and
// a per-probe timeout, feeding results back into path health. A failed
// probe counts as a failed request for that path; it never aborts the
// sweep or surfaces as an error to the caller.
func (b *Balancer) CheckHealth(ctx context.Context, prober HealthProber, maxConcurrent int, probeTimeout time.Duration) HealthCheckEvent {
	started := time.Now()

	b.mu.Lock()
	if !b.enabled {
		b.mu.Unlock()
		return HealthCheckEvent{Timestamp: started}
	}
	targets := make([]route.Route, 0, len(b.paths))
	for _, state := range b.paths {
		targets = append(targets, state.route)
	}
	b.mu.Unlock()

	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}

	type result struct {
		key       route.PathKey
		latencyMs float64
		err       error
	}
	results := make([]result, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, probeTimeout)
			defer cancel()

			latency, err := prober.Probe(probeCtx, target)
			results[i] = result{key: target.Key(), latencyMs: latency, err: err}
			// Probe failures are recorded per path, never propagated.
			return nil
		})
	}
	_ = g.Wait()

	event := HealthCheckEvent{Checked: len(targets), Timestamp: started}

	b.mu.Lock()
	for _, res := range results {
		state, ok := b.paths[res.key]
		if !ok {
			continue
		}
		if res.err != nil {
			event.Failed++
			b.logger.Warn("health probe failed",
				"agent_id", res.key.AgentID,
				"origin_as", res.key.OriginAS,
				"error", res.err,
			)
			state.recordSample(false, -1, b.degradedLatencyMs)
		} else {
			state.recordSample(true, res.latencyMs, b.degradedLatencyMs)
		}
	}
	for _, state := range b.paths {
		switch state.status {
		case Healthy:
			event.Healthy++
		case Degraded:
			event.Degraded++
		case Unhealthy:
			event.Unhealthy++
		}
	}
	observers := append([]Observer(nil), b.observers...)
	b.mu.Unlock()

	event.Duration = time.Since(started)
	for _, o := range observers {
		o.OnHealthCheckCompleted(event)
	}
	return event
}
