// ABOUTME: Tests for the health-check sweep: per-path outcomes, failure isolation.
// ABOUTME: Verifies one failing probe never aborts the sweep for other paths.

package balancer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-routes/internal/route"
)

func TestCheckHealth_UpdatesPathHealth(t *testing.T) {
	b := New(Config{}, nil)
	require.NoError(t, b.AddPath(poolRoute("a", 65001, "h1")))
	require.NoError(t, b.AddPath(poolRoute("a", 65002, "h2")))

	prober := ProbeFunc(func(ctx context.Context, r route.Route) (float64, error) {
		if r.OriginAS() == 65002 {
			return 0, errors.New("connection refused")
		}
		return 42, nil
	})

	event := b.CheckHealth(context.Background(), prober, 2, time.Second)

	assert.Equal(t, 2, event.Checked)
	assert.Equal(t, 1, event.Failed)
	assert.Equal(t, 1, event.Healthy)
	assert.Equal(t, 1, event.Degraded)

	health, _ := b.Health(route.PathKey{AgentID: "a", OriginAS: 65001})
	assert.Equal(t, Healthy, health.Status)
	assert.InDelta(t, 42.0, health.ResponseTimeMs, 0.001)

	health, _ = b.Health(route.PathKey{AgentID: "a", OriginAS: 65002})
	assert.Equal(t, Degraded, health.Status)
}

func TestCheckHealth_OneBadPathNeverAbortsSweep(t *testing.T) {
	b := New(Config{}, nil)
	for asn := uint32(65001); asn <= 65005; asn++ {
		require.NoError(t, b.AddPath(poolRoute("a", asn, "h")))
	}

	var probed atomic.Int32
	prober := ProbeFunc(func(ctx context.Context, r route.Route) (float64, error) {
		probed.Add(1)
		if r.OriginAS() == 65001 {
			return 0, errors.New("unreachable")
		}
		return 10, nil
	})

	event := b.CheckHealth(context.Background(), prober, 2, time.Second)
	assert.Equal(t, int32(5), probed.Load())
	assert.Equal(t, 5, event.Checked)
	assert.Equal(t, 1, event.Failed)
}

func TestCheckHealth_DisabledBalancer(t *testing.T) {
	b := New(Config{}, nil)
	require.NoError(t, b.AddPath(poolRoute("a", 65001, "h1")))
	b.SetEnabled(false)

	called := false
	prober := ProbeFunc(func(ctx context.Context, r route.Route) (float64, error) {
		called = true
		return 0, nil
	})

	event := b.CheckHealth(context.Background(), prober, 2, time.Second)
	assert.False(t, called)
	assert.Zero(t, event.Checked)
}

func TestCheckHealth_ObserverNotified(t *testing.T) {
	b := New(Config{}, nil)
	obs := &recordingObserver{}
	b.Subscribe(obs)
	require.NoError(t, b.AddPath(poolRoute("a", 65001, "h1")))

	prober := ProbeFunc(func(ctx context.Context, r route.Route) (float64, error) {
		return 5, nil
	})
	b.CheckHealth(context.Background(), prober, 1, time.Second)

	require.Len(t, obs.sweeps, 1)
	assert.Equal(t, 1, obs.sweeps[0].Checked)
}
