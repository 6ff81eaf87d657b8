// ABOUTME: Tests for selection strategies: round-robin cycling, weighted bias, latency, capability.
// ABOUTME: Weighted bias is checked statistically over a large sample.

package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-routes/internal/route"
)

func threePathPool(t *testing.T) *Balancer {
	t.Helper()
	b := New(Config{Strategy: StrategyRoundRobin}, nil)
	require.NoError(t, b.AddPath(poolRoute("a", 65001, "h1")))
	require.NoError(t, b.AddPath(poolRoute("a", 65002, "h2")))
	require.NoError(t, b.AddPath(poolRoute("a", 65003, "h3")))
	return b
}

func TestRoundRobin_CyclesDeterministically(t *testing.T) {
	b := threePathPool(t)

	// Over N paths the cycle returns to the first path every N picks.
	var sequence []uint32
	for i := 0; i < 9; i++ {
		got, ok := b.SelectPath("a", SelectOptions{})
		require.True(t, ok)
		sequence = append(sequence, got.OriginAS())
	}
	want := []uint32{65001, 65002, 65003, 65001, 65002, 65003, 65001, 65002, 65003}
	assert.Equal(t, want, sequence)
}

func TestRoundRobin_SkipsUnhealthy(t *testing.T) {
	b := threePathPool(t)

	// Knock out the middle path.
	mid := route.PathKey{AgentID: "a", OriginAS: 65002}
	for i := 0; i < 3; i++ {
		b.ReportRequestComplete(mid, false, 10)
	}

	seen := map[uint32]bool{}
	for i := 0; i < 6; i++ {
		got, ok := b.SelectPath("a", SelectOptions{})
		require.True(t, ok)
		seen[got.OriginAS()] = true
	}
	assert.False(t, seen[65002])
	assert.True(t, seen[65001])
	assert.True(t, seen[65003])
}

func TestRandom_OnlyEligiblePaths(t *testing.T) {
	b := threePathPool(t)

	for i := 0; i < 50; i++ {
		got, ok := b.SelectPath("a", SelectOptions{Strategy: StrategyRandom})
		require.True(t, ok)
		assert.Equal(t, "a", got.AgentID)
	}
}

func TestLeastConnections_PicksIdlePath(t *testing.T) {
	b := threePathPool(t)

	// Load the first two paths with in-flight requests.
	_, _ = b.SelectPath("a", SelectOptions{}) // 65001
	_, _ = b.SelectPath("a", SelectOptions{}) // 65002

	got, ok := b.SelectPath("a", SelectOptions{Strategy: StrategyLeastConnections})
	require.True(t, ok)
	assert.Equal(t, uint32(65003), got.OriginAS())
}

func TestLatency_PicksFastestSampledPath(t *testing.T) {
	b := threePathPool(t)

	b.ReportRequestComplete(route.PathKey{AgentID: "a", OriginAS: 65001}, true, 300)
	b.ReportRequestComplete(route.PathKey{AgentID: "a", OriginAS: 65003}, true, 20)

	got, ok := b.SelectPath("a", SelectOptions{Strategy: StrategyLatency})
	require.True(t, ok)
	assert.Equal(t, uint32(65003), got.OriginAS())
}

func TestLatency_NoSamplesFallsBackDeterministically(t *testing.T) {
	b := threePathPool(t)

	got, ok := b.SelectPath("a", SelectOptions{Strategy: StrategyLatency})
	require.True(t, ok)
	assert.Equal(t, uint32(65001), got.OriginAS())
}

func TestWeighted_BiasTowardHeavyPath(t *testing.T) {
	b := New(Config{Strategy: StrategyWeighted}, nil)
	require.NoError(t, b.AddPath(poolRoute("a", 65001, "fast.example:80")))
	require.NoError(t, b.AddPath(poolRoute("a", 65002, "slow.example:80")))

	b.SetWeight("fast*", 10)
	b.SetWeight("slow*", 1)

	counts := map[uint32]int{}
	for i := 0; i < 1000; i++ {
		got, ok := b.SelectPath("a", SelectOptions{})
		require.True(t, ok)
		counts[got.OriginAS()]++
		// Keep in-flight counters from growing unboundedly.
		b.ReportRequestComplete(got.Key(), true, 10)
	}

	// 10:1 weights should make the heavy path strongly dominant. The
	// check is statistical, not exact: expect well above a 3:1 observed
	// ratio.
	assert.Greater(t, counts[65001], counts[65002]*3)
	assert.Greater(t, counts[65002], 0)
}

func TestWeighted_DefaultWeightIsOne(t *testing.T) {
	b := New(Config{Strategy: StrategyWeighted}, nil)
	require.NoError(t, b.AddPath(poolRoute("a", 65001, "h1")))
	require.NoError(t, b.AddPath(poolRoute("a", 65002, "h2")))

	counts := map[uint32]int{}
	for i := 0; i < 400; i++ {
		got, ok := b.SelectPath("a", SelectOptions{})
		require.True(t, ok)
		counts[got.OriginAS()]++
		b.ReportRequestComplete(got.Key(), true, 10)
	}

	// Unweighted paths draw roughly evenly.
	assert.Greater(t, counts[65001], 100)
	assert.Greater(t, counts[65002], 100)
}

func TestCapability_BestMatchWins(t *testing.T) {
	b := New(Config{}, nil)
	require.NoError(t, b.AddPath(poolRoute("a", 65001, "h1", "chat")))
	require.NoError(t, b.AddPath(poolRoute("a", 65002, "h2", "code-review", "security-audit")))

	got, ok := b.SelectPath("a", SelectOptions{
		Strategy:             StrategyCapability,
		RequiredCapabilities: []string{"review", "audit"},
	})
	require.True(t, ok)
	assert.Equal(t, uint32(65002), got.OriginAS())
}

func TestCapability_FallsBackToAnyEligible(t *testing.T) {
	b := New(Config{}, nil)
	require.NoError(t, b.AddPath(poolRoute("a", 65001, "h1", "chat")))

	got, ok := b.SelectPath("a", SelectOptions{
		Strategy:             StrategyCapability,
		RequiredCapabilities: []string{"quantum-synthesis"},
	})
	require.True(t, ok)
	assert.Equal(t, uint32(65001), got.OriginAS())
}

func TestCapability_NoRequirementsPicksFirst(t *testing.T) {
	b := threePathPool(t)

	got, ok := b.SelectPath("a", SelectOptions{Strategy: StrategyCapability})
	require.True(t, ok)
	assert.Equal(t, uint32(65001), got.OriginAS())
}
