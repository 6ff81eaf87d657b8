// ABOUTME: Tests for best-path selection: tie-break ordering, purity, empty input.
// ABOUTME: Includes the localPref-dominance and recency tie-break scenarios.

package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-routes/internal/route"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func candidate(nextHop string, localPref, med int, pathLen int, age time.Duration, caps ...string) route.Route {
	path := make([]uint32, pathLen)
	for i := range path {
		path[i] = uint32(65001 + i)
	}
	return route.Route{
		AgentID:      "agent-a",
		Capabilities: caps,
		ASPath:       path,
		NextHop:      nextHop,
		LocalPref:    localPref,
		MED:          med,
		OriginTime:   baseTime.Add(-age),
	}
}

func TestSelect_EmptyCandidates(t *testing.T) {
	_, ok := Select(nil, nil)
	assert.False(t, ok)

	_, ok = Select([]route.Route{}, []string{"code-review"})
	assert.False(t, ok)
}

func TestSelect_SingleCandidate(t *testing.T) {
	only := candidate("hop-1", 100, 10, 2, 0)
	got, ok := Select([]route.Route{only}, nil)
	require.True(t, ok)
	assert.Equal(t, "hop-1", got.NextHop)
}

func TestSelect_LocalPrefDominates(t *testing.T) {
	// The localPref-100 route wins regardless of its longer path and
	// worse MED.
	candidates := []route.Route{
		candidate("preferred", 100, 900, 6, 0),
		candidate("short-path", 90, 1, 1, 0),
		candidate("cheap", 80, 0, 1, 0),
	}

	got, ok := Select(candidates, nil)
	require.True(t, ok)
	assert.Equal(t, "preferred", got.NextHop)
}

func TestSelect_PathLengthBreaksLocalPrefTie(t *testing.T) {
	candidates := []route.Route{
		candidate("long", 100, 10, 4, 0),
		candidate("short", 100, 10, 2, 0),
	}

	got, ok := Select(candidates, nil)
	require.True(t, ok)
	assert.Equal(t, "short", got.NextHop)
}

func TestSelect_MEDBreaksPathTie(t *testing.T) {
	candidates := []route.Route{
		candidate("expensive", 100, 50, 2, 0),
		candidate("cheap", 100, 5, 2, 0),
	}

	got, ok := Select(candidates, nil)
	require.True(t, ok)
	assert.Equal(t, "cheap", got.NextHop)
}

func TestSelect_RecencyBreaksMEDTie(t *testing.T) {
	// Tied on localPref, path length, and MED; the fresher route wins.
	candidates := []route.Route{
		candidate("old", 100, 10, 2, time.Hour),
		candidate("fresh", 100, 10, 2, 0),
	}

	got, ok := Select(candidates, nil)
	require.True(t, ok)
	assert.Equal(t, "fresh", got.NextHop)
}

func TestSelect_FullTieKeepsInputOrder(t *testing.T) {
	candidates := []route.Route{
		candidate("first", 100, 10, 2, 0),
		candidate("second", 100, 10, 2, 0),
	}

	got, ok := Select(candidates, nil)
	require.True(t, ok)
	assert.Equal(t, "first", got.NextHop)
}

func TestSelect_CapabilityNarrowing(t *testing.T) {
	candidates := []route.Route{
		candidate("generic", 200, 10, 1, 0, "chat"),
		candidate("specialist", 100, 10, 2, 0, "code-review", "security-audit"),
	}

	got, ok := Select(candidates, []string{"review", "audit"})
	require.True(t, ok)
	assert.Equal(t, "specialist", got.NextHop)
}

func TestSelect_CapabilityMismatchFallsBack(t *testing.T) {
	// No candidate offers the capability; selection degrades gracefully
	// to the full set instead of returning nothing.
	candidates := []route.Route{
		candidate("best", 200, 10, 1, 0, "chat"),
		candidate("worse", 100, 10, 1, 0, "chat"),
	}

	got, ok := Select(candidates, []string{"quantum-synthesis"})
	require.True(t, ok)
	assert.Equal(t, "best", got.NextHop)
}

func TestSelect_Pure(t *testing.T) {
	candidates := []route.Route{
		candidate("a", 100, 20, 3, time.Minute, "chat"),
		candidate("b", 100, 10, 3, 0, "code-review"),
		candidate("c", 90, 0, 1, 0, "chat"),
	}

	first, ok := Select(candidates, []string{"code"})
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		again, ok := Select(candidates, []string{"code"})
		require.True(t, ok)
		assert.Equal(t, first, again)
	}

	// Input slice is left untouched.
	assert.Equal(t, "a", candidates[0].NextHop)
	assert.Len(t, candidates, 3)
}
