// ABOUTME: Tests for the policy engine: ordering, terminal rejection, modification.
// ABOUTME: Includes the unhealthy-community filtering scenario.

package policy

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-routes/internal/route"
)

func healthyRoute(nextHop string, pathLen int, communities ...string) route.Route {
	path := make([]uint32, pathLen)
	for i := range path {
		path[i] = uint32(65001 + i)
	}
	return route.Route{
		AgentID:     "agent-a",
		ASPath:      path,
		NextHop:     nextHop,
		LocalPref:   route.DefaultLocalPref,
		Communities: communities,
		OriginTime:  time.Now(),
	}
}

func TestEngine_AddRule_Validation(t *testing.T) {
	e := NewEngine(nil)

	err := e.AddRule(Rule{Match: func(route.Route) bool { return true }})
	assert.ErrorIs(t, err, ErrRuleNameRequired)

	err = e.AddRule(Rule{Name: "no-match"})
	assert.ErrorIs(t, err, ErrRuleMatchRequired)

	require.NoError(t, e.AddRule(Rule{
		Name:    "first",
		Enabled: true,
		Match:   func(route.Route) bool { return true },
	}))
	err = e.AddRule(Rule{
		Name:  "first",
		Match: func(route.Route) bool { return true },
	})
	assert.ErrorIs(t, err, ErrDuplicateRule)
}

func TestEngine_AddRule_Bound(t *testing.T) {
	e := NewEngine(nil)
	for i := 0; i < MaxRules; i++ {
		require.NoError(t, e.AddRule(Rule{
			Name:  fmt.Sprintf("rule-%d", i),
			Match: func(route.Route) bool { return true },
		}))
	}

	err := e.AddRule(Rule{
		Name:  "one-too-many",
		Match: func(route.Route) bool { return true },
	})
	assert.ErrorIs(t, err, ErrTooManyRules)
}

func TestEngine_EvaluationOrder(t *testing.T) {
	e := NewEngine(nil)

	require.NoError(t, e.AddRule(Rule{Name: "low", Priority: 1, Match: func(route.Route) bool { return true }}))
	require.NoError(t, e.AddRule(Rule{Name: "high", Priority: 100, Match: func(route.Route) bool { return true }}))
	require.NoError(t, e.AddRule(Rule{Name: "mid-a", Priority: 50, Match: func(route.Route) bool { return true }}))
	require.NoError(t, e.AddRule(Rule{Name: "mid-b", Priority: 50, Match: func(route.Route) bool { return true }}))

	// Priority descending; insertion order breaks the 50/50 tie.
	assert.Equal(t, []string{"high", "mid-a", "mid-b", "low"}, e.RuleNames())
}

func TestEngine_RejectIsTerminal(t *testing.T) {
	e := NewEngine(nil)

	require.NoError(t, e.AddRule(Rule{
		Name:     "reject-flagged",
		Enabled:  true,
		Priority: 100,
		Match:    func(r route.Route) bool { return r.HasCommunity("flagged") },
		Action:   Reject,
	}))
	// A later permissive modify must not revive rejected routes.
	require.NoError(t, e.AddRule(Rule{
		Name:      "boost-everything",
		Enabled:   true,
		Priority:  1,
		Match:     func(route.Route) bool { return true },
		Action:    Modify,
		Overrides: Overrides{LocalPref: IntPtr(500)},
	}))

	routes := []route.Route{
		healthyRoute("keep", 1),
		healthyRoute("drop", 1, "flagged"),
	}

	out := e.Apply(routes)
	require.Len(t, out, 1)
	assert.Equal(t, "keep", out[0].NextHop)
	assert.Equal(t, 500, out[0].LocalPref)
}

func TestEngine_ModifyProducesNewValue(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.AddRule(Rule{
		Name:     "tag",
		Enabled:  true,
		Priority: 10,
		Match:    func(route.Route) bool { return true },
		Action:   Modify,
		Overrides: Overrides{
			AddCommunities: []string{"policy:seen"},
			SetAttributes:  map[string]string{"stage": "filtered"},
		},
	}))

	in := []route.Route{healthyRoute("hop", 1)}
	out := e.Apply(in)

	require.Len(t, out, 1)
	assert.True(t, out[0].HasCommunity("policy:seen"))
	assert.Equal(t, "filtered", out[0].PathAttributes["stage"])

	// The input route was not mutated.
	assert.False(t, in[0].HasCommunity("policy:seen"))
	assert.Nil(t, in[0].PathAttributes)
}

func TestEngine_DisabledRulesSkipped(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.AddRule(Rule{
		Name:     "disabled-reject",
		Enabled:  false,
		Priority: 100,
		Match:    func(route.Route) bool { return true },
		Action:   Reject,
	}))

	out := e.Apply([]route.Route{healthyRoute("hop", 1)})
	assert.Len(t, out, 1)
}

func TestEngine_AllRejectedIsEmptyNotError(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.AddRule(Rule{
		Name:    "reject-all",
		Enabled: true,
		Match:   func(route.Route) bool { return true },
		Action:  Reject,
	}))

	out := e.Apply([]route.Route{healthyRoute("a", 1), healthyRoute("b", 2)})
	assert.Empty(t, out)
}

func TestEngine_UnhealthyFilteringScenario(t *testing.T) {
	// Three routes: healthy short path, unhealthy, healthy long path.
	// Rejecting unhealthy plus long paths leaves exactly the one
	// unambiguously healthy short-path route.
	e := NewEngine(nil)
	require.NoError(t, e.AddRule(Rule{
		Name:     "reject-unhealthy",
		Enabled:  true,
		Priority: 100,
		Match:    func(r route.Route) bool { return r.HasCommunity("health:unhealthy") },
		Action:   Reject,
	}))
	require.NoError(t, e.AddRule(Rule{
		Name:     "reject-long-paths",
		Enabled:  true,
		Priority: 90,
		Match:    func(r route.Route) bool { return len(r.ASPath) > 5 },
		Action:   Reject,
	}))

	routes := []route.Route{
		healthyRoute("healthy-short", 2, "health:healthy"),
		healthyRoute("unhealthy", 2, "health:unhealthy"),
		healthyRoute("healthy-long", 7, "health:healthy"),
	}

	out := e.Apply(routes)
	require.Len(t, out, 1)
	assert.Equal(t, "healthy-short", out[0].NextHop)
}

func TestEngine_RemoveRule(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.AddRule(Rule{
		Name:  "temp",
		Match: func(route.Route) bool { return true },
	}))

	assert.True(t, e.RemoveRule("temp"))
	assert.False(t, e.RemoveRule("temp"))
	assert.Zero(t, e.RuleCount())
}
