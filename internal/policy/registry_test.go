// ABOUTME: Tests for the template registry: lookup, search, stats, instantiation options.
// ABOUTME: Verifies instantiated rules flow through the ordinary engine.

package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-routes/internal/route"
)

func TestTemplateRegistry_BuiltinsSeeded(t *testing.T) {
	r := NewTemplateRegistry()

	list := r.List()
	ids := make([]string, len(list))
	for i, tpl := range list {
		ids[i] = tpl.ID
	}
	assert.Equal(t, []string{
		"advanced-security",
		"basic-security",
		"dev-friendly",
		"performance",
		"production-hardened",
	}, ids)
}

func TestTemplateRegistry_Get(t *testing.T) {
	r := NewTemplateRegistry()

	tpl, err := r.Get("basic-security")
	require.NoError(t, err)
	assert.Equal(t, "security", tpl.Category)

	_, err = r.Get("no-such-template")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestTemplateRegistry_Search(t *testing.T) {
	r := NewTemplateRegistry()

	hits := r.Search("security")
	assert.Len(t, hits, 3) // two security templates plus production-hardened via tag

	hits = r.Search("LATENCY")
	require.Len(t, hits, 1)
	assert.Equal(t, "performance", hits[0].ID)

	assert.Empty(t, r.Search("nonexistent"))
}

func TestTemplateRegistry_CategoriesAndStats(t *testing.T) {
	r := NewTemplateRegistry()

	assert.Equal(t, []string{"development", "performance", "production", "security"}, r.Categories())

	stats := r.Stats()
	assert.Equal(t, 5, stats.Templates)
	assert.Equal(t, 2, stats.PerCategory["security"])
	assert.Greater(t, stats.Rules, 10)
}

func TestTemplateRegistry_InstantiateOptions(t *testing.T) {
	r := NewTemplateRegistry()

	rules, err := r.Instantiate("production-hardened", InstantiateOptions{
		EnabledOnly:    true,
		PriorityOffset: 1000,
		NamePrefix:     "prod/",
	})
	require.NoError(t, err)

	// The disabled log-low-pref rule is filtered out.
	require.Len(t, rules, 4)
	for _, rule := range rules {
		assert.True(t, rule.Enabled)
		assert.Contains(t, rule.Name, "prod/")
		assert.GreaterOrEqual(t, rule.Priority, 1000)
	}
}

func TestTemplateRegistry_InstantiateIncludesDisabledByDefault(t *testing.T) {
	r := NewTemplateRegistry()

	rules, err := r.Instantiate("production-hardened", InstantiateOptions{})
	require.NoError(t, err)
	assert.Len(t, rules, 5)
}

func TestTemplateRegistry_InstantiateUnknown(t *testing.T) {
	r := NewTemplateRegistry()

	_, err := r.Instantiate("ghost", InstantiateOptions{})
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestTemplate_InstantiatedRulesRunInEngine(t *testing.T) {
	r := NewTemplateRegistry()
	e := NewEngine(nil)

	rules, err := r.Instantiate("basic-security", InstantiateOptions{EnabledOnly: true})
	require.NoError(t, err)
	for _, rule := range rules {
		require.NoError(t, e.AddRule(rule))
	}

	routes := []route.Route{
		{AgentID: "ok", ASPath: []uint32{65001}, Communities: []string{"health:healthy"}, OriginTime: time.Now()},
		{AgentID: "sick", ASPath: []uint32{65002}, Communities: []string{"health:unhealthy"}, OriginTime: time.Now()},
		{AgentID: "jailed", ASPath: []uint32{65003}, Communities: []string{"quarantine:malware"}, OriginTime: time.Now()},
	}

	out := e.Apply(routes)
	require.Len(t, out, 1)
	assert.Equal(t, "ok", out[0].AgentID)
}

func TestMatchSpec_Compile(t *testing.T) {
	r := route.Route{
		AgentID:        "code-reviewer",
		Capabilities:   []string{"code-review"},
		ASPath:         []uint32{1, 2, 3},
		LocalPref:      40,
		Communities:    []string{"env:dev"},
		PathAttributes: map[string]string{"region": "us-east"},
	}

	tests := []struct {
		name string
		spec MatchSpec
		want bool
	}{
		{"any", MatchSpec{Any: true}, true},
		{"zero value matches nothing", MatchSpec{}, false},
		{"community hit", MatchSpec{Community: "env:dev"}, true},
		{"community miss", MatchSpec{Community: "env:prod"}, false},
		{"community pattern", MatchSpec{CommunityPattern: "env:*"}, true},
		{"agent pattern", MatchSpec{AgentPattern: "code-*"}, true},
		{"capability pattern", MatchSpec{CapabilityPattern: "*review*"}, true},
		{"path longer than hit", MatchSpec{PathLongerThan: 2}, true},
		{"path longer than miss", MatchSpec{PathLongerThan: 3}, false},
		{"local pref below", MatchSpec{LocalPrefBelow: 50}, true},
		{"attribute equals", MatchSpec{AttributeEquals: map[string]string{"region": "us-east"}}, true},
		{"attribute mismatch", MatchSpec{AttributeEquals: map[string]string{"region": "eu-west"}}, false},
		{"conjunction", MatchSpec{Community: "env:dev", PathLongerThan: 2}, true},
		{"conjunction partial miss", MatchSpec{Community: "env:dev", PathLongerThan: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.Compile()(r))
		})
	}
}
