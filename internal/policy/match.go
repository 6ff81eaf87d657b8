// ABOUTME: Declarative match specs for template-authored rules.
// ABOUTME: Compiles glob patterns once and reuses the shared matcher cache.

package policy

import (
	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/2389/coven-routes/internal/route"
)

const matcherCacheSize = 128

var matcherCache, _ = lru.New[string, glob.Glob](matcherCacheSize)

func compileGlob(pattern string) (glob.Glob, bool) {
	if g, ok := matcherCache.Get(pattern); ok {
		return g, true
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, false
	}
	matcherCache.Add(pattern, g)
	return g, true
}

// MatchSpec is a serializable description of which routes a rule matches.
// All set conditions must hold. The zero value matches nothing; set Any
// for a catch-all.
type MatchSpec struct {
	// Any matches every route regardless of other conditions.
	Any bool `json:"any,omitempty"`

	// Community matches routes carrying this exact community tag.
	Community string `json:"community,omitempty"`

	// CommunityPattern glob-matches against any community tag.
	CommunityPattern string `json:"communityPattern,omitempty"`

	// AgentPattern glob-matches the agent ID.
	AgentPattern string `json:"agentPattern,omitempty"`

	// CapabilityPattern glob-matches against any capability tag.
	CapabilityPattern string `json:"capabilityPattern,omitempty"`

	// PathLongerThan matches routes whose AS path exceeds this many hops.
	PathLongerThan int `json:"pathLongerThan,omitempty"`

	// LocalPrefBelow matches routes with a local preference below this.
	LocalPrefBelow int `json:"localPrefBelow,omitempty"`

	// AttributeEquals matches routes whose path attributes contain every
	// listed key with the exact value.
	AttributeEquals map[string]string `json:"attributeEquals,omitempty"`
}

// Compile turns the spec into a match predicate usable in a Rule.
func (m MatchSpec) Compile() func(route.Route) bool {
	return func(r route.Route) bool {
		if m.Any {
			return true
		}

		matchedSomething := false

		if m.Community != "" {
			if !r.HasCommunity(m.Community) {
				return false
			}
			matchedSomething = true
		}
		if m.CommunityPattern != "" {
			if !matchAnyGlob(m.CommunityPattern, r.Communities) {
				return false
			}
			matchedSomething = true
		}
		if m.AgentPattern != "" {
			g, ok := compileGlob(m.AgentPattern)
			if !ok || !g.Match(r.AgentID) {
				return false
			}
			matchedSomething = true
		}
		if m.CapabilityPattern != "" {
			if !matchAnyGlob(m.CapabilityPattern, r.Capabilities) {
				return false
			}
			matchedSomething = true
		}
		if m.PathLongerThan > 0 {
			if len(r.ASPath) <= m.PathLongerThan {
				return false
			}
			matchedSomething = true
		}
		if m.LocalPrefBelow > 0 {
			if r.LocalPref >= m.LocalPrefBelow {
				return false
			}
			matchedSomething = true
		}
		if len(m.AttributeEquals) > 0 {
			for k, v := range m.AttributeEquals {
				if r.PathAttributes[k] != v {
					return false
				}
			}
			matchedSomething = true
		}

		return matchedSomething
	}
}

func matchAnyGlob(pattern string, values []string) bool {
	g, ok := compileGlob(pattern)
	if !ok {
		return false
	}
	for _, v := range values {
		if g.Match(v) {
			return true
		}
	}
	return false
}
