// ABOUTME: Loc-RIB query helpers: capability, glob pattern, AS path, community.
// ABOUTME: Glob patterns are compiled once and cached in an LRU.

package rib

import (
	"sort"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/2389/coven-routes/internal/route"
)

// patternCacheSize bounds how many compiled capability patterns we keep.
const patternCacheSize = 256

var patternCache, _ = lru.New[string, glob.Glob](patternCacheSize)

// compilePattern compiles a glob pattern, consulting the shared cache.
// A malformed pattern yields (nil, false) and matches nothing.
func compilePattern(pattern string) (glob.Glob, bool) {
	if g, ok := patternCache.Get(pattern); ok {
		return g, true
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, false
	}
	patternCache.Add(pattern, g)
	return g, true
}

// FindAgentsByCapability returns the agent IDs whose installed route
// advertises the capability, compared exactly and case-sensitively.
func (t *Table) FindAgentsByCapability(capability string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []string
	for agentID, r := range t.locRIB {
		for _, c := range r.Capabilities {
			if c == capability {
				out = append(out, agentID)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// FindAgentsByCapabilityPattern matches installed routes' capabilities
// against a glob pattern, e.g. "code-*".
func (t *Table) FindAgentsByCapabilityPattern(pattern string) []string {
	g, ok := compilePattern(pattern)
	if !ok {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []string
	for agentID, r := range t.locRIB {
		for _, c := range r.Capabilities {
			if g.Match(c) {
				out = append(out, agentID)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// FindAgentsByASPath returns agents whose installed route traverses
// every one of the given ASes.
func (t *Table) FindAgentsByASPath(asns []uint32) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []string
	for agentID, r := range t.locRIB {
		if route.PathContainsASes(r.ASPath, asns) {
			out = append(out, agentID)
		}
	}
	sort.Strings(out)
	return out
}

// FindAgentsByCommunity returns agents whose installed route carries the
// community tag.
func (t *Table) FindAgentsByCommunity(community string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []string
	for agentID, r := range t.locRIB {
		if r.HasCommunity(community) {
			out = append(out, agentID)
		}
	}
	sort.Strings(out)
	return out
}
