// ABOUTME: Selection strategies: round-robin, random, least-connections, latency, weighted, capability.
// ABOUTME: Only healthy and degraded paths are eligible; empty pools select nothing.

package balancer

import (
	"math/rand"
	"sort"
	"time"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/2389/coven-routes/internal/route"
)

// Strategy names a selection method.
type Strategy string

const (
	StrategyRoundRobin       Strategy = "round-robin"
	StrategyRandom           Strategy = "random"
	StrategyLeastConnections Strategy = "least-connections"
	StrategyLatency          Strategy = "latency"
	StrategyWeighted         Strategy = "weighted"
	StrategyCapability       Strategy = "capability"
)

const weightPatternCacheSize = 128

var weightPatternCache, _ = lru.New[string, glob.Glob](weightPatternCacheSize)

func compileWeightPattern(pattern string) (glob.Glob, bool) {
	if g, ok := weightPatternCache.Get(pattern); ok {
		return g, true
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, false
	}
	weightPatternCache.Add(pattern, g)
	return g, true
}

func defaultRand(n int) int {
	return rand.Intn(n)
}

// SelectOptions tune one selection call.
type SelectOptions struct {
	// Strategy overrides the balancer default when set.
	Strategy Strategy
	// RequiredCapabilities biases the capability strategy.
	RequiredCapabilities []string
}

// SelectPath picks one eligible path for the agent, records the decision,
// and takes an in-flight slot on the chosen path. Returns (zero, false)
// when disabled or when no eligible path exists; never an error.
func (b *Balancer) SelectPath(agentID string, opts SelectOptions) (route.Route, bool) {
	b.mu.Lock()

	if !b.enabled {
		b.mu.Unlock()
		return route.Route{}, false
	}

	eligible := b.eligiblePaths(agentID)
	if len(eligible) == 0 {
		b.mu.Unlock()
		return route.Route{}, false
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = b.strategy
	}

	var chosen *pathState
	var reason string
	switch strategy {
	case StrategyRandom:
		chosen = eligible[b.randFn(len(eligible))]
		reason = "uniform random over eligible paths"
	case StrategyLeastConnections:
		chosen = pickLeastConnections(eligible)
		reason = "lowest in-flight request count"
	case StrategyLatency:
		chosen = pickLatency(eligible)
		reason = "lowest smoothed response time"
	case StrategyWeighted:
		chosen = b.pickWeighted(eligible)
		reason = "weight-proportional random"
	case StrategyCapability:
		chosen = pickCapability(eligible, opts.RequiredCapabilities)
		reason = "best capability match"
	default:
		strategy = StrategyRoundRobin
		chosen = b.pickRoundRobin(agentID, eligible)
		reason = "cyclic rotation"
	}

	chosen.inFlight++
	chosen.utilization++
	selected := chosen.route

	available := make([]route.PathKey, len(eligible))
	for i, s := range eligible {
		available[i] = s.route.Key()
	}
	decision := Decision{
		ID:        newDecisionID(),
		AgentID:   agentID,
		Selected:  selected.Key(),
		Available: available,
		Method:    strategy,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	b.recordDecision(decision)

	// Notify outside the lock so an observer may call back into the pool.
	observers := append([]Observer(nil), b.observers...)
	b.mu.Unlock()

	for _, o := range observers {
		o.OnDecision(decision)
	}
	return selected, true
}

// eligiblePaths returns the agent's healthy and degraded paths in a
// deterministic order (by origin AS). Caller holds the lock.
func (b *Balancer) eligiblePaths(agentID string) []*pathState {
	var out []*pathState
	for key, state := range b.paths {
		if key.AgentID != agentID || state.status == Unhealthy {
			continue
		}
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].route.OriginAS() < out[j].route.OriginAS()
	})
	return out
}

// pickRoundRobin cycles deterministically: over N eligible paths the
// cursor returns to the first path exactly every N selections.
func (b *Balancer) pickRoundRobin(agentID string, eligible []*pathState) *pathState {
	cursor := b.rrCounters[agentID]
	b.rrCounters[agentID] = cursor + 1
	return eligible[cursor%len(eligible)]
}

func pickLeastConnections(eligible []*pathState) *pathState {
	best := eligible[0]
	for _, s := range eligible[1:] {
		if s.inFlight < best.inFlight {
			best = s
		}
	}
	return best
}

// pickLatency prefers the lowest smoothed response time. Paths with no
// samples yet are neutral: sampled paths compete on their numbers, and
// an all-unsampled pool falls back to deterministic order.
func pickLatency(eligible []*pathState) *pathState {
	var best *pathState
	for _, s := range eligible {
		if !s.hasSample {
			continue
		}
		if best == nil || s.responseTimeMs < best.responseTimeMs {
			best = s
		}
	}
	if best == nil {
		// No latency data anywhere; first in deterministic order.
		return eligible[0]
	}
	return best
}

// pickWeighted draws proportionally to configured pattern weights.
// Patterns match the path's next hop first, then its agent ID; unmatched
// paths weigh one.
func (b *Balancer) pickWeighted(eligible []*pathState) *pathState {
	weights := make([]int, len(eligible))
	total := 0
	for i, s := range eligible {
		w := b.weightFor(s.route)
		weights[i] = w
		total += w
	}

	draw := b.randFn(total)
	for i, w := range weights {
		if draw < w {
			return eligible[i]
		}
		draw -= w
	}
	return eligible[len(eligible)-1]
}

func (b *Balancer) weightFor(r route.Route) int {
	for pattern, weight := range b.weights {
		g, ok := compileWeightPattern(pattern)
		if !ok {
			continue
		}
		if g.Match(r.NextHop) || g.Match(r.AgentID) {
			return weight
		}
	}
	return 1
}

// pickCapability chooses the path whose capability set satisfies the
// most required capabilities, falling back to any eligible path rather
// than failing.
func pickCapability(eligible []*pathState, required []string) *pathState {
	if len(required) == 0 {
		return eligible[0]
	}

	best := eligible[0]
	bestScore := -1
	for _, s := range eligible {
		score := 0
		for _, req := range required {
			if s.route.MatchesCapability(req) {
				score++
			}
		}
		if score > bestScore {
			best = s
			bestScore = score
		}
	}
	return best
}
