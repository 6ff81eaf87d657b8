// ABOUTME: Best-path decision process: deterministic tie-breaking over candidate routes.
// ABOUTME: Pure functions; identical inputs always select the identical route.

// Package decision implements the best-path selection algorithm.
//
// Selection narrows a candidate list through ordered tie-breaks:
// required capabilities, then highest local preference, shortest AS path,
// lowest MED, most recent origin, and finally stable input order. The
// ordering is a contract; callers and the routing tests depend on it.
package decision

import (
	"github.com/2389/coven-routes/internal/route"
)

// Select chooses one route among candidates for a single agent.
//
// An empty candidate list yields (zero, false): "no route" is an explicit
// result here, never a panic or an undefined extreme. When required
// capabilities are given but no candidate matches all of them, the
// capability filter is abandoned and selection proceeds over the full
// candidate set, so a capability mismatch alone can never produce an
// empty result.
func Select(candidates []route.Route, requiredCapabilities []string) (route.Route, bool) {
	if len(candidates) == 0 {
		return route.Route{}, false
	}

	remaining := filterByCapabilities(candidates, requiredCapabilities)
	remaining = filterHighestLocalPref(remaining)
	remaining = filterShortestPath(remaining)
	remaining = filterLowestMED(remaining)
	remaining = filterMostRecent(remaining)

	// Ties beyond recency resolve to the earliest candidate in input
	// order, which keeps selection order-stable.
	return remaining[0], true
}

// filterByCapabilities keeps routes matching every required capability
// (case-insensitive substring). Falls back to the unfiltered set when
// nothing matches.
func filterByCapabilities(candidates []route.Route, required []string) []route.Route {
	if len(required) == 0 {
		return candidates
	}

	var matched []route.Route
	for _, r := range candidates {
		if matchesAll(r, required) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return candidates
	}
	return matched
}

func matchesAll(r route.Route, required []string) bool {
	for _, req := range required {
		if !r.MatchesCapability(req) {
			return false
		}
	}
	return true
}

func filterHighestLocalPref(candidates []route.Route) []route.Route {
	best := candidates[0].LocalPref
	for _, r := range candidates[1:] {
		if r.LocalPref > best {
			best = r.LocalPref
		}
	}
	return keep(candidates, func(r route.Route) bool { return r.LocalPref == best })
}

func filterShortestPath(candidates []route.Route) []route.Route {
	best := len(candidates[0].ASPath)
	for _, r := range candidates[1:] {
		if len(r.ASPath) < best {
			best = len(r.ASPath)
		}
	}
	return keep(candidates, func(r route.Route) bool { return len(r.ASPath) == best })
}

func filterLowestMED(candidates []route.Route) []route.Route {
	best := candidates[0].MED
	for _, r := range candidates[1:] {
		if r.MED < best {
			best = r.MED
		}
	}
	return keep(candidates, func(r route.Route) bool { return r.MED == best })
}

func filterMostRecent(candidates []route.Route) []route.Route {
	best := candidates[0].OriginTime
	for _, r := range candidates[1:] {
		if r.OriginTime.After(best) {
			best = r.OriginTime
		}
	}
	return keep(candidates, func(r route.Route) bool { return r.OriginTime.Equal(best) })
}

// keep preserves input order, which the final tie-break relies on.
func keep(candidates []route.Route, pred func(route.Route) bool) []route.Route {
	out := candidates[:0:0]
	for _, r := range candidates {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}
