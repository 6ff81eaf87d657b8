// ABOUTME: Policy rule types: match predicates, actions, and attribute overrides.
// ABOUTME: Modify actions always produce a fresh route copy, never mutate in place.

package policy

import (
	"github.com/2389/coven-routes/internal/route"
)

// Action is what a matching rule does with a route.
type Action int

const (
	// Accept passes the route unchanged to the next rule.
	Accept Action = iota
	// Reject removes the route permanently for this application.
	Reject
	// Modify replaces the route with an adjusted copy and continues.
	Modify
)

func (a Action) String() string {
	switch a {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	case Modify:
		return "modify"
	default:
		return "unknown"
	}
}

// Overrides describes the attribute adjustments a Modify action applies.
// Nil pointer fields leave the attribute untouched.
type Overrides struct {
	LocalPref         *int
	MED               *int
	AddCommunities    []string
	RemoveCommunities []string
	SetAttributes     map[string]string
}

// Rule is one policy entry. Higher Priority evaluates first; ties are
// broken by insertion order.
type Rule struct {
	Name      string
	Enabled   bool
	Priority  int
	Match     func(route.Route) bool
	Action    Action
	Overrides Overrides

	// seq is the insertion sequence, assigned by the engine.
	seq int
}

// apply runs the rule's overrides against a copy of the route.
func (ov Overrides) apply(r route.Route) route.Route {
	out := r.Clone()

	if ov.LocalPref != nil {
		out.LocalPref = *ov.LocalPref
	}
	if ov.MED != nil {
		out.MED = *ov.MED
	}

	for _, c := range ov.AddCommunities {
		if !out.HasCommunity(c) {
			out.Communities = append(out.Communities, c)
		}
	}
	if len(ov.RemoveCommunities) > 0 {
		remove := make(map[string]bool, len(ov.RemoveCommunities))
		for _, c := range ov.RemoveCommunities {
			remove[c] = true
		}
		kept := out.Communities[:0]
		for _, c := range out.Communities {
			if !remove[c] {
				kept = append(kept, c)
			}
		}
		out.Communities = kept
	}

	if len(ov.SetAttributes) > 0 {
		if out.PathAttributes == nil {
			out.PathAttributes = make(map[string]string, len(ov.SetAttributes))
		}
		for k, v := range ov.SetAttributes {
			out.PathAttributes[k] = v
		}
	}

	out.ClampAttributes()
	return out
}

// IntPtr is a convenience for building Overrides literals.
func IntPtr(v int) *int { return &v }
