// ABOUTME: Route value type for agent routing advertisements.
// ABOUTME: Carries AS path, preference attributes, and capability metadata.

package route

import (
	"strings"
	"time"
)

// Attribute bounds. LocalPref and MED are clamped on construction and on
// policy modification so a single rogue advertisement cannot dominate the
// decision process.
const (
	MaxLocalPref = 999
	MaxMED       = 999
)

// DefaultLocalPref is the preference assigned to routes with no explicit
// operator preference.
const DefaultLocalPref = 100

// Route is a routing advertisement for one agent via one path.
type Route struct {
	// AgentID is the opaque identifier of the advertised agent.
	AgentID string `json:"agentId"`

	// Capabilities lists the capability tags the agent offers. Stored
	// case-sensitively; matching helpers are case-insensitive.
	Capabilities []string `json:"capabilities"`

	// ASPath is the ordered sequence of AS numbers the advertisement
	// traversed, oldest origin first. Loop-free by invariant.
	ASPath []uint32 `json:"asPath"`

	// NextHop is the reachable address of the final hop.
	NextHop string `json:"nextHop"`

	// LocalPref is operator-assigned desirability; higher wins.
	LocalPref int `json:"localPref"`

	// MED is a cost proxy (latency, queue depth, error rate); lower wins.
	MED int `json:"med"`

	// Communities are opaque policy tags (region, performance class).
	Communities []string `json:"communities"`

	// OriginTime is when the advertisement was created. Used for the
	// recency tie-break and staleness detection.
	OriginTime time.Time `json:"originTime"`

	// PathAttributes is an open extension bag. The RIB and decision
	// process never interpret it; only policy rules and adapters do.
	PathAttributes map[string]string `json:"pathAttributes,omitempty"`
}

// PathKey identifies one path in the multi-path pool: one agent reached
// via one origin AS. A struct key gives structural equality without the
// separator-collision hazards of concatenated string keys.
type PathKey struct {
	AgentID  string
	OriginAS uint32
}

// OriginAS returns the first AS on the path, or 0 for an empty path.
func (r Route) OriginAS() uint32 {
	if len(r.ASPath) == 0 {
		return 0
	}
	return r.ASPath[0]
}

// NeighborAS returns the last AS on the path (the peer we learned the
// route from), or 0 for an empty path.
func (r Route) NeighborAS() uint32 {
	if len(r.ASPath) == 0 {
		return 0
	}
	return r.ASPath[len(r.ASPath)-1]
}

// Key returns the path-pool key for this route.
func (r Route) Key() PathKey {
	return PathKey{AgentID: r.AgentID, OriginAS: r.OriginAS()}
}

// Clone returns a deep copy. Slices and the attribute map are copied so
// the clone can be modified freely without aliasing the original.
func (r Route) Clone() Route {
	out := r
	out.Capabilities = append([]string(nil), r.Capabilities...)
	out.ASPath = append([]uint32(nil), r.ASPath...)
	out.Communities = append([]string(nil), r.Communities...)
	if r.PathAttributes != nil {
		out.PathAttributes = make(map[string]string, len(r.PathAttributes))
		for k, v := range r.PathAttributes {
			out.PathAttributes[k] = v
		}
	}
	return out
}

// HasCapability reports whether the route advertises the capability,
// compared case-insensitively.
func (r Route) HasCapability(capability string) bool {
	for _, c := range r.Capabilities {
		if strings.EqualFold(c, capability) {
			return true
		}
	}
	return false
}

// MatchesCapability reports whether any advertised capability contains
// the requirement as a case-insensitive substring. This looser match is
// what the decision process uses to narrow candidates.
func (r Route) MatchesCapability(required string) bool {
	req := strings.ToLower(required)
	for _, c := range r.Capabilities {
		if strings.Contains(strings.ToLower(c), req) {
			return true
		}
	}
	return false
}

// HasCommunity reports whether the route carries the community tag.
func (r Route) HasCommunity(community string) bool {
	for _, c := range r.Communities {
		if c == community {
			return true
		}
	}
	return false
}

// ClampAttributes bounds LocalPref and MED into their valid ranges.
func (r *Route) ClampAttributes() {
	if r.LocalPref > MaxLocalPref {
		r.LocalPref = MaxLocalPref
	}
	if r.LocalPref < 0 {
		r.LocalPref = 0
	}
	if r.MED > MaxMED {
		r.MED = MaxMED
	}
	if r.MED < 0 {
		r.MED = 0
	}
}
