// ABOUTME: RIB table storage and mutation: per-peer input, installed best routes, advertised output.
// ABOUTME: Full-peer withdrawal on session teardown returns the removed-route count.

package rib

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/2389/coven-routes/internal/route"
)

// ErrEmptyAgentID is returned when a mutation names no agent.
var ErrEmptyAgentID = errors.New("agent id is empty")

// Table is the routing information base for one routing engine instance.
type Table struct {
	mu sync.RWMutex

	// adjRIBIn: peer ASN -> agent ID -> route the peer advertised.
	adjRIBIn map[uint32]map[string]route.Route

	// locRIB: agent ID -> the single installed best route.
	locRIB map[string]route.Route

	// adjRIBOut: peer ASN -> agent ID -> route we advertised to the peer.
	adjRIBOut map[uint32]map[string]route.Route

	logger *slog.Logger
}

// NewTable creates an empty RIB table.
func NewTable(logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		adjRIBIn:  make(map[uint32]map[string]route.Route),
		locRIB:    make(map[string]route.Route),
		adjRIBOut: make(map[uint32]map[string]route.Route),
		logger:    logger,
	}
}

// AddRouteFromPeer records a route a peer advertised to us (Adj-RIB-In).
// A later advertisement for the same agent from the same peer overwrites
// the earlier one.
func (t *Table) AddRouteFromPeer(peerASN uint32, r route.Route) error {
	if r.AgentID == "" {
		return ErrEmptyAgentID
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	peerRoutes, ok := t.adjRIBIn[peerASN]
	if !ok {
		peerRoutes = make(map[string]route.Route)
		t.adjRIBIn[peerASN] = peerRoutes
	}
	peerRoutes[r.AgentID] = r

	t.logger.Debug("route added to adj-rib-in",
		"peer_asn", peerASN,
		"agent_id", r.AgentID,
		"as_path", r.ASPath,
	)
	return nil
}

// RemoveRouteFromPeer withdraws one agent's route from a peer's
// Adj-RIB-In. Reports whether a route was actually present.
func (t *Table) RemoveRouteFromPeer(peerASN uint32, agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	peerRoutes, ok := t.adjRIBIn[peerASN]
	if !ok {
		return false
	}
	if _, ok := peerRoutes[agentID]; !ok {
		return false
	}
	delete(peerRoutes, agentID)
	if len(peerRoutes) == 0 {
		delete(t.adjRIBIn, peerASN)
	}

	t.logger.Debug("route withdrawn from adj-rib-in",
		"peer_asn", peerASN,
		"agent_id", agentID,
	)
	return true
}

// RemoveAllRoutesFromPeer drops every route a peer has contributed,
// returning how many were removed. Called on session teardown: a dead
// session means a full withdrawal of that peer's advertisements.
func (t *Table) RemoveAllRoutesFromPeer(peerASN uint32) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	peerRoutes, ok := t.adjRIBIn[peerASN]
	if !ok {
		return 0
	}
	removed := len(peerRoutes)
	delete(t.adjRIBIn, peerASN)

	t.logger.Info("all routes withdrawn from peer",
		"peer_asn", peerASN,
		"removed", removed,
	)
	return removed
}

// GetRoutesFromPeer returns a copy of a peer's Adj-RIB-In entries.
func (t *Table) GetRoutesFromPeer(peerASN uint32) []route.Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	peerRoutes := t.adjRIBIn[peerASN]
	out := make([]route.Route, 0, len(peerRoutes))
	for _, r := range peerRoutes {
		out = append(out, r)
	}
	return out
}

// GetRouteFromPeer returns one agent's route from a peer's Adj-RIB-In.
func (t *Table) GetRouteFromPeer(peerASN uint32, agentID string) (route.Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.adjRIBIn[peerASN][agentID]
	return r, ok
}

// CandidatesForAgent collects every Adj-RIB-In route for one agent across
// all peers. Input set for the best-path decision process.
func (t *Table) CandidatesForAgent(agentID string) []route.Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []route.Route
	for _, peerRoutes := range t.adjRIBIn {
		if r, ok := peerRoutes[agentID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// InstallBestRoute writes the authoritative route for an agent into the
// Loc-RIB. One slot per agent; installing overwrites, never merges.
func (t *Table) InstallBestRoute(agentID string, r route.Route) error {
	if agentID == "" {
		return ErrEmptyAgentID
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.locRIB[agentID] = r
	t.logger.Debug("best route installed",
		"agent_id", agentID,
		"as_path", r.ASPath,
		"local_pref", r.LocalPref,
	)
	return nil
}

// GetBestRoute returns the installed route for an agent, if any.
func (t *Table) GetBestRoute(agentID string) (route.Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.locRIB[agentID]
	return r, ok
}

// RemoveBestRoute clears an agent's Loc-RIB slot. Reports whether a
// route was installed.
func (t *Table) RemoveBestRoute(agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.locRIB[agentID]; !ok {
		return false
	}
	delete(t.locRIB, agentID)
	return true
}

// AllBestRoutes returns a copy of the Loc-RIB.
func (t *Table) AllBestRoutes() map[string]route.Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]route.Route, len(t.locRIB))
	for id, r := range t.locRIB {
		out[id] = r
	}
	return out
}

// AddRouteForPeer records a route we advertised to a peer (Adj-RIB-Out).
func (t *Table) AddRouteForPeer(peerASN uint32, r route.Route) error {
	if r.AgentID == "" {
		return ErrEmptyAgentID
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	peerRoutes, ok := t.adjRIBOut[peerASN]
	if !ok {
		peerRoutes = make(map[string]route.Route)
		t.adjRIBOut[peerASN] = peerRoutes
	}
	peerRoutes[r.AgentID] = r
	return nil
}

// GetRoutesForPeer returns a copy of what we have advertised to a peer.
func (t *Table) GetRoutesForPeer(peerASN uint32) []route.Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	peerRoutes := t.adjRIBOut[peerASN]
	out := make([]route.Route, 0, len(peerRoutes))
	for _, r := range peerRoutes {
		out = append(out, r)
	}
	return out
}

// RemoveAdvertisedRoute retracts an agent's route from every peer's
// Adj-RIB-Out, returning the number of entries removed.
func (t *Table) RemoveAdvertisedRoute(agentID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for peerASN, peerRoutes := range t.adjRIBOut {
		if _, ok := peerRoutes[agentID]; !ok {
			continue
		}
		delete(peerRoutes, agentID)
		removed++
		if len(peerRoutes) == 0 {
			delete(t.adjRIBOut, peerASN)
		}
	}
	return removed
}

// RemoveRoutesForPeer clears a peer's Adj-RIB-Out, returning the count.
func (t *Table) RemoveRoutesForPeer(peerASN uint32) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := len(t.adjRIBOut[peerASN])
	delete(t.adjRIBOut, peerASN)
	return removed
}

// Statistics summarizes table occupancy for the control surface.
type Statistics struct {
	AdjRIBInRoutes  int            `json:"adjRibInRoutes"`
	LocRIBRoutes    int            `json:"locRibRoutes"`
	AdjRIBOutRoutes int            `json:"adjRibOutRoutes"`
	Peers           int            `json:"peers"`
	RoutesPerPeer   map[uint32]int `json:"routesPerPeer"`
}

// Statistics returns per-RIB route counts and per-peer contributions.
func (t *Table) Statistics() Statistics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := Statistics{
		LocRIBRoutes:  len(t.locRIB),
		Peers:         len(t.adjRIBIn),
		RoutesPerPeer: make(map[uint32]int, len(t.adjRIBIn)),
	}
	for asn, peerRoutes := range t.adjRIBIn {
		stats.AdjRIBInRoutes += len(peerRoutes)
		stats.RoutesPerPeer[asn] = len(peerRoutes)
	}
	for _, peerRoutes := range t.adjRIBOut {
		stats.AdjRIBOutRoutes += len(peerRoutes)
	}
	return stats
}
