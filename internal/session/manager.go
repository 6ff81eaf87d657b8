// ABOUTME: Session manager: peer CRUD, protocol handlers, hold-timer expiry.
// ABOUTME: Routes flow Adj-RIB-In -> policy -> decision -> Loc-RIB on every change.

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/2389/coven-routes/internal/decision"
	"github.com/2389/coven-routes/internal/policy"
	"github.com/2389/coven-routes/internal/rib"
	"github.com/2389/coven-routes/internal/route"
)

// Session errors.
var (
	ErrPeerExists     = errors.New("peer already exists")
	ErrPeerNotFound   = errors.New("peer not found")
	ErrInvalidASN     = errors.New("asn must be a positive integer")
	ErrInvalidAddress = errors.New("peer address is required")
	ErrBadUpdate      = errors.New("malformed update message")
)

// Config tunes a session Manager.
type Config struct {
	LocalASN uint32
	RouterID string
	// HoldTime is our offered hold time. Zero means the default.
	HoldTime time.Duration
	// KeepaliveInterval is advisory, reported to peers. Zero means default.
	KeepaliveInterval time.Duration
	// LocalCapabilities are echoed in OPEN acknowledgements.
	LocalCapabilities []string
	// MaxASPathLength bounds accepted advertisement paths.
	MaxASPathLength int
}

// Manager owns the peer table and applies protocol messages to the RIB.
type Manager struct {
	mu    sync.Mutex
	peers map[uint32]*Peer

	cfg    Config
	table  *rib.Table
	policy *policy.Engine
	logger *slog.Logger
}

// NewManager creates a session manager bound to a RIB table. The policy
// engine is optional; without one, candidates flow to the decision
// process unfiltered.
func NewManager(cfg Config, table *rib.Table, policyEngine *policy.Engine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HoldTime <= 0 {
		cfg.HoldTime = DefaultHoldTime
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if cfg.MaxASPathLength <= 0 {
		cfg.MaxASPathLength = route.DefaultMaxASPathLength
	}
	return &Manager{
		peers:  make(map[uint32]*Peer),
		cfg:    cfg,
		table:  table,
		policy: policyEngine,
		logger: logger,
	}
}

// AddPeer registers a peer and marks its session OpenSent: adding a peer
// means we have sent our OPEN toward it.
func (m *Manager) AddPeer(asn uint32, address string) (Peer, error) {
	if asn == 0 {
		return Peer{}, ErrInvalidASN
	}
	if address == "" {
		return Peer{}, ErrInvalidAddress
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.peers[asn]; exists {
		return Peer{}, fmt.Errorf("%w: %d", ErrPeerExists, asn)
	}

	peer := &Peer{
		ASN:               asn,
		Address:           address,
		State:             StateOpenSent,
		HoldTime:          m.cfg.HoldTime,
		HoldDeadline:      time.Now().Add(m.cfg.HoldTime),
		KeepaliveInterval: m.cfg.KeepaliveInterval,
	}
	m.peers[asn] = peer

	m.logger.Info("peer added",
		"peer_asn", asn,
		"address", address,
		"state", peer.State,
	)
	return peer.clone(), nil
}

// RemovePeer deletes a peer and withdraws everything it contributed.
// Returns the number of withdrawn routes.
func (m *Manager) RemovePeer(asn uint32) (int, error) {
	m.mu.Lock()
	_, exists := m.peers[asn]
	if !exists {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: %d", ErrPeerNotFound, asn)
	}
	delete(m.peers, asn)
	m.mu.Unlock()

	withdrawn := m.withdrawPeerRoutes(asn)
	m.logger.Info("peer removed", "peer_asn", asn, "withdrawn", withdrawn)
	return withdrawn, nil
}

// GetPeer returns a peer snapshot.
func (m *Manager) GetPeer(asn uint32) (Peer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	peer, ok := m.peers[asn]
	if !ok {
		return Peer{}, false
	}
	return peer.clone(), true
}

// ListPeers returns snapshots of every peer, ordered by ASN.
func (m *Manager) ListPeers() []Peer {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Peer, 0, len(m.peers))
	for _, peer := range m.peers {
		out = append(out, peer.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ASN < out[j].ASN })
	return out
}

// HandleOpen processes a received OPEN: the peer is created if unknown,
// hold time is negotiated to the smaller of the two offers, and the
// session advances to OpenConfirm. The returned result is our
// acknowledgement carrying local capabilities.
func (m *Manager) HandleOpen(msg OpenMessage) (OpenResult, error) {
	if msg.ASN == 0 {
		return OpenResult{}, ErrInvalidASN
	}

	offered := time.Duration(msg.HoldTime) * time.Second
	if offered <= 0 {
		offered = m.cfg.HoldTime
	}
	negotiated := m.cfg.HoldTime
	if offered < negotiated {
		negotiated = offered
	}

	m.mu.Lock()
	peer, ok := m.peers[msg.ASN]
	if !ok {
		peer = &Peer{
			ASN:               msg.ASN,
			Address:           msg.Address,
			KeepaliveInterval: m.cfg.KeepaliveInterval,
		}
		m.peers[msg.ASN] = peer
	}
	peer.RouterID = msg.RouterID
	peer.Capabilities = append([]string(nil), msg.Capabilities...)
	peer.HoldTime = negotiated
	peer.HoldDeadline = time.Now().Add(negotiated)
	peer.State = StateOpenConfirm
	peer.MessagesReceived++
	m.mu.Unlock()

	m.logger.Info("open received",
		"peer_asn", msg.ASN,
		"router_id", msg.RouterID,
		"hold_time", negotiated,
	)
	return OpenResult{
		ASN:          m.cfg.LocalASN,
		RouterID:     m.cfg.RouterID,
		HoldTime:     int(negotiated / time.Second),
		Capabilities: append([]string(nil), m.cfg.LocalCapabilities...),
		State:        StateOpenConfirm,
	}, nil
}

// HandleKeepalive resets the peer's hold timer. A keepalive received in
// OpenConfirm completes the session: the peer becomes Established.
func (m *Manager) HandleKeepalive(asn uint32) (Peer, error) {
	m.mu.Lock()
	peer, ok := m.peers[asn]
	if !ok {
		m.mu.Unlock()
		return Peer{}, fmt.Errorf("%w: %d", ErrPeerNotFound, asn)
	}

	peer.HoldDeadline = time.Now().Add(peer.HoldTime)
	peer.MessagesReceived++
	established := false
	if peer.State == StateOpenConfirm {
		peer.State = StateEstablished
		peer.EstablishedAt = time.Now()
		established = true
		m.logger.Info("session established", "peer_asn", asn)
	}
	snapshot := peer.clone()
	m.mu.Unlock()

	if established {
		m.advertiseTableTo(asn)
	}
	return snapshot, nil
}

// HandleUpdate applies a peer's advertisements and withdrawals to the
// Adj-RIB-In and recomputes best paths for every affected agent.
// Advertised routes failing AS-path validation are rejected individually
// and counted; they never fail the whole message.
func (m *Manager) HandleUpdate(msg UpdateMessage) (UpdateResult, error) {
	if msg.SenderASN == 0 {
		return UpdateResult{}, fmt.Errorf("%w: senderASN is required", ErrBadUpdate)
	}

	m.mu.Lock()
	peer, ok := m.peers[msg.SenderASN]
	if !ok {
		m.mu.Unlock()
		return UpdateResult{}, fmt.Errorf("%w: %d", ErrPeerNotFound, msg.SenderASN)
	}
	peer.HoldDeadline = time.Now().Add(peer.HoldTime)
	peer.MessagesReceived++
	m.mu.Unlock()

	result := UpdateResult{}
	affected := make(map[string]bool)

	for _, r := range msg.AdvertisedRoutes {
		if r.AgentID == "" {
			result.RejectedRoutes++
			continue
		}
		if issues := route.ValidateASPath(r.ASPath, m.cfg.MaxASPathLength); len(issues) > 0 {
			m.logger.Warn("advertised route rejected",
				"peer_asn", msg.SenderASN,
				"agent_id", r.AgentID,
				"issue", issues[0].String(),
			)
			result.RejectedRoutes++
			continue
		}
		if route.ContainsAS(r.ASPath, m.cfg.LocalASN) {
			// Our own AS on the path means the advertisement looped
			// back to us.
			m.logger.Warn("advertised route rejected, local AS on path",
				"peer_asn", msg.SenderASN,
				"agent_id", r.AgentID,
			)
			result.RejectedRoutes++
			continue
		}

		r.ClampAttributes()
		if r.OriginTime.IsZero() {
			r.OriginTime = time.Now()
		}
		if err := m.table.AddRouteFromPeer(msg.SenderASN, r); err != nil {
			result.RejectedRoutes++
			continue
		}
		result.Accepted++
		affected[r.AgentID] = true
	}

	for _, agentID := range msg.WithdrawnRoutes {
		if m.table.RemoveRouteFromPeer(msg.SenderASN, agentID) {
			result.Withdrawn++
			affected[agentID] = true
		}
	}

	for agentID := range affected {
		m.recomputeBestRoute(agentID)
		result.AffectedAgents = append(result.AffectedAgents, agentID)
	}
	sort.Strings(result.AffectedAgents)

	return result, nil
}

// HandleNotification tears the session down: the peer goes back to Idle
// and every route it contributed is withdrawn.
func (m *Manager) HandleNotification(msg NotificationMessage) (NotificationResult, error) {
	m.mu.Lock()
	peer, ok := m.peers[msg.SenderASN]
	if !ok {
		m.mu.Unlock()
		return NotificationResult{}, fmt.Errorf("%w: %d", ErrPeerNotFound, msg.SenderASN)
	}
	peer.State = StateIdle
	peer.EstablishedAt = time.Time{}
	peer.MessagesReceived++
	m.mu.Unlock()

	withdrawn := m.withdrawPeerRoutes(msg.SenderASN)
	m.logger.Warn("notification received, session torn down",
		"peer_asn", msg.SenderASN,
		"reason", msg.Reason,
		"withdrawn", withdrawn,
	)
	return NotificationResult{WithdrawnRoutes: withdrawn}, nil
}

// ExpireHoldTimers tears down every established or confirming session
// whose hold deadline has passed. Returns the ASNs torn down.
func (m *Manager) ExpireHoldTimers(now time.Time) []uint32 {
	m.mu.Lock()
	var expired []uint32
	for asn, peer := range m.peers {
		if peer.State == StateIdle {
			continue
		}
		if now.After(peer.HoldDeadline) {
			peer.State = StateIdle
			peer.EstablishedAt = time.Time{}
			expired = append(expired, asn)
		}
	}
	m.mu.Unlock()

	for _, asn := range expired {
		withdrawn := m.withdrawPeerRoutes(asn)
		m.logger.Warn("hold timer expired, session torn down",
			"peer_asn", asn,
			"withdrawn", withdrawn,
		)
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	return expired
}

// AdvertiseLocal installs a locally originated route: it enters the
// Adj-RIB-In under our own ASN so best-path recomputation treats it like
// any other candidate.
func (m *Manager) AdvertiseLocal(r route.Route) error {
	if len(r.ASPath) == 0 {
		r.ASPath = []uint32{m.cfg.LocalASN}
	}
	r.ClampAttributes()
	if r.OriginTime.IsZero() {
		r.OriginTime = time.Now()
	}
	if err := m.table.AddRouteFromPeer(m.cfg.LocalASN, r); err != nil {
		return err
	}
	m.recomputeBestRoute(r.AgentID)
	return nil
}

// WithdrawLocal removes a locally originated route.
func (m *Manager) WithdrawLocal(agentID string) bool {
	removed := m.table.RemoveRouteFromPeer(m.cfg.LocalASN, agentID)
	if removed {
		m.recomputeBestRoute(agentID)
	}
	return removed
}

// withdrawPeerRoutes removes a peer's contributions and recomputes the
// best path for every agent it had advertised.
func (m *Manager) withdrawPeerRoutes(asn uint32) int {
	contributed := m.table.GetRoutesFromPeer(asn)
	withdrawn := m.table.RemoveAllRoutesFromPeer(asn)
	m.table.RemoveRoutesForPeer(asn)
	for _, r := range contributed {
		m.recomputeBestRoute(r.AgentID)
	}
	return withdrawn
}

// recomputeBestRoute funnels an agent's candidates through policy and
// the decision process, then installs or clears the Loc-RIB slot.
func (m *Manager) recomputeBestRoute(agentID string) {
	candidates := m.table.CandidatesForAgent(agentID)
	if m.policy != nil {
		candidates = m.policy.Apply(candidates)
	}

	best, ok := decision.Select(candidates, nil)
	if !ok {
		if m.table.RemoveBestRoute(agentID) {
			m.logger.Info("best route removed, no surviving candidates",
				"agent_id", agentID,
			)
		}
		m.table.RemoveAdvertisedRoute(agentID)
		return
	}
	if err := m.table.InstallBestRoute(agentID, best); err != nil {
		m.logger.Error("installing best route failed",
			"agent_id", agentID,
			"error", err,
		)
		return
	}
	m.advertiseToPeers(best)
}

// advertiseToPeers refreshes each established peer's Adj-RIB-Out view of
// an agent's best route. The route is exported with our ASN appended;
// the peer it was learned from and any peer already on the path are
// skipped, and stale entries for other peers are retracted first.
func (m *Manager) advertiseToPeers(best route.Route) {
	m.table.RemoveAdvertisedRoute(best.AgentID)

	exported := m.exportRoute(best)
	for _, asn := range m.establishedPeers() {
		if asn == best.NeighborAS() || route.ContainsAS(best.ASPath, asn) {
			continue
		}
		if err := m.table.AddRouteForPeer(asn, exported); err != nil {
			m.logger.Error("recording advertisement failed",
				"agent_id", best.AgentID,
				"peer_asn", asn,
				"error", err,
			)
		}
	}
}

// advertiseTableTo seeds a newly established peer's Adj-RIB-Out with
// every current best route it is eligible to receive.
func (m *Manager) advertiseTableTo(asn uint32) {
	for _, best := range m.table.AllBestRoutes() {
		if asn == best.NeighborAS() || route.ContainsAS(best.ASPath, asn) {
			continue
		}
		if err := m.table.AddRouteForPeer(asn, m.exportRoute(best)); err != nil {
			m.logger.Error("recording advertisement failed",
				"agent_id", best.AgentID,
				"peer_asn", asn,
				"error", err,
			)
		}
	}
}

// exportRoute returns the advertisement view of a best route, with our
// ASN appended to the path unless it already appears there.
func (m *Manager) exportRoute(best route.Route) route.Route {
	exported := best.Clone()
	if !route.ContainsAS(exported.ASPath, m.cfg.LocalASN) {
		exported.ASPath = append(exported.ASPath, m.cfg.LocalASN)
	}
	return exported
}

// establishedPeers snapshots the ASNs of peers in the Established state.
func (m *Manager) establishedPeers() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]uint32, 0, len(m.peers))
	for asn, peer := range m.peers {
		if peer.State == StateEstablished {
			out = append(out, asn)
		}
	}
	return out
}

// Stats summarizes the peer table for the control surface.
type Stats struct {
	Peers       int           `json:"peers"`
	Established int           `json:"established"`
	ByState     map[State]int `json:"byState"`
	LocalASN    uint32        `json:"localASN"`
	RouterID    string        `json:"routerId"`
}

// Stats returns session counts by state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		Peers:    len(m.peers),
		ByState:  make(map[State]int),
		LocalASN: m.cfg.LocalASN,
		RouterID: m.cfg.RouterID,
	}
	for _, peer := range m.peers {
		stats.ByState[peer.State]++
		if peer.State == StateEstablished {
			stats.Established++
		}
	}
	return stats
}
