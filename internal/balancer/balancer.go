// ABOUTME: Multi-path balancer core: path pool, health state, decision history.
// ABOUTME: Mutations are no-ops while disabled; an empty pool never errors.

package balancer

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-routes/internal/route"
)

// Pool and history bounds.
const (
	DefaultMaxPaths          = 64
	DecisionHistory          = 1000
	DefaultDegradedLatencyMs = 1000.0
	UnhealthyFailures        = 3
)

// ErrPoolFull indicates the pool is at its path limit.
var ErrPoolFull = errors.New("path pool is full")

// Status is the derived health of one path.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
)

// PathHealth is the externally visible health snapshot of a path.
type PathHealth struct {
	Status         Status    `json:"status"`
	ResponseTimeMs float64   `json:"responseTimeMs"`
	FailureCount   int       `json:"failureCount"`
	SuccessCount   int       `json:"successCount"`
	InFlight       int       `json:"inFlight"`
	Utilization    int       `json:"utilization"`
	LastChecked    time.Time `json:"lastChecked"`
}

// pathState is the mutable per-path record, guarded by the balancer lock.
type pathState struct {
	route route.Route

	status         Status
	responseTimeMs float64
	hasSample      bool
	failureCount   int
	successCount   int
	inFlight       int
	utilization    int
	lastChecked    time.Time
}

// Decision records one selection outcome.
type Decision struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agentId"`
	Selected  route.PathKey   `json:"selected"`
	Available []route.PathKey `json:"available"`
	Method    Strategy        `json:"method"`
	Reason    string          `json:"reason"`
	Timestamp time.Time       `json:"timestamp"`
}

// Config tunes a Balancer.
type Config struct {
	// MaxPaths bounds the pool size. Zero means DefaultMaxPaths.
	MaxPaths int
	// Strategy is the default selection strategy.
	Strategy Strategy
	// DegradedLatencyMs is the smoothed-latency threshold above which a
	// path is considered degraded. Zero means the default.
	DegradedLatencyMs float64
}

// Balancer maintains the live path pool for all agents.
type Balancer struct {
	mu sync.Mutex

	enabled           bool
	maxPaths          int
	strategy          Strategy
	degradedLatencyMs float64

	paths map[route.PathKey]*pathState

	// weights maps glob patterns to selection weights for the weighted
	// strategy. Patterns match the path's next hop, then its agent ID.
	weights map[string]int

	// rrCounters drives round-robin, one cursor per agent.
	rrCounters map[string]int

	decisions  []Decision
	decisionAt int

	observers []Observer
	logger    *slog.Logger

	randFn func(n int) int
}

// New creates an enabled Balancer with the given configuration.
func New(cfg Config, logger *slog.Logger) *Balancer {
	if logger == nil {
		logger = slog.Default()
	}
	maxPaths := cfg.MaxPaths
	if maxPaths <= 0 {
		maxPaths = DefaultMaxPaths
	}
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = StrategyRoundRobin
	}
	degraded := cfg.DegradedLatencyMs
	if degraded <= 0 {
		degraded = DefaultDegradedLatencyMs
	}
	return &Balancer{
		enabled:           true,
		maxPaths:          maxPaths,
		strategy:          strategy,
		degradedLatencyMs: degraded,
		paths:             make(map[route.PathKey]*pathState),
		weights:           make(map[string]int),
		rrCounters:        make(map[string]int),
		decisions:         make([]Decision, 0, DecisionHistory),
		logger:            logger,
		randFn:            defaultRand,
	}
}

// Subscribe registers an observer for balancer events.
func (b *Balancer) Subscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// SetEnabled toggles the balancer. While disabled every mutating
// operation is a no-op and selection returns nothing.
func (b *Balancer) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

// Enabled reports whether the balancer accepts work.
func (b *Balancer) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// AddPath inserts a route into the pool keyed by (agent, origin AS).
// Re-adding an existing key refreshes the route but keeps health state.
func (b *Balancer) AddPath(r route.Route) error {
	b.mu.Lock()
	if !b.enabled {
		b.mu.Unlock()
		return nil
	}

	key := r.Key()
	if existing, ok := b.paths[key]; ok {
		existing.route = r
		b.mu.Unlock()
		return nil
	}
	if len(b.paths) >= b.maxPaths {
		b.mu.Unlock()
		return ErrPoolFull
	}

	b.paths[key] = &pathState{route: r, status: Healthy}
	event := PathEvent{Key: key, Route: r, PoolSize: len(b.paths), Timestamp: time.Now()}
	observers := append([]Observer(nil), b.observers...)
	b.mu.Unlock()

	b.logger.Debug("path added", "agent_id", key.AgentID, "origin_as", key.OriginAS)
	for _, o := range observers {
		o.OnPathAdded(event)
	}
	return nil
}

// RemovePath drops a path from the pool, reporting whether it existed.
func (b *Balancer) RemovePath(key route.PathKey) bool {
	b.mu.Lock()
	if !b.enabled {
		b.mu.Unlock()
		return false
	}
	state, ok := b.paths[key]
	if !ok {
		b.mu.Unlock()
		return false
	}
	delete(b.paths, key)
	event := PathEvent{Key: key, Route: state.route, PoolSize: len(b.paths), Timestamp: time.Now()}
	observers := append([]Observer(nil), b.observers...)
	b.mu.Unlock()

	b.logger.Debug("path removed", "agent_id", key.AgentID, "origin_as", key.OriginAS)
	for _, o := range observers {
		o.OnPathRemoved(event)
	}
	return true
}

// SetWeight assigns a selection weight to a glob pattern for the
// weighted strategy. Weights below one are treated as one.
func (b *Balancer) SetWeight(pattern string, weight int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if weight < 1 {
		weight = 1
	}
	b.weights[pattern] = weight
}

// PathsForAgent returns the pool keys for one agent, eligible or not.
func (b *Balancer) PathsForAgent(agentID string) []route.PathKey {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []route.PathKey
	for key := range b.paths {
		if key.AgentID == agentID {
			out = append(out, key)
		}
	}
	return out
}

// Health returns a path's health snapshot.
func (b *Balancer) Health(key route.PathKey) (PathHealth, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.paths[key]
	if !ok {
		return PathHealth{}, false
	}
	return state.snapshot(), true
}

func (s *pathState) snapshot() PathHealth {
	return PathHealth{
		Status:         s.status,
		ResponseTimeMs: s.responseTimeMs,
		FailureCount:   s.failureCount,
		SuccessCount:   s.successCount,
		InFlight:       s.inFlight,
		Utilization:    s.utilization,
		LastChecked:    s.lastChecked,
	}
}

// ReportRequestComplete feeds a request outcome back into path health
// and releases the in-flight slot taken at selection time.
func (b *Balancer) ReportRequestComplete(key route.PathKey, success bool, latencyMs float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.enabled {
		return
	}
	state, ok := b.paths[key]
	if !ok {
		return
	}

	if state.inFlight > 0 {
		state.inFlight--
	}
	state.recordSample(success, latencyMs, b.degradedLatencyMs)
}

// recordSample applies exponential smoothing and recomputes status.
// new = old*0.8 + sample*0.2.
func (s *pathState) recordSample(success bool, latencyMs float64, degradedLatencyMs float64) {
	if latencyMs >= 0 {
		if s.hasSample {
			s.responseTimeMs = s.responseTimeMs*0.8 + latencyMs*0.2
		} else {
			s.responseTimeMs = latencyMs
			s.hasSample = true
		}
	}

	if success {
		s.successCount++
		if s.failureCount > 0 {
			s.failureCount--
		}
	} else {
		s.failureCount++
	}
	s.lastChecked = time.Now()
	s.deriveStatus(degradedLatencyMs)
}

// deriveStatus maps counters onto the three-state health model.
func (s *pathState) deriveStatus(degradedLatencyMs float64) {
	total := s.successCount + s.failureCount
	failureRate := 0.0
	if total > 0 {
		failureRate = float64(s.failureCount) / float64(total)
	}

	switch {
	case s.failureCount >= UnhealthyFailures || failureRate > 0.5:
		s.status = Unhealthy
	case s.failureCount > 0 || (s.hasSample && s.responseTimeMs > degradedLatencyMs):
		s.status = Degraded
	default:
		s.status = Healthy
	}
}

// Decisions returns the recorded selection history, oldest first.
func (b *Balancer) Decisions() []Decision {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.decisions) < DecisionHistory || b.decisionAt == 0 {
		return append([]Decision(nil), b.decisions...)
	}
	// The ring has wrapped; the oldest entry sits at decisionAt.
	out := make([]Decision, 0, len(b.decisions))
	out = append(out, b.decisions[b.decisionAt:]...)
	out = append(out, b.decisions[:b.decisionAt]...)
	return out
}

// recordDecision appends to the bounded history ring. Caller holds the lock.
func (b *Balancer) recordDecision(d Decision) {
	if len(b.decisions) < DecisionHistory {
		b.decisions = append(b.decisions, d)
		return
	}
	b.decisions[b.decisionAt] = d
	b.decisionAt = (b.decisionAt + 1) % DecisionHistory
}

// Stats summarizes the pool for the control surface.
type Stats struct {
	Enabled   bool           `json:"enabled"`
	Paths     int            `json:"paths"`
	Healthy   int            `json:"healthy"`
	Degraded  int            `json:"degraded"`
	Unhealthy int            `json:"unhealthy"`
	Strategy  Strategy       `json:"strategy"`
	Decisions int            `json:"decisions"`
	PerAgent  map[string]int `json:"perAgent"`
}

// Stats returns a pool summary.
func (b *Balancer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		Enabled:   b.enabled,
		Paths:     len(b.paths),
		Strategy:  b.strategy,
		Decisions: len(b.decisions),
		PerAgent:  make(map[string]int),
	}
	for key, state := range b.paths {
		stats.PerAgent[key.AgentID]++
		switch state.status {
		case Healthy:
			stats.Healthy++
		case Degraded:
			stats.Degraded++
		case Unhealthy:
			stats.Unhealthy++
		}
	}
	return stats
}

func newDecisionID() string {
	return uuid.New().String()
}
