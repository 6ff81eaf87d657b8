// ABOUTME: AS-path discovery: queries candidate peers for an agent while enforcing loop freedom.
// ABOUTME: Bounded fan-out with per-call timeouts and capped exponential backoff.

// Package tracker discovers candidate routes to an agent across a set
// of peer autonomous systems. It enforces the two path invariants at the
// source: a discovered route never traverses the same AS twice and never
// exceeds the configured maximum path length.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/2389/coven-routes/internal/route"
)

// Peer describes one candidate AS to query during discovery.
type Peer struct {
	ASN      uint32
	Address  string
	Region   string
	Priority int
}

// Telemetry is what a peer reports about a hosted agent.
type Telemetry struct {
	Hosted       bool
	NextHop      string
	Capabilities []string
	LatencyMs    float64
	QueueDepth   int
	ErrorRate    float64
}

// PeerQuerier asks one peer whether it hosts an agent. Implementations
// live outside this package (capability-specific clients); the tracker
// only depends on the boundary.
type PeerQuerier interface {
	QueryAgent(ctx context.Context, peer Peer, agentID string) (Telemetry, error)
}

// QuerierFunc adapts a function to the PeerQuerier interface.
type QuerierFunc func(ctx context.Context, peer Peer, agentID string) (Telemetry, error)

func (f QuerierFunc) QueryAgent(ctx context.Context, peer Peer, agentID string) (Telemetry, error) {
	return f(ctx, peer, agentID)
}

// Config tunes discovery behavior.
type Config struct {
	// MaxASPathLength bounds discovered paths. Zero means the model default.
	MaxASPathLength int
	// LocalRegion earns peers in the same region a preference bonus.
	LocalRegion string
	// MaxConcurrent bounds parallel peer queries. Zero means 4.
	MaxConcurrent int
	// QueryTimeout bounds each peer query attempt. Zero means 5s.
	QueryTimeout time.Duration
	// MaxAttempts is how many times one peer is tried. Zero means 3.
	MaxAttempts int
}

// Derivation constants: how telemetry maps onto route attributes.
const (
	priorityBonus     = 50
	regionBonus       = 30
	latencyMEDDivisor = 10
	maxLatencyMED     = 200
	maxQueueMED       = 100
	errorRateMEDScale = 100
	backoffBase       = 100 * time.Millisecond
	backoffCap        = 2 * time.Second
)

// Tracker runs loop-free route discovery over a peer set.
type Tracker struct {
	querier PeerQuerier
	cfg     Config
	logger  *slog.Logger
}

// New creates a Tracker.
func New(querier PeerQuerier, cfg Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxASPathLength <= 0 {
		cfg.MaxASPathLength = route.DefaultMaxASPathLength
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Tracker{querier: querier, cfg: cfg, logger: logger}
}

// DiscoverAgentWithPath queries every eligible peer for the agent and
// returns the routes discovered. A current path that already carries a
// loop or exceeds the maximum length refuses discovery outright: every
// returned route extends a valid path. Peers already on the current path
// are skipped (loop prevention), and no peer is queried once the path
// has reached its maximum length. A failing peer is logged and excluded
// from this round; it never aborts discovery for the others.
func (t *Tracker) DiscoverAgentWithPath(ctx context.Context, agentID string, currentPath []uint32, peers []Peer) []route.Route {
	if len(currentPath) > 0 {
		if issues := route.ValidateASPath(currentPath, t.cfg.MaxASPathLength); len(issues) > 0 {
			t.logger.Warn("current path invalid, discovery refused",
				"agent_id", agentID,
				"path", currentPath,
				"issues", issues,
			)
			return nil
		}
	}
	if len(currentPath) >= t.cfg.MaxASPathLength {
		t.logger.Debug("path at maximum length, discovery skipped",
			"agent_id", agentID,
			"path_length", len(currentPath),
		)
		return nil
	}

	sem := semaphore.NewWeighted(int64(t.cfg.MaxConcurrent))
	var (
		mu    sync.Mutex
		found []route.Route
		wg    sync.WaitGroup
	)

	for _, peer := range peers {
		peer := peer
		if route.ContainsAS(currentPath, peer.ASN) {
			t.logger.Debug("peer skipped, already on path",
				"agent_id", agentID,
				"peer_asn", peer.ASN,
			)
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			telemetry, err := t.queryWithRetry(ctx, peer, agentID)
			if err != nil {
				t.logger.Warn("peer query failed, excluded from round",
					"agent_id", agentID,
					"peer_asn", peer.ASN,
					"error", err,
				)
				return
			}
			if !telemetry.Hosted {
				return
			}

			r := t.deriveRoute(agentID, currentPath, peer, telemetry)
			mu.Lock()
			found = append(found, r)
			mu.Unlock()
		}()
	}
	wg.Wait()

	return found
}

// queryWithRetry tries one peer up to MaxAttempts times with capped
// exponential backoff and a per-attempt timeout.
func (t *Tracker) queryWithRetry(ctx context.Context, peer Peer, agentID string) (Telemetry, error) {
	var lastErr error
	backoff := backoffBase

	for attempt := 0; attempt < t.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Telemetry{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > backoffCap {
				backoff = backoffCap
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, t.cfg.QueryTimeout)
		telemetry, err := t.querier.QueryAgent(attemptCtx, peer, agentID)
		cancel()
		if err == nil {
			return telemetry, nil
		}
		lastErr = err
	}
	return Telemetry{}, lastErr
}

// deriveRoute builds the advertisement for a discovery hit: the path is
// extended by the answering peer, preference rewards priority and region
// locality, and cost aggregates latency, queue depth, and error rate.
func (t *Tracker) deriveRoute(agentID string, currentPath []uint32, peer Peer, telemetry Telemetry) route.Route {
	path := make([]uint32, 0, len(currentPath)+1)
	path = append(path, currentPath...)
	path = append(path, peer.ASN)

	localPref := route.DefaultLocalPref
	if peer.Priority > 0 {
		localPref += priorityBonus
	}
	if t.cfg.LocalRegion != "" && peer.Region == t.cfg.LocalRegion {
		localPref += regionBonus
	}

	med := 0
	latencyTerm := int(telemetry.LatencyMs / latencyMEDDivisor)
	if latencyTerm > maxLatencyMED {
		latencyTerm = maxLatencyMED
	}
	med += latencyTerm
	queueTerm := telemetry.QueueDepth
	if queueTerm > maxQueueMED {
		queueTerm = maxQueueMED
	}
	med += queueTerm
	med += int(telemetry.ErrorRate * errorRateMEDScale)

	communities := []string{}
	if peer.Region != "" {
		communities = append(communities, "region:"+peer.Region)
	}
	if peer.Priority > 0 {
		communities = append(communities, "priority:high")
	}

	r := route.Route{
		AgentID:      agentID,
		Capabilities: telemetry.Capabilities,
		ASPath:       path,
		NextHop:      telemetry.NextHop,
		LocalPref:    localPref,
		MED:          med,
		Communities:  communities,
		OriginTime:   time.Now(),
		PathAttributes: map[string]string{
			"origin_server": peer.Address,
		},
	}
	r.ClampAttributes()
	return r
}
