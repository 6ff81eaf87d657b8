// ABOUTME: Control-plane server wiring the RIB, policy, balancer, tracker and sessions.
// ABOUTME: Owns the background sweeps and the deterministic shutdown path.

package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-routes/internal/balancer"
	"github.com/2389/coven-routes/internal/policy"
	"github.com/2389/coven-routes/internal/registry"
	"github.com/2389/coven-routes/internal/rib"
	"github.com/2389/coven-routes/internal/route"
	"github.com/2389/coven-routes/internal/session"
	"github.com/2389/coven-routes/internal/tracker"
)

// Default sweep intervals.
const (
	DefaultHealthInterval    = 30 * time.Second
	DefaultRefreshInterval   = 60 * time.Second
	DefaultHoldSweepInterval = 5 * time.Second
)

// Capabilities is what a capability provider reports for a local agent.
type Capabilities struct {
	Capabilities []string
	LocalPref    int
}

// CapabilityProvider refreshes a dynamically registered local agent.
// A nil result with nil error means the agent has disappeared and its
// advertisement should be withdrawn.
type CapabilityProvider interface {
	Refresh(ctx context.Context, agentID string) (*Capabilities, error)
}

// ProviderFunc adapts a function to the CapabilityProvider interface.
type ProviderFunc func(ctx context.Context, agentID string) (*Capabilities, error)

func (f ProviderFunc) Refresh(ctx context.Context, agentID string) (*Capabilities, error) {
	return f(ctx, agentID)
}

// Config assembles a Server.
type Config struct {
	LocalASN uint32
	// RouterID is generated when empty.
	RouterID          string
	HoldTime          time.Duration
	KeepaliveInterval time.Duration
	MaxASPathLength   int
	LocalCapabilities []string

	Balancer balancer.Config
	// DisablePolicyEngine leaves the server without a policy engine;
	// template application then answers 503.
	DisablePolicyEngine bool

	Discovery tracker.Config
	// DiscoveryPeers are the peers swept by /bgp/discover.
	DiscoveryPeers []tracker.Peer
	// Querier enables AS-path discovery. Nil disables the tracker.
	Querier tracker.PeerQuerier
	// Prober enables the balancer health sweep. Nil disables it.
	Prober balancer.HealthProber

	HealthInterval    time.Duration
	RefreshInterval   time.Duration
	HoldSweepInterval time.Duration
}

// Server is the externally reachable control surface.
type Server struct {
	cfg      Config
	routerID string
	logger   *slog.Logger

	table     *rib.Table
	engine    *policy.Engine
	templates *policy.TemplateRegistry
	lb        *balancer.Balancer
	tracker   *tracker.Tracker
	sessions  *session.Manager
	names     registry.Registry

	providersMu sync.Mutex
	providers   map[string]CapabilityProvider

	startedAt time.Time
	closed    atomic.Bool
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New wires up a server. Sessions, RIB, policy, templates, balancer and
// the name registry are constructed here; the tracker only when a
// querier is supplied.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RouterID == "" {
		cfg.RouterID = uuid.NewString()
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.HoldSweepInterval <= 0 {
		cfg.HoldSweepInterval = DefaultHoldSweepInterval
	}

	table := rib.NewTable(logger)

	var engine *policy.Engine
	if !cfg.DisablePolicyEngine {
		engine = policy.NewEngine(logger)
	}

	sessions := session.NewManager(session.Config{
		LocalASN:          cfg.LocalASN,
		RouterID:          cfg.RouterID,
		HoldTime:          cfg.HoldTime,
		KeepaliveInterval: cfg.KeepaliveInterval,
		LocalCapabilities: cfg.LocalCapabilities,
		MaxASPathLength:   cfg.MaxASPathLength,
	}, table, engine, logger)

	srv := &Server{
		cfg:       cfg,
		routerID:  cfg.RouterID,
		logger:    logger,
		table:     table,
		engine:    engine,
		templates: policy.NewTemplateRegistry(),
		lb:        balancer.New(cfg.Balancer, logger),
		sessions:  sessions,
		names:     registry.NewInMemory(),
		providers: make(map[string]CapabilityProvider),
		startedAt: time.Now(),
		stopCh:    make(chan struct{}),
	}
	if cfg.Querier != nil {
		srv.tracker = tracker.New(cfg.Querier, cfg.Discovery, logger)
	}
	return srv
}

// RouterID returns the server's router identifier.
func (s *Server) RouterID() string { return s.routerID }

// Sessions exposes the session manager for wiring static peers at boot.
func (s *Server) Sessions() *session.Manager { return s.sessions }

// Balancer exposes the path pool for wiring weights at boot.
func (s *Server) Balancer() *balancer.Balancer { return s.lb }

// Registry exposes the server-name registry.
func (s *Server) Registry() registry.Registry { return s.names }

// RegisterCapabilityProvider attaches a provider whose agent is
// re-advertised by the refresh sweep.
func (s *Server) RegisterCapabilityProvider(agentID string, p CapabilityProvider) {
	s.providersMu.Lock()
	defer s.providersMu.Unlock()
	s.providers[agentID] = p
}

// Start launches the background sweeps. Call Shutdown to stop them.
func (s *Server) Start() {
	s.startSweep(s.cfg.HoldSweepInterval, func() {
		expired := s.sessions.ExpireHoldTimers(time.Now())
		if len(expired) > 0 {
			s.logger.Warn("hold sweep tore down sessions", "peers", expired)
		}
	})

	s.startSweep(s.cfg.RefreshInterval, s.refreshAdvertisements)

	if s.cfg.Prober != nil {
		s.startSweep(s.cfg.HealthInterval, func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HealthInterval)
			defer cancel()
			s.lb.CheckHealth(ctx, s.cfg.Prober, 4, s.cfg.HealthInterval/2)
		})
	}
}

func (s *Server) startSweep(interval time.Duration, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// refreshAdvertisements re-invokes every capability provider and
// re-advertises or withdraws its agent. One provider's failure never
// stops the sweep.
func (s *Server) refreshAdvertisements() {
	s.providersMu.Lock()
	snapshot := make(map[string]CapabilityProvider, len(s.providers))
	for agentID, p := range s.providers {
		snapshot[agentID] = p
	}
	s.providersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RefreshInterval)
	defer cancel()

	for agentID, p := range snapshot {
		caps, err := p.Refresh(ctx, agentID)
		if err != nil {
			s.logger.Warn("capability provider failed", "agent_id", agentID, "error", err)
			continue
		}
		if caps == nil {
			s.sessions.WithdrawLocal(agentID)
			s.providersMu.Lock()
			delete(s.providers, agentID)
			s.providersMu.Unlock()
			s.logger.Info("local agent disappeared, advertisement withdrawn", "agent_id", agentID)
			continue
		}

		localPref := caps.LocalPref
		if localPref == 0 {
			localPref = route.DefaultLocalPref
		}
		err = s.sessions.AdvertiseLocal(route.Route{
			AgentID:      agentID,
			Capabilities: caps.Capabilities,
			LocalPref:    localPref,
		})
		if err != nil {
			s.logger.Warn("re-advertisement failed", "agent_id", agentID, "error", err)
		}
	}
}

// Shutdown stops the background sweeps and marks the server closed.
// Idempotent; mutating handlers answer 503 afterwards.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		s.closed.Store(true)
		close(s.stopCh)
		s.wg.Wait()
		s.logger.Info("server shut down", "router_id", s.routerID)
	})
}

// Closed reports whether Shutdown has been called.
func (s *Server) Closed() bool { return s.closed.Load() }
