// ABOUTME: Entry point for the coven-routes routing control plane.
// ABOUTME: Loads config, wires the server, and serves the /bgp control surface.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-routes/internal/auth"
	"github.com/2389/coven-routes/internal/balancer"
	"github.com/2389/coven-routes/internal/config"
	"github.com/2389/coven-routes/internal/server"
	"github.com/2389/coven-routes/internal/tracker"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                                   _
  ___ _____   _____ _ __       _ __ ___  _   _| |_ ___  ___
 / __/ _ \ \ / / _ \ '_ \ ____| '__/ _ \| | | | __/ _ \/ __|
| (_| (_) \ V /  __/ | | |____| |  | (_) | |_| | ||  __/\__ \
 \___\___/ \_/ \___|_| |_|    |_|   \___/ \__,_|\__\___||___/
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coven-routes <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the routing server")
		fmt.Println("  health   Check routing server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Local AS:  %d\n", cfg.Protocol.LocalASN)
	fmt.Println()

	discoveryPeers := make([]tracker.Peer, 0, len(cfg.Peers))
	for _, peer := range cfg.Peers {
		priority := 0
		if peer.Priority == "high" {
			priority = 1
		}
		discoveryPeers = append(discoveryPeers, tracker.Peer{
			ASN:      peer.ASN,
			Address:  peer.Address,
			Region:   peer.Region,
			Priority: priority,
		})
	}

	srv := server.New(server.Config{
		LocalASN:          cfg.Protocol.LocalASN,
		HoldTime:          cfg.Protocol.HoldTime,
		KeepaliveInterval: cfg.Protocol.KeepaliveInterval,
		MaxASPathLength:   cfg.Protocol.MaxASPathLength,
		Balancer: balancer.Config{
			MaxPaths:          cfg.Balancer.MaxPaths,
			Strategy:          balancer.Strategy(cfg.Balancer.Strategy),
			DegradedLatencyMs: cfg.Balancer.DegradedLatencyMs,
		},
		Discovery: tracker.Config{
			MaxASPathLength: cfg.Protocol.MaxASPathLength,
			LocalRegion:     cfg.Discovery.LocalRegion,
			MaxConcurrent:   cfg.Discovery.MaxConcurrent,
			QueryTimeout:    cfg.Discovery.QueryTimeout,
			MaxAttempts:     cfg.Discovery.MaxAttempts,
		},
		DiscoveryPeers: discoveryPeers,
		Querier:        &httpQuerier{client: &http.Client{Timeout: cfg.Discovery.QueryTimeout}},
		HealthInterval: cfg.Balancer.HealthInterval,
	}, logger)
	srv.Balancer().SetEnabled(cfg.Balancer.Enabled)

	// Static peers from config: register the session and the name mapping.
	for _, peer := range cfg.Peers {
		if _, err := srv.Sessions().AddPeer(peer.ASN, peer.Address); err != nil {
			return fmt.Errorf("adding peer %d: %w", peer.ASN, err)
		}
		srv.Registry().Register(fmt.Sprintf("as%d", peer.ASN), peer.Address)
	}

	logger.Info("starting coven-routes",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"local_asn", cfg.Protocol.LocalASN,
		"router_id", srv.RouterID(),
		"peers", len(cfg.Peers),
	)

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	} else {
		logger.Warn("auth.jwt_secret not set, control surface is unauthenticated")
	}

	srv.Start()

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: auth.Middleware(verifier)(srv.Handler()),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		srv.Shutdown()
		return nil
	case err := <-errCh:
		srv.Shutdown()
		return fmt.Errorf("http server: %w", err)
	}
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, "0.0.0.0") {
		addr = "127.0.0.1" + strings.TrimPrefix(addr, "0.0.0.0")
	}
	return checkHealth(ctx, addr)
}

// checkHealth queries the status endpoint and prints the result. A
// non-200 response is a failure even when its body decodes, so an auth
// or server error never reads as healthy.
func checkHealth(ctx context.Context, addr string) error {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+addr+"/bgp/status", nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		color.Red("✗ routing server unreachable: %v", err)
		return fmt.Errorf("routing server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			color.Red("✗ routing server returned %d: %s", resp.StatusCode, apiErr.Error)
			return fmt.Errorf("routing server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		color.Red("✗ routing server returned %d", resp.StatusCode)
		return fmt.Errorf("routing server returned %d", resp.StatusCode)
	}

	var status struct {
		Status      string `json:"status"`
		RouterID    string `json:"routerId"`
		LocalASN    uint32 `json:"localASN"`
		Peers       int    `json:"peers"`
		Established int    `json:"established"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decoding status: %w", err)
	}

	color.Green("✓ routing server healthy")
	fmt.Printf("  router:      %s\n", status.RouterID)
	fmt.Printf("  local AS:    %d\n", status.LocalASN)
	fmt.Printf("  peers:       %d (%d established)\n", status.Peers, status.Established)
	return nil
}

// httpQuerier asks a peer's control surface whether it hosts an agent.
// Latency is measured from the request round trip.
type httpQuerier struct {
	client *http.Client
}

func (q *httpQuerier) QueryAgent(ctx context.Context, peer tracker.Peer, agentID string) (tracker.Telemetry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+peer.Address+"/bgp/agents", nil)
	if err != nil {
		return tracker.Telemetry{}, err
	}

	start := time.Now()
	resp, err := q.client.Do(req)
	if err != nil {
		return tracker.Telemetry{}, err
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return tracker.Telemetry{}, fmt.Errorf("peer answered %d", resp.StatusCode)
	}

	var body struct {
		Agents []struct {
			AgentID string `json:"agentId"`
			Route   struct {
				NextHop      string   `json:"nextHop"`
				Capabilities []string `json:"capabilities"`
			} `json:"route"`
		} `json:"agents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return tracker.Telemetry{}, fmt.Errorf("decoding peer response: %w", err)
	}

	for _, agent := range body.Agents {
		if agent.AgentID != agentID {
			continue
		}
		nextHop := agent.Route.NextHop
		if nextHop == "" {
			nextHop = peer.Address
		}
		return tracker.Telemetry{
			Hosted:       true,
			NextHop:      nextHop,
			Capabilities: agent.Route.Capabilities,
			LatencyMs:    float64(latency) / float64(time.Millisecond),
		}, nil
	}
	return tracker.Telemetry{}, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
