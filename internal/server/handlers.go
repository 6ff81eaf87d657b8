// ABOUTME: HTTP handlers for the /bgp control surface.
// ABOUTME: Peer CRUD, route inspection and update, sessions, agents, policy templates.

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coven-routes/internal/policy"
	"github.com/2389/coven-routes/internal/route"
	"github.com/2389/coven-routes/internal/session"
)

// Handler returns the control surface route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bgp/peers", s.handlePeers)
	mux.HandleFunc("/bgp/peers/", s.handlePeerByASN)
	mux.HandleFunc("/bgp/routes", s.handleListRoutes)
	mux.HandleFunc("/bgp/routes/update", s.handleRouteUpdate)
	mux.HandleFunc("/bgp/routes/withdraw", s.handleRouteWithdraw)
	mux.HandleFunc("/bgp/routes/validate", s.handleValidateRoutes)
	mux.HandleFunc("/bgp/sessions", s.handleSessions)
	mux.HandleFunc("/bgp/sessions/", s.handleSessionKeepalive)
	mux.HandleFunc("/bgp/open", s.handleOpen)
	mux.HandleFunc("/bgp/notification", s.handleNotification)
	mux.HandleFunc("/bgp/discover", s.handleDiscover)
	mux.HandleFunc("/bgp/agents", s.handleListAgents)
	mux.HandleFunc("/bgp/agents/advertise", s.handleAdvertiseAgent)
	mux.HandleFunc("/bgp/status", s.handleStatus)
	mux.HandleFunc("/bgp/stats", s.handleStats)
	mux.HandleFunc("/bgp/policy-templates", s.handleTemplates)
	mux.HandleFunc("/bgp/policy-templates/", s.handleTemplateSubroutes)
	mux.HandleFunc("/", s.handleNotFound)
	return mux
}

// sendJSON writes a JSON response body.
func (s *Server) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}

// rejectIfClosed answers 503 for mutating calls after shutdown.
func (s *Server) rejectIfClosed(w http.ResponseWriter) bool {
	if s.closed.Load() {
		s.sendJSONError(w, http.StatusServiceUnavailable, "server is shutting down")
		return true
	}
	return false
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// AddPeerRequest is the JSON request body for POST /bgp/peers.
type AddPeerRequest struct {
	ASN     uint32 `json:"asn"`
	Address string `json:"address"`
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.sendJSON(w, http.StatusOK, map[string]any{"peers": s.sessions.ListPeers()})
	case http.MethodPost:
		if s.rejectIfClosed(w) {
			return
		}
		var req AddPeerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		peer, err := s.sessions.AddPeer(req.ASN, req.Address)
		if err != nil {
			s.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.sendJSON(w, http.StatusCreated, peer)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePeerByASN(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.rejectIfClosed(w) {
		return
	}

	asn, ok := parseASN(strings.TrimPrefix(r.URL.Path, "/bgp/peers/"))
	if !ok {
		s.sendJSONError(w, http.StatusBadRequest, "invalid ASN in path")
		return
	}

	withdrawn, err := s.sessions.RemovePeer(asn)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{
		"asn":             asn,
		"withdrawnRoutes": withdrawn,
	})
}

func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	best := s.table.AllBestRoutes()
	agentIDs := make([]string, 0, len(best))
	for agentID := range best {
		agentIDs = append(agentIDs, agentID)
	}
	sort.Strings(agentIDs)

	routes := make([]route.Route, 0, len(best))
	for _, agentID := range agentIDs {
		routes = append(routes, best[agentID])
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"routes": routes})
}

func (s *Server) handleRouteUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.rejectIfClosed(w) {
		return
	}

	var msg session.UpdateMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.sessions.HandleUpdate(msg)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

// WithdrawRequest is the JSON request body for POST /bgp/routes/withdraw.
type WithdrawRequest struct {
	SenderASN uint32   `json:"senderASN"`
	AgentIDs  []string `json:"agentIds"`
}

func (s *Server) handleRouteWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.rejectIfClosed(w) {
		return
	}

	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.sessions.HandleUpdate(session.UpdateMessage{
		SenderASN:       req.SenderASN,
		WithdrawnRoutes: req.AgentIDs,
	})
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleValidateRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	advisories := s.table.Validate()
	if advisories == nil {
		advisories = []string{}
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"advisories": advisories})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.sendJSON(w, http.StatusOK, s.sessions.Stats())
}

func (s *Server) handleSessionKeepalive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.rejectIfClosed(w) {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/bgp/sessions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "keepalive" {
		s.handleNotFound(w, r)
		return
	}
	asn, ok := parseASN(parts[0])
	if !ok {
		s.sendJSONError(w, http.StatusBadRequest, "invalid ASN in path")
		return
	}

	peer, err := s.sessions.HandleKeepalive(asn)
	if err != nil {
		s.sendJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, peer)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.rejectIfClosed(w) {
		return
	}

	var msg session.OpenMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.sessions.HandleOpen(msg)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.rejectIfClosed(w) {
		return
	}

	var msg session.NotificationMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.sessions.HandleNotification(msg)
	if err != nil {
		s.sendJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

// DiscoverRequest is the JSON request body for POST /bgp/discover.
type DiscoverRequest struct {
	AgentID     string   `json:"agentId"`
	CurrentPath []uint32 `json:"currentPath,omitempty"`
}

// DiscoverResponse reports a discovery round.
type DiscoverResponse struct {
	AgentID    string        `json:"agentId"`
	Discovered []route.Route `json:"discovered"`
	Installed  int           `json:"installed"`
}

// handleDiscover sweeps the configured peers for an agent and feeds the
// discovered routes through the normal UPDATE path, so policy and best
// path selection apply. Discovered paths also seed the balancer pool.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.rejectIfClosed(w) {
		return
	}
	if s.tracker == nil {
		s.sendJSONError(w, http.StatusServiceUnavailable, "discovery not configured")
		return
	}

	var req DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AgentID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "agentId is required")
		return
	}
	if len(req.CurrentPath) > 0 {
		if issues := route.ValidateASPath(req.CurrentPath, s.cfg.MaxASPathLength); len(issues) > 0 {
			s.sendJSONError(w, http.StatusBadRequest, "currentPath is invalid: "+issues[0].String())
			return
		}
	}

	discovered := s.tracker.DiscoverAgentWithPath(r.Context(), req.AgentID, req.CurrentPath, s.cfg.DiscoveryPeers)

	resp := DiscoverResponse{AgentID: req.AgentID, Discovered: discovered}
	if resp.Discovered == nil {
		resp.Discovered = []route.Route{}
	}
	for _, found := range discovered {
		result, err := s.sessions.HandleUpdate(session.UpdateMessage{
			SenderASN:        found.NeighborAS(),
			AdvertisedRoutes: []route.Route{found},
		})
		if err != nil {
			s.logger.Warn("discovered route not installed",
				"agent_id", req.AgentID,
				"peer_asn", found.NeighborAS(),
				"error", err,
			)
			continue
		}
		resp.Installed += result.Accepted
		if err := s.lb.AddPath(found); err != nil {
			s.logger.Warn("discovered path not added to balancer",
				"agent_id", req.AgentID,
				"error", err,
			)
		}
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// AgentResponse pairs an agent with its installed best route.
type AgentResponse struct {
	AgentID string      `json:"agentId"`
	Route   route.Route `json:"route"`
}

// handleListAgents handles GET /bgp/agents.
// Supports optional ?capability=X (exact) and ?pattern=X (wildcard) filters.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var agentIDs []string
	switch {
	case r.URL.Query().Get("pattern") != "":
		agentIDs = s.table.FindAgentsByCapabilityPattern(r.URL.Query().Get("pattern"))
	case r.URL.Query().Get("capability") != "":
		agentIDs = s.table.FindAgentsByCapability(r.URL.Query().Get("capability"))
	default:
		best := s.table.AllBestRoutes()
		for agentID := range best {
			agentIDs = append(agentIDs, agentID)
		}
		sort.Strings(agentIDs)
	}

	agents := make([]AgentResponse, 0, len(agentIDs))
	for _, agentID := range agentIDs {
		if best, ok := s.table.GetBestRoute(agentID); ok {
			agents = append(agents, AgentResponse{AgentID: agentID, Route: best})
		}
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

// AdvertiseAgentRequest is the JSON request body for POST /bgp/agents/advertise.
type AdvertiseAgentRequest struct {
	AgentID      string   `json:"agentId"`
	Capabilities []string `json:"capabilities"`
	NextHop      string   `json:"nextHop,omitempty"`
	LocalPref    *int     `json:"localPref,omitempty"`
}

func (s *Server) handleAdvertiseAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.rejectIfClosed(w) {
		return
	}

	var req AdvertiseAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AgentID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "agentId is required")
		return
	}

	localPref := route.DefaultLocalPref
	if req.LocalPref != nil {
		if *req.LocalPref < 0 {
			s.sendJSONError(w, http.StatusBadRequest, "localPref must not be negative")
			return
		}
		localPref = *req.LocalPref
	}

	err := s.sessions.AdvertiseLocal(route.Route{
		AgentID:      req.AgentID,
		Capabilities: req.Capabilities,
		NextHop:      req.NextHop,
		LocalPref:    localPref,
	})
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	best, _ := s.table.GetBestRoute(req.AgentID)
	s.sendJSON(w, http.StatusOK, AgentResponse{AgentID: req.AgentID, Route: best})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	stats := s.sessions.Stats()
	s.sendJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"routerId":      s.routerID,
		"localASN":      s.cfg.LocalASN,
		"uptimeSeconds": int(time.Since(s.startedAt) / time.Second),
		"peers":         stats.Peers,
		"established":   stats.Established,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body := map[string]any{
		"rib":       s.table.Statistics(),
		"sessions":  s.sessions.Stats(),
		"balancer":  s.lb.Stats(),
		"templates": s.templates.Stats(),
	}
	if s.engine != nil {
		body["policyRules"] = s.engine.RuleCount()
	}
	s.sendJSON(w, http.StatusOK, body)
}

// handleTemplates handles GET /bgp/policy-templates.
// Supports optional ?q=X search.
func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var templates []policy.Template
	if q := r.URL.Query().Get("q"); q != "" {
		templates = s.templates.Search(q)
	} else {
		templates = s.templates.List()
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// ApplyTemplateRequest is the JSON request body for POST /bgp/policy-templates/:id/apply.
type ApplyTemplateRequest struct {
	EnabledOnly    bool          `json:"enabledOnly"`
	PriorityOffset int           `json:"priorityOffset"`
	NamePrefix     string        `json:"namePrefix"`
	TestRoutes     []route.Route `json:"testRoutes,omitempty"`
}

// ApplyTemplateResponse reports a template application.
type ApplyTemplateResponse struct {
	TemplateID string        `json:"templateId"`
	RulesAdded int           `json:"rulesAdded"`
	TotalRules int           `json:"totalRules"`
	TestResult []route.Route `json:"testResult,omitempty"`
}

func (s *Server) handleTemplateSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/bgp/policy-templates/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] == "stats":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.sendJSON(w, http.StatusOK, s.templates.Stats())
	case len(parts) == 1 && parts[0] == "categories":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.sendJSON(w, http.StatusOK, map[string]any{"categories": s.templates.Categories()})
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		tpl, err := s.templates.Get(parts[0])
		if err != nil {
			s.sendJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		s.sendJSON(w, http.StatusOK, tpl)
	case len(parts) == 2 && parts[1] == "apply":
		s.handleApplyTemplate(w, r, parts[0])
	default:
		s.handleNotFound(w, r)
	}
}

func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request, templateID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.rejectIfClosed(w) {
		return
	}
	if s.engine == nil {
		s.sendJSONError(w, http.StatusServiceUnavailable, "policy engine not configured")
		return
	}

	var req ApplyTemplateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	rules, err := s.templates.Instantiate(templateID, policy.InstantiateOptions{
		EnabledOnly:    req.EnabledOnly,
		PriorityOffset: req.PriorityOffset,
		NamePrefix:     req.NamePrefix,
	})
	if err != nil {
		if errors.Is(err, policy.ErrTemplateNotFound) {
			s.sendJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	added := 0
	for _, rule := range rules {
		if err := s.engine.AddRule(rule); err != nil {
			s.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		added++
	}

	resp := ApplyTemplateResponse{
		TemplateID: templateID,
		RulesAdded: added,
		TotalRules: s.engine.RuleCount(),
	}
	if len(req.TestRoutes) > 0 {
		resp.TestResult = s.engine.Apply(req.TestRoutes)
		if resp.TestResult == nil {
			resp.TestResult = []route.Route{}
		}
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// parseASN parses a decimal AS number from a path segment.
func parseASN(segment string) (uint32, bool) {
	v, err := strconv.ParseUint(segment, 10, 32)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint32(v), true
}
