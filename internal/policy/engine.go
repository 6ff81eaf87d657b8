// ABOUTME: Policy engine: ordered rule evaluation over candidate route sets.
// ABOUTME: Rejection is terminal per application; an all-rejected result is not an error.

package policy

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/2389/coven-routes/internal/route"
)

// MaxRules bounds how many rules one engine will hold.
const MaxRules = 100

// Engine validation errors.
var (
	ErrRuleNameRequired  = errors.New("rule name is required")
	ErrRuleMatchRequired = errors.New("rule match predicate is required")
	ErrTooManyRules      = errors.New("rule limit reached")
	ErrDuplicateRule     = errors.New("rule name already exists")
)

// Engine evaluates an ordered, prioritized rule set against routes.
type Engine struct {
	mu      sync.RWMutex
	rules   []Rule
	nextSeq int
	logger  *slog.Logger
}

// NewEngine creates an empty policy engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// AddRule validates and inserts a rule, keeping the evaluation order
// (priority descending, insertion order for ties). Returns an error for
// structural problems instead of panicking.
func (e *Engine) AddRule(r Rule) error {
	if r.Name == "" {
		return ErrRuleNameRequired
	}
	if r.Match == nil {
		return ErrRuleMatchRequired
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.rules) >= MaxRules {
		return fmt.Errorf("%w: %d", ErrTooManyRules, MaxRules)
	}
	for _, existing := range e.rules {
		if existing.Name == r.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateRule, r.Name)
		}
	}

	r.seq = e.nextSeq
	e.nextSeq++
	e.rules = append(e.rules, r)

	sort.SliceStable(e.rules, func(i, j int) bool {
		if e.rules[i].Priority != e.rules[j].Priority {
			return e.rules[i].Priority > e.rules[j].Priority
		}
		return e.rules[i].seq < e.rules[j].seq
	})

	e.logger.Debug("policy rule added",
		"rule", r.Name,
		"priority", r.Priority,
		"action", r.Action.String(),
	)
	return nil
}

// RemoveRule deletes a rule by name, reporting whether it existed.
func (e *Engine) RemoveRule(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, r := range e.rules {
		if r.Name == name {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// RuleNames returns the rule names in evaluation order.
func (e *Engine) RuleNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name
	}
	return names
}

// RuleCount returns how many rules the engine holds.
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Apply runs every enabled rule over the candidate routes and returns
// the surviving, possibly modified set. A rejected route stays rejected
// no matter what later rules would say; an empty result means the
// candidates are unreachable through current policy, not a failure.
func (e *Engine) Apply(routes []route.Route) []route.Route {
	e.mu.RLock()
	rules := make([]Rule, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	out := make([]route.Route, 0, len(routes))
	for _, r := range routes {
		if kept, result := e.applyToRoute(rules, r); kept {
			out = append(out, result)
		}
	}
	return out
}

// applyToRoute runs the rule chain over one route. Returns (false, _)
// the moment a rule rejects.
func (e *Engine) applyToRoute(rules []Rule, r route.Route) (bool, route.Route) {
	current := r
	for _, rule := range rules {
		if !rule.Enabled || !rule.Match(current) {
			continue
		}
		switch rule.Action {
		case Accept:
			// Passes unchanged to the next rule.
		case Reject:
			e.logger.Debug("route rejected by policy",
				"rule", rule.Name,
				"agent_id", current.AgentID,
			)
			return false, route.Route{}
		case Modify:
			current = rule.Overrides.apply(current)
		}
	}
	return true, current
}
