// ABOUTME: Template registry: named, parameterizable bundles of policy rules.
// ABOUTME: Explicit constructed instance; instantiation yields ordinary rules.

package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrTemplateNotFound indicates the requested template ID is unknown.
var ErrTemplateNotFound = errors.New("template not found")

// RuleSpec is the serializable form of a rule inside a template.
type RuleSpec struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	Priority    int       `json:"priority"`
	Match       MatchSpec `json:"match"`
	Action      string    `json:"action"`

	// Override fields, used when Action is "modify".
	SetLocalPref      *int              `json:"setLocalPref,omitempty"`
	SetMED            *int              `json:"setMed,omitempty"`
	AddCommunities    []string          `json:"addCommunities,omitempty"`
	RemoveCommunities []string          `json:"removeCommunities,omitempty"`
	SetAttributes     map[string]string `json:"setAttributes,omitempty"`
}

// Template is a named bundle of pre-authored rules.
type Template struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	Rules       []RuleSpec `json:"rules"`
}

// InstantiateOptions parameterize template instantiation.
type InstantiateOptions struct {
	// EnabledOnly drops rules whose spec is disabled.
	EnabledOnly bool
	// PriorityOffset is added to every instantiated rule's priority.
	PriorityOffset int
	// NamePrefix is prepended to every instantiated rule's name.
	NamePrefix string
}

// TemplateRegistry holds the available templates. It is an explicit
// instance constructed by the caller; there is no process-wide registry.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateRegistry creates a registry seeded with the built-in
// templates.
func NewTemplateRegistry() *TemplateRegistry {
	r := &TemplateRegistry{templates: make(map[string]Template)}
	for _, tpl := range builtinTemplates() {
		r.templates[tpl.ID] = tpl
	}
	return r
}

// Register adds or replaces a template.
func (r *TemplateRegistry) Register(tpl Template) error {
	if tpl.ID == "" {
		return fmt.Errorf("template id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[tpl.ID] = tpl
	return nil
}

// Get returns one template by ID.
func (r *TemplateRegistry) Get(id string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tpl, ok := r.templates[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return tpl, nil
}

// List returns every template sorted by ID.
func (r *TemplateRegistry) List() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Template, 0, len(r.templates))
	for _, tpl := range r.templates {
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search returns templates whose ID, name, description, category, or
// tags contain the query, case-insensitively.
func (r *TemplateRegistry) Search(query string) []Template {
	q := strings.ToLower(query)

	var out []Template
	for _, tpl := range r.List() {
		if templateMatches(tpl, q) {
			out = append(out, tpl)
		}
	}
	return out
}

func templateMatches(tpl Template, q string) bool {
	if strings.Contains(strings.ToLower(tpl.ID), q) ||
		strings.Contains(strings.ToLower(tpl.Name), q) ||
		strings.Contains(strings.ToLower(tpl.Description), q) ||
		strings.Contains(strings.ToLower(tpl.Category), q) {
		return true
	}
	for _, tag := range tpl.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// Categories returns the distinct template categories, sorted.
func (r *TemplateRegistry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for _, tpl := range r.templates {
		seen[tpl.Category] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// RegistryStats summarizes the registry for the control surface.
type RegistryStats struct {
	Templates   int            `json:"templates"`
	Rules       int            `json:"rules"`
	PerCategory map[string]int `json:"perCategory"`
}

// Stats counts templates and rules per category.
func (r *TemplateRegistry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{PerCategory: make(map[string]int)}
	for _, tpl := range r.templates {
		stats.Templates++
		stats.Rules += len(tpl.Rules)
		stats.PerCategory[tpl.Category]++
	}
	return stats
}

// Instantiate expands a template into ordinary rules ready for
// Engine.AddRule, applying the enabled-only filter, priority offset,
// and name prefix.
func (r *TemplateRegistry) Instantiate(id string, opts InstantiateOptions) ([]Rule, error) {
	tpl, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	var rules []Rule
	for _, spec := range tpl.Rules {
		if opts.EnabledOnly && !spec.Enabled {
			continue
		}
		rule, err := spec.toRule(opts)
		if err != nil {
			return nil, fmt.Errorf("template %s rule %s: %w", id, spec.Name, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (spec RuleSpec) toRule(opts InstantiateOptions) (Rule, error) {
	var action Action
	switch spec.Action {
	case "accept":
		action = Accept
	case "reject":
		action = Reject
	case "modify":
		action = Modify
	default:
		return Rule{}, fmt.Errorf("unknown action %q", spec.Action)
	}

	return Rule{
		Name:     opts.NamePrefix + spec.Name,
		Enabled:  spec.Enabled,
		Priority: spec.Priority + opts.PriorityOffset,
		Match:    spec.Match.Compile(),
		Action:   action,
		Overrides: Overrides{
			LocalPref:         spec.SetLocalPref,
			MED:               spec.SetMED,
			AddCommunities:    spec.AddCommunities,
			RemoveCommunities: spec.RemoveCommunities,
			SetAttributes:     spec.SetAttributes,
		},
	}, nil
}
