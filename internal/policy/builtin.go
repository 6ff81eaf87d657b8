// ABOUTME: Built-in policy templates for common operational intents.
// ABOUTME: Security filtering, performance bias, dev convenience, production hardening.

package policy

// builtinTemplates returns the templates every registry is seeded with.
func builtinTemplates() []Template {
	return []Template{
		{
			ID:          "basic-security",
			Name:        "Basic Security",
			Description: "Rejects routes flagged unhealthy or explicitly quarantined.",
			Category:    "security",
			Tags:        []string{"security", "health"},
			Rules: []RuleSpec{
				{
					Name:        "reject-unhealthy",
					Description: "Drop routes tagged health:unhealthy.",
					Enabled:     true,
					Priority:    100,
					Match:       MatchSpec{Community: "health:unhealthy"},
					Action:      "reject",
				},
				{
					Name:        "reject-quarantined",
					Description: "Drop routes carrying any quarantine tag.",
					Enabled:     true,
					Priority:    100,
					Match:       MatchSpec{CommunityPattern: "quarantine:*"},
					Action:      "reject",
				},
			},
		},
		{
			ID:          "advanced-security",
			Name:        "Advanced Security",
			Description: "Basic security plus long-path rejection and risk-tag filtering.",
			Category:    "security",
			Tags:        []string{"security", "hardening", "path-length"},
			Rules: []RuleSpec{
				{
					Name:        "reject-unhealthy",
					Description: "Drop routes tagged health:unhealthy.",
					Enabled:     true,
					Priority:    110,
					Match:       MatchSpec{Community: "health:unhealthy"},
					Action:      "reject",
				},
				{
					Name:        "reject-risk-tagged",
					Description: "Drop routes carrying any risk tag.",
					Enabled:     true,
					Priority:    105,
					Match:       MatchSpec{CommunityPattern: "risk:*"},
					Action:      "reject",
				},
				{
					Name:        "reject-long-paths",
					Description: "Drop routes that traversed more than six ASes.",
					Enabled:     true,
					Priority:    100,
					Match:       MatchSpec{PathLongerThan: 6},
					Action:      "reject",
				},
			},
		},
		{
			ID:          "performance",
			Name:        "Performance Optimization",
			Description: "Prefers fast-tagged routes and deprioritizes slow ones.",
			Category:    "performance",
			Tags:        []string{"performance", "latency"},
			Rules: []RuleSpec{
				{
					Name:         "boost-fast",
					Description:  "Raise preference for routes tagged perf:fast.",
					Enabled:      true,
					Priority:     50,
					Match:        MatchSpec{Community: "perf:fast"},
					Action:       "modify",
					SetLocalPref: IntPtr(200),
				},
				{
					Name:        "penalize-slow",
					Description: "Raise cost for routes tagged perf:slow.",
					Enabled:     true,
					Priority:    50,
					Match:       MatchSpec{Community: "perf:slow"},
					Action:      "modify",
					SetMED:      IntPtr(500),
				},
			},
		},
		{
			ID:          "dev-friendly",
			Name:        "Development Friendly",
			Description: "Accepts everything and tags routes for traceability.",
			Category:    "development",
			Tags:        []string{"development", "permissive"},
			Rules: []RuleSpec{
				{
					Name:          "tag-dev-traffic",
					Description:   "Mark every route as seen by the dev policy.",
					Enabled:       true,
					Priority:      10,
					Match:         MatchSpec{Any: true},
					Action:        "modify",
					SetAttributes: map[string]string{"policy": "dev-friendly"},
				},
				{
					Name:        "accept-all",
					Description: "Accept any route.",
					Enabled:     true,
					Priority:    1,
					Match:       MatchSpec{Any: true},
					Action:      "accept",
				},
			},
		},
		{
			ID:          "production-hardened",
			Name:        "Production Hardened",
			Description: "Strict production policy: no dev routes, no unhealthy paths, short paths only.",
			Category:    "production",
			Tags:        []string{"production", "security", "strict"},
			Rules: []RuleSpec{
				{
					Name:        "reject-dev-routes",
					Description: "Drop routes originating from development environments.",
					Enabled:     true,
					Priority:    120,
					Match:       MatchSpec{Community: "env:dev"},
					Action:      "reject",
				},
				{
					Name:        "reject-unhealthy",
					Description: "Drop routes tagged health:unhealthy.",
					Enabled:     true,
					Priority:    115,
					Match:       MatchSpec{Community: "health:unhealthy"},
					Action:      "reject",
				},
				{
					Name:        "reject-long-paths",
					Description: "Drop routes that traversed more than five ASes.",
					Enabled:     true,
					Priority:    110,
					Match:       MatchSpec{PathLongerThan: 5},
					Action:      "reject",
				},
				{
					Name:           "prefer-prod",
					Description:    "Raise preference for production-tagged routes.",
					Enabled:        true,
					Priority:       50,
					Match:          MatchSpec{Community: "env:prod"},
					Action:         "modify",
					SetLocalPref:   IntPtr(300),
					AddCommunities: []string{"policy:production-hardened"},
				},
				{
					Name:        "log-low-pref",
					Description: "Tags low-preference survivors for operator review. Disabled by default.",
					Enabled:     false,
					Priority:    5,
					Match:       MatchSpec{LocalPrefBelow: 50},
					Action:      "modify",
					SetAttributes: map[string]string{
						"review": "low-preference",
					},
				},
			},
		},
	}
}
