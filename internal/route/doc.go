// ABOUTME: Package route defines the AgentRoute advertisement value type.
// ABOUTME: Provides AS-path validation primitives shared by the RIB and tracker.

// Package route contains the core routing advertisement model.
//
// A Route describes one way to reach one agent: the agent's identity and
// capabilities, the AS path the advertisement traversed, the next hop to
// use, and the preference attributes (local preference, MED, communities)
// consumed by the best-path decision process and the policy engine.
//
// Routes are value types. Nothing in this package or its consumers mutates
// a Route in place; policy modifications always produce a fresh copy via
// Clone.
package route
