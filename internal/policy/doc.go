// ABOUTME: Package policy filters and transforms candidate routes before use.
// ABOUTME: Ordered prioritized rules plus a registry of named rule templates.

// Package policy implements the route policy engine.
//
// An Engine holds an ordered rule set. Rules run in descending priority
// (insertion order breaks ties) against each candidate route: a route is
// accepted unchanged, rejected permanently for that application, or
// replaced by a modified copy that continues through the remaining rules.
//
// Templates are pre-authored rule bundles for common operational intents
// (security filtering, performance bias, development convenience). A
// TemplateRegistry is an explicit constructed instance owned by the
// caller; instantiating a template yields ordinary rules fed through the
// same engine, not a second enforcement path.
package policy
