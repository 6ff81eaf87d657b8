// ABOUTME: Package balancer distributes live traffic across multiple routes per agent.
// ABOUTME: Health-monitored path pool with pluggable selection strategies.

// Package balancer implements multi-path load balancing.
//
// Independent of single-best-path selection, a Balancer keeps several
// routes to the same agent simultaneously live and picks one per request
// using a configurable strategy. Each path carries health state derived
// from reported request outcomes and periodic probes; unhealthy paths are
// excluded from selection but stay in the pool so they can recover.
//
// Interested callers subscribe an Observer to receive path lifecycle,
// health check, and selection events.
package balancer
