// ABOUTME: Package rib implements the three-stage routing table.
// ABOUTME: Adj-RIB-In, Loc-RIB, and Adj-RIB-Out with queries and diagnostics.

// Package rib holds the routing information base.
//
// A Table keeps three views, matching the BGP model:
//
//   - Adj-RIB-In: every route each peer has told us, keyed by peer ASN
//     and agent ID. Raw input to the decision process.
//   - Loc-RIB: the single authoritative route installed per agent.
//     Written explicitly by whoever runs the decision process; the table
//     itself never chooses.
//   - Adj-RIB-Out: what we have advertised to each peer, kept so
//     withdrawals and re-advertisements can be diffed correctly.
//
// All mutations on one Table are serialized by a single lock. Query and
// statistics reads take the read lock and may observe slightly stale
// state relative to in-flight updates.
package rib
