// ABOUTME: Package session implements the peer lifecycle and protocol message handling.
// ABOUTME: OPEN/UPDATE/KEEPALIVE/NOTIFICATION handlers drive RIB mutation.

// Package session manages peer sessions for the routing engine.
//
// Each peer walks the lifecycle Idle -> OpenSent -> OpenConfirm ->
// Established, driven by the OPEN/KEEPALIVE exchange. Hold-timer expiry
// or an explicit NOTIFICATION tears a session down, which withdraws
// every route that peer contributed.
//
// The Manager is also where the routing pipeline comes together: an
// UPDATE mutates the Adj-RIB-In, surviving candidates flow through the
// policy engine, and the best-path decision process picks what lands in
// the Loc-RIB.
package session
