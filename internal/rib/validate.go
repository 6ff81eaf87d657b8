// ABOUTME: Advisory Loc-RIB consistency sweep: loops, long paths, stale routes.
// ABOUTME: Produces human-readable issue strings; never mutates or blocks.

package rib

import (
	"fmt"
	"sort"
	"time"
)

const (
	// LongPathThreshold flags paths beyond the normal operating range.
	// Deliberately below the hard maximum: a path can be legal and still
	// suspicious.
	LongPathThreshold = 8

	// StaleAfter is the freshness window for installed routes.
	StaleAfter = 24 * time.Hour
)

// Validate sweeps the Loc-RIB and reports human-readable findings:
// AS-path loops, suspiciously long paths, and stale routes. Advisory
// only; it never mutates state and an empty result means no findings.
func (t *Table) Validate() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	agentIDs := make([]string, 0, len(t.locRIB))
	for id := range t.locRIB {
		agentIDs = append(agentIDs, id)
	}
	sort.Strings(agentIDs)

	now := time.Now()
	var issues []string
	for _, agentID := range agentIDs {
		r := t.locRIB[agentID]

		seen := make(map[uint32]bool, len(r.ASPath))
		for _, asn := range r.ASPath {
			if seen[asn] {
				issues = append(issues, fmt.Sprintf(
					"agent %s: AS path loop detected (AS %d repeats in %v)",
					agentID, asn, r.ASPath))
				break
			}
			seen[asn] = true
		}

		if len(r.ASPath) > LongPathThreshold {
			issues = append(issues, fmt.Sprintf(
				"agent %s: suspiciously long AS path (%d hops, threshold %d)",
				agentID, len(r.ASPath), LongPathThreshold))
		}

		if !r.OriginTime.IsZero() && now.Sub(r.OriginTime) > StaleAfter {
			issues = append(issues, fmt.Sprintf(
				"agent %s: stale route (origin %s, older than %s)",
				agentID, r.OriginTime.Format(time.RFC3339), StaleAfter))
		}
	}

	return issues
}
