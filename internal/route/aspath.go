// ABOUTME: AS-path validation primitives: loop, length, and emptiness checks.
// ABOUTME: Returns structured issues rather than errors; callers decide severity.

package route

import "fmt"

// DefaultMaxASPathLength bounds how many ASes an advertisement may
// traverse. Paths at or beyond the bound are not extended further.
const DefaultMaxASPathLength = 15

// IssueKind classifies an AS-path validation finding.
type IssueKind string

const (
	IssueEmptyPath    IssueKind = "empty_path"
	IssueLoopDetected IssueKind = "loop_detected"
	IssuePathTooLong  IssueKind = "path_too_long"
)

// Issue is one structured AS-path validation finding.
type Issue struct {
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Kind, i.Detail)
}

// ValidateASPath checks a path for emptiness, repeated AS numbers, and
// excessive length. It reports findings instead of failing: an invalid
// path is an ordinary data condition, not an error.
func ValidateASPath(path []uint32, maxLength int) []Issue {
	if maxLength <= 0 {
		maxLength = DefaultMaxASPathLength
	}

	var issues []Issue
	if len(path) == 0 {
		issues = append(issues, Issue{
			Kind:   IssueEmptyPath,
			Detail: "AS path is empty",
		})
		return issues
	}

	seen := make(map[uint32]bool, len(path))
	for _, asn := range path {
		if seen[asn] {
			issues = append(issues, Issue{
				Kind:   IssueLoopDetected,
				Detail: fmt.Sprintf("AS %d appears more than once", asn),
			})
			break
		}
		seen[asn] = true
	}

	if len(path) > maxLength {
		issues = append(issues, Issue{
			Kind:   IssuePathTooLong,
			Detail: fmt.Sprintf("path length %d exceeds maximum %d", len(path), maxLength),
		})
	}

	return issues
}

// ContainsAS reports whether the path traverses the given AS.
func ContainsAS(path []uint32, asn uint32) bool {
	for _, a := range path {
		if a == asn {
			return true
		}
	}
	return false
}

// PathContainsASes reports whether every target AS appears on the path.
func PathContainsASes(path []uint32, targets []uint32) bool {
	for _, t := range targets {
		if !ContainsAS(path, t) {
			return false
		}
	}
	return true
}

// PathDistance returns the number of hops between two ASes on the path,
// or -1 if either AS is absent.
func PathDistance(from, to uint32, path []uint32) int {
	fromIdx, toIdx := -1, -1
	for i, asn := range path {
		if asn == from && fromIdx == -1 {
			fromIdx = i
		}
		if asn == to && toIdx == -1 {
			toIdx = i
		}
	}
	if fromIdx == -1 || toIdx == -1 {
		return -1
	}
	d := toIdx - fromIdx
	if d < 0 {
		d = -d
	}
	return d
}
