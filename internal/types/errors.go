package types

import (
	"errors"
	"fmt"
	"strings"
)

var ErrRangeNotSatisfiable = errors.New("server rejected the byte range (416)")

type FetchErrorKind int

const (
	KindConnection FetchErrorKind = iota
	KindTimeout
	KindStatus
	KindTruncated
	KindOverflow
	KindRangeMismatch
)

func (k FetchErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindStatus:
		return "status"
	case KindTruncated:
		return "truncated"
	case KindOverflow:
		return "overflow"
	case KindRangeMismatch:
		return "range-mismatch"
	default:
		return "unknown"
	}
}

// FetchError is a failed attempt at a single chunk. Every kind is retryable.
type FetchError struct {
	Index  int
	Kind   FetchErrorKind
	Status int
	Got    int64
	Want   int64
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindTruncated, KindOverflow:
		return fmt.Sprintf("chunk %d: %s response: got %d of %d bytes", e.Index, e.Kind, e.Got, e.Want)
	case KindStatus:
		return fmt.Sprintf("chunk %d: unexpected status code: %d", e.Index, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("chunk %d: %s: %v", e.Index, e.Kind, e.Err)
	}
	return fmt.Sprintf("chunk %d: %s", e.Index, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ChunkExhaustedError aborts the whole session: a payload with a missing chunk
// cannot be completed.
type ChunkExhaustedError struct {
	Index    int
	Attempts int
	Last     error
}

func (e *ChunkExhaustedError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d attempts: %v", e.Index, e.Attempts, e.Last)
}

func (e *ChunkExhaustedError) Unwrap() error { return e.Last }

type PlanningError struct {
	Reason string
	Err    error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planning failed: %s: %v", e.Reason, e.Err)
	}
	return "planning failed: " + e.Reason
}

func (e *PlanningError) Unwrap() error { return e.Err }

// ReassemblyError signals a planner or dispatcher defect. It is never retried.
type ReassemblyError struct {
	Missing []int
	// Corrupt lists chunks whose data no longer matches the fingerprint taken
	// when the chunk completed.
	Corrupt []int
	Got     int64
	Want    int64
}

func joinIndices(indices []int) string {
	idx := make([]string, 0, len(indices))
	for _, i := range indices {
		idx = append(idx, fmt.Sprint(i))
	}
	return strings.Join(idx, ", ")
}

func (e *ReassemblyError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("reassembly invariant violated: missing chunks [%s]", joinIndices(e.Missing))
	}
	if len(e.Corrupt) > 0 {
		return fmt.Sprintf("reassembly invariant violated: fingerprint mismatch in chunks [%s]", joinIndices(e.Corrupt))
	}
	return fmt.Sprintf("reassembly invariant violated: assembled %d bytes, expected %d", e.Got, e.Want)
}

type DigestMismatchError struct {
	Expected string
	Computed string
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("sha256 mismatch: expected %s, got %s", e.Expected, e.Computed)
}
