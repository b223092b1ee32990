package types

import (
	"fmt"
	"strings"
)

// ResourceDescriptor is the probed view of the remote payload. Length never
// changes for the lifetime of a session.
type ResourceDescriptor struct {
	URL    string
	Length int64
}

// ChunkDescriptor addresses an inclusive byte range of the resource.
type ChunkDescriptor struct {
	Index int
	Start int64
	End   int64
}

func (c ChunkDescriptor) Size() int64 {
	return c.End - c.Start + 1
}

func (c ChunkDescriptor) RangeHeader() string {
	return fmt.Sprintf("bytes=%d-%d", c.Start, c.End)
}

type ChunkResult struct {
	Index       int
	Data        []byte
	Attempts    int
	Fingerprint uint64 // xxhash64 of Data
}

type ChunkStatus int

const (
	ChunkStarted ChunkStatus = iota
	ChunkFailed
	ChunkCompleted
	ChunkExhausted
)

func (s ChunkStatus) String() string {
	switch s {
	case ChunkStarted:
		return "started"
	case ChunkFailed:
		return "failed"
	case ChunkCompleted:
		return "completed"
	case ChunkExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// ChunkEvent is emitted for every state change of a chunk. Consumers must not
// block; events are delivered from the dispatcher goroutines.
type ChunkEvent struct {
	Index   int
	Start   int64
	End     int64
	Bytes   int64
	Attempt int
	Status  ChunkStatus
	Err     error
}

type VerificationStatus int

const (
	VerificationNotApplicable VerificationStatus = iota
	VerificationMatch
	VerificationMismatch
)

func (s VerificationStatus) String() string {
	switch s {
	case VerificationMatch:
		return "match"
	case VerificationMismatch:
		return "mismatch"
	default:
		return "n/a"
	}
}

type VerificationOutcome struct {
	Expected string
	Computed string
	Status   VerificationStatus
}

func (v VerificationOutcome) Matched() bool {
	return v.Status == VerificationMatch
}

// Err reports a mismatch as an error value, nil otherwise.
func (v VerificationOutcome) Err() error {
	if v.Status != VerificationMismatch {
		return nil
	}
	return &DigestMismatchError{Expected: strings.ToLower(v.Expected), Computed: v.Computed}
}
