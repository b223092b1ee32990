package dispatcher

import (
	"github.com/cespare/xxhash/v2"
	"github.com/tanq16/rangeget/internal/types"
)

// chunkState walks pending -> inFlight -> (complete | pending again) and ends
// in complete or exhausted.
type chunkState int

const (
	statePending chunkState = iota
	stateInFlight
	stateComplete
	stateExhausted
)

// downloadState is owned by the coordinator goroutine and never shared.
type downloadState struct {
	chunks    []types.ChunkDescriptor
	status    []chunkState
	attempts  []int
	completed map[int]types.ChunkResult
	remaining int
}

func newDownloadState(chunks []types.ChunkDescriptor) *downloadState {
	return &downloadState{
		chunks:    chunks,
		status:    make([]chunkState, len(chunks)),
		attempts:  make([]int, len(chunks)),
		completed: make(map[int]types.ChunkResult, len(chunks)),
		remaining: len(chunks),
	}
}

// dispatch hands a pending chunk to the pool and returns its attempt number.
func (s *downloadState) dispatch(idx int) int {
	s.status[idx] = stateInFlight
	s.attempts[idx]++
	return s.attempts[idx]
}

// complete records the first successful result of an in-flight chunk.
func (s *downloadState) complete(idx int, data []byte) (types.ChunkResult, bool) {
	if s.status[idx] != stateInFlight {
		return types.ChunkResult{}, false
	}
	res := types.ChunkResult{
		Index:       idx,
		Data:        data,
		Attempts:    s.attempts[idx],
		Fingerprint: xxhash.Sum64(data),
	}
	s.status[idx] = stateComplete
	s.completed[idx] = res
	s.remaining--
	return res, true
}

// fail moves an in-flight chunk back to pending, or to exhausted once
// maxAttempts attempts have failed. maxAttempts 0 never exhausts.
func (s *downloadState) fail(idx, maxAttempts int) bool {
	if maxAttempts > 0 && s.attempts[idx] >= maxAttempts {
		s.status[idx] = stateExhausted
		return true
	}
	s.status[idx] = statePending
	return false
}

func (s *downloadState) done() bool {
	return s.remaining == 0
}
