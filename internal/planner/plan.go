package planner

import (
	"fmt"

	"github.com/tanq16/rangeget/internal/types"
)

// Count returns the number of chunks Plan would emit.
func Count(totalLength, maxChunkSize int64) int {
	if totalLength <= 0 || maxChunkSize <= 0 {
		return 0
	}
	return int((totalLength + maxChunkSize - 1) / maxChunkSize)
}

// Plan splits [0, totalLength) into contiguous inclusive ranges of at most
// maxChunkSize bytes. The final chunk carries the remainder.
func Plan(totalLength, maxChunkSize int64) ([]types.ChunkDescriptor, error) {
	if totalLength <= 0 {
		return nil, &types.PlanningError{Reason: fmt.Sprintf("invalid resource length %d", totalLength)}
	}
	if maxChunkSize <= 0 {
		return nil, &types.PlanningError{Reason: fmt.Sprintf("invalid chunk size %d", maxChunkSize)}
	}
	chunks := make([]types.ChunkDescriptor, 0, Count(totalLength, maxChunkSize))
	for start := int64(0); start < totalLength; start += maxChunkSize {
		chunks = append(chunks, types.ChunkDescriptor{
			Index: len(chunks),
			Start: start,
			End:   min(start+maxChunkSize-1, totalLength-1),
		})
	}
	return chunks, nil
}
