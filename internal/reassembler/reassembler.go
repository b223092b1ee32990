package reassembler

import (
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/rangeget/internal/types"
)

// Assemble concatenates completed chunks in index order. Completion order has
// no effect on the output. A missing index, a chunk whose data changed since
// it completed, or a length that disagrees with the resource is a
// *types.ReassemblyError.
func Assemble(completed map[int]types.ChunkResult, totalChunks int, expectedLength int64) ([]byte, error) {
	var missing, corrupt []int
	var size int64
	for i := range totalChunks {
		res, ok := completed[i]
		if !ok {
			missing = append(missing, i)
			continue
		}
		if xxhash.Sum64(res.Data) != res.Fingerprint {
			corrupt = append(corrupt, i)
		}
		size += int64(len(res.Data))
	}
	if len(missing) > 0 {
		return nil, &types.ReassemblyError{Missing: missing}
	}
	if len(corrupt) > 0 {
		log.Error().Str("op", "reassembler/reassembler").Ints("chunks", corrupt).Msg("chunk data changed after completion")
		return nil, &types.ReassemblyError{Corrupt: corrupt}
	}
	if size != expectedLength {
		return nil, &types.ReassemblyError{Got: size, Want: expectedLength}
	}

	buf := make([]byte, 0, expectedLength)
	for i := range totalChunks {
		buf = append(buf, completed[i].Data...)
	}
	log.Debug().Str("op", "reassembler/reassembler").Msgf("assembled %d chunks into %d bytes", totalChunks, len(buf))
	return buf, nil
}
