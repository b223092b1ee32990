package planner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tanq16/rangeget/internal/types"
)

func TestPlan_ScenarioA(t *testing.T) {
	chunks, err := Plan(200000, 65536)
	require.NoError(t, err)
	require.Equal(t, []types.ChunkDescriptor{
		{Index: 0, Start: 0, End: 65535},
		{Index: 1, Start: 65536, End: 131071},
		{Index: 2, Start: 131072, End: 196607},
		{Index: 3, Start: 196608, End: 199999},
	}, chunks)
}

func TestPlan_CoversWithoutGaps(t *testing.T) {
	cases := []struct{ total, size int64 }{
		{1, 1}, {1, 65536}, {65536, 65536}, {65537, 65536},
		{1000, 7}, {999999, 1000}, {12345, 12344}, {10, 3},
	}
	for _, tc := range cases {
		chunks, err := Plan(tc.total, tc.size)
		require.NoError(t, err)
		require.Len(t, chunks, Count(tc.total, tc.size))

		var sum int64
		next := int64(0)
		for i, c := range chunks {
			require.Equal(t, i, c.Index)
			require.Equal(t, next, c.Start, "gap or overlap before chunk %d", i)
			require.LessOrEqual(t, c.Size(), tc.size)
			require.Positive(t, c.Size())
			sum += c.Size()
			next = c.End + 1
		}
		require.Equal(t, tc.total, sum)
		require.Equal(t, tc.total-1, chunks[len(chunks)-1].End)
	}
}

func TestPlan_RejectsInvalidInput(t *testing.T) {
	for _, tc := range []struct{ total, size int64 }{{0, 10}, {-5, 10}, {10, 0}, {10, -1}} {
		_, err := Plan(tc.total, tc.size)
		var pe *types.PlanningError
		require.True(t, errors.As(err, &pe), "total=%d size=%d", tc.total, tc.size)
	}
}

func TestCount(t *testing.T) {
	require.Equal(t, 4, Count(200000, 65536))
	require.Equal(t, 1, Count(1, 65536))
	require.Equal(t, 0, Count(0, 65536))
}
