package collcomm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHalvingSchedulePartition(t *testing.T) {
	for pof2 := 1; pof2 <= 128; pof2 *= 2 {
		schedules := make([][]HalvingStep, pof2)
		for r := range schedules {
			schedules[r] = HalvingSchedule(pof2, r)
			require.Len(t, schedules[r], CeilLog2(pof2))
		}
		for r, steps := range schedules {
			owned := BlockRange{0, pof2}
			for i, step := range steps {
				require.Equal(t, owned.Len(), step.Keep.Len()+step.Give.Len())
				require.Equal(t, step.Keep.Len(), step.Give.Len())
				lo, hi := min(step.Keep.Lo, step.Give.Lo), max(step.Keep.Hi, step.Give.Hi)
				require.Equal(t, owned, BlockRange{lo, hi}, "union at step %d", i)
				require.True(t, step.Keep.Hi == step.Give.Lo || step.Give.Hi == step.Keep.Lo,
					"overlap or gap at step %d", i)
				require.True(t, step.Keep.Contains(r))

				peer := schedules[step.Partner][i]
				require.Equal(t, r, step.Partner^step.Mask)
				require.Equal(t, step.Keep, peer.Give)
				require.Equal(t, step.Give, peer.Keep)

				owned = step.Keep
			}
			require.Equal(t, BlockRange{r, r + 1}, owned)
		}
	}
}

func TestDoublingSchedule(t *testing.T) {
	steps := DoublingSchedule(8, 5)
	require.Equal(t, []HalvingStep{
		{Mask: 1, Partner: 4, Keep: BlockRange{5, 6}, Give: BlockRange{4, 5}},
		{Mask: 2, Partner: 7, Keep: BlockRange{4, 6}, Give: BlockRange{6, 8}},
		{Mask: 4, Partner: 1, Keep: BlockRange{4, 8}, Give: BlockRange{0, 4}},
	}, steps)
}

func TestBlockLayout(t *testing.T) {
	l := EvenBlocks(10, 4)
	require.Equal(t, []int{3, 3, 2, 2}, l.Counts)
	require.Equal(t, []int{0, 3, 6, 8}, l.Displs)
	displ, count := l.Span(BlockRange{1, 3})
	require.Equal(t, 3, displ)
	require.Equal(t, 5, count)
	require.Equal(t, 10, l.Total())

	buf := Int32s(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	require.Equal(t, []int32{8, 9}, Values[int32](l.View(buf, BlockRange{3, 4})))
	require.Equal(t, 0, l.View(buf, BlockRange{2, 2}).Count)

	l = LayoutFromCounts([]int{0, 4, 1})
	require.Equal(t, []int{0, 0, 4}, l.Displs)
}

func TestPowerHelpers(t *testing.T) {
	require.True(t, IsPowerOfTwo(1))
	require.True(t, IsPowerOfTwo(64))
	require.False(t, IsPowerOfTwo(0))
	require.False(t, IsPowerOfTwo(12))
	require.Equal(t, 8, FloorPowerOfTwo(12))
	require.Equal(t, 1, FloorPowerOfTwo(1))
	require.Equal(t, 0, CeilLog2(1))
	require.Equal(t, 4, CeilLog2(9))
	require.Equal(t, 3, CeilLog2(8))
}

func TestFoldRanks(t *testing.T) {
	for size := 1; size <= 40; size++ {
		f := NewFold(size)
		require.Equal(t, size, f.Pof2+f.Rem)
		next := 0
		for nr := 0; nr < f.Pof2; nr++ {
			first, n := f.Covered(nr)
			require.Equal(t, next, first)
			next += n
			old := f.OldRank(nr)
			require.Equal(t, nr, f.NewRank(old))
			require.Equal(t, first+n-1, old)
		}
		require.Equal(t, size, next)
		var dropped int
		for r := 0; r < size; r++ {
			if f.NewRank(r) < 0 {
				dropped++
			}
		}
		require.Equal(t, f.Rem, dropped)
	}
}

func TestSegment(t *testing.T) {
	s := Segment(10, 3)
	require.Equal(t, Segmentation{Count: 10, SegCount: 3, Segments: 3, Remainder: 1}, s)
	buf := Int32s(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	require.Equal(t, []int32{6, 7, 8}, Values[int32](s.Piece(buf, 2)))
	require.Equal(t, []int32{9}, Values[int32](s.Rest(buf)))

	s = Segment(2, 3)
	require.Equal(t, 0, s.Segments)
	require.Equal(t, 2, s.Remainder)

	s = Segment(5, 0)
	require.Equal(t, 5, s.Remainder)

	require.Equal(t, 4, SegmentElements(32, Int64))
	require.Equal(t, 1, SegmentElements(3, Int64))
	require.Equal(t, 0, SegmentElements(0, Int64))
}
