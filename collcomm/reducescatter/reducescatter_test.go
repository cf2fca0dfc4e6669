package reducescatter

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/colltest"
	"github.com/stretchr/testify/require"
)

func allAlgorithms() []ReduceScatterer {
	return []ReduceScatterer{ReduceScatterv{}, RHV{}, Ring{}, Pair{}}
}

func TestReduceScatterSum(t *testing.T) {
	for _, a := range allAlgorithms() {
		t.Run(fmt.Sprintf("%T", a), func(t *testing.T) {
			colltest.Sweep(t, func(t *testing.T, w colltest.World) {
				uneven := make([]int, w.Size)
				for i := range uneven {
					uneven[i] = (i*7 + 3) % 5
				}
				for _, counts := range [][]int{colltest.Uniform(w.Size, 2), uneven,
					colltest.Uniform(w.Size, 0)} {
					total := colltest.Sum(counts)
					testReduceScatter(t, w, a, counts, collcomm.Sum,
						func(rank int) collcomm.Buffer { return colltest.RankInts(rank, total) },
						colltest.SumInts(w.Size, total))
				}
			})
		})
	}
}

func TestReduceScatterNonCommutative(t *testing.T) {
	for _, a := range allAlgorithms() {
		t.Run(fmt.Sprintf("%T", a), func(t *testing.T) {
			colltest.Sweep(t, func(t *testing.T, w colltest.World) {
				counts := make([]int, w.Size)
				for i := range counts {
					counts[i] = i%3 + 1
				}
				total := colltest.Sum(counts)
				testReduceScatter(t, w, a, counts, colltest.AffineOp,
					func(rank int) collcomm.Buffer { return colltest.AffineValues(rank, total) },
					colltest.AffineFold(w.Size, total))
			})
		})
	}
}

func testReduceScatter(t *testing.T, w colltest.World, a ReduceScatterer, counts []int,
	op collcomm.Op, input func(rank int) collcomm.Buffer, expected collcomm.Buffer) {
	displs := colltest.Displs(counts)
	err := w.Run(func(c *collcomm.Comms) error {
		send := input(c.Rank())
		recv := collcomm.NewBuffer(counts[c.Rank()], send.Type)
		if err := a.ReduceScatter(c, send, recv, counts, op); err != nil {
			return err
		}
		want := collcomm.Values[int64](expected.Slice(displs[c.Rank()], counts[c.Rank()]))
		got := collcomm.Values[int64](recv)
		for i := range want {
			if got[i] != want[i] {
				return errors.Errorf("counts=%v: rank %d got %v, expected %v", counts, c.Rank(), got, want)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestReduceScatterBadCounts(t *testing.T) {
	err := colltest.FlatWorld(2).Run(func(c *collcomm.Comms) error {
		send := colltest.RankInts(c.Rank(), 3)
		return Ring{}.ReduceScatter(c, send, collcomm.NewBuffer(1, collcomm.Int64), []int{1, 1},
			collcomm.Sum)
	})
	require.True(t, errors.Is(err, collcomm.ErrInvalidArgument))
}

func TestReduceScatterZeroCountUntouched(t *testing.T) {
	for _, a := range allAlgorithms() {
		t.Run(fmt.Sprintf("%T", a), func(t *testing.T) {
			colltest.Sweep(t, func(t *testing.T, w colltest.World) {
				colltest.RequireUntouched(t, w, 3, func(c *collcomm.Comms, buf collcomm.Buffer) error {
					return a.ReduceScatter(c, collcomm.NewBuffer(0, collcomm.Int64), buf.WithCount(0),
						colltest.Uniform(w.Size, 0), collcomm.Sum)
				})
			})
		})
	}
}
