package gather

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/colltest"
	"github.com/stretchr/testify/require"
)

func TestGatherers(t *testing.T) {
	for _, g := range []Gatherer{FlatTree{}, Binomial{}} {
		t.Run(fmt.Sprintf("%T", g), func(t *testing.T) {
			colltest.Sweep(t, func(t *testing.T, w colltest.World) {
				for _, count := range []int{0, 1, 5} {
					for _, root := range []int{0, w.Size - 1, w.Size / 3} {
						testGather(t, w, g, count, root)
					}
				}
			})
		})
	}
}

func testGather(t *testing.T, w colltest.World, g Gatherer, count, root int) {
	var result []int64
	err := w.Run(func(c *collcomm.Comms) error {
		recv := collcomm.NewBuffer(count, collcomm.Int64)
		if c.Rank() == root {
			recv = collcomm.NewBuffer(count*c.Size(), collcomm.Int64).WithCount(count)
		}
		if err := g.Gather(c, colltest.RankInts(c.Rank(), count), recv, root); err != nil {
			return err
		}
		if c.Rank() == root {
			result = collcomm.Values[int64](recv.Blocks(0, c.Size()))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, collcomm.Values[int64](colltest.Concat(colltest.Uniform(w.Size, count))), result,
		"count=%d root=%d", count, root)
}

func TestBinomialGatherTypes(t *testing.T) {
	// Ranks send pairs of int64, the root receives a padded
	// single-lane view of the same data.
	pair, err := collcomm.Contiguous(2, collcomm.Int64)
	require.NoError(t, err)
	padded, err := collcomm.Resized(collcomm.Int64, 16)
	require.NoError(t, err)
	var result []int64
	err = colltest.FlatWorld(5).Run(func(c *collcomm.Comms) error {
		send := collcomm.FromValues(pair, []int64{int64(c.Rank()), -int64(c.Rank())})
		recv := collcomm.NewBuffer(2*c.Size(), padded).WithCount(2)
		if err := (Binomial{}).Gather(c, send, recv, 2); err != nil {
			return err
		}
		if c.Rank() == 2 {
			result = collcomm.Values[int64](recv.Blocks(0, c.Size()))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{0, 0, 1, -1, 2, -2, 3, -3, 4, -4}, result)
}

func TestGatherv(t *testing.T) {
	colltest.Sweep(t, func(t *testing.T, w colltest.World) {
		counts := make([]int, w.Size)
		for i := range counts {
			counts[i] = (i * 3) % 4
		}
		root := w.Size / 2

		// Store blocks in reverse order with a gap after each.
		displs := make([]int, w.Size)
		var total int
		for i := w.Size - 1; i >= 0; i-- {
			displs[i] = total
			total += counts[i] + 1
		}

		var result []int64
		err := w.Run(func(c *collcomm.Comms) error {
			recv := collcomm.NewBuffer(total, collcomm.Int64)
			send := colltest.RankInts(c.Rank(), counts[c.Rank()])
			if err := (Linear{}).Gatherv(c, send, recv, counts, displs, root); err != nil {
				return err
			}
			if c.Rank() == root {
				result = collcomm.Values[int64](recv)
			}
			return nil
		})
		require.NoError(t, err)
		for i, n := range counts {
			for j := 0; j < n; j++ {
				require.Equal(t, colltest.RankValue(i, j), result[displs[i]+j])
			}
			require.Zero(t, result[displs[i]+n], "gap after block %d was written", i)
		}
	})
}

func TestGathervBadCounts(t *testing.T) {
	err := colltest.FlatWorld(1).Run(func(c *collcomm.Comms) error {
		return (Linear{}).Gatherv(c, colltest.RankInts(0, 1), collcomm.NewBuffer(1, collcomm.Int64),
			[]int{1, 1}, []int{0}, 0)
	})
	require.True(t, errors.Is(err, collcomm.ErrInvalidArgument))
}

func TestGatherZeroCountUntouched(t *testing.T) {
	for _, g := range []Gatherer{FlatTree{}, Binomial{}} {
		t.Run(fmt.Sprintf("%T", g), func(t *testing.T) {
			colltest.Sweep(t, func(t *testing.T, w colltest.World) {
				colltest.RequireUntouched(t, w, 2*w.Size, func(c *collcomm.Comms, buf collcomm.Buffer) error {
					send := collcomm.NewBuffer(0, collcomm.Int64)
					return g.Gather(c, send, buf.WithCount(0), w.Size-1)
				})
			})
		})
	}
	t.Run("Gatherv", func(t *testing.T) {
		colltest.Sweep(t, func(t *testing.T, w colltest.World) {
			counts := colltest.Uniform(w.Size, 0)
			displs := colltest.Uniform(w.Size, 1)
			colltest.RequireUntouched(t, w, 4, func(c *collcomm.Comms, buf collcomm.Buffer) error {
				send := collcomm.NewBuffer(0, collcomm.Int64)
				return (Linear{}).Gatherv(c, send, buf, counts, displs, 0)
			})
		})
	})
}
