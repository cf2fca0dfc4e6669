package allgather

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/colltest"
	"github.com/stretchr/testify/require"
)

func TestAllgatherers(t *testing.T) {
	algs := []Allgatherer{GatherBcast{}, Ring{}, Bruck{}, RDB{}, Pair{}, NeighborExchange{}, SMP{}}
	for _, a := range algs {
		t.Run(fmt.Sprintf("%T", a), func(t *testing.T) {
			colltest.Sweep(t, func(t *testing.T, w colltest.World) {
				for _, count := range []int{0, 1, 3} {
					testAllgather(t, w, a, count)
				}
			})
		})
	}
}

func testAllgather(t *testing.T, w colltest.World, a Allgatherer, count int) {
	expected := collcomm.Values[int64](colltest.Concat(colltest.Uniform(w.Size, count)))
	err := w.Run(func(c *collcomm.Comms) error {
		for round := 0; round < 2; round++ {
			recv := collcomm.NewBuffer(count*c.Size(), collcomm.Int64).WithCount(count)
			if err := a.Allgather(c, colltest.RankInts(c.Rank(), count), recv); err != nil {
				return err
			}
			actual := collcomm.Values[int64](recv.Blocks(0, c.Size()))
			for i := range expected {
				if actual[i] != expected[i] {
					return errors.Errorf("count=%d: got %v, expected %v", count, actual, expected)
				}
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestAllgatherRingScenario(t *testing.T) {
	results := make([][]int32, 8)
	err := colltest.FlatWorld(8).Run(func(c *collcomm.Comms) error {
		recv := collcomm.NewBuffer(8, collcomm.Int32).WithCount(1)
		if err := (Ring{}).Allgather(c, collcomm.Int32s(int32(c.Rank())), recv); err != nil {
			return err
		}
		results[c.Rank()] = collcomm.Values[int32](recv.Blocks(0, 8))
		return nil
	})
	require.NoError(t, err)
	for _, res := range results {
		require.Equal(t, []int32{0, 1, 2, 3, 4, 5, 6, 7}, res)
	}
}

func TestAllgatherSMPSimple(t *testing.T) {
	for _, w := range []colltest.World{colltest.SMPWorld(2, 4), colltest.SMPWorld(3, 2),
		colltest.SMPWorld(4, 1)} {
		t.Run(w.String(), func(t *testing.T) {
			testAllgather(t, w, SMPSimple{}, 2)
		})
	}

	err := colltest.World{Size: 6, Cores: 4}.Run(func(c *collcomm.Comms) error {
		recv := collcomm.NewBuffer(c.Size(), collcomm.Int64).WithCount(1)
		return SMPSimple{}.Allgather(c, colltest.RankInts(c.Rank(), 1), recv)
	})
	require.True(t, collcomm.IsTopologyPrecondition(err))
}

func TestAllgatherIrregularFallback(t *testing.T) {
	// Ranks send padded int64 elements but receive dense
	// ones, so the send and receive extents differ.
	padded, err := collcomm.Resized(collcomm.Int64, 16)
	require.NoError(t, err)
	results := make([][]int64, 4)
	err = colltest.FlatWorld(4).Run(func(c *collcomm.Comms) error {
		send := collcomm.FromValues(padded, []int64{int64(c.Rank()), 7})
		recv := collcomm.NewBuffer(2*c.Size(), collcomm.Int64).WithCount(2)
		if err := (Ring{}).Allgather(c, send, recv); err != nil {
			return err
		}
		results[c.Rank()] = collcomm.Values[int64](recv.Blocks(0, c.Size()))
		return nil
	})
	require.NoError(t, err)
	for _, res := range results {
		require.Equal(t, []int64{0, 7, 1, 7, 2, 7, 3, 7}, res)
	}

	err = colltest.FlatWorld(3).Run(func(c *collcomm.Comms) error {
		send := colltest.RankInts(c.Rank(), 3)
		recv := collcomm.NewBuffer(2*c.Size(), collcomm.Int64).WithCount(2)
		return Ring{}.Allgather(c, send, recv)
	})
	require.True(t, errors.Is(err, collcomm.ErrTruncated))
}

func TestAllgathervers(t *testing.T) {
	algs := []Allgatherver{GathervBcast{}, RingV{}, BruckV{}, PairV{}}
	for _, a := range algs {
		t.Run(fmt.Sprintf("%T", a), func(t *testing.T) {
			colltest.Sweep(t, func(t *testing.T, w colltest.World) {
				counts := make([]int, w.Size)
				for i := range counts {
					counts[i] = (i*5 + 1) % 4
				}
				testAllgatherv(t, w, a, counts)
				testAllgatherv(t, w, a, colltest.Uniform(w.Size, 0))
			})
		})
	}
}

func testAllgatherv(t *testing.T, w colltest.World, a Allgatherver, counts []int) {
	displs := colltest.Displs(counts)
	total := colltest.Sum(counts)
	expected := collcomm.Values[int64](colltest.Concat(counts))
	err := w.Run(func(c *collcomm.Comms) error {
		recv := collcomm.NewBuffer(total, collcomm.Int64)
		send := colltest.RankInts(c.Rank(), counts[c.Rank()])
		if err := a.Allgatherv(c, send, recv, counts, displs); err != nil {
			return err
		}
		actual := collcomm.Values[int64](recv)
		for i := range expected {
			if actual[i] != expected[i] {
				return errors.Errorf("counts=%v: got %v, expected %v", counts, actual, expected)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestAllgatherZeroCountUntouched(t *testing.T) {
	algs := []Allgatherer{GatherBcast{}, Ring{}, Bruck{}, RDB{}, Pair{}, NeighborExchange{}, SMP{}, SMPSimple{}}
	for _, a := range algs {
		t.Run(fmt.Sprintf("%T", a), func(t *testing.T) {
			colltest.Sweep(t, func(t *testing.T, w colltest.World) {
				colltest.RequireUntouched(t, w, 2*w.Size, func(c *collcomm.Comms, buf collcomm.Buffer) error {
					return a.Allgather(c, collcomm.NewBuffer(0, collcomm.Int64), buf.WithCount(0))
				})
			})
		})
	}
	for _, a := range []Allgatherver{GathervBcast{}, RingV{}, BruckV{}, PairV{}} {
		t.Run(fmt.Sprintf("%T", a), func(t *testing.T) {
			colltest.Sweep(t, func(t *testing.T, w colltest.World) {
				colltest.RequireUntouched(t, w, w.Size, func(c *collcomm.Comms, buf collcomm.Buffer) error {
					return a.Allgatherv(c, collcomm.NewBuffer(0, collcomm.Int64), buf,
						colltest.Uniform(w.Size, 0), colltest.Uniform(w.Size, 1))
				})
			})
		})
	}
}
