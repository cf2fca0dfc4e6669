package alltoall

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/colltest"
	"github.com/stretchr/testify/require"
)

// pairValue identifies element k of the block sent from
// rank i to rank j.
func pairValue(i, j, k int) int64 {
	return int64(i*10000 + j*100 + k)
}

func TestAlltoallers(t *testing.T) {
	for _, a := range []Alltoaller{BasicLinear{}, Ring{}, Pair{}, Bruck{}} {
		t.Run(fmt.Sprintf("%T", a), func(t *testing.T) {
			colltest.Sweep(t, func(t *testing.T, w colltest.World) {
				for _, count := range []int{0, 1, 3} {
					testAlltoall(t, w, a, count)
				}
			})
		})
	}
}

func testAlltoall(t *testing.T, w colltest.World, a Alltoaller, count int) {
	err := w.Run(func(c *collcomm.Comms) error {
		size, rank := c.Size(), c.Rank()
		values := make([]int64, 0, size*count)
		for j := 0; j < size; j++ {
			for k := 0; k < count; k++ {
				values = append(values, pairValue(rank, j, k))
			}
		}
		send := collcomm.FromValues(collcomm.Int64, values).WithCount(count)
		recv := collcomm.NewBuffer(size*count, collcomm.Int64).WithCount(count)
		if err := a.Alltoall(c, send, recv); err != nil {
			return err
		}
		actual := collcomm.Values[int64](recv.Blocks(0, size))
		for i := 0; i < size; i++ {
			for k := 0; k < count; k++ {
				if x := actual[i*count+k]; x != pairValue(i, rank, k) {
					return errors.Errorf("count=%d: element %d from rank %d is %d", count, k, i, x)
				}
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// pairCount is the number of elements rank i sends to
// rank j.
func pairCount(i, j int) int {
	return (i*2 + j) % 4
}

func TestAlltoallvers(t *testing.T) {
	for _, a := range []Alltoallver{BasicLinearV{}, RingV{}, PairV{}} {
		t.Run(fmt.Sprintf("%T", a), func(t *testing.T) {
			colltest.Sweep(t, func(t *testing.T, w colltest.World) {
				testAlltoallvRoundTrip(t, w, a)
			})
		})
	}
}

func testAlltoallvRoundTrip(t *testing.T, w colltest.World, a Alltoallver) {
	err := w.Run(func(c *collcomm.Comms) error {
		size, rank := c.Size(), c.Rank()
		sendCounts := make([]int, size)
		recvCounts := make([]int, size)
		var values []int64
		for j := 0; j < size; j++ {
			sendCounts[j] = pairCount(rank, j)
			recvCounts[j] = pairCount(j, rank)
			for k := 0; k < sendCounts[j]; k++ {
				values = append(values, pairValue(rank, j, k))
			}
		}
		sendDispls := colltest.Displs(sendCounts)

		// Received blocks are stored in reverse rank order.
		recvDispls := make([]int, size)
		var total int
		for j := size - 1; j >= 0; j-- {
			recvDispls[j] = total
			total += recvCounts[j]
		}

		original := collcomm.FromValues(collcomm.Int64, values)
		recv := collcomm.NewBuffer(total, collcomm.Int64)
		err := a.Alltoallv(c, original, sendCounts, sendDispls, recv, recvCounts, recvDispls)
		if err != nil {
			return err
		}
		received := collcomm.Values[int64](recv)
		for j := 0; j < size; j++ {
			for k := 0; k < recvCounts[j]; k++ {
				if x := received[recvDispls[j]+k]; x != pairValue(j, rank, k) {
					return errors.Errorf("element %d from rank %d is %d", k, j, x)
				}
			}
		}

		back := collcomm.NewBuffer(original.Count, collcomm.Int64)
		err = a.Alltoallv(c, recv, recvCounts, recvDispls, back, sendCounts, sendDispls)
		if err != nil {
			return err
		}
		if string(back.Data) != string(original.Data) {
			return errors.Errorf("round trip gave %v, expected %v", collcomm.Values[int64](back), values)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestAlltoallvBadArgs(t *testing.T) {
	err := colltest.FlatWorld(2).Run(func(c *collcomm.Comms) error {
		buf := collcomm.NewBuffer(2, collcomm.Int64)
		return BasicLinearV{}.Alltoallv(c, buf, []int{1, 1}, []int{0, 1}, buf, []int{1}, []int{0})
	})
	require.True(t, errors.Is(err, collcomm.ErrInvalidArgument))
}

func TestAlltoallZeroCountUntouched(t *testing.T) {
	for _, a := range []Alltoaller{BasicLinear{}, Ring{}, Pair{}, Bruck{}} {
		t.Run(fmt.Sprintf("%T", a), func(t *testing.T) {
			colltest.Sweep(t, func(t *testing.T, w colltest.World) {
				colltest.RequireUntouched(t, w, 2*w.Size, func(c *collcomm.Comms, buf collcomm.Buffer) error {
					return a.Alltoall(c, collcomm.NewBuffer(0, collcomm.Int64), buf.WithCount(0))
				})
			})
		})
	}
	for _, a := range []Alltoallver{BasicLinearV{}, RingV{}, PairV{}} {
		t.Run(fmt.Sprintf("%T", a), func(t *testing.T) {
			colltest.Sweep(t, func(t *testing.T, w colltest.World) {
				zeros := colltest.Uniform(w.Size, 0)
				colltest.RequireUntouched(t, w, w.Size, func(c *collcomm.Comms, buf collcomm.Buffer) error {
					return a.Alltoallv(c, collcomm.NewBuffer(0, collcomm.Int64), zeros, zeros,
						buf, zeros, colltest.Uniform(w.Size, 1))
				})
			})
		})
	}
}
