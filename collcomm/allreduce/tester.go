package allreduce

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/colltest"
)

// RunAllreducerTests runs a battery of tests on an
// Allreducer.
func RunAllreducerTests(t *testing.T, reducer Allreducer) {
	colltest.Sweep(t, func(t *testing.T, w colltest.World) {
		for _, size := range []int{0, 1, 1337} {
			t.Run(fmt.Sprintf("Sum/Count=%d", size), func(t *testing.T) {
				testSum(t, w, reducer, size)
			})
		}
		t.Run("NonCommutative", func(t *testing.T) {
			testNonCommutative(t, w, reducer, 5)
		})
		t.Run("ZeroCountUntouched", func(t *testing.T) {
			colltest.RequireUntouched(t, w, 4, func(c *collcomm.Comms, buf collcomm.Buffer) error {
				send := collcomm.NewBuffer(0, collcomm.Int64)
				return reducer.Allreduce(c, send, buf.WithCount(0), collcomm.Sum)
			})
		})
	})
}

func testSum(t *testing.T, w colltest.World, reducer Allreducer, size int) {
	vectors := make([][]float64, w.Size)
	sum := make([]float64, size)
	for i := range vectors {
		vectors[i] = make([]float64, size)
		for j := range vectors[i] {
			vectors[i][j] = rand.NormFloat64()
			sum[j] += vectors[i][j]
		}
	}

	results := make([][]float64, w.Size)
	err := w.Run(func(c *collcomm.Comms) error {
		send := collcomm.Float64s(vectors[c.Rank()]...)
		recv := collcomm.NewBuffer(size, collcomm.Float64)
		if err := reducer.Allreduce(c, send, recv, collcomm.Sum); err != nil {
			return err
		}
		results[c.Rank()] = collcomm.Values[float64](recv)
		if !equalFloats(collcomm.Values[float64](send), vectors[c.Rank()]) {
			return errors.New("send buffer was modified")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	verifyReductionResults(t, results, sum)
}

func testNonCommutative(t *testing.T, w colltest.World, reducer Allreducer, count int) {
	expected := collcomm.Values[int64](colltest.AffineFold(w.Size, count))
	err := w.Run(func(c *collcomm.Comms) error {
		send := colltest.AffineValues(c.Rank(), count)
		recv := collcomm.NewBuffer(count, colltest.Affine)
		if err := reducer.Allreduce(c, send, recv, colltest.AffineOp); err != nil {
			return err
		}
		actual := collcomm.Values[int64](recv)
		for i, x := range expected {
			if actual[i] != x {
				return errors.Errorf("rank %d got %v, expected %v", c.Rank(), actual, expected)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func verifyReductionResults(t *testing.T, results [][]float64, expected []float64) {
	for i, res := range results[1:] {
		if len(res) != len(expected) {
			t.Errorf("result %d has length %d but expected %d", i+1, len(res), len(expected))
			continue
		}
		if !equalFloats(res, results[0]) {
			t.Errorf("result %d is not identical to result 0", i+1)
		}
	}

	for i, x := range expected {
		if math.Abs(x-results[0][i]) > 1e-5 {
			t.Errorf("sum is incorrect (expected %f but got %f at component %d)",
				x, results[0][i], i)
			break
		}
	}
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i, x := range a {
		if x != b[i] {
			return false
		}
	}
	return true
}
