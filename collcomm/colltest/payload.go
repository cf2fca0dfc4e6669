package colltest

import (
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/unixpickle/essentials"
)

// RankInts creates count Int64 elements that identify the
// rank and the element index.
func RankInts(rank, count int) collcomm.Buffer {
	values := make([]int64, count)
	for i := range values {
		values[i] = RankValue(rank, i)
	}
	return collcomm.FromValues(collcomm.Int64, values)
}

// RankValue is the i-th element of RankInts(rank, ...).
func RankValue(rank, i int) int64 {
	return int64(rank*100000 + i)
}

// Concat builds the Int64 buffer holding RankInts(r,
// counts[r]) for every rank in order.
func Concat(counts []int) collcomm.Buffer {
	var values []int64
	for r, n := range counts {
		values = append(values, collcomm.Values[int64](RankInts(r, n))...)
	}
	return collcomm.FromValues(collcomm.Int64, values)
}

// Uniform returns n copies of count.
func Uniform(n, count int) []int {
	res := make([]int, n)
	for i := range res {
		res[i] = count
	}
	return res
}

// Displs computes packed displacements for counts.
func Displs(counts []int) []int {
	res := make([]int, len(counts))
	for i := 1; i < len(counts); i++ {
		res[i] = res[i-1] + counts[i-1]
	}
	return res
}

// Sum returns the sum of counts.
func Sum(counts []int) int {
	var res int
	for _, c := range counts {
		res += c
	}
	return res
}

// AffineModulus is the prime modulus of Affine arithmetic.
const AffineModulus = 1000003

// Affine is a pair (m, c) of Int64 values representing
// the map x -> m*x + c.
var Affine = mustContiguous(2, collcomm.Int64)

// AffineOp composes affine maps: in (+) inout applies in
// first, then inout. It is associative but not
// commutative, so any reordering of operands shows up in
// the result.
var AffineOp = &collcomm.UserOp{
	OpName:  "affine",
	Commute: false,
	Fn: func(in, inout []byte, count int, t *collcomm.Datatype) error {
		a := collcomm.Values[int64](collcomm.Buffer{Data: in, Count: count, Type: t})
		b := collcomm.Values[int64](collcomm.Buffer{Data: inout, Count: count, Type: t})
		for i := 0; i < len(a); i += 2 {
			b[i], b[i+1] = composeAffine(a[i], a[i+1], b[i], b[i+1])
		}
		return collcomm.CopyBuffer(collcomm.Buffer{Data: inout, Count: count, Type: t},
			collcomm.FromValues(t, b))
	},
}

func composeAffine(m1, c1, m2, c2 int64) (int64, int64) {
	return (m2 * m1) % AffineModulus, (m2*c1 + c2) % AffineModulus
}

// AffineValues creates count affine elements unique to a
// rank.
func AffineValues(rank, count int) collcomm.Buffer {
	values := make([]int64, 0, count*2)
	for i := 0; i < count; i++ {
		values = append(values, int64(rank*31+i*7+2)%AffineModulus,
			int64(rank*17+i*3+1)%AffineModulus)
	}
	return collcomm.FromValues(Affine, values)
}

// AffineFold computes the left-to-right fold of the
// AffineValues of ranks 0 through size-1.
func AffineFold(size, count int) collcomm.Buffer {
	res := collcomm.Values[int64](AffineValues(0, count))
	for r := 1; r < size; r++ {
		next := collcomm.Values[int64](AffineValues(r, count))
		for i := 0; i < len(res); i += 2 {
			res[i], res[i+1] = composeAffine(res[i], res[i+1], next[i], next[i+1])
		}
	}
	return collcomm.FromValues(Affine, res)
}

// SumInts computes the elementwise sum of RankInts over
// ranks 0 through size-1.
func SumInts(size, count int) collcomm.Buffer {
	values := make([]int64, count)
	for r := 0; r < size; r++ {
		for i := range values {
			values[i] += RankValue(r, i)
		}
	}
	return collcomm.FromValues(collcomm.Int64, values)
}

func mustContiguous(n int, t *collcomm.Datatype) *collcomm.Datatype {
	res, err := collcomm.Contiguous(n, t)
	essentials.Must(err)
	return res
}

// Untouched marks memory that a call must not write.
const Untouched int64 = -424242

// Filled creates n Int64 elements holding Untouched.
func Filled(n int) collcomm.Buffer {
	return collcomm.FromValues(collcomm.Int64, UntouchedValues(n))
}

// UntouchedValues returns n copies of Untouched.
func UntouchedValues(n int) []int64 {
	res := make([]int64, n)
	for i := range res {
		res[i] = Untouched
	}
	return res
}
