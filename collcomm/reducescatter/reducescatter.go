// Package reducescatter implements algorithms that reduce
// a vector over every rank and leave each rank with one
// segment of the result.
package reducescatter

import (
	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/reduce"
	"github.com/simgrid/simgrid-sub002/collcomm/scatter"
)

// A ReduceScatterer is an algorithm that reduces send
// across all ranks and stores elements
// [displ(i), displ(i)+recvCounts[i]) of the result in
// recv on rank i, where displ(i) is the sum of the counts
// before i.
type ReduceScatterer interface {
	ReduceScatter(c *collcomm.Comms, send, recv collcomm.Buffer, recvCounts []int,
		op collcomm.Op) error
}

// Default is the algorithm used when no other one applies.
// It supports non-commutative operators.
var Default ReduceScatterer = ReduceScatterv{}

func start(name string, c *collcomm.Comms, send, recv collcomm.Buffer, recvCounts []int,
	op collcomm.Op, commutative bool) (bool, error) {
	if len(recvCounts) != c.Size() {
		return false, errors.Wrapf(collcomm.ErrInvalidArgument, "%d receive counts for %d ranks",
			len(recvCounts), c.Size())
	}
	var total int
	for _, n := range recvCounts {
		total += n
	}
	if total == 0 {
		return false, nil
	}
	if send.Count != total {
		return false, errors.Wrapf(collcomm.ErrInvalidArgument, "send has %d elements, counts sum to %d",
			send.Count, total)
	}
	if commutative {
		if err := collcomm.RequireCommutative(op); err != nil {
			if collcomm.Fallback("reduce_scatter/"+name, err) {
				return false, Default.ReduceScatter(c, send, recv, recvCounts, op)
			}
			return false, err
		}
	}
	return true, nil
}

// ReduceScatterv reduces the whole vector at rank 0 and
// scatters the segments.
type ReduceScatterv struct{}

func (r ReduceScatterv) ReduceScatter(c *collcomm.Comms, send, recv collcomm.Buffer,
	recvCounts []int, op collcomm.Op) error {
	if ok, err := start("reduce_scatterv", c, send, recv, recvCounts, op, false); !ok {
		return err
	}
	var full collcomm.Buffer
	if c.Rank() == 0 {
		var err error
		if full, err = c.Scratch(send.Count, send.Type); err != nil {
			return err
		}
	}
	if err := reduce.Default.Reduce(c, send, full, op, 0); err != nil {
		return err
	}
	displs := collcomm.LayoutFromCounts(recvCounts).Displs
	return scatter.DefaultV.Scatterv(c, full, recvCounts, displs, recv, 0)
}

// RHV is recursive halving. It runs on a fold of the ranks
// onto a power of two, where each participant's block is
// made of the segments of the ranks it covers.
//
// It needs a commutative operator.
type RHV struct{}

func (r RHV) ReduceScatter(c *collcomm.Comms, send, recv collcomm.Buffer, recvCounts []int,
	op collcomm.Op) error {
	if ok, err := start("rhv", c, send, recv, recvCounts, op, true); !ok {
		return err
	}
	rank := c.Rank()
	segments := collcomm.LayoutFromCounts(recvCounts)
	acc, err := c.Scratch(send.Count, send.Type)
	if err != nil {
		return err
	}
	if err := collcomm.CopyBuffer(acc, send); err != nil {
		return err
	}

	fold := collcomm.NewFold(c.Size())
	newRank, err := fold.Reduce(c, acc, op, collcomm.TagReduceScatter)
	if err != nil {
		return err
	}
	if newRank < 0 {
		if recvCounts[rank] == 0 {
			return nil
		}
		_, err := c.Recv(rank+1, recv, collcomm.TagReduceScatter)
		return err
	}

	blockCounts := make([]int, fold.Pof2)
	for i := range blockCounts {
		first, n := fold.Covered(i)
		_, blockCounts[i] = segments.Span(collcomm.BlockRange{Lo: first, Hi: first + n})
	}
	layout := collcomm.LayoutFromCounts(blockCounts)
	err = reduce.HalvingReduceScatter(c, acc, op, fold, newRank, layout, collcomm.TagReduceScatter)
	if err != nil {
		return err
	}

	if first, n := fold.Covered(newRank); n == 2 && recvCounts[first] > 0 {
		err := c.Send(first, segments.View(acc, collcomm.BlockRange{Lo: first, Hi: first + 1}),
			collcomm.TagReduceScatter)
		if err != nil {
			return err
		}
	}
	if recvCounts[rank] == 0 {
		return nil
	}
	return collcomm.CopyBuffer(recv, segments.View(acc, collcomm.BlockRange{Lo: rank, Hi: rank + 1}))
}

// Ring passes partial segments around a ring, each rank
// adding its contribution before forwarding.
//
// It needs a commutative operator.
type Ring struct{}

func (r Ring) ReduceScatter(c *collcomm.Comms, send, recv collcomm.Buffer, recvCounts []int,
	op collcomm.Op) error {
	if ok, err := start("ring", c, send, recv, recvCounts, op, true); !ok {
		return err
	}
	size, rank := c.Size(), c.Rank()
	segments := collcomm.LayoutFromCounts(recvCounts)
	segment := func(buf collcomm.Buffer, i int) collcomm.Buffer {
		return segments.View(buf, collcomm.BlockRange{Lo: i, Hi: i + 1})
	}
	acc, err := c.Scratch(send.Count, send.Type)
	if err != nil {
		return err
	}
	if err := collcomm.CopyBuffer(acc, send); err != nil {
		return err
	}
	var maxCount int
	for _, n := range recvCounts {
		maxCount = max(maxCount, n)
	}
	tmp, err := c.Scratch(maxCount, send.Type)
	if err != nil {
		return err
	}

	left, right := (rank-1+size)%size, (rank+1)%size
	for i := 0; i < size-1; i++ {
		sendIdx := (rank - i - 1 + 2*size) % size
		recvIdx := (rank - i - 2 + 2*size) % size
		incoming := tmp.Slice(0, recvCounts[recvIdx])
		tag := collcomm.StepTag(collcomm.TagReduceScatter, i)
		_, err := c.Sendrecv(segment(acc, sendIdx), right, tag, incoming, left, tag)
		if err != nil {
			return err
		}
		if err := c.Combine(op, incoming, segment(acc, recvIdx)); err != nil {
			return err
		}
	}
	if recvCounts[rank] == 0 {
		return nil
	}
	return collcomm.CopyBuffer(recv, segment(acc, rank))
}

// Pair sends every rank its segment of the local vector
// directly, pairing with rank+i and rank-i at step i.
//
// It needs a commutative operator.
type Pair struct{}

func (p Pair) ReduceScatter(c *collcomm.Comms, send, recv collcomm.Buffer, recvCounts []int,
	op collcomm.Op) error {
	if ok, err := start("pair", c, send, recv, recvCounts, op, true); !ok {
		return err
	}
	size, rank := c.Size(), c.Rank()
	segments := collcomm.LayoutFromCounts(recvCounts)
	mine := recvCounts[rank]
	acc, err := c.Scratch(mine, send.Type)
	if err != nil {
		return err
	}
	own := segments.View(send, collcomm.BlockRange{Lo: rank, Hi: rank + 1})
	if err := collcomm.CopyBuffer(acc, own); err != nil {
		return err
	}
	tmp, err := c.Scratch(mine, send.Type)
	if err != nil {
		return err
	}
	for i := 1; i < size; i++ {
		dst, src := (rank+i)%size, (rank-i+size)%size
		tag := collcomm.StepTag(collcomm.TagReduceScatter, i)
		out := segments.View(send, collcomm.BlockRange{Lo: dst, Hi: dst + 1})
		if _, err := c.Sendrecv(out, dst, tag, tmp, src, tag); err != nil {
			return err
		}
		if err := c.Combine(op, tmp, acc); err != nil {
			return err
		}
	}
	if mine == 0 {
		return nil
	}
	return collcomm.CopyBuffer(recv, acc)
}
