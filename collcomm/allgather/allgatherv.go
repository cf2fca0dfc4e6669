package allgather

import (
	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/bcast"
	"github.com/simgrid/simgrid-sub002/collcomm/gather"
)

// An Allgatherver is an algorithm that stores the send
// buffer of rank i at element offset displs[i] of recv on
// every rank, where it occupies counts[i] elements.
type Allgatherver interface {
	Allgatherv(c *collcomm.Comms, send, recv collcomm.Buffer, counts, displs []int) error
}

// DefaultV is the default Allgatherver.
var DefaultV Allgatherver = GathervBcast{}

func startV(name string, c *collcomm.Comms, send, recv collcomm.Buffer, counts, displs []int,
	check func() error) (bool, error) {
	if len(counts) != c.Size() || len(displs) != c.Size() {
		return false, errors.Wrapf(collcomm.ErrInvalidArgument,
			"%d counts and %d displacements for %d ranks", len(counts), len(displs), c.Size())
	}
	var total int
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return false, nil
	}
	var err error
	if expected := counts[c.Rank()] * recv.Type.Extent; send.Bytes() != expected {
		err = errors.Wrapf(collcomm.ErrIrregularArguments, "send spans %d bytes, receive spans %d",
			send.Bytes(), expected)
	} else if check != nil {
		err = check()
	}
	if err != nil {
		if collcomm.Fallback("allgatherv/"+name, err) {
			return false, DefaultV.Allgatherv(c, send, recv, counts, displs)
		}
		return false, err
	}
	if counts[c.Rank()] > 0 {
		dst := recv.Slice(displs[c.Rank()], counts[c.Rank()])
		if err := collcomm.CopyBuffer(dst, send); err != nil {
			return false, err
		}
	}
	return c.Size() > 1, nil
}

func span(counts, displs []int) int {
	var res int
	for i, n := range counts {
		if n > 0 {
			res = max(res, displs[i]+n)
		}
	}
	return res
}

// GathervBcast gathers every block at rank 0 and then
// broadcasts the whole receive buffer.
type GathervBcast struct{}

func (g GathervBcast) Allgatherv(c *collcomm.Comms, send, recv collcomm.Buffer, counts,
	displs []int) error {
	if len(counts) != c.Size() || len(displs) != c.Size() {
		return errors.Wrapf(collcomm.ErrInvalidArgument,
			"%d counts and %d displacements for %d ranks", len(counts), len(displs), c.Size())
	}
	n := span(counts, displs)
	if n == 0 {
		return nil
	}
	if err := gather.DefaultV.Gatherv(c, send, recv, counts, displs, 0); err != nil {
		return err
	}
	return bcast.Default.Bcast(c, recv.Slice(0, n), 0)
}

// RingV passes variable-sized blocks around a ring.
type RingV struct{}

func (r RingV) Allgatherv(c *collcomm.Comms, send, recv collcomm.Buffer, counts,
	displs []int) error {
	if ok, err := startV("ring", c, send, recv, counts, displs, nil); !ok {
		return err
	}
	size, rank := c.Size(), c.Rank()
	left, right := (rank-1+size)%size, (rank+1)%size
	for i := 0; i < size-1; i++ {
		sendIdx := (rank - i + size) % size
		recvIdx := (rank - i - 1 + size) % size
		tag := collcomm.StepTag(collcomm.TagAllgatherv, i)
		_, err := c.Sendrecv(recv.Slice(displs[sendIdx], counts[sendIdx]), right, tag,
			recv.Slice(displs[recvIdx], counts[recvIdx]), left, tag)
		if err != nil {
			return err
		}
	}
	return nil
}

// BruckV is the Bruck algorithm for variable-sized blocks.
type BruckV struct{}

func (b BruckV) Allgatherv(c *collcomm.Comms, send, recv collcomm.Buffer, counts,
	displs []int) error {
	if ok, err := startV("bruck", c, send, recv, counts, displs, nil); !ok {
		return err
	}
	size, rank := c.Size(), c.Rank()

	// Position i of tmp holds the block of rank+i.
	relCounts := make([]int, size)
	for i := range relCounts {
		relCounts[i] = counts[(rank+i)%size]
	}
	layout := collcomm.LayoutFromCounts(relCounts)
	tmp, err := c.Scratch(layout.Total(), recv.Type)
	if err != nil {
		return err
	}
	if counts[rank] > 0 {
		own := recv.Slice(displs[rank], counts[rank])
		if err := collcomm.CopyBuffer(layout.View(tmp, collcomm.BlockRange{Lo: 0, Hi: 1}), own); err != nil {
			return err
		}
	}
	for k, dist := 0, 1; dist < size; k, dist = k+1, dist*2 {
		n := min(dist, size-dist)
		tag := collcomm.StepTag(collcomm.TagAllgatherv, k)
		_, err := c.Sendrecv(
			layout.View(tmp, collcomm.BlockRange{Lo: 0, Hi: n}), (rank-dist+size)%size, tag,
			layout.View(tmp, collcomm.BlockRange{Lo: dist, Hi: dist + n}), (rank+dist)%size, tag,
		)
		if err != nil {
			return err
		}
	}
	for i := 1; i < size; i++ {
		src := (rank + i) % size
		if counts[src] == 0 {
			continue
		}
		block := layout.View(tmp, collcomm.BlockRange{Lo: i, Hi: i + 1})
		if err := collcomm.CopyBuffer(recv.Slice(displs[src], counts[src]), block); err != nil {
			return err
		}
	}
	return nil
}

// PairV swaps the local block with rank^i for every i.
//
// It needs a power-of-two number of ranks.
type PairV struct{}

func (p PairV) Allgatherv(c *collcomm.Comms, send, recv collcomm.Buffer, counts,
	displs []int) error {
	if ok, err := startV("pair", c, send, recv, counts, displs, requirePowerOfTwo(c)); !ok {
		return err
	}
	rank := c.Rank()
	own := recv.Slice(displs[rank], counts[rank])
	for i := 1; i < c.Size(); i++ {
		peer := rank ^ i
		tag := collcomm.StepTag(collcomm.TagAllgatherv, i)
		_, err := c.Sendrecv(own, peer, tag, recv.Slice(displs[peer], counts[peer]), peer, tag)
		if err != nil {
			return err
		}
	}
	return nil
}
