// Package alltoall implements algorithms where every rank
// sends a distinct block to every other rank.
package alltoall

import (
	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
)

// An Alltoaller is an algorithm that delivers block j of
// send on rank i into block i of recv on rank j.
//
// send.Count and recv.Count are per-block counts.
type Alltoaller interface {
	Alltoall(c *collcomm.Comms, send, recv collcomm.Buffer) error
}

// Default is the algorithm used when no other one applies.
var Default Alltoaller = BasicLinear{}

func start(name string, c *collcomm.Comms, send, recv collcomm.Buffer,
	check func() error) (bool, error) {
	if send.Count == 0 && recv.Count == 0 {
		return false, nil
	}
	if check == nil {
		return true, nil
	}
	if err := check(); err != nil {
		if collcomm.Fallback("alltoall/"+name, err) {
			return false, Default.Alltoall(c, send, recv)
		}
		return false, err
	}
	return true, nil
}

// BasicLinear posts every receive and send at once and
// waits for all of them.
type BasicLinear struct{}

func (b BasicLinear) Alltoall(c *collcomm.Comms, send, recv collcomm.Buffer) error {
	if ok, err := start("basic_linear", c, send, recv, nil); !ok {
		return err
	}
	size, rank := c.Size(), c.Rank()
	reqs := make([]*collcomm.Request, 0, 2*(size-1))
	for i := 1; i < size; i++ {
		src := (rank - i + size) % size
		reqs = append(reqs, c.Irecv(src, recv.Block(src), collcomm.TagAlltoall))
	}
	for i := 1; i < size; i++ {
		dst := (rank + i) % size
		reqs = append(reqs, c.Isend(dst, send.Block(dst), collcomm.TagAlltoall))
	}
	copyErr := collcomm.CopyBuffer(recv.Block(rank), send.Block(rank))
	if err := c.Waitall(reqs); err != nil {
		return err
	}
	return copyErr
}

// Ring exchanges with rank+i and rank-i at step i.
type Ring struct{}

func (r Ring) Alltoall(c *collcomm.Comms, send, recv collcomm.Buffer) error {
	if ok, err := start("ring", c, send, recv, nil); !ok {
		return err
	}
	size, rank := c.Size(), c.Rank()
	if err := collcomm.CopyBuffer(recv.Block(rank), send.Block(rank)); err != nil {
		return err
	}
	for i := 1; i < size; i++ {
		dst, src := (rank+i)%size, (rank-i+size)%size
		tag := collcomm.StepTag(collcomm.TagAlltoall, i)
		if _, err := c.Sendrecv(send.Block(dst), dst, tag, recv.Block(src), src, tag); err != nil {
			return err
		}
	}
	return nil
}

// Pair exchanges with rank^i at step i.
//
// It needs a power-of-two number of ranks and blocks of
// the same extent.
type Pair struct{}

func (p Pair) Alltoall(c *collcomm.Comms, send, recv collcomm.Buffer) error {
	check := func() error {
		if err := collcomm.CheckRegular(send, recv); err != nil {
			return err
		}
		if !collcomm.IsPowerOfTwo(c.Size()) {
			return errors.Wrapf(collcomm.ErrNotApplicable, "%d ranks is not a power of two", c.Size())
		}
		return nil
	}
	if ok, err := start("pair", c, send, recv, check); !ok {
		return err
	}
	rank := c.Rank()
	if err := collcomm.CopyBuffer(recv.Block(rank), send.Block(rank)); err != nil {
		return err
	}
	for i := 1; i < c.Size(); i++ {
		peer := rank ^ i
		tag := collcomm.StepTag(collcomm.TagAlltoall, i)
		if _, err := c.Sendrecv(send.Block(peer), peer, tag, recv.Block(peer), peer, tag); err != nil {
			return err
		}
	}
	return nil
}

// Bruck runs ceil(log2(N)) steps. Blocks are first
// rotated so that position i holds the block for rank+i;
// step k then forwards every position with bit k set to
// rank+2^k. A final rotation puts blocks in rank order.
type Bruck struct{}

func (b Bruck) Alltoall(c *collcomm.Comms, send, recv collcomm.Buffer) error {
	check := func() error {
		return collcomm.CheckRegular(send, recv)
	}
	if ok, err := start("bruck", c, send, recv, check); !ok {
		return err
	}
	size, rank := c.Size(), c.Rank()
	count := send.Count
	tmp, err := c.Scratch(size*count, send.Type)
	if err != nil {
		return err
	}
	tmp = tmp.WithCount(count)
	for i := 0; i < size; i++ {
		if err := collcomm.CopyBuffer(tmp.Block(i), send.Block((rank+i)%size)); err != nil {
			return err
		}
	}

	packed, err := c.Scratch((size/2+1)*count, send.Type)
	if err != nil {
		return err
	}
	packed = packed.WithCount(count)
	incoming, err := c.Scratch((size/2+1)*count, send.Type)
	if err != nil {
		return err
	}
	incoming = incoming.WithCount(count)

	for k, dist := 0, 1; dist < size; k, dist = k+1, dist*2 {
		var positions []int
		for i := 1; i < size; i++ {
			if i&dist != 0 {
				positions = append(positions, i)
			}
		}
		for j, pos := range positions {
			if err := collcomm.CopyBuffer(packed.Block(j), tmp.Block(pos)); err != nil {
				return err
			}
		}
		n := len(positions)
		tag := collcomm.StepTag(collcomm.TagAlltoall, k)
		_, err := c.Sendrecv(packed.Blocks(0, n), (rank+dist)%size, tag, incoming.Blocks(0, n),
			(rank-dist+size)%size, tag)
		if err != nil {
			return err
		}
		for j, pos := range positions {
			if err := collcomm.CopyBuffer(tmp.Block(pos), incoming.Block(j)); err != nil {
				return err
			}
		}
	}

	for i := 0; i < size; i++ {
		if err := collcomm.CopyBuffer(recv.Block((rank-i+size)%size), tmp.Block(i)); err != nil {
			return err
		}
	}
	return nil
}
