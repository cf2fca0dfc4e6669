// Package allgather implements algorithms for collecting
// one block from every rank on every rank.
package allgather

import (
	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/bcast"
	"github.com/simgrid/simgrid-sub002/collcomm/gather"
)

// An Allgatherer is an algorithm that stores the send
// buffer of rank i in block i of recv on every rank.
//
// recv.Count is the number of elements per block.
type Allgatherer interface {
	Allgather(c *collcomm.Comms, send, recv collcomm.Buffer) error
}

// Default is the algorithm used when no other one applies.
// It supports send and receive types with different
// layouts.
var Default Allgatherer = GatherBcast{}

// start checks the arguments, falling back to Default if
// the algorithm cannot handle them, and copies the local
// block into place.
//
// If it returns false, the caller should return the error
// without doing anything else.
func start(name string, c *collcomm.Comms, send, recv collcomm.Buffer,
	check func() error) (bool, error) {
	if send.Count == 0 && recv.Count == 0 {
		return false, nil
	}
	err := collcomm.CheckRegular(send, recv)
	if err == nil && check != nil {
		err = check()
	}
	if err != nil {
		if collcomm.Fallback("allgather/"+name, err) {
			return false, Default.Allgather(c, send, recv)
		}
		return false, err
	}
	if err := collcomm.CopyBuffer(recv.Block(c.Rank()), send); err != nil {
		return false, err
	}
	return c.Size() > 1, nil
}

func requirePowerOfTwo(c *collcomm.Comms) func() error {
	return func() error {
		if !collcomm.IsPowerOfTwo(c.Size()) {
			return errors.Wrapf(collcomm.ErrNotApplicable, "%d ranks is not a power of two", c.Size())
		}
		return nil
	}
}

// GatherBcast gathers every block at rank 0 and then
// broadcasts the result.
type GatherBcast struct{}

func (g GatherBcast) Allgather(c *collcomm.Comms, send, recv collcomm.Buffer) error {
	if send.Count == 0 && recv.Count == 0 {
		return nil
	}
	if err := gather.Default.Gather(c, send, recv, 0); err != nil {
		return err
	}
	return bcast.Default.Bcast(c, recv.Blocks(0, c.Size()), 0)
}

// Ring passes blocks around a ring, each rank forwarding
// the block it received in the previous step.
type Ring struct{}

func (r Ring) Allgather(c *collcomm.Comms, send, recv collcomm.Buffer) error {
	if ok, err := start("ring", c, send, recv, nil); !ok {
		return err
	}
	size, rank := c.Size(), c.Rank()
	left, right := (rank-1+size)%size, (rank+1)%size
	for i := 0; i < size-1; i++ {
		sendIdx := (rank - i + size) % size
		recvIdx := (rank - i - 1 + size) % size
		tag := collcomm.StepTag(collcomm.TagAllgather, i)
		_, err := c.Sendrecv(recv.Block(sendIdx), right, tag, recv.Block(recvIdx), left, tag)
		if err != nil {
			return err
		}
	}
	return nil
}

// Bruck runs ceil(log2(N)) steps, where step k sends the
// 2^k blocks gathered so far to rank-2^k.
//
// Blocks are accumulated in rank-relative order and
// rotated into place at the end.
type Bruck struct{}

func (b Bruck) Allgather(c *collcomm.Comms, send, recv collcomm.Buffer) error {
	if ok, err := start("bruck", c, send, recv, nil); !ok {
		return err
	}
	size, rank := c.Size(), c.Rank()
	tmp, err := c.Scratch(size*recv.Count, recv.Type)
	if err != nil {
		return err
	}
	tmp = tmp.WithCount(recv.Count)
	if err := collcomm.CopyBuffer(tmp.Block(0), recv.Block(rank)); err != nil {
		return err
	}
	for k, dist := 0, 1; dist < size; k, dist = k+1, dist*2 {
		n := min(dist, size-dist)
		tag := collcomm.StepTag(collcomm.TagAllgather, k)
		_, err := c.Sendrecv(tmp.Blocks(0, n), (rank-dist+size)%size, tag, tmp.Blocks(dist, n),
			(rank+dist)%size, tag)
		if err != nil {
			return err
		}
	}
	for i := 1; i < size; i++ {
		if err := collcomm.CopyBuffer(recv.Block((rank+i)%size), tmp.Block(i)); err != nil {
			return err
		}
	}
	return nil
}

// RDB is recursive doubling: at each step, a rank swaps
// everything it has gathered with rank^mask.
//
// It needs a power-of-two number of ranks.
type RDB struct{}

func (r RDB) Allgather(c *collcomm.Comms, send, recv collcomm.Buffer) error {
	if ok, err := start("rdb", c, send, recv, requirePowerOfTwo(c)); !ok {
		return err
	}
	layout := collcomm.EvenBlocks(recv.Count*c.Size(), c.Size())
	full := recv.Blocks(0, c.Size())
	for i, step := range collcomm.DoublingSchedule(c.Size(), c.Rank()) {
		tag := collcomm.StepTag(collcomm.TagAllgather, i)
		_, err := c.Sendrecv(layout.View(full, step.Keep), step.Partner, tag,
			layout.View(full, step.Give), step.Partner, tag)
		if err != nil {
			return err
		}
	}
	return nil
}

// Pair swaps the local block with rank^i for every i.
//
// It needs a power-of-two number of ranks.
type Pair struct{}

func (p Pair) Allgather(c *collcomm.Comms, send, recv collcomm.Buffer) error {
	if ok, err := start("pair", c, send, recv, requirePowerOfTwo(c)); !ok {
		return err
	}
	rank := c.Rank()
	for i := 1; i < c.Size(); i++ {
		peer := rank ^ i
		tag := collcomm.StepTag(collcomm.TagAllgather, i)
		if _, err := c.Sendrecv(recv.Block(rank), peer, tag, recv.Block(peer), peer, tag); err != nil {
			return err
		}
	}
	return nil
}

// NeighborExchange alternates between the left and right
// neighbor, forwarding two blocks per step after the first
// exchange, for N/2 steps in total.
//
// It needs an even number of ranks.
type NeighborExchange struct{}

func (n NeighborExchange) Allgather(c *collcomm.Comms, send, recv collcomm.Buffer) error {
	check := func() error {
		if c.Size()%2 != 0 {
			return errors.Wrapf(collcomm.ErrNotApplicable, "%d ranks is odd", c.Size())
		}
		return nil
	}
	if ok, err := start("neighbor_exchange", c, send, recv, check); !ok {
		return err
	}
	size, rank := c.Size(), c.Rank()

	var neighbor, recvFrom, offset [2]int
	if rank%2 == 0 {
		neighbor = [2]int{(rank + 1) % size, (rank - 1 + size) % size}
		recvFrom = [2]int{rank, rank}
		offset = [2]int{2, -2}
	} else {
		neighbor = [2]int{(rank - 1 + size) % size, (rank + 1) % size}
		recvFrom = [2]int{neighbor[0], neighbor[0]}
		offset = [2]int{-2, 2}
	}

	tag := collcomm.StepTag(collcomm.TagAllgather, 0)
	_, err := c.Sendrecv(recv.Block(rank), neighbor[0], tag, recv.Block(neighbor[0]), neighbor[0], tag)
	if err != nil {
		return err
	}

	sendFrom := rank
	if rank%2 == 1 {
		sendFrom = recvFrom[0]
	}
	for i := 1; i < size/2; i++ {
		parity := i % 2
		recvFrom[parity] = (recvFrom[parity] + offset[parity] + size) % size
		tag := collcomm.StepTag(collcomm.TagAllgather, i)
		_, err := c.Sendrecv(recv.Blocks(sendFrom, 2), neighbor[parity], tag,
			recv.Blocks(recvFrom[parity], 2), neighbor[parity], tag)
		if err != nil {
			return err
		}
		sendFrom = recvFrom[parity]
	}
	return nil
}
