// Package barrier implements algorithms that block every
// rank until all of them have entered the barrier.
package barrier

import (
	"github.com/simgrid/simgrid-sub002/collcomm"
)

// A Barrierer is an algorithm for synchronizing ranks.
type Barrierer interface {
	Barrier(c *collcomm.Comms) error
}

// Default is the algorithm used when no other one applies.
var Default Barrierer = Dissemination{}

func token() collcomm.Buffer {
	return collcomm.NewBuffer(0, collcomm.Byte)
}

// Linear has every rank report to rank 0, which then
// releases everybody.
type Linear struct{}

func (l Linear) Barrier(c *collcomm.Comms) error {
	if c.Rank() != 0 {
		if err := c.Send(0, token(), collcomm.TagBarrier); err != nil {
			return err
		}
		_, err := c.Recv(0, token(), collcomm.TagBarrier)
		return err
	}
	for i := 1; i < c.Size(); i++ {
		if _, err := c.Recv(i, token(), collcomm.TagBarrier); err != nil {
			return err
		}
	}
	for i := 1; i < c.Size(); i++ {
		if err := c.Send(i, token(), collcomm.TagBarrier); err != nil {
			return err
		}
	}
	return nil
}

// Binomial gathers arrival notices up a binomial tree
// rooted at rank 0 and releases ranks back down the same
// tree.
type Binomial struct{}

func (b Binomial) Barrier(c *collcomm.Comms) error {
	rank, size := c.Rank(), c.Size()
	mask := 1
	for mask < size {
		if rank&mask != 0 {
			break
		}
		if rank+mask < size {
			if _, err := c.Recv(rank+mask, token(), collcomm.TagBarrier); err != nil {
				return err
			}
		}
		mask <<= 1
	}
	if rank != 0 {
		if err := c.Send(rank-mask, token(), collcomm.TagBarrier); err != nil {
			return err
		}
		if _, err := c.Recv(rank-mask, token(), collcomm.TagBarrier); err != nil {
			return err
		}
	}
	for mask >>= 1; mask > 0; mask >>= 1 {
		if rank+mask < size {
			if err := c.Send(rank+mask, token(), collcomm.TagBarrier); err != nil {
				return err
			}
		}
	}
	return nil
}

// Dissemination runs ceil(log2(N)) rounds, where in round
// k every rank notifies rank+2^k and waits for rank-2^k.
type Dissemination struct{}

func (d Dissemination) Barrier(c *collcomm.Comms) error {
	rank, size := c.Rank(), c.Size()
	for k, dist := 0, 1; dist < size; k, dist = k+1, dist*2 {
		tag := collcomm.StepTag(collcomm.TagBarrier, k)
		_, err := c.Sendrecv(token(), (rank+dist)%size, tag, token(), (rank-dist+size)%size, tag)
		if err != nil {
			return err
		}
	}
	return nil
}

// RecursiveDoubling folds the ranks onto a power of two,
// exchanges notices with partner rank^mask for every
// mask, and finally releases the folded ranks.
type RecursiveDoubling struct{}

func (r RecursiveDoubling) Barrier(c *collcomm.Comms) error {
	rank := c.Rank()
	fold := collcomm.NewFold(c.Size())
	newRank := fold.NewRank(rank)
	if rank < 2*fold.Rem {
		if newRank < 0 {
			if err := c.Send(rank+1, token(), collcomm.TagBarrier); err != nil {
				return err
			}
		} else if _, err := c.Recv(rank-1, token(), collcomm.TagBarrier); err != nil {
			return err
		}
	}
	if newRank >= 0 {
		for k, mask := 0, 1; mask < fold.Pof2; k, mask = k+1, mask*2 {
			partner := fold.OldRank(newRank ^ mask)
			tag := collcomm.StepTag(collcomm.TagBarrier, k)
			if _, err := c.Sendrecv(token(), partner, tag, token(), partner, tag); err != nil {
				return err
			}
		}
	}
	return fold.Relay(c, token(), token(), collcomm.TagBarrier)
}
