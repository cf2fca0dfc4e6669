package allreduce

import (
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/allgather"
	"github.com/simgrid/simgrid-sub002/collcomm/bcast"
	"github.com/simgrid/simgrid-sub002/collcomm/reduce"
	"github.com/simgrid/simgrid-sub002/collcomm/reducescatter"
)

// RedBcastAllreducer reduces to rank 0 and broadcasts the
// result.
type RedBcastAllreducer struct{}

func (r RedBcastAllreducer) Allreduce(c *collcomm.Comms, send, recv collcomm.Buffer,
	op collcomm.Op) error {
	if ok, err := start("redbcast", c, send, recv, op, false); !ok {
		return err
	}
	if err := reduce.Default.Reduce(c, send, recv, op, 0); err != nil {
		return err
	}
	return bcast.Default.Bcast(c, recv, 0)
}

// RDBAllreducer exchanges the full vector with a partner
// at doubling distances, so every participant holds the
// result after log2(N) steps.
//
// The lower-ranked half of every exchange is used as the
// left operand, so any operator works.
type RDBAllreducer struct{}

func (r RDBAllreducer) Allreduce(c *collcomm.Comms, send, recv collcomm.Buffer,
	op collcomm.Op) error {
	if ok, err := start("rdb", c, send, recv, op, false); !ok {
		return err
	}
	acc, err := accumulator(c, send)
	if err != nil {
		return err
	}
	fold := collcomm.NewFold(c.Size())
	newRank, err := fold.Reduce(c, acc, op, collcomm.TagAllreduce)
	if err != nil {
		return err
	}
	if newRank >= 0 {
		tmp, err := c.Scratch(acc.Count, acc.Type)
		if err != nil {
			return err
		}
		for i, mask := 0, 1; mask < fold.Pof2; i, mask = i+1, mask*2 {
			partner := newRank ^ mask
			peer := fold.OldRank(partner)
			tag := collcomm.StepTag(collcomm.TagAllreduce, i)
			if _, err := c.Sendrecv(acc, peer, tag, tmp, peer, tag); err != nil {
				return err
			}
			if partner < newRank {
				err = c.Combine(op, tmp, acc)
			} else {
				err = c.CombineRight(op, acc, tmp)
			}
			if err != nil {
				return err
			}
		}
	}
	if err := fold.Relay(c, acc, acc, collcomm.TagAllreduce); err != nil {
		return err
	}
	return collcomm.CopyBuffer(recv, acc)
}

// RabAllreducer is Rabenseifner's algorithm: a recursive
// halving reduce-scatter followed by a recursive doubling
// allgather of the reduced blocks.
//
// It needs a commutative operator.
type RabAllreducer struct{}

func (r RabAllreducer) Allreduce(c *collcomm.Comms, send, recv collcomm.Buffer,
	op collcomm.Op) error {
	if ok, err := start("rab", c, send, recv, op, true); !ok {
		return err
	}
	acc, err := accumulator(c, send)
	if err != nil {
		return err
	}
	fold := collcomm.NewFold(c.Size())
	newRank, err := fold.Reduce(c, acc, op, collcomm.TagAllreduce)
	if err != nil {
		return err
	}
	if newRank >= 0 {
		layout := collcomm.EvenBlocks(acc.Count, fold.Pof2)
		if err := reduce.HalvingReduceScatter(c, acc, op, fold, newRank, layout,
			collcomm.TagAllreduce); err != nil {
			return err
		}
		for i, step := range collcomm.DoublingSchedule(fold.Pof2, newRank) {
			peer := fold.OldRank(step.Partner)
			tag := collcomm.StepTag(collcomm.TagAllreduce, 64+i)
			_, err := c.Sendrecv(layout.View(acc, step.Keep), peer, tag, layout.View(acc, step.Give),
				peer, tag)
			if err != nil {
				return err
			}
		}
	}
	if err := fold.Relay(c, acc, acc, collcomm.TagAllreduce); err != nil {
		return err
	}
	return collcomm.CopyBuffer(recv, acc)
}

// LRAllreducer runs a ring reduce-scatter followed by a
// ring allgather, moving about twice the vector size per
// rank regardless of N.
//
// It needs a commutative operator.
type LRAllreducer struct{}

func (l LRAllreducer) Allreduce(c *collcomm.Comms, send, recv collcomm.Buffer,
	op collcomm.Op) error {
	if ok, err := start("lr", c, send, recv, op, true); !ok {
		return err
	}
	layout := collcomm.EvenBlocks(send.Count, c.Size())
	mine := layout.View(recv, collcomm.BlockRange{Lo: c.Rank(), Hi: c.Rank() + 1})
	block, err := c.Scratch(mine.Count, send.Type)
	if err != nil {
		return err
	}
	err = reducescatter.Ring{}.ReduceScatter(c, send, block, layout.Counts, op)
	if err != nil {
		return err
	}
	return allgather.RingV{}.Allgatherv(c, block, recv, layout.Counts, layout.Displs)
}
