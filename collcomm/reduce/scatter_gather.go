package reduce

import (
	"github.com/simgrid/simgrid-sub002/collcomm"
)

// ScatterGather is Rabenseifner's algorithm: a recursive
// halving reduce-scatter leaves every participant with one
// fully reduced block, and the blocks are then gathered at
// the root by replaying the halving steps backwards.
//
// It needs a commutative operator.
type ScatterGather struct{}

func (s ScatterGather) Reduce(c *collcomm.Comms, send, recv collcomm.Buffer, op collcomm.Op,
	root int) error {
	if ok, err := start("scatter_gather", c, send, recv, op, root, true); !ok {
		return err
	}
	acc, err := accumulator(c, send)
	if err != nil {
		return err
	}
	fold := collcomm.NewFold(c.Size())
	newRank, err := fold.Reduce(c, acc, op, collcomm.TagReduce)
	if err != nil {
		return err
	}

	// A folded-away root is served by its odd partner.
	newRoot := fold.NewRank(root)
	if newRoot < 0 {
		newRoot = fold.NewRank(root + 1)
	}

	if newRank >= 0 {
		layout := collcomm.EvenBlocks(acc.Count, fold.Pof2)
		if err := HalvingReduceScatter(c, acc, op, fold, newRank, layout,
			collcomm.TagReduce); err != nil {
			return err
		}
		if err := gatherHalves(c, acc, fold, newRank, newRoot, layout); err != nil {
			return err
		}
	}

	holder := fold.OldRank(newRoot)
	switch {
	case c.Rank() == holder && holder == root:
		return collcomm.CopyBuffer(recv, acc)
	case c.Rank() == holder:
		return c.Send(root, acc, collcomm.TagReduce)
	case c.Rank() == root:
		_, err := c.Recv(holder, recv, collcomm.TagReduce)
		return err
	}
	return nil
}

// HalvingReduceScatter runs recursive halving on buf among
// the participants of a fold, after which participant
// newRank holds the reduced block newRank of layout.
//
// The operator must be commutative.
func HalvingReduceScatter(c *collcomm.Comms, buf collcomm.Buffer, op collcomm.Op, fold collcomm.Fold,
	newRank int, layout collcomm.BlockLayout, tag int) error {
	var maxBlock int
	for _, step := range collcomm.HalvingSchedule(fold.Pof2, newRank) {
		_, n := layout.Span(step.Keep)
		maxBlock = max(maxBlock, n)
	}
	tmp, err := c.Scratch(maxBlock, buf.Type)
	if err != nil {
		return err
	}
	for i, step := range collcomm.HalvingSchedule(fold.Pof2, newRank) {
		peer := fold.OldRank(step.Partner)
		keep := layout.View(buf, step.Keep)
		incoming := tmp.Slice(0, keep.Count)
		stepTag := collcomm.StepTag(tag, i)
		_, err := c.Sendrecv(layout.View(buf, step.Give), peer, stepTag, incoming, peer, stepTag)
		if err != nil {
			return err
		}
		if err := c.Combine(op, incoming, keep); err != nil {
			return err
		}
	}
	return nil
}

// gatherHalves collects the blocks left by recursive
// halving at newRoot, pairing participants up in the
// reverse order of the halving steps.
func gatherHalves(c *collcomm.Comms, buf collcomm.Buffer, fold collcomm.Fold, newRank, newRoot int,
	layout collcomm.BlockLayout) error {
	for i, step := range collcomm.DoublingSchedule(fold.Pof2, newRank) {
		peer := fold.OldRank(step.Partner)
		tag := collcomm.StepTag(collcomm.TagReduce, 64+i)
		if newRank&step.Mask == newRoot&step.Mask {
			if _, err := c.Recv(peer, layout.View(buf, step.Give), tag); err != nil {
				return err
			}
		} else {
			return c.Send(peer, layout.View(buf, step.Keep), tag)
		}
	}
	return nil
}
