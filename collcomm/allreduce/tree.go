package allreduce

import (
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/tree"
)

// A TreeAllreducer arranges the ranks in a binary tree
// and performs a reduction by going up the tree to a
// root node, and then back down the tree to the leaves.
//
// Subtrees of a binary heap are not contiguous rank
// ranges, so the operator must be commutative.
type TreeAllreducer struct{}

// Allreduce combines vectors along a tree and stores the
// resulting reduced vector in recv.
func (t TreeAllreducer) Allreduce(c *collcomm.Comms, send, recv collcomm.Buffer,
	op collcomm.Op) error {
	if ok, err := start("tree", c, send, recv, op, true); !ok {
		return err
	}
	pos := tree.Binary(c.Rank(), c.Size(), 0)

	if err := collcomm.CopyBuffer(recv, send); err != nil {
		return err
	}
	if len(pos.Children) > 0 {
		msg, err := c.Scratch(send.Count, send.Type)
		if err != nil {
			return err
		}
		for _, child := range pos.Children {
			if _, err := c.Recv(child, msg, collcomm.TagAllreduce); err != nil {
				return err
			}
			if err := c.Combine(op, msg, recv); err != nil {
				return err
			}
		}
	}

	if pos.Parent >= 0 {
		if err := c.Send(pos.Parent, recv, collcomm.TagAllreduce); err != nil {
			return err
		}
		if _, err := c.Recv(pos.Parent, recv, collcomm.TagAllreduce); err != nil {
			return err
		}
	}

	for _, child := range pos.Children {
		if err := c.Send(child, recv, collcomm.TagAllreduce); err != nil {
			return err
		}
	}
	return nil
}
