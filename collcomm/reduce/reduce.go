// Package reduce implements algorithms for combining
// every rank's buffer with a reduction operator at a root
// rank.
package reduce

import (
	"github.com/simgrid/simgrid-sub002/collcomm"
)

// A Reducer is an algorithm that stores the reduction of
// every rank's send buffer, folded in rank order, in recv
// at the root.
//
// recv is only accessed on the root.
type Reducer interface {
	Reduce(c *collcomm.Comms, send, recv collcomm.Buffer, op collcomm.Op, root int) error
}

// Default is the algorithm used when no other one applies.
// It supports non-commutative operators.
var Default Reducer = Binomial{}

// start validates the arguments and reports whether there
// is anything to do. If commutative is set and op is not
// commutative, the call is handed to Default.
func start(name string, c *collcomm.Comms, send, recv collcomm.Buffer, op collcomm.Op, root int,
	commutative bool) (bool, error) {
	if err := c.CheckRoot(root); err != nil || send.Count == 0 {
		return false, err
	}
	if commutative {
		if err := collcomm.RequireCommutative(op); err != nil {
			if collcomm.Fallback("reduce/"+name, err) {
				return false, Default.Reduce(c, send, recv, op, root)
			}
			return false, err
		}
	}
	return true, nil
}

// accumulator allocates a scratch copy of send.
func accumulator(c *collcomm.Comms, send collcomm.Buffer) (collcomm.Buffer, error) {
	acc, err := c.Scratch(send.Count, send.Type)
	if err != nil {
		return acc, err
	}
	return acc, collcomm.CopyBuffer(acc, send)
}

// FlatTree has the root receive every buffer directly
// and fold them in rank order.
type FlatTree struct{}

func (f FlatTree) Reduce(c *collcomm.Comms, send, recv collcomm.Buffer, op collcomm.Op,
	root int) error {
	if ok, err := start("flat_tree", c, send, recv, op, root, false); !ok {
		return err
	}
	if c.Rank() != root {
		return c.Send(root, send, collcomm.TagReduce)
	}
	var acc collcomm.Buffer
	for i := 0; i < c.Size(); i++ {
		var next collcomm.Buffer
		var err error
		if i == root {
			next, err = accumulator(c, send)
		} else if next, err = c.Scratch(send.Count, send.Type); err == nil {
			_, err = c.Recv(i, next, collcomm.TagReduce)
		}
		if err != nil {
			return err
		}
		if i == 0 {
			acc = next
		} else if err := c.CombineRight(op, acc, next); err != nil {
			return err
		}
	}
	return collcomm.CopyBuffer(recv, acc)
}

// Binomial reduces up a binomial tree.
//
// For non-commutative operators the tree is rooted at rank
// 0, so that every combination keeps operands in rank
// order, and the result takes one extra hop to the root.
type Binomial struct{}

func (b Binomial) Reduce(c *collcomm.Comms, send, recv collcomm.Buffer, op collcomm.Op,
	root int) error {
	if ok, err := start("binomial", c, send, recv, op, root, false); !ok {
		return err
	}
	return treeReduce(c, send, recv, op, root, 2)
}

// Knomial reduces up a k-nomial tree. Like Binomial, it
// supports non-commutative operators.
type Knomial struct {
	// K is the branching factor. Values below 2 are
	// treated as 4.
	K int
}

func (k Knomial) Reduce(c *collcomm.Comms, send, recv collcomm.Buffer, op collcomm.Op,
	root int) error {
	if ok, err := start("knomial", c, send, recv, op, root, false); !ok {
		return err
	}
	radix := k.K
	if radix < 2 {
		radix = 4
	}
	return treeReduce(c, send, recv, op, root, radix)
}

// treeReduce walks a k-nomial tree up from the leaves.
//
// A rank's partial result always covers a contiguous
// range of relative ranks starting at its own, and the
// children are combined in increasing order, so the fold
// order is preserved.
func treeReduce(c *collcomm.Comms, send, recv collcomm.Buffer, op collcomm.Op, root,
	k int) error {
	size, rank := c.Size(), c.Rank()
	treeRoot := root
	if !op.Commutative() {
		treeRoot = 0
	}
	vrank := (rank - treeRoot + size) % size

	acc, err := accumulator(c, send)
	if err != nil {
		return err
	}
	tmp, err := c.Scratch(send.Count, send.Type)
	if err != nil {
		return err
	}

	for mask := 1; mask < size; mask *= k {
		if digit := (vrank / mask) % k; digit != 0 {
			parent := (vrank - digit*mask + treeRoot) % size
			if err := c.Send(parent, acc, collcomm.TagReduce); err != nil {
				return err
			}
			break
		}
		for j := 1; j < k; j++ {
			child := vrank + j*mask
			if child >= size {
				break
			}
			if _, err := c.Recv((child+treeRoot)%size, tmp, collcomm.TagReduce); err != nil {
				return err
			}
			if err := c.CombineRight(op, acc, tmp); err != nil {
				return err
			}
		}
	}

	switch {
	case rank == treeRoot && rank == root:
		return collcomm.CopyBuffer(recv, acc)
	case rank == treeRoot:
		return c.Send(root, acc, collcomm.TagReduce)
	case rank == root:
		_, err := c.Recv(treeRoot, recv, collcomm.TagReduce)
		return err
	}
	return nil
}
