// Package scatter implements algorithms for distributing
// one block of a root's buffer to every rank.
package scatter

import (
	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
)

// A Scatterer is an algorithm that sends block i of send
// at the root to recv on rank i.
//
// send.Count is the number of elements per block. send is
// only accessed on the root.
type Scatterer interface {
	Scatter(c *collcomm.Comms, send, recv collcomm.Buffer, root int) error
}

// A Scatterver is like a Scatterer, but rank i receives
// the counts[i] elements at element offset displs[i] of
// send.
type Scatterver interface {
	Scatterv(c *collcomm.Comms, send collcomm.Buffer, counts, displs []int, recv collcomm.Buffer,
		root int) error
}

// Default is the algorithm used when no other one applies.
var Default Scatterer = Binomial{}

// DefaultV is the default Scatterver.
var DefaultV Scatterver = Linear{}

// FlatTree has the root send every block directly.
type FlatTree struct{}

func (f FlatTree) Scatter(c *collcomm.Comms, send, recv collcomm.Buffer, root int) error {
	if err := c.CheckRoot(root); err != nil || recv.Count == 0 {
		return err
	}
	if c.Rank() != root {
		_, err := c.Recv(root, recv, collcomm.TagScatter)
		return err
	}
	for i := 0; i < c.Size(); i++ {
		if i != root {
			if err := c.Send(i, send.Block(i), collcomm.TagScatter); err != nil {
				return err
			}
		}
	}
	return collcomm.CopyBuffer(recv, send.Block(root))
}

// Binomial sends blocks down a binomial tree, each message
// carrying the packed blocks of a whole subtree.
type Binomial struct{}

func (b Binomial) Scatter(c *collcomm.Comms, send, recv collcomm.Buffer, root int) error {
	if err := c.CheckRoot(root); err != nil || recv.Count == 0 {
		return err
	}
	size := c.Size()
	vrank := (c.Rank() - root + size) % size
	blockBytes := recv.PackedSize()

	var tmp collcomm.Buffer
	var err error
	mask := 1
	if vrank == 0 {
		for mask < size {
			mask <<= 1
		}
		if tmp, err = c.Scratch(size*blockBytes, collcomm.Byte); err != nil {
			return err
		}
		for i := 0; i < size; i++ {
			block := send.Block((i + root) % size)
			if block.PackedSize() != blockBytes {
				err := errors.Wrapf(collcomm.ErrIrregularArguments,
					"root block has %d bytes, receivers expect %d", block.PackedSize(), blockBytes)
				if !collcomm.Fallback("scatter/binomial", err) {
					return err
				}
				return b.flatFallback(c, send, recv, root, vrank, mask)
			}
			if _, err := tmp.Slice(i*blockBytes, blockBytes).Unpack(block.Pack()); err != nil {
				return err
			}
		}
	} else {
		for vrank&mask == 0 {
			mask <<= 1
		}
		subtree := min(mask, size-vrank)
		if tmp, err = c.Scratch(subtree*blockBytes, collcomm.Byte); err != nil {
			return err
		}
		parent := (vrank - mask + root) % size
		status, err := c.Recv(parent, tmp, collcomm.TagScatter)
		if err != nil {
			return err
		}
		if status.Bytes == 0 {
			return b.flatFallback(c, send, recv, root, vrank, mask)
		}
	}

	for mask >>= 1; mask > 0; mask >>= 1 {
		if child := vrank + mask; child < size {
			n := min(mask, size-child)
			chunk := tmp.Slice(mask*blockBytes, n*blockBytes)
			if err := c.Send((child+root)%size, chunk, collcomm.TagScatter); err != nil {
				return err
			}
		}
	}
	_, err = recv.Unpack(tmp.Slice(0, blockBytes).Pack())
	return err
}

// flatFallback passes an empty message down the rest of
// the binomial tree, so that every rank learns that the
// root's blocks do not match the receive buffers, and then
// scatters with FlatTree.
//
// An empty message never carries a subtree's blocks,
// because receive buffers of zero elements return early.
func (b Binomial) flatFallback(c *collcomm.Comms, send, recv collcomm.Buffer, root, vrank,
	mask int) error {
	size := c.Size()
	empty := collcomm.NewBuffer(0, collcomm.Byte)
	for mask >>= 1; mask > 0; mask >>= 1 {
		if child := vrank + mask; child < size {
			if err := c.Send((child+root)%size, empty, collcomm.TagScatter); err != nil {
				return err
			}
		}
	}
	return FlatTree{}.Scatter(c, send, recv, root)
}

// Linear is a Scatterver where the root sends every
// rank's data directly.
type Linear struct{}

func (l Linear) Scatterv(c *collcomm.Comms, send collcomm.Buffer, counts, displs []int,
	recv collcomm.Buffer, root int) error {
	if err := c.CheckRoot(root); err != nil {
		return err
	}
	if c.Rank() != root {
		if recv.Count == 0 {
			return nil
		}
		_, err := c.Recv(root, recv, collcomm.TagScatter)
		return err
	}
	if len(counts) != c.Size() || len(displs) != c.Size() {
		return errors.Wrapf(collcomm.ErrInvalidArgument, "%d counts and %d displacements for %d ranks",
			len(counts), len(displs), c.Size())
	}
	for i := 0; i < c.Size(); i++ {
		if i != root && counts[i] > 0 {
			if err := c.Send(i, send.Slice(displs[i], counts[i]), collcomm.TagScatter); err != nil {
				return err
			}
		}
	}
	if recv.Count == 0 {
		return nil
	}
	return collcomm.CopyBuffer(recv, send.Slice(displs[root], counts[root]))
}
