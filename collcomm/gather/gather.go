// Package gather implements algorithms for collecting one
// block from every rank at a root rank.
package gather

import (
	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
)

// A Gatherer is an algorithm that stores the send buffer
// of rank i in block i of recv at the root.
//
// recv.Count is the number of elements per block. recv
// is only accessed on the root.
type Gatherer interface {
	Gather(c *collcomm.Comms, send, recv collcomm.Buffer, root int) error
}

// A Gatherver is like a Gatherer, but rank i's data is
// stored at element offset displs[i] of recv and holds
// counts[i] elements.
type Gatherver interface {
	Gatherv(c *collcomm.Comms, send, recv collcomm.Buffer, counts, displs []int, root int) error
}

// Default is the algorithm used when no other one applies.
var Default Gatherer = Binomial{}

// DefaultV is the default Gatherver.
var DefaultV Gatherver = Linear{}

// FlatTree has every rank send its block straight to the
// root.
type FlatTree struct{}

func (f FlatTree) Gather(c *collcomm.Comms, send, recv collcomm.Buffer, root int) error {
	if err := c.CheckRoot(root); err != nil || send.Count == 0 {
		return err
	}
	if c.Rank() != root {
		return c.Send(root, send, collcomm.TagGather)
	}
	reqs := make([]*collcomm.Request, 0, c.Size()-1)
	for i := 0; i < c.Size(); i++ {
		if i != root {
			reqs = append(reqs, c.Irecv(i, recv.Block(i), collcomm.TagGather))
		}
	}
	if err := collcomm.CopyBuffer(recv.Block(root), send); err != nil {
		c.Waitall(reqs)
		return err
	}
	return c.Waitall(reqs)
}

// Binomial gathers blocks up a binomial tree.
//
// Every rank accumulates the packed blocks of its subtree
// in relative rank order, so one message per tree edge
// carries the whole subtree.
type Binomial struct{}

func (b Binomial) Gather(c *collcomm.Comms, send, recv collcomm.Buffer, root int) error {
	if err := c.CheckRoot(root); err != nil || send.Count == 0 {
		return err
	}
	size := c.Size()
	vrank := (c.Rank() - root + size) % size
	blockBytes := send.PackedSize()

	subtree := 1
	for subtree < size && vrank&subtree == 0 {
		subtree <<= 1
	}
	subtree = min(subtree, size-vrank)

	tmp, err := c.Scratch(subtree*blockBytes, collcomm.Byte)
	if err != nil {
		return err
	}
	if _, err := tmp.Unpack(send.Pack()); err != nil {
		return err
	}

	mask := 1
	for mask < size {
		if vrank&mask != 0 {
			parent := (vrank - mask + root) % size
			return c.Send(parent, tmp, collcomm.TagGather)
		}
		if child := vrank + mask; child < size {
			n := min(mask, size-child)
			chunk := tmp.Slice(mask*blockBytes, n*blockBytes)
			if _, err := c.Recv((child+root)%size, chunk, collcomm.TagGather); err != nil {
				return err
			}
		}
		mask <<= 1
	}

	for i := 0; i < size; i++ {
		packed := tmp.Slice(i*blockBytes, blockBytes).Pack()
		if _, err := recv.Block((i + root) % size).Unpack(packed); err != nil {
			return err
		}
	}
	return nil
}

// Linear is a Gatherver where every rank sends its data
// straight to the root.
type Linear struct{}

func (l Linear) Gatherv(c *collcomm.Comms, send, recv collcomm.Buffer, counts, displs []int,
	root int) error {
	if err := c.CheckRoot(root); err != nil {
		return err
	}
	if c.Rank() != root {
		if send.Count == 0 {
			return nil
		}
		return c.Send(root, send, collcomm.TagGather)
	}
	if err := checkV(c, counts, displs); err != nil {
		return err
	}
	var reqs []*collcomm.Request
	for i := 0; i < c.Size(); i++ {
		if i != root && counts[i] > 0 {
			reqs = append(reqs, c.Irecv(i, recv.Slice(displs[i], counts[i]), collcomm.TagGather))
		}
	}
	var copyErr error
	if send.Count > 0 {
		copyErr = collcomm.CopyBuffer(recv.Slice(displs[root], counts[root]), send)
	}
	if err := c.Waitall(reqs); err != nil {
		return err
	}
	return copyErr
}

func checkV(c *collcomm.Comms, counts, displs []int) error {
	if len(counts) != c.Size() || len(displs) != c.Size() {
		return errors.Wrapf(collcomm.ErrInvalidArgument, "%d counts and %d displacements for %d ranks",
			len(counts), len(displs), c.Size())
	}
	return nil
}
