// Package bcast implements algorithms for copying a
// buffer from a root rank to every other rank.
package bcast

import (
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/tree"
)

// A Broadcaster is an algorithm that copies buf from root
// into buf on every rank.
type Broadcaster interface {
	Bcast(c *collcomm.Comms, buf collcomm.Buffer, root int) error
}

// Default is the algorithm used when no other one applies.
var Default Broadcaster = BinomialTree{}

// start validates the arguments shared by every algorithm
// and reports whether there is anything to do.
func start(c *collcomm.Comms, buf collcomm.Buffer, root int) (bool, error) {
	if err := c.CheckRoot(root); err != nil {
		return false, err
	}
	return buf.Count > 0 && c.Size() > 1, nil
}

// FlatTree has the root send the buffer to every rank
// directly.
type FlatTree struct{}

func (f FlatTree) Bcast(c *collcomm.Comms, buf collcomm.Buffer, root int) error {
	if ok, err := start(c, buf, root); !ok {
		return err
	}
	return treeBcast(c, buf, root, tree.Flat)
}

// BinomialTree forwards the buffer down a binomial tree.
type BinomialTree struct{}

func (b BinomialTree) Bcast(c *collcomm.Comms, buf collcomm.Buffer, root int) error {
	if ok, err := start(c, buf, root); !ok {
		return err
	}
	return treeBcast(c, buf, root, tree.Binomial)
}

// BinaryTree forwards the buffer down a binary tree.
type BinaryTree struct{}

func (b BinaryTree) Bcast(c *collcomm.Comms, buf collcomm.Buffer, root int) error {
	if ok, err := start(c, buf, root); !ok {
		return err
	}
	return treeBcast(c, buf, root, tree.Binary)
}

// Knomial forwards the buffer down a k-nomial tree.
type Knomial struct {
	// K is the branching factor. Values below 2 are
	// treated as 4.
	K int
}

func (k Knomial) Bcast(c *collcomm.Comms, buf collcomm.Buffer, root int) error {
	if ok, err := start(c, buf, root); !ok {
		return err
	}
	radix := k.K
	if radix < 2 {
		radix = 4
	}
	return treeBcast(c, buf, root, tree.Knomial(radix))
}

func treeBcast(c *collcomm.Comms, buf collcomm.Buffer, root int, b tree.Builder) error {
	pos := b(c.Rank(), c.Size(), root)
	if pos.Parent >= 0 {
		if _, err := c.Recv(pos.Parent, buf, collcomm.TagBcast); err != nil {
			return err
		}
	}
	for _, child := range pos.Children {
		if err := c.Send(child, buf, collcomm.TagBcast); err != nil {
			return err
		}
	}
	return nil
}
