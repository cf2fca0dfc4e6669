package collcomm

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/simulator"
)

// A Topology is a snapshot of how the ranks of a
// communicator are spread across SMP nodes.
//
// Nodes are numbered in the order of their lowest rank,
// and that lowest rank is the node's leader.
type Topology struct {
	IntraRank int
	IntraSize int

	// InterRank is the index of the current rank's node.
	InterRank int

	// InterSize is the number of nodes.
	InterSize int

	// NodeSizes lists the number of ranks on each node.
	NodeSizes []int

	// NodeRanks lists the ranks hosted by each node, in
	// increasing order.
	NodeRanks [][]int

	// NodeOf maps every rank to its node.
	NodeOf []int

	// LeaderMap maps every rank to the leader of its node.
	LeaderMap []int

	// Uniform is true if every node hosts the same number
	// of ranks.
	Uniform bool

	// Contiguous is true if every node hosts a consecutive
	// block of ranks.
	Contiguous bool
}

// Topology computes the SMP layout of the communicator.
func (c *Comms) Topology() *Topology {
	nodeIdx := map[*simulator.Node]int{}
	t := &Topology{
		NodeOf:    make([]int, c.Size()),
		LeaderMap: make([]int, c.Size()),
	}
	for rank, port := range c.Ports {
		idx, ok := nodeIdx[port.Node]
		if !ok {
			idx = len(t.NodeRanks)
			nodeIdx[port.Node] = idx
			t.NodeRanks = append(t.NodeRanks, nil)
		}
		t.NodeOf[rank] = idx
		t.LeaderMap[rank] = rank
		if len(t.NodeRanks[idx]) > 0 {
			t.LeaderMap[rank] = t.NodeRanks[idx][0]
		}
		t.NodeRanks[idx] = append(t.NodeRanks[idx], rank)
	}
	t.InterSize = len(t.NodeRanks)
	t.InterRank = t.NodeOf[c.rank]
	t.Uniform = true
	t.Contiguous = true
	for _, ranks := range t.NodeRanks {
		t.NodeSizes = append(t.NodeSizes, len(ranks))
		if len(ranks) != len(t.NodeRanks[0]) {
			t.Uniform = false
		}
		if ranks[len(ranks)-1]-ranks[0] != len(ranks)-1 {
			t.Contiguous = false
		}
		for j, r := range ranks {
			if r == c.rank {
				t.IntraRank = j
			}
		}
	}
	t.IntraSize = t.NodeSizes[t.InterRank]
	return t
}

// IsLeader reports whether the current rank leads its
// node.
func (t *Topology) IsLeader() bool {
	return t.IntraRank == 0
}

// Leaders lists the leader of every node.
func (t *Topology) Leaders() []int {
	res := make([]int, t.InterSize)
	for i, ranks := range t.NodeRanks {
		res[i] = ranks[0]
	}
	return res
}

// IsSMP reports whether at least one node hosts more than
// one rank and there is more than one node.
func (t *Topology) IsSMP() bool {
	return t.InterSize > 1 && t.InterSize < len(t.NodeOf)
}

// RequireRegular checks the layout needed by the
// simplified SMP compositions: uniform node sizes, a
// power-of-two number of ranks per node, and contiguous
// rank blocks.
func (t *Topology) RequireRegular() error {
	if !t.Uniform {
		return errors.Wrapf(ErrTopologyPrecondition, "node sizes %v are not uniform", t.NodeSizes)
	}
	if !IsPowerOfTwo(t.NodeSizes[0]) {
		return errors.Wrapf(ErrTopologyPrecondition, "%d ranks per node is not a power of two",
			t.NodeSizes[0])
	}
	if !t.Contiguous {
		return errors.Wrap(ErrTopologyPrecondition, "ranks are not placed in contiguous blocks")
	}
	return nil
}

// IntraComm creates the communicator of the ranks sharing
// the current rank's node.
func (c *Comms) IntraComm(t *Topology) *Comms {
	return c.Sub(fmt.Sprintf("intra/%d", t.InterRank), t.NodeRanks[t.InterRank])
}

// LeadersComm creates the communicator of node leaders,
// or returns nil if the current rank is not a leader.
func (c *Comms) LeadersComm(t *Topology) *Comms {
	return c.Sub("leaders", t.Leaders())
}
