package bcast

import (
	"github.com/simgrid/simgrid-sub002/collcomm"
)

// SMP broadcasts in two levels: first among the leaders
// of every node, then from each leader to the ranks on its
// node.
//
// If the root is not a leader, it first hands the buffer
// to the leader of its node.
type SMP struct {
	Inter Broadcaster
	Intra Broadcaster
}

// SMPBinomial uses binomial trees at both levels.
func SMPBinomial() SMP {
	return SMP{Inter: BinomialTree{}, Intra: BinomialTree{}}
}

// SMPLinear fans out linearly within nodes.
func SMPLinear() SMP {
	return SMP{Inter: BinomialTree{}, Intra: FlatTree{}}
}

// SMPBinary uses binary trees at both levels.
func SMPBinary() SMP {
	return SMP{Inter: BinaryTree{}, Intra: BinaryTree{}}
}

func (s SMP) Bcast(c *collcomm.Comms, buf collcomm.Buffer, root int) error {
	if ok, err := start(c, buf, root); !ok {
		return err
	}
	topo := c.Topology()
	leader := topo.LeaderMap[root]
	if root != leader {
		if c.Rank() == root {
			if err := c.Send(leader, buf, collcomm.TagBcast); err != nil {
				return err
			}
		} else if c.Rank() == leader {
			if _, err := c.Recv(root, buf, collcomm.TagBcast); err != nil {
				return err
			}
		}
	}
	if leaders := c.LeadersComm(topo); leaders != nil {
		if err := s.Inter.Bcast(leaders, buf, topo.NodeOf[root]); err != nil {
			return err
		}
	}
	return s.Intra.Bcast(c.IntraComm(topo), buf, 0)
}
