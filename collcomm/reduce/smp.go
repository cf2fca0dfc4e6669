package reduce

import (
	"github.com/simgrid/simgrid-sub002/collcomm"
)

// SMPBinomial reduces within every node to the node
// leader, then among leaders to the root's leader, which
// finally hands the result to the root.
//
// Nodes may host arbitrary sets of ranks, so the operator
// must be commutative.
type SMPBinomial struct{}

func (s SMPBinomial) Reduce(c *collcomm.Comms, send, recv collcomm.Buffer, op collcomm.Op,
	root int) error {
	if ok, err := start("smp_binomial", c, send, recv, op, root, true); !ok {
		return err
	}
	topo := c.Topology()
	partial, err := c.Scratch(send.Count, send.Type)
	if err != nil {
		return err
	}
	if err := (Binomial{}).Reduce(c.IntraComm(topo), send, partial, op, 0); err != nil {
		return err
	}

	leader := topo.LeaderMap[root]
	if leaders := c.LeadersComm(topo); leaders != nil {
		result := partial
		if c.Rank() == leader {
			if result, err = c.Scratch(send.Count, send.Type); err != nil {
				return err
			}
		}
		if err := (Binomial{}).Reduce(leaders, partial, result, op, topo.NodeOf[root]); err != nil {
			return err
		}
		if c.Rank() == leader {
			if leader == root {
				return collcomm.CopyBuffer(recv, result)
			}
			return c.Send(root, result, collcomm.TagReduce)
		}
	}
	if c.Rank() == root && root != leader {
		_, err := c.Recv(leader, recv, collcomm.TagReduce)
		return err
	}
	return nil
}
