package allgather

import (
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/bcast"
	"github.com/simgrid/simgrid-sub002/collcomm/gather"
)

// SMPSimple gathers each node's blocks at its leader, runs
// an allgather among leaders with one block per node, and
// broadcasts the result within every node.
//
// Nodes must host equal, power-of-two sized, contiguous
// blocks of ranks.
type SMPSimple struct{}

func (s SMPSimple) Allgather(c *collcomm.Comms, send, recv collcomm.Buffer) error {
	if send.Count == 0 && recv.Count == 0 {
		return nil
	}
	topo := c.Topology()
	if err := topo.RequireRegular(); err != nil {
		return err
	}
	if err := collcomm.CheckRegular(send, recv); err != nil {
		if collcomm.Fallback("allgather/smp_simple", err) {
			return Default.Allgather(c, send, recv)
		}
		return err
	}
	cores := topo.IntraSize
	first := topo.NodeRanks[topo.InterRank][0]
	node := recv.Blocks(first, cores)

	if err := gather.Default.Gather(c.IntraComm(topo), send, node.WithCount(recv.Count), 0); err != nil {
		return err
	}
	if leaders := c.LeadersComm(topo); leaders != nil {
		err := Ring{}.Allgather(leaders, node, recv.WithCount(cores*recv.Count))
		if err != nil {
			return err
		}
	}
	return bcast.Default.Bcast(c.IntraComm(topo), recv.Blocks(0, c.Size()), 0)
}

// SMP is like SMPSimple, but supports nodes of any size
// hosting any set of ranks.
//
// Leaders exchange their nodes' blocks with an allgatherv
// and then put every block where it belongs.
type SMP struct{}

func (s SMP) Allgather(c *collcomm.Comms, send, recv collcomm.Buffer) error {
	if ok, err := start("smp", c, send, recv, nil); !ok {
		return err
	}
	topo := c.Topology()
	count := recv.Count

	// Blocks are staged in node order: all blocks of node 0,
	// then node 1, and so on.
	staged, err := c.Scratch(c.Size()*count, recv.Type)
	if err != nil {
		return err
	}
	counts := make([]int, topo.InterSize)
	displs := make([]int, topo.InterSize)
	for i, n := range topo.NodeSizes {
		counts[i] = n * count
		if i > 0 {
			displs[i] = displs[i-1] + counts[i-1]
		}
	}
	node := staged.Slice(displs[topo.InterRank], counts[topo.InterRank])

	intra := c.IntraComm(topo)
	if err := gather.Default.Gather(intra, send, node.WithCount(count), 0); err != nil {
		return err
	}
	if leaders := c.LeadersComm(topo); leaders != nil {
		if err := (RingV{}).Allgatherv(leaders, node, staged, counts, displs); err != nil {
			return err
		}
		for k, ranks := range topo.NodeRanks {
			for j, r := range ranks {
				block := staged.Slice(displs[k]+j*count, count)
				if err := collcomm.CopyBuffer(recv.Block(r), block); err != nil {
					return err
				}
			}
		}
	}
	return bcast.Default.Bcast(intra, recv.Blocks(0, c.Size()), 0)
}
