package allreduce

import (
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/bcast"
	"github.com/simgrid/simgrid-sub002/collcomm/reduce"
)

// SMPAllreducer reduces within every node to its leader,
// runs Inter among the leaders, and broadcasts the result
// within every node.
//
// Nodes need not hold contiguous ranks, so the operator
// must be commutative.
type SMPAllreducer struct {
	Name  string
	Inter Allreducer
}

// SMPBinomial uses a binomial reduce and broadcast among
// the leaders.
func SMPBinomial() SMPAllreducer {
	return SMPAllreducer{Name: "smp_binomial", Inter: RedBcastAllreducer{}}
}

// SMPRDB uses recursive doubling among the leaders.
func SMPRDB() SMPAllreducer {
	return SMPAllreducer{Name: "smp_rdb", Inter: RDBAllreducer{}}
}

// SMPRSAG uses a reduce-scatter and allgather among the
// leaders.
func SMPRSAG() SMPAllreducer {
	return SMPAllreducer{Name: "smp_rsag", Inter: RabAllreducer{}}
}

func (s SMPAllreducer) Allreduce(c *collcomm.Comms, send, recv collcomm.Buffer,
	op collcomm.Op) error {
	if ok, err := start(s.Name, c, send, recv, op, true); !ok {
		return err
	}
	topo := c.Topology()
	intra := c.IntraComm(topo)

	acc, err := accumulator(c, send)
	if err != nil {
		return err
	}
	if err := (reduce.Binomial{}).Reduce(intra, send, acc, op, 0); err != nil {
		return err
	}
	if topo.IsLeader() {
		if err := s.Inter.Allreduce(c.LeadersComm(topo), acc, acc, op); err != nil {
			return err
		}
	}
	if err := (bcast.BinomialTree{}).Bcast(intra, acc, 0); err != nil {
		return err
	}
	return collcomm.CopyBuffer(recv, acc)
}
