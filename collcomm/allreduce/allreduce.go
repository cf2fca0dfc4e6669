// Package allreduce implements algorithms for summing or
// maxing vectors across many different connected Nodes.
package allreduce

import (
	"github.com/simgrid/simgrid-sub002/collcomm"
)

// Allreducer is an algorithm that reduces the send
// buffers of every rank, folded in rank order, and stores
// the result in recv on every rank.
//
// Consecutive calls may share the same Comms.
type Allreducer interface {
	Allreduce(c *collcomm.Comms, send, recv collcomm.Buffer, op collcomm.Op) error
}

// Default is the algorithm used when no other one applies.
// It supports non-commutative operators.
var Default Allreducer = RedBcastAllreducer{}

// start validates the arguments and reports whether there
// is any communication to do. If commutative is set and
// op is not commutative, the call is handed to Default.
//
// On a single rank, recv is filled in before returning.
func start(name string, c *collcomm.Comms, send, recv collcomm.Buffer, op collcomm.Op,
	commutative bool) (bool, error) {
	if send.Count == 0 {
		return false, nil
	}
	if commutative {
		if err := collcomm.RequireCommutative(op); err != nil {
			if collcomm.Fallback("allreduce/"+name, err) {
				return false, Default.Allreduce(c, send, recv, op)
			}
			return false, err
		}
	}
	if c.Size() == 1 {
		return false, collcomm.CopyBuffer(recv, send)
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
