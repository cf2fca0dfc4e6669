package collcomm

import (
	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/simulator"
)

// A Request is a handle on a non-blocking send or
// receive.
type Request struct {
	comms  *Comms
	buf    Buffer
	send   bool
	done   bool

	// cancelled receives stay posted and swallow the
	// message they would have matched.
	cancelled bool
	status Status
	err    error
}

// Status describes a received message.
type Status struct {
	// Source is the sender's rank.
	Source int

	Tag int

	// Count is the number of elements written to the
	// receive buffer.
	Count int

	// Bytes is the packed size of the message.
	Bytes int
}

// Done reports whether the request completed.
//
// It does not make progress; see Comms.Test.
func (r *Request) Done() bool {
	return r.done
}

func (r *Request) complete(src *simulator.Port, env *envelope) {
	r.done = true
	r.status = Status{
		Source: r.comms.IndexOf(src),
		Tag:    env.Tag,
		Bytes:  len(env.Payload),
	}
	n, err := r.buf.Unpack(env.Payload)
	if err != nil {
		r.err = errors.Wrapf(err, "receive from rank %d (tag %d)", r.status.Source, env.Tag)
		return
	}
	r.status.Count = n
}
