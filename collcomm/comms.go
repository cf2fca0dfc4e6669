// Package collcomm implements the point-to-point layer
// that collective communication algorithms are built on,
// along with typed buffers, reduction operators, and the
// helpers shared by many algorithms.
package collcomm

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/simulator"
)

// MaxScratchBytes bounds the size of any scratch buffer
// allocated by an algorithm.
var MaxScratchBytes = 1 << 30

// worldContext identifies the communicator spanning every
// rank spawned together.
var worldContext = uuid.NewSHA1(uuid.NameSpaceOID, []byte("collcomm/world"))

// Comms manages a set of connections between a bunch of
// ranks.
// During a collective operation, each rank has a local
// Comms object that represents its view of the world.
//
// Messages are matched by (communicator, source, tag),
// and messages with the same source and tag are received
// in the order they were sent, so one Comms may be used
// for any number of consecutive operations.
type Comms struct {
	// Handle is the rank's main Goroutine's handle on the
	// event loop.
	Handle *simulator.Handle

	// Port is the current rank's port.
	Port *simulator.Port

	// Ports contains ports to all the ranks in the
	// communicator, including the current rank, in rank
	// order.
	Ports []*simulator.Port

	// Network is the network connecting the ranks.
	Network simulator.Network

	// Context separates the traffic of different
	// communicators sharing the same ports.
	Context uuid.UUID

	ep    *endpoint
	rank  int
	ranks map[*simulator.Port]int
}

// SpawnComms creates Comms objects for every rank in a
// network and calls f for each rank in its own Goroutine.
//
// The i-th rank is hosted on placement[i].
// Ranks that share a Node form an SMP group.
func SpawnComms(loop *simulator.EventLoop, network simulator.Network, placement []*simulator.Node,
	f func(c *Comms)) {
	ports := make([]*simulator.Port, len(placement))
	for i, node := range placement {
		ports[i] = node.Port(loop)
	}
	for i := range placement {
		port := ports[i]
		loop.Go(func(h *simulator.Handle) {
			ep := newEndpoint(h, port, network)
			f(newComms(ep, ports, worldContext))
		})
	}
}

func newComms(ep *endpoint, ports []*simulator.Port, ctx uuid.UUID) *Comms {
	c := &Comms{
		Handle:  ep.handle,
		Port:    ep.port,
		Ports:   ports,
		Network: ep.network,
		Context: ctx,
		ep:      ep,
		rank:    -1,
		ranks:   make(map[*simulator.Port]int, len(ports)),
	}
	for i, p := range ports {
		c.ranks[p] = i
		if p == ep.port {
			c.rank = i
		}
	}
	if c.rank < 0 {
		panic("current port is not a member of the communicator")
	}
	return c
}

// Sub creates a communicator over a subset of ranks,
// listed in their new rank order.
//
// Every member must call Sub with the same label and
// ranks; the label keeps the traffic separate from other
// communicators. If the current rank is not listed, nil is
// returned.
func (c *Comms) Sub(label string, ranks []int) *Comms {
	ports := make([]*simulator.Port, len(ranks))
	member := false
	for i, r := range ranks {
		ports[i] = c.Ports[r]
		if r == c.rank {
			member = true
		}
	}
	if !member {
		return nil
	}
	return newComms(c.ep, ports, uuid.NewSHA1(c.Context, []byte(label)))
}

// Size gets the number of ranks.
func (c *Comms) Size() int {
	return len(c.Ports)
}

// Rank returns the current rank's index in the list of
// ranks.
func (c *Comms) Rank() int {
	return c.rank
}

// IndexOf returns any port's rank.
func (c *Comms) IndexOf(p *simulator.Port) int {
	if r, ok := c.ranks[p]; ok {
		return r
	}
	panic("unreachable")
}

// Time returns the virtual time.
func (c *Comms) Time() float64 {
	return c.Handle.Time()
}

// Scratch allocates a temporary buffer for the duration
// of one collective call.
func (c *Comms) Scratch(count int, t *Datatype) (Buffer, error) {
	if count < 0 || count*t.Extent > MaxScratchBytes {
		return Buffer{}, errors.Wrapf(ErrAllocation, "%d elements of %s", count, t)
	}
	return NewBuffer(count, t), nil
}

// Send schedules a message to be sent to the destination.
//
// The data is copied before Send returns.
func (c *Comms) Send(dst int, buf Buffer, tag int) error {
	_, err := c.Wait(c.Isend(dst, buf, tag))
	return err
}

// Recv receives a message from src with the given tag.
func (c *Comms) Recv(src int, buf Buffer, tag int) (Status, error) {
	return c.Wait(c.Irecv(src, buf, tag))
}

// Sendrecv sends one message and receives another.
func (c *Comms) Sendrecv(send Buffer, dst, sendTag int, recv Buffer, src,
	recvTag int) (Status, error) {
	req := c.Irecv(src, recv, recvTag)
	if err := c.Send(dst, send, sendTag); err != nil {
		c.ep.cancel(req)
		return Status{}, err
	}
	return c.Wait(req)
}

// Isend starts sending a message.
func (c *Comms) Isend(dst int, buf Buffer, tag int) *Request {
	if dst < 0 || dst >= c.Size() {
		return &Request{comms: c, done: true, err: errors.Wrapf(ErrInvalidArgument,
			"destination %d out of range [0,%d)", dst, c.Size())}
	}
	c.ep.send(c.Ports[dst], &envelope{
		Context: c.Context,
		Tag:     tag,
		Payload: buf.Pack(),
	})
	return &Request{comms: c, done: true, send: true}
}

// Irecv posts a receive.
//
// Posted receives with the same source and tag are
// matched in the order they were posted.
func (c *Comms) Irecv(src int, buf Buffer, tag int) *Request {
	req := &Request{comms: c, buf: buf}
	if src < 0 || src >= c.Size() {
		req.done = true
		req.err = errors.Wrapf(ErrInvalidArgument, "source %d out of range [0,%d)", src, c.Size())
		return req
	}
	c.ep.post(matchKey{ctx: c.Context, source: c.Ports[src], tag: tag}, req)
	return req
}

// Probe blocks until a message from src with the given tag
// can be received, without receiving it.
//
// Probe fails if a receive for the same source and tag is
// already posted, since that receive takes the message.
func (c *Comms) Probe(src int, tag int) (Status, error) {
	if src < 0 || src >= c.Size() {
		return Status{}, errors.Wrapf(ErrInvalidArgument, "source %d out of range [0,%d)", src, c.Size())
	}
	env, err := c.ep.probe(matchKey{ctx: c.Context, source: c.Ports[src], tag: tag})
	if err != nil {
		return Status{}, err
	}
	return Status{Source: src, Tag: tag, Bytes: len(env.Payload)}, nil
}

// Wait blocks until a request completes.
func (c *Comms) Wait(req *Request) (Status, error) {
	for !req.done {
		c.ep.progress(true)
	}
	return req.status, req.err
}

// Waitall waits for every request, even if some of them
// fail, and returns the first error.
func (c *Comms) Waitall(reqs []*Request) error {
	var firstErr error
	for _, req := range reqs {
		if _, err := c.Wait(req); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Waitany blocks until one of the requests completes and
// returns its index. Nil requests are skipped.
//
// If several requests are complete, the one with the
// lowest index is returned. If every request is nil, the
// index is -1.
func (c *Comms) Waitany(reqs []*Request) (int, Status, error) {
	for {
		active := false
		for i, req := range reqs {
			if req == nil {
				continue
			}
			if req.done {
				return i, req.status, req.err
			}
			active = true
		}
		if !active {
			return -1, Status{}, nil
		}
		c.ep.progress(true)
	}
}

// Test checks if a request has completed, making progress
// on already-delivered messages without blocking.
func (c *Comms) Test(req *Request) bool {
	for !req.done && c.ep.progress(false) {
	}
	return req.done
}
