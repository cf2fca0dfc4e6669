package collcomm

import (
	"github.com/eapache/queue"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/simulator"
	"github.com/unixpickle/essentials"
	"k8s.io/klog/v2"
)

// envelope is the payload of every simulator.Message
// exchanged by Comms.
type envelope struct {
	Context uuid.UUID
	Tag     int
	Seq     uint64
	Payload []byte
}

type matchKey struct {
	ctx    uuid.UUID
	source *simulator.Port
	tag    int
}

// An endpoint is the per-rank message engine shared by
// every communicator the rank belongs to.
//
// Networks may reorder messages, so each message carries
// a sequence number per (source, destination) pair and
// arrivals are released in sequence order.
type endpoint struct {
	handle  *simulator.Handle
	port    *simulator.Port
	network simulator.Network

	sendSeq map[*simulator.Port]uint64
	recvSeq map[*simulator.Port]uint64
	early   map[*simulator.Port]map[uint64]*envelope

	posted     map[matchKey][]*Request
	unexpected map[matchKey]*queue.Queue
}

func newEndpoint(h *simulator.Handle, port *simulator.Port, network simulator.Network) *endpoint {
	return &endpoint{
		handle:     h,
		port:       port,
		network:    network,
		sendSeq:    map[*simulator.Port]uint64{},
		recvSeq:    map[*simulator.Port]uint64{},
		early:      map[*simulator.Port]map[uint64]*envelope{},
		posted:     map[matchKey][]*Request{},
		unexpected: map[matchKey]*queue.Queue{},
	}
}

func (e *endpoint) send(dst *simulator.Port, env *envelope) {
	if dst == e.port {
		// Loopback messages never touch the network.
		e.deliver(e.port, env)
		return
	}
	env.Seq = e.sendSeq[dst]
	e.sendSeq[dst]++
	e.network.Send(e.handle, &simulator.Message{
		Source:  e.port,
		Dest:    dst,
		Message: env,
		Size:    float64(len(env.Payload)),
	})
}

func (e *endpoint) post(key matchKey, req *Request) {
	if q := e.unexpected[key]; q != nil && q.Length() > 0 {
		env := q.Remove().(*envelope)
		req.complete(key.source, env)
		return
	}
	e.posted[key] = append(e.posted[key], req)
}

// cancel retires a posted receive. The request keeps its
// place in the match order, so the message it would have
// matched is dropped on arrival instead of being handed to
// a later receive with the same key.
func (e *endpoint) cancel(req *Request) {
	for _, reqs := range e.posted {
		for _, r := range reqs {
			if r == req {
				req.cancelled = true
				req.done = true
				req.err = errors.New("request cancelled")
				return
			}
		}
	}
}

// probe waits for an unexpected message matching key.
//
// A live posted receive for key would consume every
// arrival first, so probing then is an error.
func (e *endpoint) probe(key matchKey) (*envelope, error) {
	for {
		if q := e.unexpected[key]; q != nil && q.Length() > 0 {
			return q.Peek().(*envelope), nil
		}
		for _, r := range e.posted[key] {
			if !r.cancelled {
				return nil, errors.Wrap(ErrInvalidArgument, "probe with a receive already posted")
			}
		}
		e.progress(true)
	}
}

// progress ingests one message from the network.
//
// If block is false and nothing has arrived, it returns
// false immediately.
func (e *endpoint) progress(block bool) bool {
	var msg *simulator.Message
	if block {
		msg = e.port.Recv(e.handle)
	} else if msg = e.port.TryRecv(e.handle); msg == nil {
		return false
	}
	e.ingest(msg.Source, msg.Message.(*envelope))
	return true
}

func (e *endpoint) ingest(src *simulator.Port, env *envelope) {
	if env.Seq != e.recvSeq[src] {
		if e.early[src] == nil {
			e.early[src] = map[uint64]*envelope{}
		}
		e.early[src][env.Seq] = env
		return
	}
	for {
		e.recvSeq[src]++
		e.deliver(src, env)
		next, ok := e.early[src][e.recvSeq[src]]
		if !ok {
			return
		}
		delete(e.early[src], e.recvSeq[src])
		env = next
	}
}

func (e *endpoint) deliver(src *simulator.Port, env *envelope) {
	key := matchKey{ctx: env.Context, source: src, tag: env.Tag}
	if reqs := e.posted[key]; len(reqs) > 0 {
		req := reqs[0]
		essentials.OrderedDelete(&reqs, 0)
		if len(reqs) == 0 {
			delete(e.posted, key)
		} else {
			e.posted[key] = reqs
		}
		if req.cancelled {
			klog.V(2).Infof("dropping message for cancelled receive (tag %d)", env.Tag)
			return
		}
		req.complete(src, env)
		return
	}
	q := e.unexpected[key]
	if q == nil {
		q = queue.New()
		e.unexpected[key] = q
	}
	q.Add(env)
}
