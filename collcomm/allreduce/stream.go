package allreduce

import (
	"fmt"

	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/unixpickle/essentials"
)

// A StreamAllreducer splits a vector up into smaller
// messages and streams the messages through all the nodes
// at once.
//
// The reduction has two phases: Reduce and Broadcast.
// During Reduce, the fully reduced vector arrives at the
// first node.
// During Broadcast, the reduced vector is streamed from
// the first node to all the other nodes.
//
// Chunks are folded in rank order, so any operator works.
type StreamAllreducer struct {
	// Granularity determines how many chunks the data is
	// split up into.
	// The actual number of chunks is multiplied by the
	// number of nodes.
	//
	// If Granularity is 0, it is treated as 1.
	Granularity int
}

// Allreduce streams chunks of send around the ring and
// stores the final reduction in recv.
func (s StreamAllreducer) Allreduce(c *collcomm.Comms, send, recv collcomm.Buffer,
	op collcomm.Op) error {
	if ok, err := start("stream", c, send, recv, op, false); !ok {
		return err
	}
	if err := collcomm.CopyBuffer(recv, send); err != nil {
		return err
	}
	st, err := newStream(c, recv, s.chunkify(c, recv))
	if err != nil {
		return err
	}
	if c.Rank() == 0 {
		return st.allreduceRoot()
	}
	return st.allreduceOther(op)
}

func (s StreamAllreducer) chunkify(c *collcomm.Comms, data collcomm.Buffer) []collcomm.Buffer {
	granularity := s.Granularity
	if granularity == 0 {
		granularity = 1
	}
	chunkSize := essentials.MaxInt(1, data.Count/(c.Size()*granularity))
	var res []collcomm.Buffer
	for i := 0; i < data.Count; i += chunkSize {
		res = append(res, data.Slice(i, essentials.MinInt(chunkSize, data.Count-i)))
	}
	return res
}

type streamPacketType int

const (
	streamPacketReduce streamPacketType = iota
	streamPacketReduceAck
	streamPacketBcast
	streamPacketBcastAck
	numStreamPacketTypes
)

func (s streamPacketType) isAck() bool {
	return s == streamPacketReduceAck || s == streamPacketBcastAck
}

func (s streamPacketType) tag() int {
	return collcomm.StepTag(collcomm.TagAllreduce, 128+int(s))
}

func ack() collcomm.Buffer {
	return collcomm.NewBuffer(0, collcomm.Byte)
}

type streamPacket struct {
	packetType streamPacketType
	payload    collcomm.Buffer
}

// stream holds a rank's view of the ring.
//
// Every packet type has its own tag, and exactly one
// receive per type is posted at a time, up to the number
// of packets of that type the rank will ever see. Nothing
// is left posted once the protocol completes.
type stream struct {
	c      *collcomm.Comms
	chunks []collcomm.Buffer

	scratch   [numStreamPacketTypes]collcomm.Buffer
	remaining [numStreamPacketTypes]int
	posted    [numStreamPacketTypes]*collcomm.Request
}

func newStream(c *collcomm.Comms, data collcomm.Buffer, chunks []collcomm.Buffer) (*stream, error) {
	st := &stream{c: c, chunks: chunks}
	st.scratch[streamPacketReduceAck] = ack()
	st.scratch[streamPacketBcastAck] = ack()
	n := len(chunks)
	isLastNode := c.Rank()+1 == c.Size()
	st.remaining[streamPacketReduce] = n
	st.remaining[streamPacketReduceAck] = n
	if c.Rank() == 0 {
		st.remaining[streamPacketBcastAck] = n
	} else {
		st.remaining[streamPacketBcast] = n
		if !isLastNode {
			st.remaining[streamPacketBcastAck] = n
		}
	}
	for _, t := range []streamPacketType{streamPacketReduce, streamPacketBcast} {
		buf, err := c.Scratch(chunks[0].Count, data.Type)
		if err != nil {
			return nil, err
		}
		st.scratch[t] = buf
	}
	return st, nil
}

func (s *stream) allreduceRoot() error {
	chunksOut := s.chunks
	reduced := 0

	// Kick off the reduction cycle.
	if err := s.send(streamPacketReduce, chunksOut[0]); err != nil {
		return err
	}
	chunksOut = chunksOut[1:]

	// Push the reduction through the ring.
	waitingReduceAck := true
	for reduced < len(s.chunks) {
		packet, err := s.recv()
		if err != nil {
			return err
		}
		switch packet.packetType {
		case streamPacketReduce:
			if err := collcomm.CopyBuffer(s.chunks[reduced], packet.payload); err != nil {
				return err
			}
			reduced++
			if err := s.send(streamPacketReduceAck, ack()); err != nil {
				return err
			}
		case streamPacketReduceAck:
			if !waitingReduceAck {
				panic("unexpected ACK")
			}
			if len(chunksOut) > 0 {
				if err := s.send(streamPacketReduce, chunksOut[0]); err != nil {
					return err
				}
				chunksOut = chunksOut[1:]
			} else {
				waitingReduceAck = false
			}
		default:
			panic("unexpected packet type")
		}
	}

	if len(chunksOut) > 0 {
		panic("unexpected reduction completion")
	}

	// Push the data through the bcast cycle.
	for _, chunk := range s.chunks {
		if err := s.send(streamPacketBcast, chunk); err != nil {
			return err
		}
		for {
			packet, err := s.recv()
			if err != nil {
				return err
			}
			if packet.packetType == streamPacketReduceAck {
				if !waitingReduceAck {
					panic("unexpected ACK")
				}
				waitingReduceAck = false
			} else if packet.packetType == streamPacketBcastAck {
				break
			} else {
				panic("unexpected packet type")
			}
		}
	}

	return s.drainAcks(&waitingReduceAck, nil)
}

func (s *stream) allreduceOther(op collcomm.Op) error {
	c := s.c
	isLastNode := c.Rank()+1 == c.Size()

	// Reduce our data into the stream.
	var reduceBlocked bool
	var reduceBuf []collcomm.Buffer
	var reduceIn, bcastIn int
	for bcastIn == 0 {
		packet, err := s.recv()
		if err != nil {
			return err
		}
		switch packet.packetType {
		case streamPacketReduce:
			if err := s.send(streamPacketReduceAck, ack()); err != nil {
				return err
			}
			chunk := s.chunks[reduceIn]
			reduceIn++
			if err := c.Combine(op, packet.payload, chunk); err != nil {
				return err
			}
			reduceBuf = append(reduceBuf, chunk)
		case streamPacketReduceAck:
			if !reduceBlocked {
				panic("unexpected ACK")
			}
			reduceBlocked = false
		case streamPacketBcast:
			if len(reduceBuf) > 0 {
				panic("got bcast before reduce finished")
			}
			chunk := s.chunks[bcastIn]
			bcastIn++
			if err := collcomm.CopyBuffer(chunk, packet.payload); err != nil {
				return err
			}
			if err := s.send(streamPacketBcastAck, ack()); err != nil {
				return err
			}
			if !isLastNode {
				// Otherwise, the packet will never reach
				// the next node in the ring.
				if err := s.send(streamPacketBcast, chunk); err != nil {
					return err
				}
			}
		default:
			panic("unexpected packet type")
		}
		if !reduceBlocked && len(reduceBuf) > 0 {
			if err := s.send(streamPacketReduce, reduceBuf[0]); err != nil {
				return err
			}
			essentials.OrderedDelete(&reduceBuf, 0)
			reduceBlocked = true
		}
	}

	// Read the broadcasted reduction.
	bcastBlocked := !isLastNode
	var bcastBuf []collcomm.Buffer
	for bcastIn < len(s.chunks) || len(bcastBuf) > 0 {
		packet, err := s.recv()
		if err != nil {
			return err
		}
		switch packet.packetType {
		case streamPacketReduceAck:
			if !reduceBlocked {
				panic("unexpected ACK")
			}
			reduceBlocked = false
		case streamPacketBcast:
			chunk := s.chunks[bcastIn]
			bcastIn++
			if err := collcomm.CopyBuffer(chunk, packet.payload); err != nil {
				return err
			}
			if err := s.send(streamPacketBcastAck, ack()); err != nil {
				return err
			}
			if !isLastNode {
				bcastBuf = append(bcastBuf, chunk)
			}
		case streamPacketBcastAck:
			if !bcastBlocked {
				panic("unexpected ACK")
			}
			bcastBlocked = false
		default:
			panic("unexpected packet type")
		}
		if !bcastBlocked && len(bcastBuf) > 0 {
			if err := s.send(streamPacketBcast, bcastBuf[0]); err != nil {
				return err
			}
			essentials.OrderedDelete(&bcastBuf, 0)
			bcastBlocked = true
		}
	}

	return s.drainAcks(&reduceBlocked, &bcastBlocked)
}

// drainAcks waits for the ACKs of the last packets sent,
// which may still be in flight when the data is done.
func (s *stream) drainAcks(reduceBlocked, bcastBlocked *bool) error {
	for *reduceBlocked || (bcastBlocked != nil && *bcastBlocked) {
		packet, err := s.recv()
		if err != nil {
			return err
		}
		switch packet.packetType {
		case streamPacketReduceAck:
			*reduceBlocked = false
		case streamPacketBcastAck:
			*bcastBlocked = false
		default:
			panic("unexpected packet type")
		}
	}
	for t, n := range s.remaining {
		if n > 0 {
			panic(fmt.Sprintf("missed %d packets of type %d", n, t))
		}
	}
	return nil
}

// recv waits for the next packet of any expected type.
//
// The returned payload is only valid until the next call.
func (s *stream) recv() (*streamPacket, error) {
	for t := range s.posted {
		if s.posted[t] != nil || s.remaining[t] == 0 {
			continue
		}
		packetType := streamPacketType(t)
		src := (s.c.Rank() + s.c.Size() - 1) % s.c.Size()
		if packetType.isAck() {
			src = (s.c.Rank() + 1) % s.c.Size()
		}
		s.posted[t] = s.c.Irecv(src, s.scratch[t], packetType.tag())
	}
	t, status, err := s.c.Waitany(s.posted[:])
	if t < 0 {
		panic("no packets expected")
	}
	s.posted[t] = nil
	s.remaining[t]--
	if err != nil {
		return nil, err
	}
	packetType := streamPacketType(t)
	packet := &streamPacket{packetType: packetType}
	if !packetType.isAck() {
		packet.payload = s.scratch[t].Slice(0, status.Count)
	}
	return packet, nil
}

// send sends a packet to the appropriate host.
// For ACKs, this is the previous host.
// For other messages, this is the next host.
func (s *stream) send(packetType streamPacketType, payload collcomm.Buffer) error {
	idx := s.c.Rank()
	var dstIdx int
	if packetType.isAck() {
		dstIdx = idx - 1
		if dstIdx < 0 {
			dstIdx = s.c.Size() - 1
		}
	} else {
		dstIdx = (idx + 1) % s.c.Size()
	}
	return s.c.Send(dstIdx, payload, packetType.tag())
}
