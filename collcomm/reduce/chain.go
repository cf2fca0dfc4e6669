package reduce

import (
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/tree"
)

// DefaultSegmentSize is the segment size in bytes used by
// pipelined algorithms that do not set one.
const DefaultSegmentSize = 8192

// Chain streams segments of partial results along a chain
// of ranks ending at the root, each rank adding its own
// contribution before forwarding a segment.
//
// It needs a commutative operator.
type Chain struct {
	SegmentSize int
}

func (ch Chain) Reduce(c *collcomm.Comms, send, recv collcomm.Buffer, op collcomm.Op,
	root int) error {
	if ok, err := start("chain", c, send, recv, op, root, true); !ok {
		return err
	}
	segSize := ch.SegmentSize
	if segSize <= 0 {
		segSize = DefaultSegmentSize
	}
	seg := collcomm.Segment(send.Count, collcomm.SegmentElements(segSize, send.Type))
	head := seg.Segments * seg.SegCount
	if seg.Segments > 0 {
		acc, err := c.Scratch(head, send.Type)
		if err != nil {
			return err
		}
		if err := collcomm.CopyBuffer(acc, send.Slice(0, head)); err != nil {
			return err
		}
		pos := tree.Chain(1)(c.Rank(), c.Size(), root)
		if err := chainSegments(c, acc, op, pos, seg, 0); err != nil {
			return err
		}
		if c.Rank() == root {
			if err := collcomm.CopyBuffer(recv.Slice(0, head), acc); err != nil {
				return err
			}
		}
	}
	if seg.Remainder == 0 {
		return nil
	}

	// The tail is too short for a segment of its own and
	// goes up a plain binomial tree.
	var rest collcomm.Buffer
	if c.Rank() == root {
		rest = seg.Rest(recv)
	}
	return Binomial{}.Reduce(c, seg.Rest(send), rest, op, root)
}

// chainSegments reduces the segments of acc along the
// chain. Segment i+1 from the child is already in flight
// while segment i is being combined and forwarded.
//
// Segment i is tagged with step first+i.
func chainSegments(c *collcomm.Comms, acc collcomm.Buffer, op collcomm.Op, pos tree.Tree,
	seg collcomm.Segmentation, first int) error {
	fl := c.NewInflight()
	defer fl.Free()

	var incoming collcomm.Buffer
	var recvs []*collcomm.Request
	if len(pos.Children) > 0 {
		var err error
		incoming, err = c.Scratch(seg.Segments*seg.SegCount, acc.Type)
		if err != nil {
			return err
		}
		for i := 0; i < seg.Segments; i++ {
			recvs = append(recvs, fl.Irecv(pos.Children[0], seg.Piece(incoming, i),
				collcomm.StepTag(collcomm.TagReduce, first+i)))
		}
	}
	for i := 0; i < seg.Segments; i++ {
		piece := seg.Piece(acc, i)
		if recvs != nil {
			if err := fl.Wait(recvs[i]); err != nil {
				return err
			}
			if err := c.Combine(op, seg.Piece(incoming, i), piece); err != nil {
				return err
			}
		}
		if pos.Parent >= 0 {
			fl.Isend(pos.Parent, piece, collcomm.StepTag(collcomm.TagReduce, first+i))
		}
	}
	return fl.Drain()
}
