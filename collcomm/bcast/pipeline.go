package bcast

import (
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/tree"
)

// DefaultSegmentSize is the segment size in bytes used by
// pipelined algorithms that do not set one.
const DefaultSegmentSize = 8192

// FlatTreePipeline is FlatTree with the buffer split into
// segments, so that receivers can overlap the arrival of
// consecutive segments.
type FlatTreePipeline struct {
	SegmentSize int
}

func (f FlatTreePipeline) Bcast(c *collcomm.Comms, buf collcomm.Buffer, root int) error {
	if ok, err := start(c, buf, root); !ok {
		return err
	}
	return pipelineBcast(c, buf, root, tree.Flat, f.SegmentSize)
}

// Chain streams segments of the buffer through chains of
// ranks.
type Chain struct {
	// Fanout is the number of chains hanging off the root.
	// Zero means a single chain.
	Fanout int

	SegmentSize int
}

func (ch Chain) Bcast(c *collcomm.Comms, buf collcomm.Buffer, root int) error {
	if ok, err := start(c, buf, root); !ok {
		return err
	}
	return pipelineBcast(c, buf, root, tree.Chain(ch.Fanout), ch.SegmentSize)
}

// pipelineBcast forwards each segment to the children as
// soon as it arrives, while later segments are still on
// their way.
//
// Elements left over after the last full segment are
// broadcast with the plain tree algorithm.
func pipelineBcast(c *collcomm.Comms, buf collcomm.Buffer, root int, b tree.Builder,
	segSize int) error {
	if segSize <= 0 {
		segSize = DefaultSegmentSize
	}
	seg := collcomm.Segment(buf.Count, collcomm.SegmentElements(segSize, buf.Type))
	pos := b(c.Rank(), c.Size(), root)

	fl := c.NewInflight()
	defer fl.Free()

	var recvs []*collcomm.Request
	if pos.Parent >= 0 {
		for i := 0; i < seg.Segments; i++ {
			tag := collcomm.StepTag(collcomm.TagBcast, i)
			recvs = append(recvs, fl.Irecv(pos.Parent, seg.Piece(buf, i), tag))
		}
	}
	for i := 0; i < seg.Segments; i++ {
		if recvs != nil {
			if err := fl.Wait(recvs[i]); err != nil {
				return err
			}
		}
		for _, child := range pos.Children {
			fl.Isend(child, seg.Piece(buf, i), collcomm.StepTag(collcomm.TagBcast, i))
		}
	}
	if err := fl.Drain(); err != nil {
		return err
	}
	if seg.Remainder > 0 {
		return treeBcast(c, seg.Rest(buf), root, b)
	}
	return nil
}
