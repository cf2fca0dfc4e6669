package bcast

import (
	"github.com/simgrid/simgrid-sub002/collcomm"
)

// ScatterRDBAllgather scatters the buffer in pieces down
// a binomial tree and then reassembles it on every rank
// with a recursive doubling allgather.
//
// Recursive doubling needs a power-of-two number of
// ranks; other sizes reassemble with a ring.
type ScatterRDBAllgather struct{}

func (s ScatterRDBAllgather) Bcast(c *collcomm.Comms, buf collcomm.Buffer, root int) error {
	if ok, err := start(c, buf, root); !ok {
		return err
	}
	layout, err := scatterPieces(c, buf, root)
	if err != nil {
		return err
	}
	if !collcomm.IsPowerOfTwo(c.Size()) {
		return ringPieces(c, buf, root, layout)
	}
	vrank := relRank(c, root)
	for i, step := range collcomm.DoublingSchedule(c.Size(), vrank) {
		tag := collcomm.StepTag(collcomm.TagBcast, i)
		peer := absRank(c, step.Partner, root)
		_, err := c.Sendrecv(layout.View(buf, step.Keep), peer, tag, layout.View(buf, step.Give),
			peer, tag)
		if err != nil {
			return err
		}
	}
	return nil
}

// ScatterLRAllgather scatters the buffer in pieces down a
// binomial tree and then passes the pieces around a ring.
type ScatterLRAllgather struct{}

func (s ScatterLRAllgather) Bcast(c *collcomm.Comms, buf collcomm.Buffer, root int) error {
	if ok, err := start(c, buf, root); !ok {
		return err
	}
	layout, err := scatterPieces(c, buf, root)
	if err != nil {
		return err
	}
	return ringPieces(c, buf, root, layout)
}

func relRank(c *collcomm.Comms, root int) int {
	return (c.Rank() - root + c.Size()) % c.Size()
}

func absRank(c *collcomm.Comms, vrank, root int) int {
	return (vrank + root) % c.Size()
}

// scatterPieces splits buf into one piece per relative
// rank and delivers to every rank the pieces of its
// binomial subtree.
func scatterPieces(c *collcomm.Comms, buf collcomm.Buffer, root int) (collcomm.BlockLayout, error) {
	size := c.Size()
	layout := collcomm.EvenBlocks(buf.Count, size)
	vrank := relRank(c, root)

	mask := 1
	for mask < size {
		if vrank&mask != 0 {
			subtree := collcomm.BlockRange{Lo: vrank, Hi: min(vrank+mask, size)}
			parent := absRank(c, vrank-mask, root)
			if _, err := c.Recv(parent, layout.View(buf, subtree), collcomm.TagBcast); err != nil {
				return layout, err
			}
			break
		}
		mask <<= 1
	}
	for mask >>= 1; mask > 0; mask >>= 1 {
		if vrank+mask < size {
			subtree := collcomm.BlockRange{Lo: vrank + mask, Hi: min(vrank+2*mask, size)}
			child := absRank(c, vrank+mask, root)
			if err := c.Send(child, layout.View(buf, subtree), collcomm.TagBcast); err != nil {
				return layout, err
			}
		}
	}
	return layout, nil
}

// ringPieces completes a broadcast after scatterPieces by
// passing every piece around the ring of relative ranks.
func ringPieces(c *collcomm.Comms, buf collcomm.Buffer, root int,
	layout collcomm.BlockLayout) error {
	size := c.Size()
	vrank := relRank(c, root)
	left := absRank(c, (vrank-1+size)%size, root)
	right := absRank(c, (vrank+1)%size, root)
	for i := 0; i < size-1; i++ {
		sendIdx := (vrank - i + size) % size
		recvIdx := (vrank - i - 1 + size) % size
		tag := collcomm.StepTag(collcomm.TagBcast, i)
		_, err := c.Sendrecv(
			layout.View(buf, collcomm.BlockRange{Lo: sendIdx, Hi: sendIdx + 1}), right, tag,
			layout.View(buf, collcomm.BlockRange{Lo: recvIdx, Hi: recvIdx + 1}), left, tag,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
