package alltoall

import (
	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
)

// An Alltoallver is an algorithm where rank i sends the
// sendCounts[j] elements at offset sendDispls[j] of send
// to rank j, which stores them at offset recvDispls[i] of
// recv and expects recvCounts[i] of them.
type Alltoallver interface {
	Alltoallv(c *collcomm.Comms, send collcomm.Buffer, sendCounts, sendDispls []int,
		recv collcomm.Buffer, recvCounts, recvDispls []int) error
}

// DefaultV is the default Alltoallver.
var DefaultV Alltoallver = BasicLinearV{}

// vArgs bundles the arguments of an alltoallv call.
type vArgs struct {
	send       collcomm.Buffer
	sendCounts []int
	sendDispls []int
	recv       collcomm.Buffer
	recvCounts []int
	recvDispls []int
}

func (v *vArgs) check(c *collcomm.Comms) error {
	for _, arr := range [][]int{v.sendCounts, v.sendDispls, v.recvCounts, v.recvDispls} {
		if len(arr) != c.Size() {
			return errors.Wrapf(collcomm.ErrInvalidArgument, "count or displacement array of length %d for %d ranks",
				len(arr), c.Size())
		}
	}
	return nil
}

func (v *vArgs) sendBlock(i int) collcomm.Buffer {
	return v.send.Slice(v.sendDispls[i], v.sendCounts[i])
}

func (v *vArgs) recvBlock(i int) collcomm.Buffer {
	return v.recv.Slice(v.recvDispls[i], v.recvCounts[i])
}

func (v *vArgs) copyLocal(rank int) error {
	if v.sendCounts[rank] == 0 && v.recvCounts[rank] == 0 {
		return nil
	}
	return collcomm.CopyBuffer(v.recvBlock(rank), v.sendBlock(rank))
}

// exchange sends the block for dst and receives the block
// from src, skipping empty transfers.
func (v *vArgs) exchange(c *collcomm.Comms, dst, src, tag int) error {
	fl := c.NewInflight()
	defer fl.Free()
	if v.recvCounts[src] > 0 {
		fl.Irecv(src, v.recvBlock(src), tag)
	}
	if v.sendCounts[dst] > 0 {
		if err := c.Send(dst, v.sendBlock(dst), tag); err != nil {
			return err
		}
	}
	return fl.Drain()
}

// BasicLinearV posts every receive and send at once and
// waits for all of them.
type BasicLinearV struct{}

func (b BasicLinearV) Alltoallv(c *collcomm.Comms, send collcomm.Buffer, sendCounts,
	sendDispls []int, recv collcomm.Buffer, recvCounts, recvDispls []int) error {
	v := &vArgs{send, sendCounts, sendDispls, recv, recvCounts, recvDispls}
	if err := v.check(c); err != nil {
		return err
	}
	size, rank := c.Size(), c.Rank()
	var reqs []*collcomm.Request
	for i := 1; i < size; i++ {
		if src := (rank - i + size) % size; recvCounts[src] > 0 {
			reqs = append(reqs, c.Irecv(src, v.recvBlock(src), collcomm.TagAlltoallv))
		}
	}
	for i := 1; i < size; i++ {
		if dst := (rank + i) % size; sendCounts[dst] > 0 {
			reqs = append(reqs, c.Isend(dst, v.sendBlock(dst), collcomm.TagAlltoallv))
		}
	}
	copyErr := v.copyLocal(rank)
	if err := c.Waitall(reqs); err != nil {
		return err
	}
	return copyErr
}

// RingV exchanges with rank+i and rank-i at step i.
type RingV struct{}

func (r RingV) Alltoallv(c *collcomm.Comms, send collcomm.Buffer, sendCounts,
	sendDispls []int, recv collcomm.Buffer, recvCounts, recvDispls []int) error {
	v := &vArgs{send, sendCounts, sendDispls, recv, recvCounts, recvDispls}
	if err := v.check(c); err != nil {
		return err
	}
	size, rank := c.Size(), c.Rank()
	if err := v.copyLocal(rank); err != nil {
		return err
	}
	for i := 1; i < size; i++ {
		tag := collcomm.StepTag(collcomm.TagAlltoallv, i)
		if err := v.exchange(c, (rank+i)%size, (rank-i+size)%size, tag); err != nil {
			return err
		}
	}
	return nil
}

// PairV exchanges with rank^i at step i.
//
// It needs a power-of-two number of ranks.
type PairV struct{}

func (p PairV) Alltoallv(c *collcomm.Comms, send collcomm.Buffer, sendCounts,
	sendDispls []int, recv collcomm.Buffer, recvCounts, recvDispls []int) error {
	v := &vArgs{send, sendCounts, sendDispls, recv, recvCounts, recvDispls}
	if err := v.check(c); err != nil {
		return err
	}
	if !collcomm.IsPowerOfTwo(c.Size()) {
		err := errors.Wrapf(collcomm.ErrNotApplicable, "%d ranks is not a power of two", c.Size())
		if collcomm.Fallback("alltoallv/pair", err) {
			return DefaultV.Alltoallv(c, send, sendCounts, sendDispls, recv, recvCounts, recvDispls)
		}
		return err
	}
	rank := c.Rank()
	if err := v.copyLocal(rank); err != nil {
		return err
	}
	for i := 1; i < c.Size(); i++ {
		peer := rank ^ i
		if err := v.exchange(c, peer, peer, collcomm.StepTag(collcomm.TagAlltoallv, i)); err != nil {
			return err
		}
	}
	return nil
}
