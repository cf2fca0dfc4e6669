package collcomm

// A Segmentation splits a transfer of Count elements into
// Segments pieces of SegCount elements, plus a Remainder
// that is left to the non-pipelined algorithm.
type Segmentation struct {
	Count     int
	SegCount  int
	Segments  int
	Remainder int
}

// Segment plans the segmentation of count elements.
//
// A non-positive segCount disables pipelining.
func Segment(count, segCount int) Segmentation {
	if segCount <= 0 {
		return Segmentation{Count: count, Remainder: count}
	}
	return Segmentation{
		Count:     count,
		SegCount:  segCount,
		Segments:  count / segCount,
		Remainder: count % segCount,
	}
}

// SegmentElements converts a segment size in bytes into a
// number of elements of t, rounding down but never below
// one.
func SegmentElements(segBytes int, t *Datatype) int {
	if segBytes <= 0 {
		return 0
	}
	if n := segBytes / t.Size(); n > 0 {
		return n
	}
	return 1
}

// Piece returns the i-th segment of buf.
func (s Segmentation) Piece(buf Buffer, i int) Buffer {
	return buf.Slice(i*s.SegCount, s.SegCount)
}

// Rest returns the elements of buf not covered by any
// segment.
func (s Segmentation) Rest(buf Buffer) Buffer {
	return buf.Slice(s.Segments*s.SegCount, s.Remainder)
}

// Inflight tracks the non-blocking requests of a pipelined
// algorithm.
//
// A pipelined algorithm defers Free so that receives still
// posted when it bails out are released, and ends with
// Drain on the success path.
type Inflight struct {
	c    *Comms
	reqs []*Request
}

// NewInflight creates an empty request tracker.
func (c *Comms) NewInflight() *Inflight {
	return &Inflight{c: c}
}

// Isend starts a tracked send.
func (f *Inflight) Isend(dst int, buf Buffer, tag int) *Request {
	req := f.c.Isend(dst, buf, tag)
	f.reqs = append(f.reqs, req)
	return req
}

// Irecv posts a tracked receive.
func (f *Inflight) Irecv(src int, buf Buffer, tag int) *Request {
	req := f.c.Irecv(src, buf, tag)
	f.reqs = append(f.reqs, req)
	return req
}

// Wait waits for one tracked request.
func (f *Inflight) Wait(req *Request) error {
	_, err := f.c.Wait(req)
	return err
}

// Pending returns the number of unfinished requests.
func (f *Inflight) Pending() int {
	var n int
	for _, r := range f.reqs {
		if !r.done {
			n++
		}
	}
	return n
}

// Drain waits for every tracked request.
func (f *Inflight) Drain() error {
	err := f.c.Waitall(f.reqs)
	f.reqs = nil
	return err
}

// Free cancels every tracked receive that has not been
// matched yet.
func (f *Inflight) Free() {
	for _, r := range f.reqs {
		if !r.done {
			f.c.ep.cancel(r)
		}
	}
	f.reqs = nil
}
