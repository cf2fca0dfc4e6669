package selector

import (
	"math"

	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/allgather"
	"github.com/simgrid/simgrid-sub002/collcomm/allreduce"
	"github.com/simgrid/simgrid-sub002/collcomm/alltoall"
	"github.com/simgrid/simgrid-sub002/collcomm/barrier"
	"github.com/simgrid/simgrid-sub002/collcomm/bcast"
	"github.com/simgrid/simgrid-sub002/collcomm/gather"
	"github.com/simgrid/simgrid-sub002/collcomm/reduce"
	"github.com/simgrid/simgrid-sub002/collcomm/reducescatter"
	"github.com/simgrid/simgrid-sub002/collcomm/scatter"
	"k8s.io/klog/v2"
)

var (
	_ barrier.Barrierer             = (*Selector)(nil)
	_ bcast.Broadcaster             = (*Selector)(nil)
	_ reduce.Reducer                = (*Selector)(nil)
	_ gather.Gatherer               = (*Selector)(nil)
	_ gather.Gatherver              = (*Selector)(nil)
	_ scatter.Scatterer             = (*Selector)(nil)
	_ scatter.Scatterver            = (*Selector)(nil)
	_ allgather.Allgatherer         = (*Selector)(nil)
	_ allgather.Allgatherver        = (*Selector)(nil)
	_ alltoall.Alltoaller           = (*Selector)(nil)
	_ alltoall.Alltoallver          = (*Selector)(nil)
	_ reducescatter.ReduceScatterer = (*Selector)(nil)
	_ allreduce.Allreducer          = (*Selector)(nil)
)

// A Selector implements every collective verb by choosing
// an algorithm for each call.
//
// Every rank of a communicator must use an equivalent
// Selector, so that they all run the same algorithm.
type Selector struct {
	config Config

	// Report, if non-nil, is called on rank 0 after every
	// automatic selection with the chosen algorithm and
	// its slowest rank's time.
	Report func(verb, algorithm string, seconds float64)
}

// NewSelector validates a Config and creates a Selector
// for it.
func NewSelector(cfg Config) (*Selector, error) {
	if cfg.Tables == "" {
		cfg.Tables = DefaultTables
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	verbs := make(map[string]string, len(cfg.Verbs))
	for k, v := range cfg.Verbs {
		verbs[k] = v
	}
	cfg.Verbs = verbs
	return &Selector{config: cfg}, nil
}

// Config returns a copy of the selector's configuration.
func (s *Selector) Config() Config {
	res := Config{Verbs: map[string]string{}, Tables: s.config.Tables}
	for k, v := range s.config.Verbs {
		res.Verbs[k] = v
	}
	return res
}

// Choose resolves the algorithm a call would use, without
// running it. Automatic verbs resolve to Automatic.
func Choose[A any](s *Selector, reg *Registry[A], p Params) string {
	if name := s.config.Verbs[reg.Verb]; name != "" {
		return name
	}
	table, ok := Tables()[s.config.Tables][reg.Verb]
	if ok {
		name, ok := table.Choose(p.Size, p.Bytes, func(name string) bool {
			alg, ok := reg.Lookup(name)
			return ok && alg.AppliesTo(p)
		})
		if ok {
			return name
		}
	}
	return reg.Default
}

func dispatch[A any](s *Selector, c *collcomm.Comms, reg *Registry[A], p Params,
	run func(a A) error) error {
	name := Choose(s, reg, p)
	if name == Automatic {
		return automatic(s, c, reg, p, run)
	}
	alg, ok := reg.Lookup(name)
	if !ok {
		return errors.Wrapf(ErrConfig, "unknown %s algorithm %q", reg.Verb, name)
	}
	klog.V(1).Infof("%s: using %s (size=%d, bytes=%d)", reg.Verb, name, p.Size, p.Bytes)
	return run(alg.Impl)
}

// skippable checks if a candidate failed because it cannot
// run on this call, rather than because of a real error.
func skippable(err error) bool {
	return collcomm.IsTopologyPrecondition(err) || errors.Is(err, collcomm.ErrNotApplicable) ||
		collcomm.IsIrregular(err)
}

// automatic runs every applicable algorithm once between
// barriers and then runs the one whose slowest rank was
// fastest. Rank 0 makes the decision and broadcasts it.
//
// The choice is not cached: every call benchmarks again.
func automatic[A any](s *Selector, c *collcomm.Comms, reg *Registry[A], p Params,
	run func(a A) error) error {
	var candidates []Algorithm[A]
	for _, alg := range reg.Algorithms {
		if alg.AppliesTo(p) {
			candidates = append(candidates, alg)
		}
	}

	best, bestTime := -1, math.Inf(1)
	worst := collcomm.NewBuffer(1, collcomm.Float64)
	for i, alg := range candidates {
		if err := barrier.Default.Barrier(c); err != nil {
			return err
		}
		start := c.Time()
		elapsed := math.Inf(1)
		if err := run(alg.Impl); err == nil {
			elapsed = c.Time() - start
		} else if skippable(err) {
			klog.V(2).Infof("%s: skipping %s: %v", reg.Verb, alg.Name, err)
		} else {
			return errors.Wrapf(err, "benchmark %s/%s", reg.Verb, alg.Name)
		}
		err := reduce.Default.Reduce(c, collcomm.Float64s(elapsed), worst, collcomm.Max, 0)
		if err != nil {
			return err
		}
		if c.Rank() == 0 {
			t := collcomm.Values[float64](worst)[0]
			klog.V(2).Infof("%s: %s took %gs", reg.Verb, alg.Name, t)
			if t < bestTime {
				best, bestTime = i, t
			}
		}
	}

	choice := collcomm.Int64s(int64(best))
	if err := bcast.Default.Bcast(c, choice, 0); err != nil {
		return err
	}
	best = int(collcomm.Values[int64](choice)[0])

	var chosen Algorithm[A]
	if best < 0 {
		chosen, _ = reg.Lookup(reg.Default)
	} else {
		chosen = candidates[best]
	}
	klog.V(1).Infof("%s: automatic selection picked %s (size=%d, bytes=%d)", reg.Verb,
		chosen.Name, p.Size, p.Bytes)
	if s.Report != nil && c.Rank() == 0 {
		s.Report(reg.Verb, chosen.Name, bestTime)
	}
	return run(chosen.Impl)
}

func (s *Selector) Barrier(c *collcomm.Comms) error {
	return dispatch(s, c, Barriers(), paramsFor(c, 0, nil), func(a barrier.Barrierer) error {
		return a.Barrier(c)
	})
}

func (s *Selector) Bcast(c *collcomm.Comms, buf collcomm.Buffer, root int) error {
	return dispatch(s, c, Broadcasters(), paramsFor(c, buf.Bytes(), nil),
		func(a bcast.Broadcaster) error {
			return a.Bcast(c, buf, root)
		})
}

func (s *Selector) Reduce(c *collcomm.Comms, send, recv collcomm.Buffer, op collcomm.Op,
	root int) error {
	return dispatch(s, c, Reducers(), paramsFor(c, send.Bytes(), op), func(a reduce.Reducer) error {
		return a.Reduce(c, send, recv, op, root)
	})
}

func (s *Selector) Gather(c *collcomm.Comms, send, recv collcomm.Buffer, root int) error {
	return dispatch(s, c, Gatherers(), paramsFor(c, send.Bytes()*c.Size(), nil),
		func(a gather.Gatherer) error {
			return a.Gather(c, send, recv, root)
		})
}

func (s *Selector) Gatherv(c *collcomm.Comms, send, recv collcomm.Buffer, counts, displs []int,
	root int) error {
	p := vectorParams(c)
	return dispatch(s, c, Gathervers(), p, func(a gather.Gatherver) error {
		return a.Gatherv(c, send, recv, counts, displs, root)
	})
}

func (s *Selector) Scatter(c *collcomm.Comms, send, recv collcomm.Buffer, root int) error {
	return dispatch(s, c, Scatterers(), paramsFor(c, recv.Bytes()*c.Size(), nil),
		func(a scatter.Scatterer) error {
			return a.Scatter(c, send, recv, root)
		})
}

func (s *Selector) Scatterv(c *collcomm.Comms, send collcomm.Buffer, counts, displs []int,
	recv collcomm.Buffer, root int) error {
	p := vectorParams(c)
	return dispatch(s, c, Scattervers(), p, func(a scatter.Scatterver) error {
		return a.Scatterv(c, send, counts, displs, recv, root)
	})
}

func (s *Selector) Allgather(c *collcomm.Comms, send, recv collcomm.Buffer) error {
	return dispatch(s, c, Allgatherers(), paramsFor(c, recv.Bytes()*c.Size(), nil),
		func(a allgather.Allgatherer) error {
			return a.Allgather(c, send, recv)
		})
}

func (s *Selector) Allgatherv(c *collcomm.Comms, send, recv collcomm.Buffer, counts,
	displs []int) error {
	p := paramsFor(c, totalCount(counts)*recv.Type.Extent, nil)
	return dispatch(s, c, Allgathervers(), p, func(a allgather.Allgatherver) error {
		return a.Allgatherv(c, send, recv, counts, displs)
	})
}

func (s *Selector) Alltoall(c *collcomm.Comms, send, recv collcomm.Buffer) error {
	return dispatch(s, c, Alltoallers(), paramsFor(c, send.Bytes(), nil),
		func(a alltoall.Alltoaller) error {
			return a.Alltoall(c, send, recv)
		})
}

func (s *Selector) Alltoallv(c *collcomm.Comms, send collcomm.Buffer, sendCounts,
	sendDispls []int, recv collcomm.Buffer, recvCounts, recvDispls []int) error {
	p := vectorParams(c)
	return dispatch(s, c, Alltoallvers(), p, func(a alltoall.Alltoallver) error {
		return a.Alltoallv(c, send, sendCounts, sendDispls, recv, recvCounts, recvDispls)
	})
}

func (s *Selector) ReduceScatter(c *collcomm.Comms, send, recv collcomm.Buffer, recvCounts []int,
	op collcomm.Op) error {
	return dispatch(s, c, ReduceScatterers(), paramsFor(c, send.Bytes(), op),
		func(a reducescatter.ReduceScatterer) error {
			return a.ReduceScatter(c, send, recv, recvCounts, op)
		})
}

func (s *Selector) Allreduce(c *collcomm.Comms, send, recv collcomm.Buffer,
	op collcomm.Op) error {
	return dispatch(s, c, Allreducers(), paramsFor(c, send.Bytes(), op),
		func(a allreduce.Allreducer) error {
			return a.Allreduce(c, send, recv, op)
		})
}

func totalCount(counts []int) int {
	var res int
	for _, n := range counts {
		res += n
	}
	return res
}
