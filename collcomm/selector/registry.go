// Package selector chooses a collective algorithm for
// every call, either by name, from threshold tables, or by
// benchmarking the candidates on the spot.
package selector

import (
	"sort"
	"sync"

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
)

// Verb names, as used in configurations and tables.
const (
	VerbBarrier       = "barrier"
	VerbBcast         = "bcast"
	VerbReduce        = "reduce"
	VerbGather        = "gather"
	VerbGatherv       = "gatherv"
	VerbScatter       = "scatter"
	VerbScatterv      = "scatterv"
	VerbAllgather     = "allgather"
	VerbAllgatherv    = "allgatherv"
	VerbAlltoall      = "alltoall"
	VerbAlltoallv     = "alltoallv"
	VerbReduceScatter = "reduce_scatter"
	VerbAllreduce     = "allreduce"
)

// Params describes a collective call to the code that
// picks its algorithm.
type Params struct {
	Size int

	// Bytes is the amount of data the call moves, as
	// defined by each verb.
	Bytes int

	// Commutative is true if the call has no operator or
	// a commutative one.
	Commutative bool

	Topology *collcomm.Topology
}

// paramsFor must see the same inputs on every rank, so
// buffers that only matter on the root are never used.
func paramsFor(c *collcomm.Comms, bytes int, op collcomm.Op) Params {
	return Params{
		Size:        c.Size(),
		Bytes:       bytes,
		Commutative: op == nil || op.Commutative(),
		Topology:    c.Topology(),
	}
}

// vectorParams serves gatherv, scatterv and alltoallv,
// whose counts are either root-only or differ between
// ranks. Their Params carry no message size, so tables
// for these verbs can only split on the rank count.
func vectorParams(c *collcomm.Comms) Params {
	return paramsFor(c, 0, nil)
}

// An Algorithm is a named implementation of a verb.
type Algorithm[A any] struct {
	Name string

	// Applicable, if non-nil, reports whether the
	// algorithm can run natively for a call. Algorithms
	// that are not applicable still produce correct
	// results, usually by falling back to the default.
	Applicable func(p Params) bool

	Impl A
}

// AppliesTo checks the Applicable predicate.
func (a Algorithm[A]) AppliesTo(p Params) bool {
	return a.Applicable == nil || a.Applicable(p)
}

// A Registry lists the algorithms of one verb.
type Registry[A any] struct {
	Verb       string
	Default    string
	Algorithms []Algorithm[A]
}

// Lookup finds an algorithm by name.
func (r *Registry[A]) Lookup(name string) (Algorithm[A], bool) {
	for _, a := range r.Algorithms {
		if a.Name == name {
			return a, true
		}
	}
	return Algorithm[A]{}, false
}

// Names lists the algorithm names in sorted order.
func (r *Registry[A]) Names() []string {
	var res []string
	for _, a := range r.Algorithms {
		res = append(res, a.Name)
	}
	sort.Strings(res)
	return res
}

func (r *Registry[A]) verb() string {
	return r.Verb
}

func (r *Registry[A]) has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// catalog is the type-erased view of a Registry.
type catalog interface {
	verb() string
	has(name string) bool
	Names() []string
}

func catalogs() []catalog {
	return []catalog{
		Barriers(), Broadcasters(), Reducers(), Gatherers(), Gathervers(), Scatterers(),
		Scattervers(), Allgatherers(), Allgathervers(), Alltoallers(), Alltoallvers(),
		ReduceScatterers(), Allreducers(),
	}
}

func catalogFor(verb string) (catalog, bool) {
	for _, c := range catalogs() {
		if c.verb() == verb {
			return c, true
		}
	}
	return nil, false
}

// Verbs lists every verb that has a registry.
func Verbs() []string {
	var res []string
	for _, c := range catalogs() {
		res = append(res, c.verb())
	}
	return res
}

// AlgorithmNames lists the algorithms registered for a
// verb.
func AlgorithmNames(verb string) ([]string, bool) {
	c, ok := catalogFor(verb)
	if !ok {
		return nil, false
	}
	return c.Names(), true
}

func powerOfTwo(p Params) bool {
	return collcomm.IsPowerOfTwo(p.Size)
}

func evenSize(p Params) bool {
	return p.Size%2 == 0
}

func commutative(p Params) bool {
	return p.Commutative
}

func regularSMP(p Params) bool {
	return p.Topology.RequireRegular() == nil
}

// Registries of every verb, built on first use.
var (
	Barriers = sync.OnceValue(func() *Registry[barrier.Barrierer] {
		return &Registry[barrier.Barrierer]{
			Verb:    VerbBarrier,
			Default: "dissemination",
			Algorithms: []Algorithm[barrier.Barrierer]{
				{Name: "linear", Impl: barrier.Linear{}},
				{Name: "binomial", Impl: barrier.Binomial{}},
				{Name: "dissemination", Impl: barrier.Dissemination{}},
				{Name: "rdb", Impl: barrier.RecursiveDoubling{}},
			},
		}
	})

	Broadcasters = sync.OnceValue(func() *Registry[bcast.Broadcaster] {
		return &Registry[bcast.Broadcaster]{
			Verb:    VerbBcast,
			Default: "binomial_tree",
			Algorithms: []Algorithm[bcast.Broadcaster]{
				{Name: "flattree", Impl: bcast.FlatTree{}},
				{Name: "flattree_pipeline", Impl: bcast.FlatTreePipeline{}},
				{Name: "binomial_tree", Impl: bcast.BinomialTree{}},
				{Name: "binary_tree", Impl: bcast.BinaryTree{}},
				{Name: "chain", Impl: bcast.Chain{}},
				{Name: "knomial", Impl: bcast.Knomial{}},
				{Name: "scatter_rdb_allgather", Impl: bcast.ScatterRDBAllgather{}},
				{Name: "scatter_lr_allgather", Impl: bcast.ScatterLRAllgather{}},
				{Name: "smp_binomial", Impl: bcast.SMPBinomial()},
				{Name: "smp_linear", Impl: bcast.SMPLinear()},
				{Name: "smp_binary", Impl: bcast.SMPBinary()},
			},
		}
	})

	Reducers = sync.OnceValue(func() *Registry[reduce.Reducer] {
		return &Registry[reduce.Reducer]{
			Verb:    VerbReduce,
			Default: "binomial",
			Algorithms: []Algorithm[reduce.Reducer]{
				{Name: "flat_tree", Impl: reduce.FlatTree{}},
				{Name: "binomial", Impl: reduce.Binomial{}},
				{Name: "knomial", Impl: reduce.Knomial{}},
				{Name: "scatter_gather", Impl: reduce.ScatterGather{}, Applicable: commutative},
				{Name: "chain", Impl: reduce.Chain{}, Applicable: commutative},
				{Name: "smp_binomial", Impl: reduce.SMPBinomial{}, Applicable: commutative},
			},
		}
	})

	Gatherers = sync.OnceValue(func() *Registry[gather.Gatherer] {
		return &Registry[gather.Gatherer]{
			Verb:    VerbGather,
			Default: "binomial",
			Algorithms: []Algorithm[gather.Gatherer]{
				{Name: "flat_tree", Impl: gather.FlatTree{}},
				{Name: "binomial", Impl: gather.Binomial{}},
			},
		}
	})

	Gathervers = sync.OnceValue(func() *Registry[gather.Gatherver] {
		return &Registry[gather.Gatherver]{
			Verb:    VerbGatherv,
			Default: "linear",
			Algorithms: []Algorithm[gather.Gatherver]{
				{Name: "linear", Impl: gather.Linear{}},
			},
		}
	})

	Scatterers = sync.OnceValue(func() *Registry[scatter.Scatterer] {
		return &Registry[scatter.Scatterer]{
			Verb:    VerbScatter,
			Default: "binomial",
			Algorithms: []Algorithm[scatter.Scatterer]{
				{Name: "flat_tree", Impl: scatter.FlatTree{}},
				{Name: "binomial", Impl: scatter.Binomial{}},
			},
		}
	})

	Scattervers = sync.OnceValue(func() *Registry[scatter.Scatterver] {
		return &Registry[scatter.Scatterver]{
			Verb:    VerbScatterv,
			Default: "linear",
			Algorithms: []Algorithm[scatter.Scatterver]{
				{Name: "linear", Impl: scatter.Linear{}},
			},
		}
	})

	Allgatherers = sync.OnceValue(func() *Registry[allgather.Allgatherer] {
		return &Registry[allgather.Allgatherer]{
			Verb:    VerbAllgather,
			Default: "gather_bcast",
			Algorithms: []Algorithm[allgather.Allgatherer]{
				{Name: "gather_bcast", Impl: allgather.GatherBcast{}},
				{Name: "ring", Impl: allgather.Ring{}},
				{Name: "bruck", Impl: allgather.Bruck{}},
				{Name: "rdb", Impl: allgather.RDB{}, Applicable: powerOfTwo},
				{Name: "pair", Impl: allgather.Pair{}, Applicable: powerOfTwo},
				{Name: "neighbor_exchange", Impl: allgather.NeighborExchange{}, Applicable: evenSize},
				{Name: "smp_simple", Impl: allgather.SMPSimple{}, Applicable: regularSMP},
				{Name: "smp", Impl: allgather.SMP{}},
			},
		}
	})

	Allgathervers = sync.OnceValue(func() *Registry[allgather.Allgatherver] {
		return &Registry[allgather.Allgatherver]{
			Verb:    VerbAllgatherv,
			Default: "gatherv_bcast",
			Algorithms: []Algorithm[allgather.Allgatherver]{
				{Name: "gatherv_bcast", Impl: allgather.GathervBcast{}},
				{Name: "ring", Impl: allgather.RingV{}},
				{Name: "bruck", Impl: allgather.BruckV{}},
				{Name: "pair", Impl: allgather.PairV{}, Applicable: powerOfTwo},
			},
		}
	})

	Alltoallers = sync.OnceValue(func() *Registry[alltoall.Alltoaller] {
		return &Registry[alltoall.Alltoaller]{
			Verb:    VerbAlltoall,
			Default: "basic_linear",
			Algorithms: []Algorithm[alltoall.Alltoaller]{
				{Name: "basic_linear", Impl: alltoall.BasicLinear{}},
				{Name: "pair", Impl: alltoall.Pair{}, Applicable: powerOfTwo},
				{Name: "ring", Impl: alltoall.Ring{}},
				{Name: "bruck", Impl: alltoall.Bruck{}},
			},
		}
	})

	Alltoallvers = sync.OnceValue(func() *Registry[alltoall.Alltoallver] {
		return &Registry[alltoall.Alltoallver]{
			Verb:    VerbAlltoallv,
			Default: "basic_linear",
			Algorithms: []Algorithm[alltoall.Alltoallver]{
				{Name: "basic_linear", Impl: alltoall.BasicLinearV{}},
				{Name: "pair", Impl: alltoall.PairV{}, Applicable: powerOfTwo},
				{Name: "ring", Impl: alltoall.RingV{}},
			},
		}
	})

	ReduceScatterers = sync.OnceValue(func() *Registry[reducescatter.ReduceScatterer] {
		return &Registry[reducescatter.ReduceScatterer]{
			Verb:    VerbReduceScatter,
			Default: "reduce_scatterv",
			Algorithms: []Algorithm[reducescatter.ReduceScatterer]{
				{Name: "reduce_scatterv", Impl: reducescatter.ReduceScatterv{}},
				{Name: "rhv", Impl: reducescatter.RHV{}, Applicable: commutative},
				{Name: "ring", Impl: reducescatter.Ring{}, Applicable: commutative},
				{Name: "pair", Impl: reducescatter.Pair{}, Applicable: commutative},
			},
		}
	})

	Allreducers = sync.OnceValue(func() *Registry[allreduce.Allreducer] {
		return &Registry[allreduce.Allreducer]{
			Verb:    VerbAllreduce,
			Default: "redbcast",
			Algorithms: []Algorithm[allreduce.Allreducer]{
				{Name: "naive", Impl: allreduce.NaiveAllreducer{}},
				{Name: "tree", Impl: allreduce.TreeAllreducer{}, Applicable: commutative},
				{Name: "stream", Impl: allreduce.StreamAllreducer{}},
				{Name: "redbcast", Impl: allreduce.RedBcastAllreducer{}},
				{Name: "rdb", Impl: allreduce.RDBAllreducer{}},
				{Name: "rab", Impl: allreduce.RabAllreducer{}, Applicable: commutative},
				{Name: "lr", Impl: allreduce.LRAllreducer{}, Applicable: commutative},
				{Name: "smp_binomial", Impl: allreduce.SMPBinomial(), Applicable: commutative},
				{Name: "smp_rdb", Impl: allreduce.SMPRDB(), Applicable: commutative},
				{Name: "smp_rsag", Impl: allreduce.SMPRSAG(), Applicable: commutative},
			},
		}
	})
)
