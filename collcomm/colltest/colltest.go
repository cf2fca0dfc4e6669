// Package colltest runs collective algorithms in small
// simulated worlds and provides deterministic payloads
// for checking their results.
package colltest

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/simulator"
	"github.com/stretchr/testify/require"
)

// Sizes lists the communicator sizes swept by Sweep,
// mixing powers of two with sizes that need a fold.
var Sizes = []int{1, 2, 3, 4, 5, 7, 8, 12, 16, 17}

// Network parameters of simulated worlds.
const (
	Latency      = 1e-5
	Rate         = 1e9
	IntraLatency = 1e-7
	IntraRate    = 1e10
)

// A World describes a set of simulated ranks.
type World struct {
	Size int

	// Cores is the number of ranks per node. The last node
	// hosts fewer ranks when Cores does not divide Size.
	Cores int

	// Random selects simulator.RandomNetwork, which
	// reorders messages, instead of a switched network.
	Random bool

	// Ordered selects simulator.OrderedNetwork, which keeps
	// each destination's arrivals in order but gives every
	// message a random latency.
	Ordered bool
}

// FlatWorld creates a world with one rank per node.
func FlatWorld(size int) World {
	return World{Size: size, Cores: 1}
}

// SMPWorld creates a world of nodes*cores ranks.
func SMPWorld(nodes, cores int) World {
	return World{Size: nodes * cores, Cores: cores}
}

func (w World) String() string {
	net := "switched"
	if w.Random {
		net = "random"
	} else if w.Ordered {
		net = "ordered"
	}
	return fmt.Sprintf("Size=%d,Cores=%d,Net=%s", w.Size, w.Cores, net)
}

// Worlds lists the worlds of a given size used by Sweep.
func Worlds(size int) []World {
	res := []World{
		{Size: size, Cores: 1, Random: true},
		{Size: size, Cores: 1},
	}
	if size == 3 || size == 8 {
		res = append(res, World{Size: size, Cores: 1, Ordered: true})
	}
	if size > 2 {
		res = append(res, World{Size: size, Cores: 2})
	}
	if size > 4 {
		res = append(res, World{Size: size, Cores: 4, Random: true})
	}
	return res
}

// Placement returns the nodes hosting every rank, along
// with the distinct nodes.
func (w World) Placement() (placement, nodes []*simulator.Node) {
	cores := w.Cores
	if cores < 1 {
		cores = 1
	}
	nodes = simulator.NewNodes((w.Size + cores - 1) / cores)
	placement = make([]*simulator.Node, w.Size)
	for i := range placement {
		placement[i] = nodes[i/cores]
	}
	return placement, nodes
}

// Network creates the network connecting nodes.
func (w World) Network(nodes []*simulator.Node) simulator.Network {
	if w.Random {
		return simulator.RandomNetwork{}
	}
	if w.Ordered {
		return simulator.NewOrderedNetwork(Rate, Latency)
	}
	if w.Cores > 1 {
		return simulator.NewSMPNetwork(nodes, Latency, Rate, IntraLatency, IntraRate)
	}
	switcher := simulator.NewGreedyDropSwitcher(len(nodes), Rate)
	return simulator.NewSwitcherNetwork(switcher, nodes, Latency)
}

// Run calls f on every rank of a fresh world and waits
// for the simulation to finish.
//
// It returns the first error reported by a rank, or a
// deadlock error from the event loop.
func (w World) Run(f func(c *collcomm.Comms) error) error {
	_, err := w.RunTimed(f)
	return err
}

// RunTimed is like Run, but also returns the virtual time
// at which the last rank finished.
func (w World) RunTimed(f func(c *collcomm.Comms) error) (float64, error) {
	loop := simulator.NewEventLoop()
	placement, nodes := w.Placement()
	errs := make([]error, w.Size)
	ends := make([]float64, w.Size)
	collcomm.SpawnComms(loop, w.Network(nodes), placement, func(c *collcomm.Comms) {
		errs[c.Rank()] = f(c)
		ends[c.Rank()] = c.Time()
	})
	loopErr := loop.Run()
	for i, err := range errs {
		if err != nil {
			return 0, errors.Wrapf(err, "rank %d", i)
		}
	}
	if loopErr != nil {
		return 0, errors.Wrap(loopErr, "run simulation")
	}
	var end float64
	for _, t := range ends {
		end = max(end, t)
	}
	return end, nil
}

// Sweep runs f as a subtest for every world of every size
// in Sizes.
func Sweep(t *testing.T, f func(t *testing.T, w World)) {
	for _, size := range Sizes {
		for _, w := range Worlds(size) {
			t.Run(w.String(), func(t *testing.T) {
				f(t, w)
			})
		}
	}
}

// RequireUntouched runs f on every rank of w with a fresh
// buffer of n Untouched elements and fails unless every
// buffer still holds only Untouched afterwards.
func RequireUntouched(t *testing.T, w World, n int, f func(c *collcomm.Comms, buf collcomm.Buffer) error) {
	t.Helper()
	results := make([][]int64, w.Size)
	err := w.Run(func(c *collcomm.Comms) error {
		buf := Filled(n)
		if err := f(c, buf); err != nil {
			return err
		}
		results[c.Rank()] = collcomm.Values[int64](buf)
		return nil
	})
	require.NoError(t, err)
	for rank, res := range results {
		require.Equal(t, UntouchedValues(n), res, "rank %d", rank)
	}
}
