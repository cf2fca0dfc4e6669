// Command bench_colls prints a markdown table of the
// virtual time every algorithm of a collective verb takes
// on a few simulated clusters.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/selector"
	"github.com/simgrid/simgrid-sub002/simulator"
	"github.com/unixpickle/essentials"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// RunInfo describes a specific network configuration.
type RunInfo struct {
	NumNodes int
	Cores    int
	Latency  float64
	Rate     float64

	// MaxMin selects max-min fair bandwidth sharing instead
	// of the greedy drop switch for one-core runs.
	MaxMin bool
}

// Run creates a network and drops each rank into its own
// Goroutine, returning the virtual time at which the
// simulation ended.
func (r *RunInfo) Run(commFn func(c *collcomm.Comms) error) (float64, error) {
	loop := simulator.NewEventLoop()
	nodes := simulator.NewNodes(r.NumNodes)
	placement := make([]*simulator.Node, 0, r.NumNodes*r.Cores)
	for _, node := range nodes {
		for i := 0; i < r.Cores; i++ {
			placement = append(placement, node)
		}
	}
	var network simulator.Network
	if r.Cores > 1 {
		network = simulator.NewSMPNetwork(nodes, r.Latency, r.Rate, r.Latency/100, r.Rate*10)
	} else {
		var switcher simulator.Switcher
		if r.MaxMin {
			switcher = simulator.NewMaxMinSwitcher(r.NumNodes, r.Rate)
		} else {
			switcher = simulator.NewGreedyDropSwitcher(r.NumNodes, r.Rate)
		}
		network = simulator.NewSwitcherNetwork(switcher, nodes, r.Latency)
	}
	errs := make([]error, len(placement))
	collcomm.SpawnComms(loop, network, placement, func(c *collcomm.Comms) {
		errs[c.Rank()] = commFn(c)
	})
	if err := loop.Run(); err != nil {
		return 0, err
	}
	for i, err := range errs {
		if err != nil {
			return 0, errors.Wrapf(err, "rank %d", i)
		}
	}
	return loop.Time(), nil
}

// A verbCall runs one collective on count elements per
// rank.
type verbCall func(s *selector.Selector, c *collcomm.Comms, count int) error

func float64s(n int) collcomm.Buffer {
	return collcomm.NewBuffer(n, collcomm.Float64)
}

var verbCalls = map[string]verbCall{
	selector.VerbBarrier: func(s *selector.Selector, c *collcomm.Comms, count int) error {
		return s.Barrier(c)
	},
	selector.VerbBcast: func(s *selector.Selector, c *collcomm.Comms, count int) error {
		return s.Bcast(c, float64s(count), 0)
	},
	selector.VerbReduce: func(s *selector.Selector, c *collcomm.Comms, count int) error {
		return s.Reduce(c, float64s(count), float64s(count), collcomm.Sum, 0)
	},
	selector.VerbAllreduce: func(s *selector.Selector, c *collcomm.Comms, count int) error {
		return s.Allreduce(c, float64s(count), float64s(count), collcomm.Sum)
	},
	selector.VerbGather: func(s *selector.Selector, c *collcomm.Comms, count int) error {
		return s.Gather(c, float64s(count), float64s(count*c.Size()).WithCount(count), 0)
	},
	selector.VerbGatherv: func(s *selector.Selector, c *collcomm.Comms, count int) error {
		counts, displs := uniform(c.Size(), count)
		return s.Gatherv(c, float64s(count), float64s(count*c.Size()), counts, displs, 0)
	},
	selector.VerbScatter: func(s *selector.Selector, c *collcomm.Comms, count int) error {
		return s.Scatter(c, float64s(count*c.Size()).WithCount(count), float64s(count), 0)
	},
	selector.VerbScatterv: func(s *selector.Selector, c *collcomm.Comms, count int) error {
		counts, displs := uniform(c.Size(), count)
		return s.Scatterv(c, float64s(count*c.Size()), counts, displs, float64s(count), 0)
	},
	selector.VerbAllgather: func(s *selector.Selector, c *collcomm.Comms, count int) error {
		return s.Allgather(c, float64s(count), float64s(count*c.Size()).WithCount(count))
	},
	selector.VerbAllgatherv: func(s *selector.Selector, c *collcomm.Comms, count int) error {
		counts, displs := uniform(c.Size(), count)
		return s.Allgatherv(c, float64s(count), float64s(count*c.Size()), counts, displs)
	},
	selector.VerbAlltoall: func(s *selector.Selector, c *collcomm.Comms, count int) error {
		size := c.Size()
		return s.Alltoall(c, float64s(count*size).WithCount(count),
			float64s(count*size).WithCount(count))
	},
	selector.VerbAlltoallv: func(s *selector.Selector, c *collcomm.Comms, count int) error {
		counts, displs := uniform(c.Size(), count)
		return s.Alltoallv(c, float64s(count*c.Size()), counts, displs, float64s(count*c.Size()),
			counts, displs)
	},
	selector.VerbReduceScatter: func(s *selector.Selector, c *collcomm.Comms, count int) error {
		counts, _ := uniform(c.Size(), count)
		return s.ReduceScatter(c, float64s(count*c.Size()), float64s(count), counts, collcomm.Sum)
	},
}

func uniform(size, count int) (counts, displs []int) {
	counts = make([]int, size)
	displs = make([]int, size)
	for i := range counts {
		counts[i] = count
		displs[i] = i * count
	}
	return counts, displs
}

func main() {
	var verb string
	var sizesFlag string
	var automatic bool
	var workers int
	var maxMin bool
	klog.InitFlags(nil)
	flag.StringVar(&verb, "verb", selector.VerbAllreduce, "collective verb to benchmark")
	flag.StringVar(&sizesFlag, "sizes", "10,10000,1000000", "comma-separated element counts")
	flag.BoolVar(&automatic, "automatic", false, "add a column for automatic selection")
	flag.IntVar(&workers, "workers", runtime.GOMAXPROCS(0), "simulations to run at once")
	flag.BoolVar(&maxMin, "maxmin", false, "share NIC bandwidth with max-min fairness")
	flag.Parse()

	call, ok := verbCalls[verb]
	if !ok {
		klog.Errorf("unknown verb %q (known: %s)", verb, strings.Join(selector.Verbs(), ", "))
		os.Exit(1)
	}
	algorithmNames, _ := selector.AlgorithmNames(verb)
	if automatic {
		algorithmNames = append(algorithmNames, selector.Automatic)
	}
	selectors := make([]*selector.Selector, len(algorithmNames))
	for i, name := range algorithmNames {
		s, err := selector.NewSelector(selector.Config{Verbs: map[string]string{verb: name}})
		essentials.Must(err)
		selectors[i] = s
	}

	var vecSizes []int
	for _, field := range strings.Split(sizesFlag, ",") {
		size, err := strconv.Atoi(strings.TrimSpace(field))
		essentials.Must(errors.Wrapf(err, "parse size %q", field))
		vecSizes = append(vecSizes, size)
	}

	runs := []RunInfo{
		{NumNodes: 2, Cores: 1, Latency: 0.1, Rate: 1e6},
		{NumNodes: 16, Cores: 1, Latency: 1e-3, Rate: 1e6},
		{NumNodes: 32, Cores: 1, Latency: 1e-4, Rate: 1e9},
		{NumNodes: 5, Cores: 1, Latency: 1e-4, Rate: 1e9},
		{NumNodes: 4, Cores: 4, Latency: 1e-4, Rate: 1e9},
		{NumNodes: 8, Cores: 2, Latency: 1e-3, Rate: 1e8},
	}
	for i := range runs {
		runs[i].MaxMin = maxMin
	}

	// Every simulation is independent, so they run in
	// parallel and fill in their own cell.
	times := make([][][]float64, len(runs))
	bar := progressbar.Default(int64(len(runs)*len(vecSizes)*len(selectors)), "Simulating "+verb)
	var g errgroup.Group
	g.SetLimit(essentials.MaxInt(1, workers))
	for i, runInfo := range runs {
		times[i] = make([][]float64, len(vecSizes))
		for j, size := range vecSizes {
			times[i][j] = make([]float64, len(selectors))
			for k, s := range selectors {
				i, j, k, runInfo, size, s := i, j, k, runInfo, size, s
				g.Go(func() error {
					defer bar.Add(1)
					t, err := runInfo.Run(func(c *collcomm.Comms) error {
						return call(s, c, size)
					})
					if err != nil {
						return errors.Wrapf(err, "%s on %d nodes x %d cores, %d elements",
							algorithmNames[k], runInfo.NumNodes, runInfo.Cores, size)
					}
					times[i][j][k] = t
					return nil
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		klog.Errorf("benchmark failed: %v", err)
		os.Exit(1)
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	// Markdown table header.
	fmt.Print("| Nodes | Cores | Latency | NIC rate | Size ")
	for _, name := range algorithmNames {
		fmt.Printf("| %s ", name)
	}
	fmt.Println("|")
	for i := 0; i < 5+len(algorithmNames); i++ {
		fmt.Print("|:--")
	}
	fmt.Println("|")

	// Markdown table body.
	for i, runInfo := range runs {
		for j, size := range vecSizes {
			fmt.Printf(
				"| %d | %d | %s | %s | %s ",
				runInfo.NumNodes,
				runInfo.Cores,
				strconv.FormatFloat(runInfo.Latency, 'f', -1, 64),
				strconv.FormatFloat(runInfo.Rate, 'E', -1, 64),
				humanize.IBytes(uint64(size*collcomm.Float64.Extent)),
			)
			for k := range selectors {
				fmt.Printf("| %f ", times[i][j][k])
			}
			fmt.Println("|")
		}
	}
}
