package simulator

import "math"

// A NIC is the network interface of a Node, with separate
// upload and download rates in bytes per second.
type NIC struct {
	Up   float64
	Down float64
}

// UniformNICs creates n identical full-duplex NICs.
func UniformNICs(n int, rate float64) []NIC {
	res := make([]NIC, n)
	for i := range res {
		res[i] = NIC{Up: rate, Down: rate}
	}
	return res
}

// A Switcher decides how fast data flows between nodes,
// and in particular how oversubscribed NICs are shared.
type Switcher interface {
	// SwitchedRates is passed a matrix with 1 for every
	// pair of nodes with data in flight and 0 elsewhere.
	// It replaces the entries with the rate of each pair.
	SwitchedRates(flows *FlowMatrix)
}

// A GreedyDropSwitcher spreads a node's upload rate evenly
// over its destinations, and then scales down the traffic
// into every oversubscribed destination.
type GreedyDropSwitcher struct {
	NICs []NIC
}

// NewGreedyDropSwitcher creates a GreedyDropSwitcher with
// the same rate on every NIC.
func NewGreedyDropSwitcher(numNodes int, rate float64) *GreedyDropSwitcher {
	return &GreedyDropSwitcher{NICs: UniformNICs(numNodes, rate)}
}

// SwitchedRates performs the switching algorithm.
func (g *GreedyDropSwitcher) SwitchedRates(flows *FlowMatrix) {
	checkNICs(g.NICs, flows)
	for src, nic := range g.NICs {
		if n := flows.Outgoing(src); n > 0 {
			flows.ScaleOutgoing(src, nic.Up/n)
		}
	}
	for dst, nic := range g.NICs {
		if incoming := flows.Incoming(dst); incoming > nic.Down {
			flows.ScaleIncoming(dst, nic.Down/incoming)
		}
	}
}

// A MaxMinSwitcher shares NIC bandwidth with max-min
// fairness: every pair gets the same rate until one of the
// NICs it uses is saturated, and the leftover bandwidth of
// the other NICs goes to the remaining pairs.
//
// Unlike GreedyDropSwitcher, no upload bandwidth is wasted
// on a destination that cannot absorb it.
type MaxMinSwitcher struct {
	NICs []NIC
}

// NewMaxMinSwitcher creates a MaxMinSwitcher with the same
// rate on every NIC.
func NewMaxMinSwitcher(numNodes int, rate float64) *MaxMinSwitcher {
	return &MaxMinSwitcher{NICs: UniformNICs(numNodes, rate)}
}

// SwitchedRates performs progressive filling.
func (m *MaxMinSwitcher) SwitchedRates(flows *FlowMatrix) {
	checkNICs(m.NICs, flows)
	n := flows.NumNodes()

	type pair struct{ src, dst int }
	var active []pair
	for src := 0; src < n; src++ {
		for dst := 0; dst < n; dst++ {
			if flows.Get(src, dst) > 0 {
				active = append(active, pair{src, dst})
			}
			flows.Set(src, dst, 0)
		}
	}

	up := make([]float64, n)
	down := make([]float64, n)
	for i, nic := range m.NICs {
		up[i], down[i] = nic.Up, nic.Down
	}

	for len(active) > 0 {
		upUsers := make([]int, n)
		downUsers := make([]int, n)
		for _, p := range active {
			upUsers[p.src]++
			downUsers[p.dst]++
		}
		share := math.Inf(1)
		for i := 0; i < n; i++ {
			if upUsers[i] > 0 {
				share = math.Min(share, up[i]/float64(upUsers[i]))
			}
			if downUsers[i] > 0 {
				share = math.Min(share, down[i]/float64(downUsers[i]))
			}
		}

		upFull := make([]bool, n)
		downFull := make([]bool, n)
		for i := 0; i < n; i++ {
			upFull[i] = upUsers[i] > 0 && up[i]/float64(upUsers[i]) == share
			downFull[i] = downUsers[i] > 0 && down[i]/float64(downUsers[i]) == share
		}

		remaining := active[:0]
		for _, p := range active {
			flows.Add(p.src, p.dst, share)
			up[p.src] -= share
			down[p.dst] -= share
			if !upFull[p.src] && !downFull[p.dst] {
				remaining = append(remaining, p)
			}
		}
		active = remaining
	}
}

func checkNICs(nics []NIC, flows *FlowMatrix) {
	if len(nics) != flows.NumNodes() {
		panic("unexpected number of nodes")
	}
}
