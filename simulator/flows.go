package simulator

import "fmt"

// A FlowMatrix holds one value per ordered pair of nodes:
// row src, column dst.
//
// Switchers receive it with 1 for every pair that has data
// in flight and replace those entries with transfer rates.
type FlowMatrix struct {
	n    int
	data []float64
}

// NewFlowMatrix creates an all-zero matrix for n nodes.
func NewFlowMatrix(n int) *FlowMatrix {
	return &FlowMatrix{n: n, data: make([]float64, n*n)}
}

// NumNodes returns the number of rows (and columns).
func (f *FlowMatrix) NumNodes() int {
	return f.n
}

func (f *FlowMatrix) index(src, dst int) int {
	f.checkNode(src)
	f.checkNode(dst)
	return src*f.n + dst
}

func (f *FlowMatrix) checkNode(i int) {
	if i < 0 || i >= f.n {
		panic(fmt.Sprintf("node %d out of bounds for %d nodes", i, f.n))
	}
}

// Get returns the entry for src -> dst.
func (f *FlowMatrix) Get(src, dst int) float64 {
	return f.data[f.index(src, dst)]
}

// Set overwrites the entry for src -> dst.
func (f *FlowMatrix) Set(src, dst int, value float64) {
	f.data[f.index(src, dst)] = value
}

// Add increments the entry for src -> dst.
func (f *FlowMatrix) Add(src, dst int, delta float64) {
	f.data[f.index(src, dst)] += delta
}

// Outgoing sums the row of src.
func (f *FlowMatrix) Outgoing(src int) float64 {
	f.checkNode(src)
	var sum float64
	for _, x := range f.data[src*f.n : (src+1)*f.n] {
		sum += x
	}
	return sum
}

// Incoming sums the column of dst.
func (f *FlowMatrix) Incoming(dst int) float64 {
	f.checkNode(dst)
	var sum float64
	for src := 0; src < f.n; src++ {
		sum += f.data[src*f.n+dst]
	}
	return sum
}

// ScaleOutgoing multiplies the row of src.
func (f *FlowMatrix) ScaleOutgoing(src int, scale float64) {
	f.checkNode(src)
	row := f.data[src*f.n : (src+1)*f.n]
	for i := range row {
		row[i] *= scale
	}
}

// ScaleIncoming multiplies the column of dst.
func (f *FlowMatrix) ScaleIncoming(dst int, scale float64) {
	f.checkNode(dst)
	for src := 0; src < f.n; src++ {
		f.data[src*f.n+dst] *= scale
	}
}
