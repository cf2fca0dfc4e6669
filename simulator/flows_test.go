package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlowMatrixSums(t *testing.T) {
	flows := NewFlowMatrix(4)
	flows.Set(1, 2, 3)
	flows.Set(0, 2, 2)
	flows.Add(2, 3, 1)
	flows.Add(2, 3, 3)
	for i, expected := range []float64{0, 0, 5, 4} {
		assert.Equal(t, expected, flows.Incoming(i), "incoming %d", i)
	}
	for i, expected := range []float64{2, 3, 4, 0} {
		assert.Equal(t, expected, flows.Outgoing(i), "outgoing %d", i)
	}
}

func TestFlowMatrixScales(t *testing.T) {
	flows := NewFlowMatrix(4)
	flows.Set(1, 2, 3)
	flows.Set(1, 3, 5)
	flows.Set(0, 2, 2)
	flows.Set(2, 3, 4)

	flows.ScaleOutgoing(1, 2)
	for i, expected := range []float64{0, 0, 6, 10} {
		assert.Equal(t, expected, flows.Get(1, i), "column %d", i)
	}
	flows.ScaleIncoming(3, 3)
	for i, expected := range []float64{0, 30, 12, 0} {
		assert.Equal(t, expected, flows.Get(i, 3), "row %d", i)
	}
}

func TestFlowMatrixBounds(t *testing.T) {
	flows := NewFlowMatrix(2)
	assert.Panics(t, func() { flows.Get(2, 0) })
	assert.Panics(t, func() { flows.Outgoing(-1) })
}
