package collcomm

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferSlice(t *testing.T) {
	buf := Int32s(1, 2, 3, 4, 5, 6)
	require.Equal(t, []int32{3, 4}, Values[int32](buf.Slice(2, 2)))
	require.Equal(t, 0, buf.Slice(6, 0).Count)
	assert.Panics(t, func() { buf.Slice(5, 2) })
	assert.Panics(t, func() { buf.Slice(-1, 1) })

	blocks := buf.WithCount(2)
	require.Equal(t, []int32{5, 6}, Values[int32](blocks.Block(2)))
	require.Equal(t, []int32{3, 4, 5, 6}, Values[int32](blocks.Blocks(1, 2)))
}

func TestBufferPadded(t *testing.T) {
	padded, err := Resized(Int32, 8)
	require.NoError(t, err)
	buf := FromValues(padded, []int32{7, 8, 9})
	require.Equal(t, 24, buf.Bytes())
	require.Equal(t, 12, buf.PackedSize())

	dense := NewBuffer(3, Int32)
	require.NoError(t, CopyBuffer(dense, buf))
	require.Equal(t, []int32{7, 8, 9}, Values[int32](dense))

	back := NewBuffer(3, padded)
	require.NoError(t, CopyBuffer(back, dense))
	require.Equal(t, []int32{7, 8, 9}, Values[int32](back))
	require.Equal(t, []int32{8, 9}, Values[int32](back.Slice(1, 2)))
}

func TestBufferUnpackErrors(t *testing.T) {
	buf := NewBuffer(2, Int64)
	_, err := buf.Unpack(make([]byte, 24))
	require.True(t, errors.Is(err, ErrTruncated))

	_, err = buf.Unpack(make([]byte, 5))
	require.True(t, errors.Is(err, ErrInvalidArgument))

	n, err := buf.Unpack(Int64s(3).Pack())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []int64{3, 0}, Values[int64](buf))

	err = CopyBuffer(NewBuffer(2, Float64), Int64s(1, 2))
	require.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestContiguous(t *testing.T) {
	pair, err := Contiguous(2, Int64)
	require.NoError(t, err)
	require.Equal(t, 16, pair.Size())
	buf := FromValues(pair, []int64{1, 2, 3, 4})
	require.Equal(t, 2, buf.Count)
	require.Equal(t, []int64{3, 4}, Values[int64](buf.Slice(1, 1)))

	_, err = Contiguous(0, Int64)
	require.Error(t, err)
	padded, _ := Resized(Int64, 16)
	_, err = Contiguous(2, padded)
	require.Error(t, err)
}

func TestBuiltinOps(t *testing.T) {
	in := Int32s(1, 5, -3)
	inout := Int32s(4, 2, -7)
	require.NoError(t, Sum.Apply(in.Data, inout.Data, 3, Int32))
	require.Equal(t, []int32{5, 7, -10}, Values[int32](inout))

	require.NoError(t, Max.Apply(in.Data, inout.Data, 3, Int32))
	require.Equal(t, []int32{5, 7, -3}, Values[int32](inout))

	f := Float64s(1.5, 2)
	g := Float64s(2, 0.25)
	require.NoError(t, Prod.Apply(f.Data, g.Data, 2, Float64))
	require.Equal(t, []float64{3, 0.5}, Values[float64](g))
	require.Error(t, Bxor.Apply(f.Data, g.Data, 2, Float64))

	a := Int64s(0b1100, 0, 3)
	b := Int64s(0b1010, 5, 0)
	require.NoError(t, Bxor.Apply(a.Data, b.Data, 3, Int64))
	require.Equal(t, []int64{0b0110, 5, 3}, Values[int64](b))
	require.NoError(t, Land.Apply(a.Data, b.Data, 3, Int64))
	require.Equal(t, []int64{1, 0, 1}, Values[int64](b))

	for _, op := range []Op{Sum, Prod, Max, Min, Land, Lor, Band, Bor, Bxor} {
		require.True(t, op.Commutative(), op.Name())
	}
}
