package collcomm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// A Buffer is a typed view of memory: Count elements of
// Type, starting at the beginning of Data.
//
// For collectives where every rank contributes a block
// (gather, allgather, alltoall, ...), Count is the number
// of elements per block and Data holds all the blocks.
type Buffer struct {
	Data  []byte
	Count int
	Type  *Datatype
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(count int, t *Datatype) Buffer {
	return Buffer{Data: make([]byte, count*t.Extent), Count: count, Type: t}
}

// Bytes returns the span of the view in memory.
func (b Buffer) Bytes() int {
	return b.Count * b.Type.Extent
}

// PackedSize returns the number of data bytes in the
// view, excluding padding.
func (b Buffer) PackedSize() int {
	return b.Count * b.Type.Size()
}

// Slice returns a view of n elements starting at element
// off.
//
// It panics if the elements are not backed by Data.
func (b Buffer) Slice(off, n int) Buffer {
	if off < 0 || n < 0 {
		panic(fmt.Sprintf("invalid slice [%d:+%d]", off, n))
	}
	if n == 0 {
		return Buffer{Count: 0, Type: b.Type}
	}
	start := off * b.Type.Extent
	end := (off+n-1)*b.Type.Extent + b.Type.Size()
	if end > len(b.Data) {
		panic(fmt.Sprintf("slice [%d:+%d] out of bounds (%d bytes of %s)", off, n,
			len(b.Data), b.Type))
	}
	return Buffer{Data: b.Data[start:], Count: n, Type: b.Type}
}

// Block returns the i-th block of Count elements.
func (b Buffer) Block(i int) Buffer {
	return b.Slice(i*b.Count, b.Count)
}

// Blocks returns a view covering n consecutive blocks
// starting at block i.
func (b Buffer) Blocks(i, n int) Buffer {
	return b.Slice(i*b.Count, n*b.Count)
}

// WithCount returns the same memory with a new count.
func (b Buffer) WithCount(n int) Buffer {
	return Buffer{Data: b.Data, Count: n, Type: b.Type}
}

// Pack copies the data bytes of the view into a new
// contiguous slice.
func (b Buffer) Pack() []byte {
	size := b.Type.Size()
	res := make([]byte, b.Count*size)
	if !b.Type.Padded() {
		copy(res, b.Data[:len(res)])
		return res
	}
	for i := 0; i < b.Count; i++ {
		copy(res[i*size:(i+1)*size], b.Data[i*b.Type.Extent:])
	}
	return res
}

// Unpack copies packed bytes into the view and returns
// the number of elements written.
func (b Buffer) Unpack(packed []byte) (int, error) {
	size := b.Type.Size()
	if len(packed) > b.PackedSize() {
		return 0, errors.Wrapf(ErrTruncated, "%d bytes into %d elements of %s",
			len(packed), b.Count, b.Type)
	}
	if len(packed)%size != 0 {
		return 0, errors.Wrapf(ErrInvalidArgument, "%d bytes is not a multiple of %s",
			len(packed), b.Type)
	}
	n := len(packed) / size
	if !b.Type.Padded() {
		copy(b.Data, packed)
		return n, nil
	}
	for i := 0; i < n; i++ {
		copy(b.Data[i*b.Type.Extent:i*b.Type.Extent+size], packed[i*size:])
	}
	return n, nil
}

// CopyBuffer copies the contents of src into dst.
//
// The buffers may use different datatypes, as long as
// their primitive kinds match and dst is large enough.
func CopyBuffer(dst, src Buffer) error {
	if src.Count == 0 {
		return nil
	}
	if dst.Type.Kind != src.Type.Kind {
		return errors.Wrapf(ErrInvalidArgument, "copy from %s to %s", src.Type, dst.Type)
	}
	_, err := dst.Unpack(src.Pack())
	return err
}

// Clone allocates a copy of the view with the same type.
func (b Buffer) Clone() Buffer {
	res := NewBuffer(b.Count, b.Type)
	if _, err := res.Unpack(b.Pack()); err != nil {
		panic(err)
	}
	return res
}

type number interface {
	constraints.Integer | constraints.Float
}

// FromValues creates a buffer holding the given values.
//
// The number of values must be a multiple of t.Lanes.
func FromValues[T number](t *Datatype, values []T) Buffer {
	if len(values)%t.Lanes != 0 {
		panic(fmt.Sprintf("%d values do not fill elements of %s", len(values), t))
	}
	res := NewBuffer(len(values)/t.Lanes, t)
	ks := t.Kind.Size()
	for i, v := range values {
		off := (i/t.Lanes)*t.Extent + (i%t.Lanes)*ks
		setValue(res.Data[off:], t.Kind, v)
	}
	return res
}

// Values decodes every primitive in the view.
func Values[T number](b Buffer) []T {
	t := b.Type
	ks := t.Kind.Size()
	res := make([]T, b.Count*t.Lanes)
	for i := range res {
		off := (i/t.Lanes)*t.Extent + (i%t.Lanes)*ks
		res[i] = getValue[T](b.Data[off:], t.Kind)
	}
	return res
}

// Int32s creates an Int32 buffer.
func Int32s(values ...int32) Buffer {
	return FromValues(Int32, values)
}

// Int64s creates an Int64 buffer.
func Int64s(values ...int64) Buffer {
	return FromValues(Int64, values)
}

// Float64s creates a Float64 buffer.
func Float64s(values ...float64) Buffer {
	return FromValues(Float64, values)
}

func getValue[T number](b []byte, k Kind) T {
	switch k {
	case KindByte:
		return T(b[0])
	case KindInt32:
		return T(int32(binary.LittleEndian.Uint32(b)))
	case KindInt64:
		return T(int64(binary.LittleEndian.Uint64(b)))
	case KindUint64:
		return T(binary.LittleEndian.Uint64(b))
	case KindFloat32:
		return T(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case KindFloat64:
		return T(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	}
	panic(fmt.Sprintf("unknown kind: %s", k))
}

func setValue[T number](b []byte, k Kind, v T) {
	switch k {
	case KindByte:
		b[0] = byte(v)
	case KindInt32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	case KindInt64:
		binary.LittleEndian.PutUint64(b, uint64(int64(v)))
	case KindUint64:
		binary.LittleEndian.PutUint64(b, uint64(v))
	case KindFloat32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case KindFloat64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(float64(v)))
	default:
		panic(fmt.Sprintf("unknown kind: %s", k))
	}
}
