package collcomm

import (
	"fmt"

	"github.com/pkg/errors"
)

// A Kind is the primitive element type underlying a
// Datatype.
type Kind int

const (
	KindByte Kind = iota
	KindInt32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
)

// Size returns the number of bytes in one primitive.
func (k Kind) Size() int {
	switch k {
	case KindByte:
		return 1
	case KindInt32, KindFloat32:
		return 4
	case KindInt64, KindUint64, KindFloat64:
		return 8
	}
	panic(fmt.Sprintf("unknown kind: %d", int(k)))
}

// IsInteger reports whether bitwise operators apply.
func (k Kind) IsInteger() bool {
	return k != KindFloat32 && k != KindFloat64
}

func (k Kind) String() string {
	switch k {
	case KindByte:
		return "byte"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// A Datatype describes one logical element of a buffer.
//
// An element consists of Lanes primitives of the same
// Kind stored back to back, followed by padding up to
// Extent bytes.
type Datatype struct {
	Name   string
	Kind   Kind
	Lanes  int
	Extent int
}

// Builtin datatypes.
var (
	Byte    = &Datatype{Name: "byte", Kind: KindByte, Lanes: 1, Extent: 1}
	Int32   = &Datatype{Name: "int32", Kind: KindInt32, Lanes: 1, Extent: 4}
	Int64   = &Datatype{Name: "int64", Kind: KindInt64, Lanes: 1, Extent: 8}
	Uint64  = &Datatype{Name: "uint64", Kind: KindUint64, Lanes: 1, Extent: 8}
	Float32 = &Datatype{Name: "float32", Kind: KindFloat32, Lanes: 1, Extent: 4}
	Float64 = &Datatype{Name: "float64", Kind: KindFloat64, Lanes: 1, Extent: 8}
)

// Contiguous creates a datatype made of n consecutive
// elements of t.
//
// The base type must not be padded.
func Contiguous(n int, t *Datatype) (*Datatype, error) {
	if n <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "contiguous count %d", n)
	}
	if t.Padded() {
		return nil, errors.Wrapf(ErrInvalidArgument, "contiguous of padded type %s", t.Name)
	}
	return &Datatype{
		Name:   fmt.Sprintf("contiguous(%d,%s)", n, t.Name),
		Kind:   t.Kind,
		Lanes:  n * t.Lanes,
		Extent: n * t.Extent,
	}, nil
}

// Resized creates a copy of t with a larger extent.
func Resized(t *Datatype, extent int) (*Datatype, error) {
	if extent < t.Size() {
		return nil, errors.Wrapf(ErrInvalidArgument, "extent %d smaller than size %d",
			extent, t.Size())
	}
	return &Datatype{
		Name:   fmt.Sprintf("resized(%s,%d)", t.Name, extent),
		Kind:   t.Kind,
		Lanes:  t.Lanes,
		Extent: extent,
	}, nil
}

// Size returns the number of data bytes in one element,
// excluding padding.
func (d *Datatype) Size() int {
	return d.Lanes * d.Kind.Size()
}

// Padded reports whether the extent exceeds the size.
func (d *Datatype) Padded() bool {
	return d.Extent != d.Size()
}

func (d *Datatype) String() string {
	return d.Name
}
