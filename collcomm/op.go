package collcomm

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// FlopTime is the amount of virtual time it takes to
// perform a single floating-point operation.
const FlopTime = 1e-9

// An Op is an associative reduction operator.
type Op interface {
	Name() string

	// Commutative reports whether the order of operands
	// may be changed.
	Commutative() bool

	// Apply computes inout[i] = in[i] (+) inout[i] for
	// count elements of t.
	// The in operand always comes from lower ranks when
	// the operator is not commutative.
	Apply(in, inout []byte, count int, t *Datatype) error
}

// A UserOp is an Op backed by an arbitrary function.
type UserOp struct {
	OpName  string
	Commute bool
	Fn      func(in, inout []byte, count int, t *Datatype) error
}

func (u *UserOp) Name() string {
	return u.OpName
}

func (u *UserOp) Commutative() bool {
	return u.Commute
}

func (u *UserOp) Apply(in, inout []byte, count int, t *Datatype) error {
	return u.Fn(in, inout, count, t)
}

// Builtin operators.
var (
	Sum = &builtinOp{name: "sum", kernels: kernels{
		u8: add[uint8], i32: add[int32], i64: add[int64], u64: add[uint64],
		f32: add[float32], f64: add[float64],
	}}
	Prod = &builtinOp{name: "prod", kernels: kernels{
		u8: mul[uint8], i32: mul[int32], i64: mul[int64], u64: mul[uint64],
		f32: mul[float32], f64: mul[float64],
	}}
	Max = &builtinOp{name: "max", kernels: kernels{
		u8: maxOf[uint8], i32: maxOf[int32], i64: maxOf[int64], u64: maxOf[uint64],
		f32: maxOf[float32], f64: maxOf[float64],
	}}
	Min = &builtinOp{name: "min", kernels: kernels{
		u8: minOf[uint8], i32: minOf[int32], i64: minOf[int64], u64: minOf[uint64],
		f32: minOf[float32], f64: minOf[float64],
	}}
	Land = &builtinOp{name: "land", kernels: kernels{
		u8: land[uint8], i32: land[int32], i64: land[int64], u64: land[uint64],
	}}
	Lor = &builtinOp{name: "lor", kernels: kernels{
		u8: lor[uint8], i32: lor[int32], i64: lor[int64], u64: lor[uint64],
	}}
	Band = &builtinOp{name: "band", kernels: kernels{
		u8: band[uint8], i32: band[int32], i64: band[int64], u64: band[uint64],
	}}
	Bor = &builtinOp{name: "bor", kernels: kernels{
		u8: bor[uint8], i32: bor[int32], i64: bor[int64], u64: bor[uint64],
	}}
	Bxor = &builtinOp{name: "bxor", kernels: kernels{
		u8: bxor[uint8], i32: bxor[int32], i64: bxor[int64], u64: bxor[uint64],
	}}
)

type kernels struct {
	u8  func(a, b uint8) uint8
	i32 func(a, b int32) int32
	i64 func(a, b int64) int64
	u64 func(a, b uint64) uint64
	f32 func(a, b float32) float32
	f64 func(a, b float64) float64
}

// builtinOp is a commutative elementwise operator.
type builtinOp struct {
	name    string
	kernels kernels
}

func (b *builtinOp) Name() string {
	return b.name
}

func (b *builtinOp) Commutative() bool {
	return true
}

func (b *builtinOp) Apply(in, inout []byte, count int, t *Datatype) error {
	switch t.Kind {
	case KindByte:
		return applyKernel(b.name, b.kernels.u8, in, inout, count, t)
	case KindInt32:
		return applyKernel(b.name, b.kernels.i32, in, inout, count, t)
	case KindInt64:
		return applyKernel(b.name, b.kernels.i64, in, inout, count, t)
	case KindUint64:
		return applyKernel(b.name, b.kernels.u64, in, inout, count, t)
	case KindFloat32:
		return applyKernel(b.name, b.kernels.f32, in, inout, count, t)
	case KindFloat64:
		return applyKernel(b.name, b.kernels.f64, in, inout, count, t)
	}
	return errors.Wrapf(ErrInvalidArgument, "operator %s on %s", b.name, t)
}

func applyKernel[T number](name string, f func(a, b T) T, in, inout []byte, count int,
	t *Datatype) error {
	if f == nil {
		return errors.Wrapf(ErrInvalidArgument, "operator %s is undefined for %s", name, t)
	}
	ks := t.Kind.Size()
	for i := 0; i < count; i++ {
		for j := 0; j < t.Lanes; j++ {
			off := i*t.Extent + j*ks
			a := getValue[T](in[off:], t.Kind)
			b := getValue[T](inout[off:], t.Kind)
			setValue(inout[off:], t.Kind, f(a, b))
		}
	}
	return nil
}

func add[T number](a, b T) T {
	return a + b
}

func mul[T number](a, b T) T {
	return a * b
}

func maxOf[T constraints.Integer | constraints.Float](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func minOf[T constraints.Integer | constraints.Float](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func land[T constraints.Integer](a, b T) T {
	if a != 0 && b != 0 {
		return 1
	}
	return 0
}

func lor[T constraints.Integer](a, b T) T {
	if a != 0 || b != 0 {
		return 1
	}
	return 0
}

func band[T constraints.Integer](a, b T) T {
	return a & b
}

func bor[T constraints.Integer](a, b T) T {
	return a | b
}

func bxor[T constraints.Integer](a, b T) T {
	return a ^ b
}

// Combine computes inout = in (+) inout and charges the
// virtual cost of the arithmetic to the caller.
func (c *Comms) Combine(op Op, in, inout Buffer) error {
	if in.Count != inout.Count {
		panic("mismatching lengths")
	}
	if in.Count == 0 {
		return nil
	}
	if err := op.Apply(in.Data, inout.Data, inout.Count, inout.Type); err != nil {
		return err
	}

	// Simulate computation time.
	c.Handle.Sleep(FlopTime * float64(inout.Count*inout.Type.Lanes))

	return nil
}

// CombineRight computes buf = buf (+) other, keeping buf
// as the left operand, which matters when op is not
// commutative. other is clobbered.
func (c *Comms) CombineRight(op Op, buf, other Buffer) error {
	if op.Commutative() {
		return c.Combine(op, other, buf)
	}
	if err := c.Combine(op, buf, other); err != nil {
		return err
	}
	return CopyBuffer(buf, other)
}
