package collcomm

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// ErrIrregularArguments is returned by algorithms
	// that need equal send and receive byte extents.
	// Callers recover from it by falling back to the
	// default algorithm of the verb.
	ErrIrregularArguments = errors.New("irregular send/receive arguments")

	// ErrTopologyPrecondition means an algorithm was
	// called on a process layout it does not support.
	ErrTopologyPrecondition = errors.New("topology precondition violated")

	// ErrAllocation means a scratch buffer could not be
	// allocated.
	ErrAllocation = errors.New("scratch allocation failed")

	// ErrTruncated means an incoming message did not fit
	// in the receive buffer.
	ErrTruncated = errors.New("message truncated")

	// ErrInvalidArgument reports malformed arguments such
	// as an out-of-range root.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotApplicable means an algorithm cannot run for
	// the given operator or process count.
	ErrNotApplicable = errors.New("algorithm not applicable")
)

// IsTopologyPrecondition checks if err was caused by a
// topology precondition violation.
func IsTopologyPrecondition(err error) bool {
	return errors.Is(err, ErrTopologyPrecondition)
}

// IsIrregular checks if err was caused by irregular
// arguments.
func IsIrregular(err error) bool {
	return errors.Is(err, ErrIrregularArguments)
}

// CheckRoot validates a root rank.
func (c *Comms) CheckRoot(root int) error {
	if root < 0 || root >= c.Size() {
		return errors.Wrapf(ErrInvalidArgument, "root %d out of range [0,%d)", root, c.Size())
	}
	return nil
}

// CheckRegular returns ErrIrregularArguments unless the
// two buffers span the same number of bytes.
func CheckRegular(send, recv Buffer) error {
	if send.Bytes() != recv.Bytes() {
		return errors.Wrapf(ErrIrregularArguments, "send spans %d bytes, receive spans %d",
			send.Bytes(), recv.Bytes())
	}
	return nil
}

// Fallback logs why an algorithm could not run and
// reports whether the caller should retry with the verb's
// default algorithm.
//
// Irregular arguments and non-commutative operators are
// recoverable; everything else is not.
func Fallback(algorithm string, err error) bool {
	if errors.Is(err, ErrIrregularArguments) || errors.Is(err, ErrNotApplicable) {
		klog.Warningf("%s: %v; falling back to default algorithm", algorithm, err)
		return true
	}
	return false
}

// RequireCommutative returns ErrNotApplicable if op is
// not commutative.
func RequireCommutative(op Op) error {
	if !op.Commutative() {
		return errors.Wrapf(ErrNotApplicable, "operator %s is not commutative", op.Name())
	}
	return nil
}
