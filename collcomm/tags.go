package collcomm

// Tags used by the collective algorithms.
//
// Every verb has its own tag so that a rank that races
// ahead into the next collective cannot steal messages
// from the current one.
const (
	TagBarrier = iota + 1
	TagBcast
	TagReduce
	TagGather
	TagScatter
	TagAllgather
	TagAllgatherv
	TagAlltoall
	TagAlltoallv
	TagReduceScatter
	TagAllreduce
	TagAutomatic
)

const stepShift = 8

// StepTag derives a tag that also encodes a step or
// segment index.
func StepTag(tag, step int) int {
	return tag | (step+1)<<stepShift
}
