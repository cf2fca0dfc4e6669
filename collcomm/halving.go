package collcomm

import "fmt"

// A BlockRange is a half-open range [Lo, Hi) of block
// indices.
type BlockRange struct {
	Lo int
	Hi int
}

// Len returns the number of blocks in the range.
func (b BlockRange) Len() int {
	return b.Hi - b.Lo
}

// Contains checks if the range includes block i.
func (b BlockRange) Contains(i int) bool {
	return i >= b.Lo && i < b.Hi
}

func (b BlockRange) String() string {
	return fmt.Sprintf("[%d,%d)", b.Lo, b.Hi)
}

// A HalvingStep is one exchange of recursive halving.
type HalvingStep struct {
	Mask int

	// Partner is the participant index of the peer.
	Partner int

	// Keep are the blocks this participant receives and
	// combines; the peer sends them.
	Keep BlockRange

	// Give are the blocks sent to the peer.
	Give BlockRange
}

// HalvingSchedule computes the recursive halving steps of
// one participant among pof2 participants.
//
// Before the first step each participant owns every block
// in [0, pof2). At each step its range splits in two: the
// half containing the participant's own index is kept and
// the other half is handed to the partner. After the last
// step participant i owns exactly block i.
//
// Replaying the steps backwards, sending Keep and
// receiving Give, is recursive doubling.
func HalvingSchedule(pof2, newRank int) []HalvingStep {
	if !IsPowerOfTwo(pof2) || newRank < 0 || newRank >= pof2 {
		panic(fmt.Sprintf("invalid halving participant %d of %d", newRank, pof2))
	}
	var steps []HalvingStep
	lo, hi := 0, pof2
	for mask := pof2 / 2; mask > 0; mask /= 2 {
		mid := lo + mask
		step := HalvingStep{Mask: mask, Partner: newRank ^ mask}
		if newRank&mask == 0 {
			step.Keep = BlockRange{lo, mid}
			step.Give = BlockRange{mid, hi}
			hi = mid
		} else {
			step.Keep = BlockRange{mid, hi}
			step.Give = BlockRange{lo, mid}
			lo = mid
		}
		steps = append(steps, step)
	}
	return steps
}

// DoublingSchedule is HalvingSchedule in reverse order.
func DoublingSchedule(pof2, newRank int) []HalvingStep {
	steps := HalvingSchedule(pof2, newRank)
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}

// A BlockLayout places logical blocks in a buffer.
//
// Blocks must be stored in increasing order without gaps,
// so that any BlockRange maps to one contiguous span.
type BlockLayout struct {
	Displs []int
	Counts []int
}

// EvenBlocks splits count elements into n blocks whose
// sizes differ by at most one.
func EvenBlocks(count, n int) BlockLayout {
	res := BlockLayout{Displs: make([]int, n), Counts: make([]int, n)}
	var displ int
	for i := 0; i < n; i++ {
		res.Counts[i] = count / n
		if i < count%n {
			res.Counts[i]++
		}
		res.Displs[i] = displ
		displ += res.Counts[i]
	}
	return res
}

// LayoutFromCounts lays out consecutive blocks with the
// given sizes.
func LayoutFromCounts(counts []int) BlockLayout {
	res := BlockLayout{Displs: make([]int, len(counts)), Counts: append([]int{}, counts...)}
	var displ int
	for i, c := range counts {
		res.Displs[i] = displ
		displ += c
	}
	return res
}

// Span returns the element offset and count of a range of
// blocks.
func (b BlockLayout) Span(r BlockRange) (displ, count int) {
	if r.Len() == 0 {
		return 0, 0
	}
	for i := r.Lo; i < r.Hi; i++ {
		count += b.Counts[i]
	}
	return b.Displs[r.Lo], count
}

// View returns the part of buf holding a range of blocks.
func (b BlockLayout) View(buf Buffer, r BlockRange) Buffer {
	displ, count := b.Span(r)
	return buf.Slice(displ, count)
}

// Total returns the number of elements in all blocks.
func (b BlockLayout) Total() int {
	var res int
	for _, c := range b.Counts {
		res += c
	}
	return res
}
