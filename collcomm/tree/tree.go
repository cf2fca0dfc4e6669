// Package tree computes the communication trees used by
// rooted collective algorithms.
package tree

// A Tree is one rank's position in a communication tree.
type Tree struct {
	// Parent is the parent rank, or -1 for the root.
	Parent int

	// Children lists the child ranks in the order data
	// should be sent to them.
	Children []int
}

// A Builder computes the position of rank in a tree over
// size ranks rooted at root.
type Builder func(rank, size, root int) Tree

func relative(rank, size, root int) int {
	return (rank - root + size) % size
}

func absolute(vrank, size, root int) int {
	return (vrank + root) % size
}

// Flat connects every rank directly to the root.
func Flat(rank, size, root int) Tree {
	if rank != root {
		return Tree{Parent: root}
	}
	res := Tree{Parent: -1}
	for i := 1; i < size; i++ {
		res.Children = append(res.Children, absolute(i, size, root))
	}
	return res
}

// Binomial computes a binomial tree.
//
// A rank's parent clears the lowest set bit of its
// relative rank, and its children are listed from the
// largest subtree to the smallest.
func Binomial(rank, size, root int) Tree {
	vrank := relative(rank, size, root)
	res := Tree{Parent: -1}
	mask := 1
	for mask < size {
		if vrank&mask != 0 {
			res.Parent = absolute(vrank-mask, size, root)
			break
		}
		mask <<= 1
	}
	for mask >>= 1; mask > 0; mask >>= 1 {
		if vrank+mask < size {
			res.Children = append(res.Children, absolute(vrank+mask, size, root))
		}
	}
	return res
}

// Binary computes a complete binary tree in heap order
// over relative ranks.
func Binary(rank, size, root int) Tree {
	vrank := relative(rank, size, root)
	res := Tree{Parent: -1}
	if vrank > 0 {
		res.Parent = absolute((vrank-1)/2, size, root)
	}
	for _, child := range []int{2*vrank + 1, 2*vrank + 2} {
		if child < size {
			res.Children = append(res.Children, absolute(child, size, root))
		}
	}
	return res
}

// Chain creates a Builder where the root feeds fanout
// chains of consecutive relative ranks.
//
// Chain(1) is a single pipeline through every rank.
func Chain(fanout int) Builder {
	if fanout < 1 {
		fanout = 1
	}
	return func(rank, size, root int) Tree {
		vrank := relative(rank, size, root)
		res := Tree{Parent: -1}
		if vrank == 0 {
			for i := 1; i <= fanout && i < size; i++ {
				res.Children = append(res.Children, absolute(i, size, root))
			}
			return res
		}
		if vrank > fanout {
			res.Parent = absolute(vrank-fanout, size, root)
		} else {
			res.Parent = root
		}
		if vrank+fanout < size {
			res.Children = []int{absolute(vrank+fanout, size, root)}
		}
		return res
	}
}

// Knomial creates a Builder for k-nomial trees, which
// generalize binomial trees to k-1 children per level.
//
// Knomial(2) is equivalent to Binomial.
func Knomial(k int) Builder {
	if k < 2 {
		k = 2
	}
	return func(rank, size, root int) Tree {
		vrank := relative(rank, size, root)
		res := Tree{Parent: -1}
		mask := 1
		for mask < size {
			if digit := (vrank / mask) % k; digit != 0 {
				res.Parent = absolute(vrank-digit*mask, size, root)
				break
			}
			mask *= k
		}
		for mask /= k; mask > 0; mask /= k {
			for j := k - 1; j > 0; j-- {
				if child := vrank + j*mask; child < size {
					res.Children = append(res.Children, absolute(child, size, root))
				}
			}
		}
		return res
	}
}

// Descendants counts the ranks in the subtree below rank,
// excluding rank itself.
func Descendants(b Builder, rank, size, root int) int {
	var res int
	for _, child := range b(rank, size, root).Children {
		res += 1 + Descendants(b, child, size, root)
	}
	return res
}
