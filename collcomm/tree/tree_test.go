package tree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilders(t *testing.T) {
	builders := map[string]Builder{
		"Flat":     Flat,
		"Binomial": Binomial,
		"Binary":   Binary,
		"Chain1":   Chain(1),
		"Chain4":   Chain(4),
		"Knomial3": Knomial(3),
		"Knomial4": Knomial(4),
	}
	for name, b := range builders {
		for _, size := range []int{1, 2, 3, 5, 8, 9, 16, 17, 31} {
			for _, root := range []int{0, size / 2, size - 1} {
				t.Run(fmt.Sprintf("%s/Size=%d/Root=%d", name, size, root), func(t *testing.T) {
					checkTree(t, b, size, root)
				})
			}
		}
	}
}

func checkTree(t *testing.T, b Builder, size, root int) {
	trees := make([]Tree, size)
	for i := range trees {
		trees[i] = b(i, size, root)
	}
	require.Equal(t, -1, trees[root].Parent)
	for i, tr := range trees {
		if i == root {
			continue
		}
		require.Contains(t, trees[tr.Parent].Children, i, "rank %d missing from parent", i)
	}
	seen := map[int]bool{}
	var visit func(int)
	visit = func(r int) {
		require.False(t, seen[r], "rank %d reached twice", r)
		seen[r] = true
		for _, child := range trees[r].Children {
			require.Equal(t, r, trees[child].Parent)
			visit(child)
		}
	}
	visit(root)
	require.Len(t, seen, size)
	require.Equal(t, size-1, Descendants(b, root, size, root))
}

func TestBinomialShape(t *testing.T) {
	require.Equal(t, Tree{Parent: -1, Children: []int{4, 2, 1}}, Binomial(0, 8, 0))
	require.Equal(t, Tree{Parent: 4, Children: []int{6, 5}}, Binomial(4, 8, 0))
	require.Equal(t, Tree{Parent: 2, Children: nil}, Binomial(3, 8, 0))

	// Relative ranks with root 3.
	require.Equal(t, Tree{Parent: 3, Children: []int{6}}, Binomial(5, 7, 3))
}

func TestKnomialMatchesBinomial(t *testing.T) {
	b := Knomial(2)
	for size := 1; size < 20; size++ {
		for rank := 0; rank < size; rank++ {
			require.Equal(t, Binomial(rank, size, 1%size), b(rank, size, 1%size))
		}
	}
}

func TestChainShape(t *testing.T) {
	b := Chain(2)
	require.Equal(t, []int{1, 2}, b(0, 6, 0).Children)
	require.Equal(t, Tree{Parent: 1, Children: []int{5}}, b(3, 6, 0))
	require.Equal(t, Tree{Parent: 3, Children: nil}, b(5, 6, 0))
}
