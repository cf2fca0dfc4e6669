package selector

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/colltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistries(t *testing.T) {
	for _, cat := range catalogs() {
		names := cat.Names()
		require.NotEmpty(t, names, cat.verb())
		for i := 1; i < len(names); i++ {
			assert.NotEqual(t, names[i-1], names[i], "duplicate %s algorithm", cat.verb())
		}
	}
	assert.True(t, Barriers().has(Barriers().Default))
	assert.True(t, Broadcasters().has(Broadcasters().Default))
	assert.True(t, Reducers().has(Reducers().Default))
	assert.True(t, Gatherers().has(Gatherers().Default))
	assert.True(t, Gathervers().has(Gathervers().Default))
	assert.True(t, Scatterers().has(Scatterers().Default))
	assert.True(t, Scattervers().has(Scattervers().Default))
	assert.True(t, Allgatherers().has(Allgatherers().Default))
	assert.True(t, Allgathervers().has(Allgathervers().Default))
	assert.True(t, Alltoallers().has(Alltoallers().Default))
	assert.True(t, Alltoallvers().has(Alltoallvers().Default))
	assert.True(t, ReduceScatterers().has(ReduceScatterers().Default))
	assert.True(t, Allreducers().has(Allreducers().Default))

	// Registries are built once.
	assert.Same(t, Allreducers(), Allreducers())
}

func TestTablesReferToRegisteredAlgorithms(t *testing.T) {
	for flavor, tables := range Tables() {
		for _, cat := range catalogs() {
			table, ok := tables[cat.verb()]
			if !assert.True(t, ok, "%s has no %s table", flavor, cat.verb()) {
				continue
			}
			for i, b := range table.Brackets {
				last := i == len(table.Brackets)-1
				assert.Equal(t, last, b.MaxProcs == Unbounded, "%s/%s bracket %d", flavor,
					cat.verb(), i)
				require.NotEmpty(t, b.Entries)
				assert.Equal(t, Unbounded, b.Entries[len(b.Entries)-1].MaxBytes)
				for _, e := range b.Entries {
					assert.True(t, cat.has(e.Algorithm), "%s/%s: %s", flavor, cat.verb(),
						e.Algorithm)
				}
			}
		}
	}
}

func TestTableChoose(t *testing.T) {
	table := Table{Brackets: []Bracket{
		{MaxProcs: 4, Entries: []Entry{{100, "a"}, {Unbounded, "b"}}},
		{MaxProcs: Unbounded, Entries: []Entry{{100, "c"}, {100, "d"}, {Unbounded, "e"}}},
	}}
	all := func(string) bool { return true }
	noC := func(name string) bool { return name != "c" }
	cases := []struct {
		size, bytes int
		ok          func(string) bool
		expected    string
	}{
		{1, 0, all, "a"},
		{4, 100, all, "a"},
		{4, 101, all, "b"},
		{5, 100, all, "c"},
		{5, 100, noC, "d"},
		{1000, 1 << 30, all, "e"},
	}
	for _, tc := range cases {
		name, ok := table.Choose(tc.size, tc.bytes, tc.ok)
		assert.True(t, ok)
		assert.Equal(t, tc.expected, name, "size=%d bytes=%d", tc.size, tc.bytes)
	}
	_, ok := table.Choose(2, 1000, func(name string) bool { return name == "a" })
	assert.False(t, ok)
}

func TestChoose(t *testing.T) {
	mpich, err := NewSelector(Config{})
	require.NoError(t, err)
	ompi, err := NewSelector(Config{Tables: "ompi", Verbs: map[string]string{"gather": "flat_tree"}})
	require.NoError(t, err)

	assert.Equal(t, "binomial_tree", Choose(mpich, Broadcasters(), Params{Size: 4, Bytes: 1 << 20}))
	assert.Equal(t, "scatter_rdb_allgather", Choose(mpich, Broadcasters(),
		Params{Size: 16, Bytes: 100000}))
	assert.Equal(t, "scatter_lr_allgather", Choose(mpich, Broadcasters(),
		Params{Size: 16, Bytes: 1 << 20}))

	assert.Equal(t, "rab", Choose(mpich, Allreducers(),
		Params{Size: 6, Bytes: 1 << 20, Commutative: true}))
	assert.Equal(t, "rdb", Choose(mpich, Allreducers(), Params{Size: 6, Bytes: 1 << 20}))

	assert.Equal(t, "rdb", Choose(mpich, Allgatherers(), Params{Size: 8, Bytes: 1000}))
	assert.Equal(t, "bruck", Choose(mpich, Allgatherers(), Params{Size: 6, Bytes: 1000}))
	assert.Equal(t, "ring", Choose(mpich, Allgatherers(), Params{Size: 6, Bytes: 100000}))

	assert.Equal(t, "pair", Choose(ompi, Allgatherers(), Params{Size: 2, Bytes: 1 << 20}))
	assert.Equal(t, "neighbor_exchange", Choose(ompi, Allgatherers(),
		Params{Size: 6, Bytes: 1 << 20}))
	assert.Equal(t, "ring", Choose(ompi, Allgatherers(), Params{Size: 7, Bytes: 1 << 20}))
	assert.Equal(t, "flat_tree", Choose(ompi, Gatherers(), Params{Size: 7, Bytes: 10}))
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig("bcast=binomial_tree, allreduce=automatic,tables=ompi")
	require.NoError(t, err)
	assert.Equal(t, "ompi", cfg.Tables)
	assert.Equal(t, map[string]string{"bcast": "binomial_tree", "allreduce": Automatic}, cfg.Verbs)
	_, err = NewSelector(cfg)
	require.NoError(t, err)

	cfg, err = ParseConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTables, cfg.Tables)
	assert.Empty(t, cfg.Verbs)

	for _, bad := range []string{"bcast", "=ring", "bcast="} {
		_, err := ParseConfig(bad)
		assert.True(t, errors.Is(err, ErrConfig), bad)
	}

	for _, unknown := range []string{"bcast=nope", "nope=ring", "tables=nope"} {
		cfg, err := ParseConfig(unknown)
		require.NoError(t, err)
		_, err = NewSelector(cfg)
		assert.True(t, errors.Is(err, ErrConfig), unknown)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("COLL_SELECTOR", "bcast=chain,allreduce=rdb")
	t.Setenv("COLL_ALLREDUCE", "lr")
	t.Setenv("COLL_REDUCE_SCATTER", "ring")
	t.Setenv("COLL_TABLES", "ompi")
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "ompi", cfg.Tables)
	assert.Equal(t, map[string]string{
		"bcast":          "chain",
		"allreduce":      "lr",
		"reduce_scatter": "ring",
	}, cfg.Verbs)
}

func TestSelectorVerbs(t *testing.T) {
	automatic := Config{Verbs: map[string]string{}}
	for _, cat := range catalogs() {
		automatic.Verbs[cat.verb()] = Automatic
	}
	configs := map[string]Config{
		"mpich":     {Tables: "mpich"},
		"ompi":      {Tables: "ompi"},
		"automatic": automatic,
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			s, err := NewSelector(cfg)
			require.NoError(t, err)
			for _, size := range []int{1, 2, 5, 8} {
				for _, w := range colltest.Worlds(size) {
					t.Run(w.String(), func(t *testing.T) {
						require.NoError(t, w.Run(func(c *collcomm.Comms) error {
							return runVerbs(c, s)
						}))
					})
				}
			}
		})
	}
}

func TestAutomaticReport(t *testing.T) {
	s, err := NewSelector(Config{Verbs: map[string]string{
		"allreduce": Automatic,
		"allgather": Automatic,
	}})
	require.NoError(t, err)
	type report struct {
		verb, algorithm string
		seconds         float64
	}
	var reports []report
	s.Report = func(verb, algorithm string, seconds float64) {
		reports = append(reports, report{verb, algorithm, seconds})
	}

	w := colltest.SMPWorld(3, 2)
	require.NoError(t, w.Run(func(c *collcomm.Comms) error {
		send := colltest.AffineValues(c.Rank(), 4)
		recv := collcomm.NewBuffer(4, colltest.Affine)
		if err := s.Allreduce(c, send, recv, colltest.AffineOp); err != nil {
			return err
		}
		if err := expectInts(recv, colltest.AffineFold(c.Size(), 4)); err != nil {
			return errors.Wrap(err, "allreduce")
		}
		gathered := collcomm.NewBuffer(2*c.Size(), collcomm.Int64).WithCount(2)
		if err := s.Allgather(c, colltest.RankInts(c.Rank(), 2), gathered); err != nil {
			return err
		}
		return errors.Wrap(expectInts(gathered.Blocks(0, c.Size()),
			colltest.Concat(colltest.Uniform(c.Size(), 2))), "allgather")
	}))

	require.Len(t, reports, 2)
	assert.Equal(t, "allreduce", reports[0].verb)
	alg, ok := Allreducers().Lookup(reports[0].algorithm)
	require.True(t, ok)
	assert.True(t, alg.AppliesTo(Params{Size: 6}), "non-commutative call picked %s", alg.Name)
	assert.Greater(t, reports[0].seconds, 0.0)

	assert.Equal(t, "allgather", reports[1].verb)
	alg2, ok := Allgatherers().Lookup(reports[1].algorithm)
	require.True(t, ok)
	assert.NotContains(t, []string{"rdb", "pair"}, alg2.Name)
}

func expectInts(actual, expected collcomm.Buffer) error {
	a := collcomm.Values[int64](actual)
	e := collcomm.Values[int64](expected)
	if len(a) != len(e) {
		return errors.Errorf("got %d values, expected %d", len(a), len(e))
	}
	for i := range e {
		if a[i] != e[i] {
			return errors.Errorf("got %v, expected %v", a, e)
		}
	}
	return nil
}

// runVerbs calls every verb once through s and checks the
// results.
func runVerbs(c *collcomm.Comms, s *Selector) error {
	size, rank := c.Size(), c.Rank()
	const count = 3
	root := size / 2
	check := func(verb string, err error) error {
		if err != nil {
			return errors.Wrap(err, verb)
		}
		return nil
	}

	if err := s.Barrier(c); err != nil {
		return check("barrier", err)
	}

	buf := collcomm.NewBuffer(count, collcomm.Int64)
	if rank == root {
		buf = colltest.RankInts(root, count)
	}
	if err := s.Bcast(c, buf, root); err != nil {
		return check("bcast", err)
	}
	if err := check("bcast", expectInts(buf, colltest.RankInts(root, count))); err != nil {
		return err
	}

	sum := colltest.SumInts(size, count)
	recv := collcomm.NewBuffer(count, collcomm.Int64)
	if err := s.Reduce(c, colltest.RankInts(rank, count), recv, collcomm.Sum, root); err != nil {
		return check("reduce", err)
	}
	if rank == root {
		if err := check("reduce", expectInts(recv, sum)); err != nil {
			return err
		}
	}

	recv = collcomm.NewBuffer(count, collcomm.Int64)
	if err := s.Allreduce(c, colltest.RankInts(rank, count), recv, collcomm.Sum); err != nil {
		return check("allreduce", err)
	}
	if err := check("allreduce", expectInts(recv, sum)); err != nil {
		return err
	}

	all := colltest.Concat(colltest.Uniform(size, count))
	blocks := collcomm.NewBuffer(size*count, collcomm.Int64).WithCount(count)
	if err := s.Gather(c, colltest.RankInts(rank, count), blocks, root); err != nil {
		return check("gather", err)
	}
	if rank == root {
		if err := check("gather", expectInts(blocks.Blocks(0, size), all)); err != nil {
			return err
		}
	}

	piece := collcomm.NewBuffer(count, collcomm.Int64)
	if err := s.Scatter(c, all.WithCount(count), piece, root); err != nil {
		return check("scatter", err)
	}
	if err := check("scatter", expectInts(piece, colltest.RankInts(rank, count))); err != nil {
		return err
	}

	blocks = collcomm.NewBuffer(size*count, collcomm.Int64).WithCount(count)
	if err := s.Allgather(c, colltest.RankInts(rank, count), blocks); err != nil {
		return check("allgather", err)
	}
	if err := check("allgather", expectInts(blocks.Blocks(0, size), all)); err != nil {
		return err
	}

	counts := make([]int, size)
	for i := range counts {
		counts[i] = i % 3
	}
	displs := colltest.Displs(counts)
	uneven := colltest.Concat(counts)
	vrecv := collcomm.NewBuffer(colltest.Sum(counts), collcomm.Int64)
	if err := s.Gatherv(c, colltest.RankInts(rank, counts[rank]), vrecv, counts, displs,
		root); err != nil {
		return check("gatherv", err)
	}
	if rank == root {
		if err := check("gatherv", expectInts(vrecv, uneven)); err != nil {
			return err
		}
	}

	piece = collcomm.NewBuffer(counts[rank], collcomm.Int64)
	if err := s.Scatterv(c, uneven, counts, displs, piece, root); err != nil {
		return check("scatterv", err)
	}
	if err := check("scatterv", expectInts(piece, colltest.RankInts(rank, counts[rank]))); err != nil {
		return err
	}

	vrecv = collcomm.NewBuffer(colltest.Sum(counts), collcomm.Int64)
	if err := s.Allgatherv(c, colltest.RankInts(rank, counts[rank]), vrecv, counts,
		displs); err != nil {
		return check("allgatherv", err)
	}
	if err := check("allgatherv", expectInts(vrecv, uneven)); err != nil {
		return err
	}

	// Every rank sends RankInts(rank, count) to everyone.
	var sendValues []int64
	for j := 0; j < size; j++ {
		sendValues = append(sendValues, collcomm.Values[int64](colltest.RankInts(rank, count))...)
	}
	send := collcomm.FromValues(collcomm.Int64, sendValues).WithCount(count)
	blocks = collcomm.NewBuffer(size*count, collcomm.Int64).WithCount(count)
	if err := s.Alltoall(c, send, blocks); err != nil {
		return check("alltoall", err)
	}
	if err := check("alltoall", expectInts(blocks.Blocks(0, size), all)); err != nil {
		return err
	}

	uniform := colltest.Uniform(size, count)
	uniformDispls := colltest.Displs(uniform)
	vrecv = collcomm.NewBuffer(size*count, collcomm.Int64)
	if err := s.Alltoallv(c, send.Blocks(0, size), uniform, uniformDispls, vrecv, uniform,
		uniformDispls); err != nil {
		return check("alltoallv", err)
	}
	if err := check("alltoallv", expectInts(vrecv, all)); err != nil {
		return err
	}

	total := colltest.Sum(counts)
	piece = collcomm.NewBuffer(counts[rank], collcomm.Int64)
	if err := s.ReduceScatter(c, colltest.RankInts(rank, total), piece, counts,
		collcomm.Sum); err != nil {
		return check("reduce_scatter", err)
	}
	expected := colltest.SumInts(size, total).Slice(displs[rank], counts[rank])
	return check("reduce_scatter", expectInts(piece, expected))
}

func ExampleParseConfig() {
	cfg, err := ParseConfig("bcast=binomial_tree,allreduce=automatic,tables=ompi")
	if err != nil {
		panic(err)
	}
	fmt.Println(cfg.Tables, cfg.Verbs["bcast"], cfg.Verbs["allreduce"])
	// Output: ompi binomial_tree automatic
}

func TestVectorVerbsAgreeAcrossRanks(t *testing.T) {
	for _, tables := range []string{"mpich", "ompi"} {
		t.Run(tables, func(t *testing.T) {
			s, err := NewSelector(Config{Tables: tables})
			require.NoError(t, err)
			w := colltest.FlatWorld(5)
			params := make([]Params, w.Size)
			require.NoError(t, w.Run(func(c *collcomm.Comms) error {
				size, rank := c.Size(), c.Rank()
				params[rank] = vectorParams(c)

				// Only the root knows the gather counts.
				var counts, displs []int
				var recv collcomm.Buffer
				if rank == 0 {
					counts = make([]int, size)
					for i := range counts {
						counts[i] = i * 100
					}
					displs = colltest.Displs(counts)
					recv = collcomm.NewBuffer(colltest.Sum(counts), collcomm.Int64)
				}
				if err := s.Gatherv(c, colltest.RankInts(rank, rank*100), recv, counts, displs,
					0); err != nil {
					return errors.Wrap(err, "gatherv")
				}
				if rank == 0 {
					if err := expectInts(recv, colltest.Concat(counts)); err != nil {
						return errors.Wrap(err, "gatherv")
					}
				}

				// Rank i sends (i+j)*50 elements to rank j.
				pairCounts := make([]int, size)
				var sendValues []int64
				for j := range pairCounts {
					pairCounts[j] = (rank + j) * 50
					sendValues = append(sendValues,
						collcomm.Values[int64](colltest.RankInts(rank, pairCounts[j]))...)
				}
				pairDispls := colltest.Displs(pairCounts)
				send := collcomm.FromValues(collcomm.Int64, sendValues)
				recv = collcomm.NewBuffer(colltest.Sum(pairCounts), collcomm.Int64)
				if err := s.Alltoallv(c, send, pairCounts, pairDispls, recv, pairCounts,
					pairDispls); err != nil {
					return errors.Wrap(err, "alltoallv")
				}
				return errors.Wrap(expectInts(recv, colltest.Concat(pairCounts)), "alltoallv")
			}))
			for rank := 1; rank < w.Size; rank++ {
				assert.Equal(t, params[0].Bytes, params[rank].Bytes, "rank %d", rank)
			}
		})
	}
}
