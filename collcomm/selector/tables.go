package selector

import "sync"

// Unbounded marks the last bracket or entry of a Table,
// which covers every larger value.
const Unbounded = -1

// An Entry picks an algorithm for messages of up to
// MaxBytes bytes.
type Entry struct {
	MaxBytes  int
	Algorithm string
}

// A Bracket holds the entries used for communicators of
// up to MaxProcs ranks.
type Bracket struct {
	MaxProcs int
	Entries  []Entry
}

// A Table is a decision tree keyed first by the number of
// ranks, then by message size. Brackets and entries are
// sorted by increasing bound.
type Table struct {
	Brackets []Bracket
}

func within(value, bound int) bool {
	return bound == Unbounded || value <= bound
}

// Choose walks the first bracket covering size and returns
// the first entry covering bytes whose algorithm passes
// ok. Entries with the same bound therefore act as
// fallbacks for one another.
func (t Table) Choose(size, bytes int, ok func(name string) bool) (string, bool) {
	for _, b := range t.Brackets {
		if !within(size, b.MaxProcs) {
			continue
		}
		for _, e := range b.Entries {
			if within(bytes, e.MaxBytes) && ok(e.Algorithm) {
				return e.Algorithm, true
			}
		}
		return "", false
	}
	return "", false
}

func single(name string) Table {
	return Table{Brackets: []Bracket{{MaxProcs: Unbounded, Entries: []Entry{{Unbounded, name}}}}}
}

// Tables maps a flavor name to the table of every verb.
//
// The "mpich" flavor follows MPICH's default decisions and
// "ompi" follows Open MPI's tuned component. Both are
// read-only after the first call.
//
// Every rank must reach the same entry, so gatherv,
// scatterv and alltoallv are looked up with zero bytes
// and can only split on the rank count.
var Tables = sync.OnceValue(func() map[string]map[string]Table {
	return map[string]map[string]Table{
		"mpich": {
			VerbBarrier: single("dissemination"),
			VerbBcast: {Brackets: []Bracket{
				{MaxProcs: 7, Entries: []Entry{{Unbounded, "binomial_tree"}}},
				{MaxProcs: Unbounded, Entries: []Entry{
					{12287, "binomial_tree"},
					{524287, "scatter_rdb_allgather"},
					{Unbounded, "scatter_lr_allgather"},
				}},
			}},
			VerbReduce: {Brackets: []Bracket{
				{MaxProcs: Unbounded, Entries: []Entry{
					{2047, "binomial"},
					{Unbounded, "scatter_gather"},
					{Unbounded, "binomial"},
				}},
			}},
			VerbGather:   single("binomial"),
			VerbGatherv:  single("linear"),
			VerbScatter:  single("binomial"),
			VerbScatterv: single("linear"),
			VerbAllgather: {Brackets: []Bracket{
				{MaxProcs: Unbounded, Entries: []Entry{
					{81919, "rdb"},
					{81919, "bruck"},
					{524287, "rdb"},
					{Unbounded, "ring"},
				}},
			}},
			VerbAllgatherv: {Brackets: []Bracket{
				{MaxProcs: Unbounded, Entries: []Entry{
					{81919, "bruck"},
					{Unbounded, "ring"},
				}},
			}},
			VerbAlltoall: {Brackets: []Bracket{
				{MaxProcs: 7, Entries: []Entry{{Unbounded, "basic_linear"}}},
				{MaxProcs: Unbounded, Entries: []Entry{
					{255, "bruck"},
					{32767, "basic_linear"},
					{Unbounded, "pair"},
					{Unbounded, "ring"},
				}},
			}},
			VerbAlltoallv: single("basic_linear"),
			VerbReduceScatter: {Brackets: []Bracket{
				{MaxProcs: Unbounded, Entries: []Entry{
					{524287, "rhv"},
					{Unbounded, "pair"},
					{Unbounded, "reduce_scatterv"},
				}},
			}},
			VerbAllreduce: {Brackets: []Bracket{
				{MaxProcs: Unbounded, Entries: []Entry{
					{2047, "rdb"},
					{Unbounded, "rab"},
					{Unbounded, "rdb"},
				}},
			}},
		},
		"ompi": {
			VerbBarrier: {Brackets: []Bracket{
				{MaxProcs: 2, Entries: []Entry{{Unbounded, "linear"}}},
				{MaxProcs: Unbounded, Entries: []Entry{{Unbounded, "rdb"}}},
			}},
			VerbBcast: {Brackets: []Bracket{
				{MaxProcs: Unbounded, Entries: []Entry{
					{2047, "binomial_tree"},
					{370727, "binary_tree"},
					{Unbounded, "chain"},
				}},
			}},
			VerbReduce: {Brackets: []Bracket{
				{MaxProcs: 12, Entries: []Entry{
					{4095, "binomial"},
					{Unbounded, "chain"},
					{Unbounded, "binomial"},
				}},
				{MaxProcs: Unbounded, Entries: []Entry{
					{4095, "binomial"},
					{65535, "knomial"},
					{Unbounded, "scatter_gather"},
					{Unbounded, "knomial"},
				}},
			}},
			VerbGather: {Brackets: []Bracket{
				{MaxProcs: Unbounded, Entries: []Entry{
					{6000, "binomial"},
					{Unbounded, "flat_tree"},
				}},
			}},
			VerbGatherv:  single("linear"),
			VerbScatter:  single("binomial"),
			VerbScatterv: single("linear"),
			VerbAllgather: {Brackets: []Bracket{
				{MaxProcs: 2, Entries: []Entry{{Unbounded, "pair"}}},
				{MaxProcs: Unbounded, Entries: []Entry{
					{50999, "bruck"},
					{Unbounded, "neighbor_exchange"},
					{Unbounded, "ring"},
				}},
			}},
			VerbAllgatherv: {Brackets: []Bracket{
				{MaxProcs: 2, Entries: []Entry{{Unbounded, "pair"}}},
				{MaxProcs: Unbounded, Entries: []Entry{
					{50999, "bruck"},
					{Unbounded, "ring"},
				}},
			}},
			VerbAlltoall: {Brackets: []Bracket{
				{MaxProcs: Unbounded, Entries: []Entry{
					{200, "bruck"},
					{3000, "basic_linear"},
					{Unbounded, "pair"},
					{Unbounded, "ring"},
				}},
			}},
			VerbAlltoallv: {Brackets: []Bracket{
				{MaxProcs: Unbounded, Entries: []Entry{
					{Unbounded, "pair"},
					{Unbounded, "basic_linear"},
				}},
			}},
			VerbReduceScatter: {Brackets: []Bracket{
				{MaxProcs: Unbounded, Entries: []Entry{
					{12287, "rhv"},
					{Unbounded, "ring"},
					{Unbounded, "reduce_scatterv"},
				}},
			}},
			VerbAllreduce: {Brackets: []Bracket{
				{MaxProcs: Unbounded, Entries: []Entry{
					{10239, "rdb"},
					{Unbounded, "lr"},
					{Unbounded, "rdb"},
				}},
			}},
		},
	}
})
