package allreduce

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/simgrid/simgrid-sub002/collcomm"
	"github.com/simgrid/simgrid-sub002/collcomm/colltest"
	"github.com/stretchr/testify/require"
)

func TestNaiveAllreducer(t *testing.T) {
	RunAllreducerTests(t, NaiveAllreducer{})
}

func TestTreeAllreducer(t *testing.T) {
	RunAllreducerTests(t, TreeAllreducer{})
}

func TestStreamAllreducer(t *testing.T) {
	RunAllreducerTests(t, StreamAllreducer{})
	t.Run("Granularity", func(t *testing.T) {
		RunAllreducerTests(t, StreamAllreducer{Granularity: 3})
	})
}

func TestRedBcastAllreducer(t *testing.T) {
	RunAllreducerTests(t, RedBcastAllreducer{})
}

func TestRDBAllreducer(t *testing.T) {
	RunAllreducerTests(t, RDBAllreducer{})
}

func TestRabAllreducer(t *testing.T) {
	RunAllreducerTests(t, RabAllreducer{})
}

func TestLRAllreducer(t *testing.T) {
	RunAllreducerTests(t, LRAllreducer{})
}

func TestSMPAllreducers(t *testing.T) {
	for _, reducer := range []SMPAllreducer{SMPBinomial(), SMPRDB(), SMPRSAG()} {
		t.Run(reducer.Name, func(t *testing.T) {
			RunAllreducerTests(t, reducer)
		})
	}
}

func TestRabNonPowerOfTwo(t *testing.T) {
	err := colltest.FlatWorld(5).Run(func(c *collcomm.Comms) error {
		send := collcomm.Int32s(1, 1, 1, 1, 1, 1, 1, 1)
		recv := collcomm.NewBuffer(8, collcomm.Int32)
		if err := (RabAllreducer{}).Allreduce(c, send, recv, collcomm.Sum); err != nil {
			return err
		}
		actual := collcomm.Values[int32](recv)
		for _, x := range actual {
			if x != 5 {
				return errors.Errorf("rank %d got %v", c.Rank(), actual)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestConsecutiveCalls(t *testing.T) {
	reducers := []Allreducer{StreamAllreducer{}, RDBAllreducer{}, TreeAllreducer{},
		SMPRSAG()}
	for _, w := range colltest.Worlds(7) {
		t.Run(w.String(), func(t *testing.T) {
			err := w.Run(func(c *collcomm.Comms) error {
				for round := 0; round < 3; round++ {
					for _, reducer := range reducers {
						send := colltest.RankInts(c.Rank()+round, 9)
						recv := collcomm.NewBuffer(9, collcomm.Int64)
						if err := reducer.Allreduce(c, send, recv, collcomm.Sum); err != nil {
							return err
						}
						expected := collcomm.Values[int64](colltest.SumInts(c.Size(), 9))
						actual := collcomm.Values[int64](recv)
						for i := range expected {
							// Every rank is shifted by round.
							want := expected[i] + int64(round*c.Size()*100000)
							if actual[i] != want {
								return errors.Errorf("round %d %T: got %v", round, reducer, actual)
							}
						}
					}
				}
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestStreamChunks(t *testing.T) {
	err := colltest.FlatWorld(4).Run(func(c *collcomm.Comms) error {
		chunks := StreamAllreducer{Granularity: 2}.chunkify(c, collcomm.NewBuffer(19, collcomm.Int32))
		if len(chunks) != 10 {
			return errors.Errorf("expected 10 chunks, got %d", len(chunks))
		}
		for i, chunk := range chunks[:9] {
			if chunk.Count != 2 {
				return errors.Errorf("chunk %d has %d elements", i, chunk.Count)
			}
		}
		if chunks[9].Count != 1 {
			return errors.Errorf("last chunk has %d elements", chunks[9].Count)
		}
		return nil
	})
	require.NoError(t, err)
}
