package allreduce

import "github.com/simgrid/simgrid-sub002/collcomm"

// A NaiveAllreducer sends every vector from every rank
// to every other rank.
type NaiveAllreducer struct{}

// Allreduce folds all of the ranks' vectors on every
// rank.
func (n NaiveAllreducer) Allreduce(c *collcomm.Comms, send, recv collcomm.Buffer,
	op collcomm.Op) error {
	if ok, err := start("naive", c, send, recv, op, false); !ok {
		return err
	}

	gatheredVecs := make([]collcomm.Buffer, c.Size())
	reqs := make([]*collcomm.Request, 0, 2*(c.Size()-1))
	for i := range gatheredVecs {
		if i == c.Rank() {
			continue
		}
		reqs = append(reqs, c.Isend(i, send, collcomm.TagAllreduce))
		vec, err := c.Scratch(send.Count, send.Type)
		if err != nil {
			return err
		}
		gatheredVecs[i] = vec
		reqs = append(reqs, c.Irecv(i, vec, collcomm.TagAllreduce))
	}
	gatheredVecs[c.Rank()] = send.Clone()
	if err := c.Waitall(reqs); err != nil {
		return err
	}

	acc := gatheredVecs[0]
	for _, vec := range gatheredVecs[1:] {
		if err := c.CombineRight(op, acc, vec); err != nil {
			return err
		}
	}
	return collcomm.CopyBuffer(recv, acc)
}
