package collcomm

// IsPowerOfTwo checks if n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// FloorPowerOfTwo returns the largest power of two that is
// not greater than n, for n >= 1.
func FloorPowerOfTwo(n int) int {
	res := 1
	for res*2 <= n {
		res *= 2
	}
	return res
}

// CeilLog2 returns the number of doubling rounds needed to
// reach n.
func CeilLog2(n int) int {
	var res int
	for 1<<res < n {
		res++
	}
	return res
}

// A Fold maps the ranks of a communicator of any size onto
// a power-of-two number of participants.
//
// With Pof2 the largest power of two not above Size and
// Rem = Size - Pof2, the first 2*Rem ranks pair up: each
// even rank hands its data to the odd rank after it and
// sits out, and the odd rank continues as newrank rank/2.
// The remaining ranks continue as newrank rank-Rem.
// Every newrank therefore covers a contiguous, increasing
// range of ranks.
type Fold struct {
	Size int
	Pof2 int
	Rem  int
}

// NewFold creates the Fold for a communicator size.
func NewFold(size int) Fold {
	pof2 := FloorPowerOfTwo(size)
	return Fold{Size: size, Pof2: pof2, Rem: size - pof2}
}

// NewRank returns the participant index of a rank, or -1
// if the rank sits out.
func (f Fold) NewRank(rank int) int {
	if rank < 2*f.Rem {
		if rank%2 == 0 {
			return -1
		}
		return rank / 2
	}
	return rank - f.Rem
}

// OldRank is the inverse of NewRank.
func (f Fold) OldRank(newRank int) int {
	if newRank < f.Rem {
		return newRank*2 + 1
	}
	return newRank + f.Rem
}

// Covered returns the first rank and number of ranks
// whose data a participant carries.
func (f Fold) Covered(newRank int) (first, n int) {
	if newRank < f.Rem {
		return newRank * 2, 2
	}
	return newRank + f.Rem, 1
}

// Reduce runs the pairing phase on buf.
//
// Even ranks below 2*Rem send buf and return -1; their odd
// partners fold the received data in as the left operand,
// so the phase is safe for non-commutative operators.
func (f Fold) Reduce(c *Comms, buf Buffer, op Op, tag int) (int, error) {
	rank := c.Rank()
	newRank := f.NewRank(rank)
	if rank >= 2*f.Rem {
		return newRank, nil
	}
	if rank%2 == 0 {
		return -1, c.Send(rank+1, buf, tag)
	}
	tmp, err := c.Scratch(buf.Count, buf.Type)
	if err != nil {
		return newRank, err
	}
	if _, err := c.Recv(rank-1, tmp, tag); err != nil {
		return newRank, err
	}
	return newRank, c.Combine(op, tmp, buf)
}

// Relay runs the final phase, in which every odd rank
// below 2*Rem sends send to the even rank it absorbed,
// which receives it into recv.
func (f Fold) Relay(c *Comms, send, recv Buffer, tag int) error {
	rank := c.Rank()
	if rank >= 2*f.Rem {
		return nil
	}
	if rank%2 == 1 {
		return c.Send(rank-1, send, tag)
	}
	_, err := c.Recv(rank+1, recv, tag)
	return err
}
