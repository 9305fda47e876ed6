package seqnet

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/serializer"
)

func init() {
	var d DropSteps
	serializer.RegisterTypedDeserializer(d.SerializerType(), DeserializeDropSteps)
}

// DropSteps removes the first N timesteps of every
// sequence.
// Sequences with N or fewer timesteps become empty.
type DropSteps struct {
	N int
}

// DeserializeDropSteps deserializes a DropSteps.
func DeserializeDropSteps(d []byte) (*DropSteps, error) {
	var n serializer.Int
	if err := serializer.DeserializeAny(d, &n); err != nil {
		return nil, err
	}
	return &DropSteps{N: int(n)}, nil
}

// OutputLength returns the length of a sequence after
// the layer is applied.
func (d *DropSteps) OutputLength(n int) int {
	if n <= d.N {
		return 0
	}
	return n - d.N
}

// Apply drops the leading timesteps.
func (d *DropSteps) Apply(in anyseq.Seq) anyseq.Seq {
	return poolSeqs(in, func(idx int, in anydiff.Res, steps int) (anydiff.Res, int) {
		size := stepSize(in, steps)
		outSteps := d.OutputLength(steps)
		start := (steps - outSteps) * size
		return anydiff.Slice(in, start, steps*size), outSteps
	})
}

// SerializerType returns the unique ID used to serialize
// a DropSteps with the serializer package.
func (d *DropSteps) SerializerType() string {
	return "github.com/unixpickle/speechctc/seqnet.DropSteps"
}

// Serialize serializes the DropSteps.
func (d *DropSteps) Serialize() ([]byte, error) {
	return serializer.SerializeAny(serializer.Int(d.N))
}

// Truncate limits the i-th sequence to lengths[i]
// timesteps.
//
// It panics if a length is negative or exceeds the
// length of its sequence.
func Truncate(in anyseq.Seq, lengths []int) anyseq.Seq {
	return poolSeqs(in, func(idx int, in anydiff.Res, steps int) (anydiff.Res, int) {
		n := lengths[idx]
		if n < 0 || n > steps {
			panic(fmt.Sprintf("cannot truncate sequence %d of length %d to %d", idx, steps, n))
		}
		return anydiff.Slice(in, 0, n*stepSize(in, steps)), n
	})
}

// Lengths returns the number of timesteps in each
// sequence of a batch.
func Lengths(s anyseq.Seq) []int {
	out := s.Output()
	if len(out) == 0 {
		return nil
	}
	res := make([]int, len(out[0].Present))
	for _, batch := range out {
		for i, p := range batch.Present {
			if p {
				res[i]++
			}
		}
	}
	return res
}
