package seqnet

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/serializer"
)

func init() {
	var m Mask
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeMask)
}

// Mask removes padding from the end of each sequence.
//
// A timestep is padding if every component equals Value
// and no later timestep in the sequence differs from
// Value.
// Removing the padding keeps it from contributing to
// later layers, to the cost, and to gradients.
type Mask struct {
	Value float64
}

// DeserializeMask deserializes a Mask.
func DeserializeMask(d []byte) (*Mask, error) {
	var value serializer.Float64
	if err := serializer.DeserializeAny(d, &value); err != nil {
		return nil, err
	}
	return &Mask{Value: float64(value)}, nil
}

// Apply trims the padding from every sequence.
func (m *Mask) Apply(in anyseq.Seq) anyseq.Seq {
	return poolSeqs(in, func(idx int, in anydiff.Res, steps int) (anydiff.Res, int) {
		size := stepSize(in, steps)
		data := float64s(in.Output())
		keep := steps
		for keep > 0 && m.isPadding(data[(keep-1)*size:keep*size]) {
			keep--
		}
		return anydiff.Slice(in, 0, keep*size), keep
	})
}

// SerializerType returns the unique ID used to serialize
// a Mask with the serializer package.
func (m *Mask) SerializerType() string {
	return "github.com/unixpickle/speechctc/seqnet.Mask"
}

// Serialize serializes the Mask.
func (m *Mask) Serialize() ([]byte, error) {
	return serializer.SerializeAny(serializer.Float64(m.Value))
}

func (m *Mask) isPadding(step []float64) bool {
	for _, x := range step {
		if x != m.Value {
			return false
		}
	}
	return true
}
