package seqnet

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var p Padding
	serializer.RegisterTypedDeserializer(p.SerializerType(), DeserializePadding)
}

// Padding adds zero timesteps to the start and end of
// every sequence.
type Padding struct {
	// Depth is the size of each timestep.
	Depth int

	Before int
	After  int
}

// DeserializePadding deserializes a Padding.
func DeserializePadding(d []byte) (*Padding, error) {
	var depth, before, after serializer.Int
	if err := serializer.DeserializeAny(d, &depth, &before, &after); err != nil {
		return nil, essentials.AddCtx("deserialize Padding", err)
	}
	return &Padding{
		Depth:  int(depth),
		Before: int(before),
		After:  int(after),
	}, nil
}

// OutputLength returns the length of a padded sequence.
func (p *Padding) OutputLength(n int) int {
	return n + p.Before + p.After
}

// Apply pads every sequence.
func (p *Padding) Apply(in anyseq.Seq) anyseq.Seq {
	c := in.Creator()
	return poolSeqs(in, func(idx int, in anydiff.Res, steps int) (anydiff.Res, int) {
		if steps > 0 && in.Output().Len() != steps*p.Depth {
			panic("incorrect input size")
		}
		parts := []anydiff.Res{}
		if p.Before > 0 {
			parts = append(parts, anydiff.NewConst(c.MakeVector(p.Before*p.Depth)))
		}
		parts = append(parts, in)
		if p.After > 0 {
			parts = append(parts, anydiff.NewConst(c.MakeVector(p.After*p.Depth)))
		}
		return anydiff.Concat(parts...), p.OutputLength(steps)
	})
}

// SerializerType returns the unique ID used to serialize
// a Padding with the serializer package.
func (p *Padding) SerializerType() string {
	return "github.com/unixpickle/speechctc/seqnet.Padding"
}

// Serialize serializes the Padding.
func (p *Padding) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(p.Depth),
		serializer.Int(p.Before),
		serializer.Int(p.After),
	)
}
