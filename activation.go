package speechctc

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var c ClippedReLU
	serializer.RegisterTypedDeserializer(c.SerializerType(), DeserializeClippedReLU)
}

// ClippedReLU is a rectified linear activation whose
// output never exceeds Ceiling.
type ClippedReLU struct {
	Ceiling float64
}

// DeserializeClippedReLU deserializes a ClippedReLU.
func DeserializeClippedReLU(d []byte) (*ClippedReLU, error) {
	var ceil serializer.Float64
	if err := serializer.DeserializeAny(d, &ceil); err != nil {
		return nil, essentials.AddCtx("deserialize ClippedReLU", err)
	}
	return &ClippedReLU{Ceiling: float64(ceil)}, nil
}

// Apply computes min(max(x, 0), Ceiling) for every
// component.
func (c *ClippedReLU) Apply(in anydiff.Res, n int) anydiff.Res {
	cr := in.Output().Creator()
	negOne := cr.MakeNumeric(-1)
	ceil := cr.MakeNumeric(c.Ceiling)

	// Ceiling - max(Ceiling - max(x, 0), 0)
	headroom := anydiff.AddScalar(anydiff.Scale(anydiff.ClipPos(in), negOne), ceil)
	return anydiff.AddScalar(anydiff.Scale(anydiff.ClipPos(headroom), negOne), ceil)
}

// SerializerType returns the unique ID used to serialize
// a ClippedReLU with the serializer package.
func (c *ClippedReLU) SerializerType() string {
	return "github.com/unixpickle/speechctc.ClippedReLU"
}

// Serialize serializes the activation.
func (c *ClippedReLU) Serialize() ([]byte, error) {
	return serializer.SerializeAny(serializer.Float64(c.Ceiling))
}
