// Package seqnet provides layers which operate on whole
// batches of sequences.
//
// The layers complement the feed-forward layers of anynet
// and the recurrent blocks of anyrnn with the plumbing a
// speech model needs: applying a layer at every timestep,
// masking padded frames, padding and convolving along the
// time axis, and dropping timesteps.
package seqnet

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var c Chain
	serializer.RegisterTypedDeserializer(c.SerializerType(), DeserializeChain)
	var t TimeDistributed
	serializer.RegisterTypedDeserializer(t.SerializerType(), DeserializeTimeDistributed)
	var r Recurrent
	serializer.RegisterTypedDeserializer(r.SerializerType(), DeserializeRecurrent)
}

// A Layer transforms a batch of sequences.
//
// Note that *anyrnn.Bidir is a Layer.
type Layer interface {
	Apply(in anyseq.Seq) anyseq.Seq
}

// A Chain applies a list of layers, one after another.
type Chain []Layer

// DeserializeChain deserializes a Chain.
func DeserializeChain(d []byte) (Chain, error) {
	slice, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Chain", err)
	}
	res := make(Chain, len(slice))
	for i, x := range slice {
		if layer, ok := x.(Layer); ok {
			res[i] = layer
		} else {
			return nil, fmt.Errorf("deserialize Chain: not a Layer: %T", x)
		}
	}
	return res, nil
}

// Apply applies the layers in order.
// An empty Chain returns its input.
func (c Chain) Apply(in anyseq.Seq) anyseq.Seq {
	for _, l := range c {
		in = l.Apply(in)
	}
	return in
}

// Parameters returns the parameters of every layer which
// implements anynet.Parameterizer, in order.
func (c Chain) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, l := range c {
		if p, ok := l.(anynet.Parameterizer); ok {
			res = append(res, p.Parameters()...)
		}
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a Chain with the serializer package.
func (c Chain) SerializerType() string {
	return "github.com/unixpickle/speechctc/seqnet.Chain"
}

// Serialize serializes the Chain.
// It fails if any layer is not a serializer.Serializer.
func (c Chain) Serialize() ([]byte, error) {
	var slice []serializer.Serializer
	for _, l := range c {
		if s, ok := l.(serializer.Serializer); ok {
			slice = append(slice, s)
		} else {
			return nil, fmt.Errorf("not a Serializer: %T", l)
		}
	}
	return serializer.SerializeSlice(slice)
}

// TimeDistributed applies a feed-forward layer to every
// timestep independently.
type TimeDistributed struct {
	Layer anynet.Layer
}

// DeserializeTimeDistributed deserializes a
// TimeDistributed.
func DeserializeTimeDistributed(d []byte) (*TimeDistributed, error) {
	var res TimeDistributed
	if err := serializer.DeserializeAny(d, &res.Layer); err != nil {
		return nil, essentials.AddCtx("deserialize TimeDistributed", err)
	}
	return &res, nil
}

// Apply applies the layer to each timestep.
func (t *TimeDistributed) Apply(in anyseq.Seq) anyseq.Seq {
	return anyseq.Map(in, func(v anydiff.Res, n int) anydiff.Res {
		return t.Layer.Apply(v, n)
	})
}

// Parameters returns the layer's parameters, if any.
func (t *TimeDistributed) Parameters() []*anydiff.Var {
	return anynet.Net{t.Layer}.Parameters()
}

// SerializerType returns the unique ID used to serialize
// a TimeDistributed with the serializer package.
func (t *TimeDistributed) SerializerType() string {
	return "github.com/unixpickle/speechctc/seqnet.TimeDistributed"
}

// Serialize serializes the wrapped layer.
func (t *TimeDistributed) Serialize() ([]byte, error) {
	return serializer.SerializeAny(t.Layer)
}

// Recurrent maps a recurrent block over its input,
// returning the full output sequence.
type Recurrent struct {
	Block anyrnn.Block
}

// DeserializeRecurrent deserializes a Recurrent.
func DeserializeRecurrent(d []byte) (*Recurrent, error) {
	var res Recurrent
	if err := serializer.DeserializeAny(d, &res.Block); err != nil {
		return nil, essentials.AddCtx("deserialize Recurrent", err)
	}
	return &res, nil
}

// Apply evaluates the block over the sequences.
func (r *Recurrent) Apply(in anyseq.Seq) anyseq.Seq {
	return anyrnn.Map(in, r.Block)
}

// Parameters returns the block's parameters, if any.
func (r *Recurrent) Parameters() []*anydiff.Var {
	if p, ok := r.Block.(anynet.Parameterizer); ok {
		return p.Parameters()
	}
	return nil
}

// SerializerType returns the unique ID used to serialize
// a Recurrent with the serializer package.
func (r *Recurrent) SerializerType() string {
	return "github.com/unixpickle/speechctc/seqnet.Recurrent"
}

// Serialize serializes the block.
func (r *Recurrent) Serialize() ([]byte, error) {
	return serializer.SerializeAny(r.Block)
}
