package cells

import (
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
)

// Masked is the Impl backed by anyrnn.LSTM.
//
// Its cell input uses a ReLU activation.
type Masked struct{}

// Name returns "masked".
func (Masked) Name() string {
	return "masked"
}

// Masking returns true.
func (Masked) Masking() bool {
	return true
}

// LSTM creates an *anyrnn.LSTM.
//
// The kernel and recurrent weights are initialized as if
// they were one matrix for all four gates, so the fans
// match those of a Fused LSTM.
func (Masked) LSTM(c anyvec.Creator, in, units int, init Init) anyrnn.Block {
	res := anyrnn.NewLSTMZero(c, in, units)
	res.InValue.Activation = anynet.ReLU

	// Gate order follows the fused layout: input, forget,
	// cell, output.
	gates := []*anyrnn.LSTMGate{res.In, res.Remember, res.InValue, res.Output}

	recurrent := c.MakeVector(4 * units * units)
	init.Recurrent.Init(recurrent, units, 4*units)
	for i, g := range gates {
		init.Kernel.Init(g.InputWeights.Vector, in, 4*units)
		g.StateWeights.Vector.Set(recurrent.Slice(i*units*units, (i+1)*units*units))
		init.Bias.Init(g.Biases.Vector, 1, units)
	}
	if init.UnitForgetBias {
		res.Remember.Biases.Vector.Set(ones(c, units))
	}
	return res
}
