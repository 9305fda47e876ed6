// Package cells builds the recurrent blocks used by the
// speech models.
//
// LSTMs come in two implementations which share one
// interface, Impl.
// The Masked implementation honors the length of every
// sequence in a batch, so it may follow a masking layer.
// The Fused implementation keeps all four gates in single
// weight matrices, the layout used by GPU-optimized
// kernels, and does not support masking: models using it
// must feed it padded, equal-length sequences.
package cells

import (
	"fmt"
	"sort"

	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/speechctc/initializer"
)

// Init determines how the weights of a recurrent block
// are initialized.
type Init struct {
	// Kernel initializes input-to-hidden weights.
	Kernel initializer.Initializer

	// Recurrent initializes hidden-to-hidden weights.
	Recurrent initializer.Initializer

	// Bias initializes the biases.
	Bias initializer.Initializer

	// UnitForgetBias sets the forget gate biases of LSTMs
	// to 1 after initialization, replacing Bias.
	UnitForgetBias bool
}

// An Impl is a recurrent layer implementation.
type Impl interface {
	// Name returns the name used to select the Impl.
	Name() string

	// Masking reports whether the blocks support
	// sequences of differing lengths in one batch.
	Masking() bool

	// LSTM creates an LSTM block with the given input
	// and state sizes.
	LSTM(c anyvec.Creator, in, units int, init Init) anyrnn.Block
}

var impls = map[string]Impl{
	Masked{}.Name(): Masked{},
	Fused{}.Name():  Fused{},
}

// Lookup finds an Impl by name.
func Lookup(name string) (Impl, error) {
	if impl, ok := impls[name]; ok {
		return impl, nil
	}
	return nil, fmt.Errorf("unknown LSTM implementation %q (options: %v)", name, Names())
}

// Names returns the names of all implementations.
func Names() []string {
	var res []string
	for name := range impls {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// NewSimple creates a simple recurrent block with the
// given activation, initialized according to init.
func NewSimple(c anyvec.Creator, in, units int, act anynet.Layer, init Init) *anyrnn.Vanilla {
	res := anyrnn.NewVanillaZero(c, in, units, act)
	init.Kernel.Init(res.InputWeights.Vector, in, units)
	init.Recurrent.Init(res.StateWeights.Vector, units, units)
	init.Bias.Init(res.Biases.Vector, 1, units)
	return res
}

func ones(c anyvec.Creator, n int) anyvec.Vector {
	res := c.MakeVector(n)
	res.AddScalar(c.MakeNumeric(1))
	return res
}
