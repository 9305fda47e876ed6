package speechctc

import "github.com/unixpickle/speechctc/initializer"

// An initPolicy assigns initializers to every layer
// family of an architecture.
type initPolicy struct {
	DenseKernel initializer.Initializer
	DenseBias   initializer.Initializer

	ConvKernel initializer.Initializer
	ConvBias   initializer.Initializer

	RecurrentKernel initializer.Initializer
	RecurrentState  initializer.Initializer
	RecurrentBias   initializer.Initializer

	UnitForgetBias bool
}

func policyFor(v Variant) *initPolicy {
	res := &initPolicy{
		DenseKernel:     initializer.RandomNormal{},
		DenseBias:       initializer.RandomNormal{},
		RecurrentKernel: initializer.GlorotUniform{},
		RecurrentState:  initializer.Orthogonal{},
		RecurrentBias:   initializer.Zeros{},
	}
	switch v {
	case DNNBLSTM:
		res.RecurrentBias = initializer.RandomNormal{}
		res.UnitForgetBias = true
	case DeepLSTM:
		res.UnitForgetBias = true
	case CNNBRNN:
		res.ConvKernel = initializer.GlorotUniform{}
		res.ConvBias = initializer.RandomNormal{}
		res.RecurrentBias = initializer.RandomNormal{}
	}
	return res
}
