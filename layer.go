package speechctc

import (
	"fmt"

	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/speechctc/cells"
	"github.com/unixpickle/speechctc/initializer"
	"github.com/unixpickle/speechctc/seqnet"
	"k8s.io/klog/v2"
)

// A LayerKind identifies the type of a layer.
type LayerKind int

// These are the supported layer kinds.
const (
	Masking LayerKind = iota
	Dense
	Dropout
	SimpleRNN
	LSTM
	Conv1D
	ZeroPadding
	BatchNorm
)

func (l LayerKind) String() string {
	switch l {
	case Masking:
		return "Masking"
	case Dense:
		return "Dense"
	case Dropout:
		return "Dropout"
	case SimpleRNN:
		return "SimpleRNN"
	case LSTM:
		return "LSTM"
	case Conv1D:
		return "Conv1D"
	case ZeroPadding:
		return "ZeroPadding"
	case BatchNorm:
		return "BatchNorm"
	default:
		return fmt.Sprintf("LayerKind(%d)", int(l))
	}
}

// A MergeMode determines how the two directions of a
// bidirectional layer are combined.
type MergeMode int

const (
	// MergeConcat concatenates the outputs, doubling the
	// layer's width.
	MergeConcat MergeMode = iota

	// MergeSum adds the outputs.
	MergeSum
)

// These are the activations a LayerConfig may name.
const (
	ActivationNone        = ""
	ActivationClippedReLU = "clipped_relu"
	ActivationReLU        = "relu"
	ActivationSoftmax     = "softmax"
)

// LayerConfig describes one layer of a model.
//
// LayerConfigs are created by the architecture builders
// and never modified afterwards.
type LayerConfig struct {
	Name string
	Kind LayerKind

	// Units is the width of the layer's output, or the
	// number of filters for Conv1D.
	// For bidirectional layers with MergeConcat, the
	// output is twice as wide.
	Units int

	KernelSize int
	Stride     int

	// Padding is the number of zero frames appended by a
	// ZeroPadding layer.
	Padding int

	KernelInit    initializer.Initializer
	RecurrentInit initializer.Initializer
	BiasInit      initializer.Initializer

	// UnitForgetBias sets LSTM forget gate biases to 1.
	UnitForgetBias bool

	Activation string

	// Rate is the drop probability of a Dropout layer.
	Rate float64

	Bidirectional bool
	Merge         MergeMode

	// Impl is the LSTM implementation.
	Impl cells.Impl
}

// OutputWidth returns the number of components in each
// output timestep, given the input width.
func (l *LayerConfig) OutputWidth(in int) int {
	switch l.Kind {
	case Dense, Conv1D:
		return l.Units
	case SimpleRNN, LSTM:
		if l.Bidirectional && l.Merge == MergeConcat {
			return 2 * l.Units
		}
		return l.Units
	default:
		return in
	}
}

// OutputLength returns the number of output timesteps,
// given the number of input timesteps.
func (l *LayerConfig) OutputLength(n int) int {
	switch l.Kind {
	case Conv1D:
		if n < l.KernelSize {
			return 0
		}
		return 1 + (n-l.KernelSize)/l.Stride
	case ZeroPadding:
		return n + l.Padding
	default:
		return n
	}
}

// realize creates the layer for inputs of the given
// width.
// Any dropout layers that were created are returned so
// that they can be toggled between training and
// inference.
func (l *LayerConfig) realize(c anyvec.Creator, in int) (seqnet.Layer, []*anynet.Dropout) {
	var res seqnet.Layer
	var dropouts []*anynet.Dropout
	switch l.Kind {
	case Masking:
		res = &seqnet.Mask{}
	case Dense:
		fc := anynet.NewFCZero(c, in, l.Units)
		l.KernelInit.Init(fc.Weights.Vector, in, l.Units)
		l.BiasInit.Init(fc.Biases.Vector, 1, l.Units)
		net := anynet.Net{fc}
		if act := activationLayer(l.Activation); act != nil {
			net = append(net, act)
		}
		res = &seqnet.TimeDistributed{Layer: net}
	case Dropout:
		d := &anynet.Dropout{KeepProb: 1 - l.Rate}
		dropouts = append(dropouts, d)
		res = &seqnet.TimeDistributed{Layer: d}
	case SimpleRNN, LSTM:
		res = l.realizeRecurrent(c, in)
	case Conv1D:
		conv := seqnet.NewConv1D(c, in, l.Units, l.KernelSize, l.Stride,
			activationLayer(l.Activation))
		l.KernelInit.Init(conv.Filters.Vector, l.KernelSize*in, l.KernelSize*l.Units)
		l.BiasInit.Init(conv.Biases.Vector, 1, l.Units)
		res = conv
	case ZeroPadding:
		res = &seqnet.Padding{Depth: in, After: l.Padding}
	case BatchNorm:
		res = seqnet.NewBatchNorm(c, in)
	default:
		panic(fmt.Sprintf("unknown layer kind: %v", l.Kind))
	}
	klog.V(2).Infof("layer %s: kind=%v in=%d out=%d", l.Name, l.Kind, in, l.OutputWidth(in))
	return res, dropouts
}

func (l *LayerConfig) realizeRecurrent(c anyvec.Creator, in int) seqnet.Layer {
	makeBlock := func() anyrnn.Block {
		init := cells.Init{
			Kernel:         l.KernelInit,
			Recurrent:      l.RecurrentInit,
			Bias:           l.BiasInit,
			UnitForgetBias: l.UnitForgetBias,
		}
		if l.Kind == SimpleRNN {
			act := activationLayer(l.Activation)
			if act == nil {
				act = anynet.Net{}
			}
			return cells.NewSimple(c, in, l.Units, act, init)
		}
		return l.Impl.LSTM(c, in, l.Units, init)
	}
	if !l.Bidirectional {
		return &seqnet.Recurrent{Block: makeBlock()}
	}
	var mixer anynet.Mixer = anynet.ConcatMixer{}
	if l.Merge == MergeSum {
		mixer = &anynet.AddMixer{In1: anynet.Net{}, In2: anynet.Net{}, Out: anynet.Net{}}
	}
	return &anyrnn.Bidir{
		Forward:  makeBlock(),
		Backward: makeBlock(),
		Mixer:    mixer,
	}
}

func activationLayer(name string) anynet.Layer {
	switch name {
	case ActivationNone:
		return nil
	case ActivationClippedReLU:
		return &ClippedReLU{Ceiling: ClipCeiling}
	case ActivationReLU:
		return anynet.ReLU
	case ActivationSoftmax:
		return anynet.LogSoftmax
	default:
		panic("unknown activation: " + name)
	}
}
