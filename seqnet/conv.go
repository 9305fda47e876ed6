package seqnet

import (
	"errors"
	"sync"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyconv"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// maxConvers bounds the number of sequence lengths for
// which a Conv1D keeps a Conver.
const maxConvers = 16

func init() {
	var c Conv1D
	serializer.RegisterTypedDeserializer(c.SerializerType(), DeserializeConv1D)
}

// Conv1D convolves filters along the time axis of each
// sequence, followed by an optional activation.
//
// Each filter spans KernelSize consecutive timesteps.
// Filters are stored the way anyconv.Conv stores them,
// kernel-major and depth-minor.
type Conv1D struct {
	FilterCount int
	KernelSize  int
	Stride      int
	InputDepth  int

	Filters *anydiff.Var
	Biases  *anydiff.Var

	// Activation may be nil.
	Activation anynet.Layer

	converLock  sync.Mutex
	convers     map[int]anyconv.Conver
	converOrder []int
}

// DeserializeConv1D deserializes a Conv1D.
func DeserializeConv1D(d []byte) (*Conv1D, error) {
	var count, kernel, stride, depth serializer.Int
	var filters, biases *anyvecsave.S
	var act anynet.Net
	err := serializer.DeserializeAny(d, &count, &kernel, &stride, &depth, &filters, &biases, &act)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Conv1D", err)
	}
	res := &Conv1D{
		FilterCount: int(count),
		KernelSize:  int(kernel),
		Stride:      int(stride),
		InputDepth:  int(depth),
		Filters:     anydiff.NewVar(filters.Vector),
		Biases:      anydiff.NewVar(biases.Vector),
	}
	if len(act) == 1 {
		res.Activation = act[0]
	}
	return res, nil
}

// NewConv1D creates a Conv1D with zero parameters.
func NewConv1D(c anyvec.Creator, inDepth, filters, kernel, stride int,
	activation anynet.Layer) *Conv1D {
	return &Conv1D{
		FilterCount: filters,
		KernelSize:  kernel,
		Stride:      stride,
		InputDepth:  inDepth,
		Filters:     anydiff.NewVar(c.MakeVector(filters * kernel * inDepth)),
		Biases:      anydiff.NewVar(c.MakeVector(filters)),
		Activation:  activation,
	}
}

// OutputLength returns the number of timesteps produced
// for an input of n timesteps.
func (c *Conv1D) OutputLength(n int) int {
	if n < c.KernelSize {
		return 0
	}
	return 1 + (n-c.KernelSize)/c.Stride
}

// Apply convolves every sequence.
func (c *Conv1D) Apply(in anyseq.Seq) anyseq.Seq {
	return poolSeqs(in, func(idx int, in anydiff.Res, steps int) (anydiff.Res, int) {
		outSteps := c.OutputLength(steps)
		if outSteps == 0 {
			return anydiff.Slice(in, 0, 0), 0
		}
		out := c.conver(steps).Apply(in, 1)
		if c.Activation != nil {
			out = c.Activation.Apply(out, outSteps)
		}
		return out, outSteps
	})
}

// Parameters returns the filters and biases, in that
// order, followed by any activation parameters.
func (c *Conv1D) Parameters() []*anydiff.Var {
	res := []*anydiff.Var{c.Filters, c.Biases}
	if c.Activation != nil {
		res = append(res, anynet.Net{c.Activation}.Parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a Conv1D with the serializer package.
func (c *Conv1D) SerializerType() string {
	return "github.com/unixpickle/speechctc/seqnet.Conv1D"
}

// Serialize serializes the layer.
func (c *Conv1D) Serialize() ([]byte, error) {
	if c.Filters == nil || c.Biases == nil {
		return nil, errors.New("cannot serialize uninitialized Conv1D")
	}
	act := anynet.Net{}
	if c.Activation != nil {
		act = append(act, c.Activation)
	}
	return serializer.SerializeAny(
		serializer.Int(c.FilterCount),
		serializer.Int(c.KernelSize),
		serializer.Int(c.Stride),
		serializer.Int(c.InputDepth),
		&anyvecsave.S{Vector: c.Filters.Vector},
		&anyvecsave.S{Vector: c.Biases.Vector},
		act,
	)
}

// conver returns a convolution for sequences of length n,
// treating each sequence as an n-by-1 image.
// The parameters are shared between all lengths.
//
// Convers come from anyconv.CurrentConverMaker, and at
// most maxConvers of them are cached.
func (c *Conv1D) conver(n int) anyconv.Conver {
	c.converLock.Lock()
	defer c.converLock.Unlock()
	if cv, ok := c.convers[n]; ok {
		return cv
	}
	if c.convers == nil {
		c.convers = map[int]anyconv.Conver{}
	}
	if len(c.converOrder) == maxConvers {
		delete(c.convers, c.converOrder[0])
		c.converOrder = append(c.converOrder[:0], c.converOrder[1:]...)
	}
	cv := anyconv.CurrentConverMaker()(anyconv.Conv{
		FilterCount:  c.FilterCount,
		FilterWidth:  c.KernelSize,
		FilterHeight: 1,
		StrideX:      c.Stride,
		StrideY:      1,
		InputWidth:   n,
		InputHeight:  1,
		InputDepth:   c.InputDepth,
		Filters:      c.Filters,
		Biases:       c.Biases,
	})
	c.convers[n] = cv
	c.converOrder = append(c.converOrder, n)
	return cv
}
