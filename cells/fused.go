package cells

import (
	"errors"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var f FusedLSTM
	serializer.RegisterTypedDeserializer(f.SerializerType(), DeserializeFusedLSTM)
}

// Fused is the Impl backed by FusedLSTM.
type Fused struct{}

// Name returns "fused".
func (Fused) Name() string {
	return "fused"
}

// Masking returns false.
func (Fused) Masking() bool {
	return false
}

// LSTM creates a *FusedLSTM.
func (Fused) LSTM(c anyvec.Creator, in, units int, init Init) anyrnn.Block {
	res := NewFusedLSTMZero(c, in, units)
	init.Kernel.Init(res.Kernel.Vector, in, 4*units)
	init.Recurrent.Init(res.Recurrent.Vector, units, 4*units)
	init.Bias.Init(res.Biases.Vector, 1, 4*units)
	if init.UnitForgetBias {
		res.Biases.Vector.Slice(units, 2*units).Set(ones(c, units))
	}
	return res
}

// FusedLSTM is an LSTM block without peepholes whose four
// gates share single weight matrices.
//
// Gates are stacked in the order input, forget, cell,
// output.
// Kernel is a (4*Units)-by-InCount matrix, Recurrent is a
// (4*Units)-by-Units matrix, and Biases has 4*Units
// entries.
//
// The start state is zero.
type FusedLSTM struct {
	InCount int
	Units   int

	Kernel    *anydiff.Var
	Recurrent *anydiff.Var
	Biases    *anydiff.Var
}

// DeserializeFusedLSTM deserializes a FusedLSTM.
func DeserializeFusedLSTM(d []byte) (*FusedLSTM, error) {
	var kernel, recurrent, biases *anyvecsave.S
	if err := serializer.DeserializeAny(d, &kernel, &recurrent, &biases); err != nil {
		return nil, essentials.AddCtx("deserialize FusedLSTM", err)
	}
	if biases.Vector.Len()%4 != 0 {
		return nil, errors.New("deserialize FusedLSTM: bias count not divisible by 4")
	}
	units := biases.Vector.Len() / 4
	if recurrent.Vector.Len() != 4*units*units {
		return nil, errors.New("deserialize FusedLSTM: invalid recurrent matrix size")
	}
	if units == 0 || kernel.Vector.Len()%(4*units) != 0 {
		return nil, errors.New("deserialize FusedLSTM: invalid kernel matrix size")
	}
	return &FusedLSTM{
		InCount:   kernel.Vector.Len() / (4 * units),
		Units:     units,
		Kernel:    anydiff.NewVar(kernel.Vector),
		Recurrent: anydiff.NewVar(recurrent.Vector),
		Biases:    anydiff.NewVar(biases.Vector),
	}, nil
}

// NewFusedLSTMZero creates a FusedLSTM with zero weights.
func NewFusedLSTMZero(c anyvec.Creator, in, units int) *FusedLSTM {
	return &FusedLSTM{
		InCount:   in,
		Units:     units,
		Kernel:    anydiff.NewVar(c.MakeVector(4 * units * in)),
		Recurrent: anydiff.NewVar(c.MakeVector(4 * units * units)),
		Biases:    anydiff.NewVar(c.MakeVector(4 * units)),
	}
}

// Start produces a zero start state for n sequences.
func (f *FusedLSTM) Start(n int) anyrnn.State {
	c := f.Kernel.Vector.Creator()
	return &FusedState{
		Output: anyrnn.NewVecState(c.MakeVector(f.Units), n),
		Cell:   anyrnn.NewVecState(c.MakeVector(f.Units), n),
	}
}

// PropagateStart does nothing, since the start state is
// constant.
func (f *FusedLSTM) PropagateStart(s anyrnn.StateGrad, g anydiff.Grad) {
}

// Step applies the block for a single timestep.
func (f *FusedLSTM) Step(s anyrnn.State, in anyvec.Vector) anyrnn.Res {
	state := s.(*FusedState)
	u := f.Units
	res := &fusedRes{
		InPool:   anydiff.NewVar(in),
		LastOut:  anydiff.NewVar(state.Output.Vector),
		LastCell: anydiff.NewVar(state.Cell.Vector),
		V:        anydiff.NewVarSet(f.Parameters()...),
	}

	gates := make([]anydiff.Res, 4)
	for i := range gates {
		kernel := anydiff.Slice(f.Kernel, i*u*f.InCount, (i+1)*u*f.InCount)
		recurrent := anydiff.Slice(f.Recurrent, i*u*u, (i+1)*u*u)
		bias := anydiff.Slice(f.Biases, i*u, (i+1)*u)
		sum := anydiff.Add(
			applyWeights(f.InCount, u, kernel, res.InPool),
			applyWeights(u, u, recurrent, res.LastOut),
		)
		gates[i] = anydiff.AddRepeated(sum, bias)
	}
	inGate := anydiff.Sigmoid(gates[0])
	forgetGate := anydiff.Sigmoid(gates[1])
	cellIn := anydiff.Tanh(gates[2])
	outGate := anydiff.Sigmoid(gates[3])

	cell := anydiff.Add(
		anydiff.Mul(forgetGate, res.LastCell),
		anydiff.Mul(inGate, cellIn),
	)
	out := anydiff.Mul(outGate, anydiff.Tanh(cell))
	res.Joined = anydiff.Concat(out, cell)
	res.OutState = &FusedState{
		Output: &anyrnn.VecState{Vector: out.Output(), PresentMap: s.Present()},
		Cell:   &anyrnn.VecState{Vector: cell.Output(), PresentMap: s.Present()},
	}
	return res
}

// Parameters returns the kernel, recurrent weights, and
// biases, in that order.
func (f *FusedLSTM) Parameters() []*anydiff.Var {
	return []*anydiff.Var{f.Kernel, f.Recurrent, f.Biases}
}

// SerializerType returns the unique ID used to serialize
// a FusedLSTM with the serializer package.
func (f *FusedLSTM) SerializerType() string {
	return "github.com/unixpickle/speechctc/cells.FusedLSTM"
}

// Serialize serializes the block.
func (f *FusedLSTM) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		&anyvecsave.S{Vector: f.Kernel.Vector},
		&anyvecsave.S{Vector: f.Recurrent.Vector},
		&anyvecsave.S{Vector: f.Biases.Vector},
	)
}

// FusedState is the state of a FusedLSTM.
// Each vector holds one Units-sized chunk per present
// sequence.
type FusedState struct {
	Output *anyrnn.VecState
	Cell   *anyrnn.VecState
}

// Present returns the present map of the output state.
func (f *FusedState) Present() anyrnn.PresentMap {
	return f.Output.Present()
}

// Reduce removes sequences from both vectors.
func (f *FusedState) Reduce(p anyrnn.PresentMap) anyrnn.State {
	return &FusedState{
		Output: f.Output.Reduce(p).(*anyrnn.VecState),
		Cell:   f.Cell.Reduce(p).(*anyrnn.VecState),
	}
}

// FusedGrad is the state gradient of a FusedLSTM.
type FusedGrad struct {
	Output *anyrnn.VecState
	Cell   *anyrnn.VecState
}

// Present returns the present map of the output
// gradient.
func (f *FusedGrad) Present() anyrnn.PresentMap {
	return f.Output.Present()
}

// Expand inserts zero gradients for missing sequences.
func (f *FusedGrad) Expand(p anyrnn.PresentMap) anyrnn.StateGrad {
	return &FusedGrad{
		Output: f.Output.Expand(p).(*anyrnn.VecState),
		Cell:   f.Cell.Expand(p).(*anyrnn.VecState),
	}
}

type fusedRes struct {
	InPool   *anydiff.Var
	LastOut  *anydiff.Var
	LastCell *anydiff.Var

	// Joined is the output followed by the new cell.
	Joined   anydiff.Res
	OutState *FusedState
	V        anydiff.VarSet
}

func (f *fusedRes) State() anyrnn.State {
	return f.OutState
}

func (f *fusedRes) Output() anyvec.Vector {
	return f.OutState.Output.Vector
}

func (f *fusedRes) Vars() anydiff.VarSet {
	return f.V
}

func (f *fusedRes) Propagate(u anyvec.Vector, s anyrnn.StateGrad,
	g anydiff.Grad) (anyvec.Vector, anyrnn.StateGrad) {
	c := u.Creator()
	for _, p := range []*anydiff.Var{f.InPool, f.LastOut, f.LastCell} {
		g[p] = c.MakeVector(p.Vector.Len())
		defer func(p *anydiff.Var) {
			delete(g, p)
		}(p)
	}

	outGrad := u.Copy()
	var cellGrad anyvec.Vector
	if s != nil {
		sg := s.(*FusedGrad)
		outGrad.Add(sg.Output.Vector)
		cellGrad = sg.Cell.Vector
	} else {
		cellGrad = c.MakeVector(u.Len())
	}
	f.Joined.Propagate(c.Concat(outGrad, cellGrad), g)

	present := f.OutState.Present()
	return g[f.InPool], &FusedGrad{
		Output: &anyrnn.VecState{Vector: g[f.LastOut], PresentMap: present},
		Cell:   &anyrnn.VecState{Vector: g[f.LastCell], PresentMap: present},
	}
}

func applyWeights(in, out int, weights anydiff.Res, batch anydiff.Res) anydiff.Res {
	weightMat := &anydiff.Matrix{Data: weights, Rows: out, Cols: in}
	inMat := &anydiff.Matrix{Data: batch, Rows: batch.Output().Len() / in, Cols: in}
	return anydiff.MatMul(false, true, inMat, weightMat).Data
}
