package speechctc

import (
	"errors"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// A Sample is an utterance paired with its transcription.
type Sample struct {
	Input []anyvec.Vector
	Label []int
}

// A SampleList is an anysgd.SampleList of utterances.
type SampleList interface {
	anysgd.SampleList

	GetSample(idx int) (*Sample, error)
}

// A SliceSampleList is a SampleList with predetermined
// samples.
type SliceSampleList []*Sample

// Len returns the number of samples.
func (s SliceSampleList) Len() int {
	return len(s)
}

// Swap swaps two samples.
func (s SliceSampleList) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

// Slice copies a sub-slice of the list.
func (s SliceSampleList) Slice(i, j int) anysgd.SampleList {
	return append(SliceSampleList{}, s[i:j]...)
}

// GetSample returns the sample at the index.
func (s SliceSampleList) GetSample(idx int) (*Sample, error) {
	return s[idx], nil
}

// A Trainer creates batches, computes gradients, and adds
// up costs for a Model.
//
// A Trainer puts its Model in training mode while it
// computes gradients.
type Trainer struct {
	Model *Model

	// Average indicates whether or not the total cost should
	// be averaged before computing gradients.
	// This affects gradients, LastCost, and the output of
	// TotalCost().
	Average bool

	// After every gradient computation, LastCost is set to
	// the cost from the batch.
	LastCost anyvec.Numeric
}

// Fetch produces a *Batch for the subset of samples.
// The s argument must implement SampleList.
// The batch may not be empty.
func (t *Trainer) Fetch(s anysgd.SampleList) (anysgd.Batch, error) {
	if s.Len() == 0 {
		return nil, errors.New("fetch batch: empty batch")
	}
	l, ok := s.(SampleList)
	if !ok {
		return nil, errors.New("fetch batch: not a speechctc.SampleList")
	}
	ins := make([][]anyvec.Vector, l.Len())
	outs := make([][]int, l.Len())
	for i := 0; i < l.Len(); i++ {
		sample, err := l.GetSample(i)
		if err != nil {
			return nil, essentials.AddCtx("fetch batch", err)
		}
		ins[i] = sample.Input
		outs[i] = sample.Label
	}
	batch, err := t.Model.NewBatch(ins, outs)
	if err != nil {
		return nil, essentials.AddCtx("fetch batch", err)
	}
	return batch, nil
}

// TotalCost computes the total cost for the batch.
func (t *Trainer) TotalCost(b *Batch) (anydiff.Res, error) {
	costs, err := t.Model.Loss(b)
	if err != nil {
		return nil, err
	}
	sum := anydiff.Sum(costs)
	if t.Average {
		scaler := sum.Output().Creator().MakeNumeric(1 / float64(costs.Output().Len()))
		return anydiff.Scale(sum, scaler), nil
	}
	return sum, nil
}

// Gradient computes the gradient for the batch's cost.
// It also sets t.LastCost to the numerical value of the
// total cost.
//
// The b argument must be a *Batch or a SampleList.
// Gradient panics if the batch is inconsistent with the
// model, since anysgd provides no way to report errors.
func (t *Trainer) Gradient(b anysgd.Batch) anydiff.Grad {
	if l, ok := b.(SampleList); ok {
		fetched, err := t.Fetch(l)
		if err != nil {
			panic(err)
		}
		b = fetched
	}

	t.Model.SetTraining(true)
	defer t.Model.SetTraining(false)

	res := anydiff.NewGrad(t.Model.Parameters()...)
	cost, err := t.TotalCost(b.(*Batch))
	if err != nil {
		panic(essentials.AddCtx("compute gradient", err))
	}
	t.LastCost = anyvec.Sum(cost.Output())

	c := cost.Output().Creator()
	upstream := c.MakeVectorData(c.MakeNumericList([]float64{1}))
	cost.Propagate(upstream, res)

	return res
}
