package speechctc

import (
	"errors"
	"fmt"

	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/speechctc/ctcloss"
	"github.com/unixpickle/speechctc/seqnet"
)

// A Batch stores the inputs of a Model for a batch of
// utterances.
type Batch struct {
	// Input is the_input: one sequence of feature frames
	// per utterance.
	Input anyseq.Seq

	// Labels is the_labels: one row of float-encoded
	// symbol IDs per utterance, padded to equal length.
	Labels [][]float64

	// InputLength is input_length: the number of
	// prediction timesteps to score for each utterance,
	// excluding the leading garbage steps.
	InputLength []float64

	// LabelLength is label_length: the number of entries
	// of each row of Labels which are real symbols.
	LabelLength []float64
}

// NewBatch creates a Batch for the utterances and their
// transcriptions.
//
// Inputs are padded with zero frames to the length of the
// longest input, and input lengths are computed with
// OutputLength.
func (m *Model) NewBatch(inputs [][]anyvec.Vector, labels [][]int) (*Batch, error) {
	if len(inputs) == 0 {
		return nil, errors.New("new batch: empty batch")
	} else if len(inputs) != len(labels) {
		return nil, fmt.Errorf("new batch: %d inputs but %d labels", len(inputs), len(labels))
	}
	c := m.config.Creator

	var maxFrames, maxLabel int
	for i, in := range inputs {
		for _, frame := range in {
			if frame.Len() != m.config.InputDim {
				return nil, fmt.Errorf("new batch: sequence %d: frame size %d should be %d",
					i, frame.Len(), m.config.InputDim)
			}
		}
		if len(in) > maxFrames {
			maxFrames = len(in)
		}
		if len(labels[i]) > maxLabel {
			maxLabel = len(labels[i])
		}
	}

	res := &Batch{
		Labels:      make([][]float64, len(inputs)),
		InputLength: make([]float64, len(inputs)),
		LabelLength: make([]float64, len(inputs)),
	}
	padded := make([][]anyvec.Vector, len(inputs))
	for i, in := range inputs {
		padded[i] = append([]anyvec.Vector{}, in...)
		for len(padded[i]) < maxFrames {
			padded[i] = append(padded[i], c.MakeVector(m.config.InputDim))
		}
		res.InputLength[i] = float64(m.OutputLength(len(in)))

		res.Labels[i] = make([]float64, maxLabel)
		for j, label := range labels[i] {
			res.Labels[i][j] = float64(label)
		}
		res.LabelLength[i] = float64(len(labels[i]))
	}
	res.Input = anyseq.ConstSeqList(c, padded)
	return res, nil
}

// Size returns the number of utterances in the batch.
func (b *Batch) Size() int {
	return len(b.InputLength)
}

func (b *Batch) decode() (labels [][]int, inputLengths []int, err error) {
	if n := len(seqnet.Lengths(b.Input)); n != b.Size() {
		return nil, nil, fmt.Errorf("%w: %d input sequences but %d input lengths",
			ctcloss.ErrBadBatch, n, b.Size())
	}
	labelLengths, err := ctcloss.DecodeLengths(b.LabelLength)
	if err != nil {
		return nil, nil, err
	}
	labels, err = ctcloss.DecodeLabels(b.Labels, labelLengths)
	if err != nil {
		return nil, nil, err
	}
	inputLengths, err = ctcloss.DecodeLengths(b.InputLength)
	if err != nil {
		return nil, nil, err
	}
	return labels, inputLengths, nil
}
