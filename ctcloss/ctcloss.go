// Package ctcloss adapts the output of a speech model to
// the CTC cost.
//
// A model emits one log-probability distribution per
// timestep, with the blank symbol in the last position.
// The first GarbageSteps timesteps of every prediction are
// discarded, since recurrent layers produce unreliable
// outputs before they have seen any context.
package ctcloss

import (
	"errors"
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet/anyctc"
	"github.com/unixpickle/speechctc/seqnet"
)

// GarbageSteps is the number of leading prediction
// timesteps excluded from the cost.
const GarbageSteps = 2

// ErrBadBatch is wrapped by every error caused by labels
// or lengths that do not fit the predictions.
var ErrBadBatch = errors.New("inconsistent CTC batch")

// AvailableSteps returns the number of timesteps of a
// prediction of length n which take part in the cost.
func AvailableSteps(n int) int {
	return (&seqnet.DropSteps{N: GarbageSteps}).OutputLength(n)
}

// Cost computes the CTC cost of each sequence in a batch
// of predictions.
//
// After the leading timesteps are dropped, the i-th
// prediction is truncated to inputLengths[i] timesteps.
// Every label must be a non-blank class of the
// predictions.
func Cost(pred anyseq.Seq, labels [][]int, inputLengths []int) (anydiff.Res, error) {
	predLens := seqnet.Lengths(pred)
	if len(predLens) != len(labels) || len(labels) != len(inputLengths) {
		return nil, fmt.Errorf("%w: %d predictions, %d labels, %d input lengths",
			ErrBadBatch, len(predLens), len(labels), len(inputLengths))
	}
	classes := classCount(pred)
	for i, n := range inputLengths {
		avail := AvailableSteps(predLens[i])
		if n < 1 {
			return nil, fmt.Errorf("%w: sequence %d: input length %d is not positive",
				ErrBadBatch, i, n)
		} else if n > avail {
			return nil, fmt.Errorf("%w: sequence %d: input length %d exceeds %d usable steps",
				ErrBadBatch, i, n, avail)
		}
		for _, label := range labels[i] {
			if label < 0 || label >= classes-1 {
				return nil, fmt.Errorf("%w: sequence %d: label %d out of range [0, %d)",
					ErrBadBatch, i, label, classes-1)
			}
		}
	}
	dropped := (&seqnet.DropSteps{N: GarbageSteps}).Apply(pred)
	return anyctc.Cost(seqnet.Truncate(dropped, inputLengths), labels), nil
}

// DecodeLabels converts float-encoded label rows into
// label sequences.
// Only the first lengths[i] entries of row i are used;
// the rest is padding.
func DecodeLabels(rows [][]float64, lengths []int) ([][]int, error) {
	if len(rows) != len(lengths) {
		return nil, fmt.Errorf("%w: %d label rows but %d label lengths",
			ErrBadBatch, len(rows), len(lengths))
	}
	res := make([][]int, len(rows))
	for i, row := range rows {
		if lengths[i] < 0 || lengths[i] > len(row) {
			return nil, fmt.Errorf("%w: sequence %d: label length %d out of range [0, %d]",
				ErrBadBatch, i, lengths[i], len(row))
		}
		res[i] = make([]int, lengths[i])
		for j, x := range row[:lengths[i]] {
			if x != math.Trunc(x) {
				return nil, fmt.Errorf("%w: sequence %d: non-integer label %v", ErrBadBatch, i, x)
			}
			res[i][j] = int(x)
		}
	}
	return res, nil
}

// DecodeLengths converts a [batch, 1] length column into
// integers.
func DecodeLengths(column []float64) ([]int, error) {
	res := make([]int, len(column))
	for i, x := range column {
		if x != math.Trunc(x) || x < 0 {
			return nil, fmt.Errorf("%w: sequence %d: invalid length %v", ErrBadBatch, i, x)
		}
		res[i] = int(x)
	}
	return res, nil
}

func classCount(pred anyseq.Seq) int {
	for _, batch := range pred.Output() {
		var n int
		for _, p := range batch.Present {
			if p {
				n++
			}
		}
		if n > 0 {
			return batch.Packed.Len() / n
		}
	}
	return 0
}
