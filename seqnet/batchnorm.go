package seqnet

import (
	"errors"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet/anyconv"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

const defaultStabilizer = 1e-3

func init() {
	var b BatchNorm
	serializer.RegisterTypedDeserializer(b.SerializerType(), DeserializeBatchNorm)
}

// BatchNorm normalizes each component over every timestep
// of every sequence in a batch.
//
// In training mode, the statistics come from the batch.
// Otherwise, Mean and Variance are used, so the output for
// one sequence does not depend on the rest of the batch.
// A PostTrainer estimates Mean and Variance from samples.
type BatchNorm struct {
	Norm *anyconv.BatchNorm

	Mean     anyvec.Vector
	Variance anyvec.Vector

	Training bool
}

// DeserializeBatchNorm deserializes a BatchNorm.
func DeserializeBatchNorm(d []byte) (*BatchNorm, error) {
	var norm *anyconv.BatchNorm
	var mean, variance *anyvecsave.S
	if err := serializer.DeserializeAny(d, &norm, &mean, &variance); err != nil {
		return nil, essentials.AddCtx("deserialize BatchNorm", err)
	}
	if mean.Vector.Len() != norm.InputCount || variance.Vector.Len() != norm.InputCount {
		return nil, errors.New("deserialize BatchNorm: statistics size mismatch")
	}
	return &BatchNorm{Norm: norm, Mean: mean.Vector, Variance: variance.Vector}, nil
}

// NewBatchNorm creates a BatchNorm for inCount components
// with a zero mean and unit variance.
func NewBatchNorm(c anyvec.Creator, inCount int) *BatchNorm {
	variance := c.MakeVector(inCount)
	variance.AddScalar(c.MakeNumeric(1))
	return &BatchNorm{
		Norm:     anyconv.NewBatchNorm(c, inCount),
		Mean:     c.MakeVector(inCount),
		Variance: variance,
	}
}

// Apply normalizes the sequences.
func (b *BatchNorm) Apply(in anyseq.Seq) anyseq.Seq {
	if b.Training {
		return poolBatch(in, func(ins []anydiff.Res, steps []int) (anydiff.Res, []int) {
			joined := anydiff.Concat(ins...)
			rows := joined.Output().Len() / b.Norm.InputCount
			if rows == 0 {
				return joined, steps
			}
			return b.Norm.Apply(joined, rows), steps
		})
	}
	scalers, biases := b.affine()
	return anyseq.Map(in, func(v anydiff.Res, n int) anydiff.Res {
		return anydiff.ScaleAddRepeated(v, scalers, biases)
	})
}

// Parameters returns the scalers and biases of Norm.
func (b *BatchNorm) Parameters() []*anydiff.Var {
	return b.Norm.Parameters()
}

// SerializerType returns the unique ID used to serialize
// a BatchNorm with the serializer package.
func (b *BatchNorm) SerializerType() string {
	return "github.com/unixpickle/speechctc/seqnet.BatchNorm"
}

// Serialize serializes the layer, including its
// statistics.
func (b *BatchNorm) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		b.Norm,
		&anyvecsave.S{Vector: b.Mean},
		&anyvecsave.S{Vector: b.Variance},
	)
}

// affine computes the transform which the fixed
// statistics amount to.
func (b *BatchNorm) affine() (scalers, biases anydiff.Res) {
	c := b.Mean.Creator()
	stabilizer := b.Norm.Stabilizer
	if stabilizer == 0 {
		stabilizer = defaultStabilizer
	}
	normalizer := b.Variance.Copy()
	normalizer.AddScalar(c.MakeNumeric(stabilizer))
	anyvec.Pow(normalizer, c.MakeNumeric(-0.5))

	negMean := b.Mean.Copy()
	negMean.Scale(c.MakeNumeric(-1))

	scalers = anydiff.Mul(b.Norm.Scalers, anydiff.NewConst(normalizer))
	biases = anydiff.Add(b.Norm.Biases, anydiff.Mul(anydiff.NewConst(negMean), scalers))
	return
}

// A PostTrainer uses a list of samples to set the
// statistics of every BatchNorm in a Chain.
//
// Layers are processed in order, so the statistics of a
// BatchNorm are measured on the outputs of the layers
// before it, including any BatchNorms already updated.
// Every layer should be in inference mode.
type PostTrainer struct {
	Samples anysgd.SampleList
	Fetcher anysgd.Fetcher

	// Input extracts the input sequences from a batch
	// produced by Fetcher.
	Input func(b anysgd.Batch) anyseq.Seq

	// BatchSize specifies how many samples to feed to the
	// network at once.
	// If it is 0, all samples are fed at once.
	BatchSize int

	Chain Chain
}

// Run measures and sets the statistics.
//
// If the Fetcher fails, some layers may already have new
// statistics.
func (p *PostTrainer) Run() error {
	for i, x := range p.Chain {
		bn, ok := x.(*BatchNorm)
		if !ok {
			continue
		}
		mean, variance, err := p.moments(bn.Norm.InputCount, p.Chain[:i])
		if err != nil {
			return essentials.AddCtx("post-train", err)
		}
		bn.Mean, bn.Variance = mean, variance
	}
	return nil
}

func (p *PostTrainer) moments(depth int, pre Chain) (mean, variance anyvec.Vector,
	err error) {
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = p.Samples.Len()
	}
	var sqSum anyvec.Vector
	var count int
	for i := 0; i < p.Samples.Len(); i += batchSize {
		bs := essentials.MinInt(p.Samples.Len()-i, batchSize)
		batch, err := p.Fetcher.Fetch(p.Samples.Slice(i, i+bs))
		if err != nil {
			return nil, nil, err
		}
		for _, step := range pre.Apply(p.Input(batch)).Output() {
			vec := step.Packed.Copy()
			count += vec.Len() / depth
			thisSum := anyvec.SumRows(vec, depth)
			vec.Mul(vec.Copy())
			thisSqSum := anyvec.SumRows(vec, depth)
			if mean == nil {
				mean, sqSum = thisSum, thisSqSum
			} else {
				mean.Add(thisSum)
				sqSum.Add(thisSqSum)
			}
		}
	}
	if count == 0 {
		return nil, nil, errors.New("no timesteps to average")
	}
	normalizer := mean.Creator().MakeNumeric(1 / float64(count))
	mean.Scale(normalizer)
	sqSum.Scale(normalizer)

	meanSq := mean.Copy()
	meanSq.Mul(mean)
	sqSum.Sub(meanSq)
	return mean, sqSum, nil
}
