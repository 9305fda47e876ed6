package speechctc

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/speechctc/ctcloss"
	"github.com/unixpickle/speechctc/seqnet"
	"k8s.io/klog/v2"
)

// Dynamic marks a tensor axis whose size varies between
// batches.
const Dynamic = -1

// These are the names of a model's inputs and output.
const (
	InputName       = "the_input"
	LabelsName      = "the_labels"
	InputLengthName = "input_length"
	LabelLengthName = "label_length"
	CostName        = "ctc"
)

// A TensorSpec describes a named input or output of a
// Model.
type TensorSpec struct {
	Name  string
	Shape []int
}

// A Model is a speech recognition network along with the
// CTC cost used to train it.
//
// A Model's inputs are described by Inputs() and supplied
// through a Batch.
// Its output is one cost per sequence.
type Model struct {
	config   Config
	variant  Variant
	layers   []*LayerConfig
	net      seqnet.Chain
	dropouts []*anynet.Dropout
	norms    []*seqnet.BatchNorm
}

// Build creates the model named by cfg.Model.
//
// If cfg is nil, DefaultConfig() is used.
// An unknown model name results in an error wrapping
// ErrInvalidArgument.
func Build(cfg *Config) (*Model, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	v, err := ParseVariant(cfg.Model)
	if err != nil {
		return nil, err
	}
	return BuildVariant(v, cfg)
}

// BuildVariant creates a model with the given
// architecture, ignoring cfg.Model.
//
// The model starts in inference mode.
func BuildVariant(v Variant, cfg *Config) (*Model, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	full, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	full.Model = v.String()
	layers, err := v.layers(full)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("building %s model: units=%d input_dim=%d output_dim=%d dropout=%v lstm=%s",
		v, full.Units, full.InputDim, full.OutputDim, full.Dropout, full.LSTM)

	res := &Model{config: *full, variant: v, layers: layers}
	width := full.InputDim
	for _, l := range layers {
		layer, dropouts := l.realize(full.Creator, width)
		res.net = append(res.net, layer)
		res.dropouts = append(res.dropouts, dropouts...)
		if bn, ok := layer.(*seqnet.BatchNorm); ok {
			res.norms = append(res.norms, bn)
		}
		width = l.OutputWidth(width)
	}
	res.SetTraining(false)
	return res, nil
}

// Variant returns the model's architecture.
func (m *Model) Variant() Variant {
	return m.variant
}

// Config returns the configuration the model was built
// with, with defaults filled in.
func (m *Model) Config() Config {
	return m.config
}

// Layers returns the configuration of every layer, from
// input to output.
func (m *Model) Layers() []*LayerConfig {
	return append([]*LayerConfig{}, m.layers...)
}

// Net returns the network which computes predictions.
// It can be serialized with the serializer package.
func (m *Model) Net() seqnet.Chain {
	return m.net
}

// Inputs describes the inputs of the model, in the order
// the_input, the_labels, input_length, label_length.
func (m *Model) Inputs() []TensorSpec {
	return []TensorSpec{
		{Name: InputName, Shape: []int{Dynamic, Dynamic, m.config.InputDim}},
		{Name: LabelsName, Shape: []int{Dynamic, Dynamic}},
		{Name: InputLengthName, Shape: []int{Dynamic, 1}},
		{Name: LabelLengthName, Shape: []int{Dynamic, 1}},
	}
}

// Outputs describes the output of the model.
func (m *Model) Outputs() []TensorSpec {
	return []TensorSpec{{Name: CostName, Shape: []int{Dynamic, 1}}}
}

// Parameters returns the learnable parameters.
func (m *Model) Parameters() []*anydiff.Var {
	return m.net.Parameters()
}

// SetTraining enables or disables dropout.
// In training mode, batch normalization uses the
// statistics of each batch rather than fixed ones.
func (m *Model) SetTraining(training bool) {
	for _, d := range m.dropouts {
		d.Enabled = training
	}
	for _, bn := range m.norms {
		bn.Training = training
	}
}

// PostTrain measures the inference statistics of every
// batch normalization layer on the samples.
// It leaves the model in inference mode.
//
// Models without batch normalization are unaffected.
func (m *Model) PostTrain(samples SampleList, batchSize int) error {
	if len(m.norms) == 0 {
		return nil
	}
	m.SetTraining(false)
	pt := &seqnet.PostTrainer{
		Samples: samples,
		Fetcher: &Trainer{Model: m},
		Input: func(b anysgd.Batch) anyseq.Seq {
			return b.(*Batch).Input
		},
		BatchSize: batchSize,
		Chain:     m.net,
	}
	return pt.Run()
}

// Predict computes the log-probabilities of every output
// symbol at every timestep.
// The blank symbol is the last output.
func (m *Model) Predict(in anyseq.Seq) anyseq.Seq {
	return m.net.Apply(in)
}

// Loss computes the CTC cost for every sequence in the
// batch.
//
// It fails if the labels or lengths in the batch are
// inconsistent with the predictions.
func (m *Model) Loss(b *Batch) (anydiff.Res, error) {
	labels, inputLengths, err := b.decode()
	if err != nil {
		return nil, err
	}
	return ctcloss.Cost(m.Predict(b.Input), labels, inputLengths)
}

// PredictionLength returns the number of timesteps which
// contribute to the cost for an input of n timesteps,
// including any padding.
func (m *Model) PredictionLength(n int) int {
	for _, l := range m.layers {
		n = l.OutputLength(n)
	}
	return ctcloss.AvailableSteps(n)
}

// OutputLength returns the input_length to use for an
// utterance of n frames.
//
// For convolutional models, this is the number of usable
// timesteps which depend on at least one real frame.
func (m *Model) OutputLength(n int) int {
	stride := 1
	for _, l := range m.layers {
		if l.Kind == Conv1D {
			stride *= l.Stride
		}
	}
	res := (n+stride-1)/stride - ctcloss.GarbageSteps
	if limit := m.PredictionLength(n); res > limit {
		res = limit
	}
	if res < 0 {
		return 0
	}
	return res
}
