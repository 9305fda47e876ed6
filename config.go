package speechctc

import (
	"fmt"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/essentials"
	"gopkg.in/yaml.v3"
)

// These are the default hyperparameters.
const (
	DefaultUnits          = 512
	DefaultInputDim       = 26
	DefaultOutputDim      = 29
	DefaultDropout        = 0.2
	DefaultRecurrentDepth = 3
	DefaultLSTM           = "fused"
	DefaultConvPadding    = 2176
)

// ClipCeiling is the upper bound of the clipped ReLU used
// by the feed-forward block.
const ClipCeiling = 20

// Config stores the hyperparameters of a model.
//
// Zero-valued fields, except for Dropout and BatchNorm,
// are replaced by defaults when a model is built.
type Config struct {
	// Model names the architecture.
	// See ParseVariant.
	Model string `yaml:"model"`

	// Units is the width of the hidden layers.
	Units int `yaml:"units"`

	// InputDim is the number of features per frame.
	InputDim int `yaml:"input_dim"`

	// OutputDim is the number of output symbols,
	// including the CTC blank.
	OutputDim int `yaml:"output_dim"`

	// Dropout is the probability of dropping an input to
	// a dropout layer during training.
	Dropout float64 `yaml:"dropout"`

	// RecurrentDepth is the number of stacked recurrent
	// layers in deep_rnn, deep_lstm, and cnn_brnn.
	RecurrentDepth int `yaml:"recurrent_depth"`

	// LSTM names the LSTM implementation.
	// See cells.Lookup.
	LSTM string `yaml:"lstm"`

	// BatchNorm enables batch normalization in cnn_brnn.
	BatchNorm bool `yaml:"batch_norm"`

	// ConvPadding is the number of zero frames appended to
	// every input in cnn_brnn.
	ConvPadding int `yaml:"conv_padding"`

	// MaxInputLength, if positive, is the longest input
	// cnn_brnn must accept, and it overrides ConvPadding
	// with PaddingForLength(MaxInputLength).
	MaxInputLength int `yaml:"max_input_length"`

	// Creator determines the numeric type of the model.
	// It defaults to anyvec32.CurrentCreator().
	Creator anyvec.Creator `yaml:"-"`
}

// DefaultConfig creates a Config with every field set to
// its default.
func DefaultConfig() *Config {
	return &Config{
		Model:          DefaultVariant.String(),
		Units:          DefaultUnits,
		InputDim:       DefaultInputDim,
		OutputDim:      DefaultOutputDim,
		Dropout:        DefaultDropout,
		RecurrentDepth: DefaultRecurrentDepth,
		LSTM:           DefaultLSTM,
		ConvPadding:    DefaultConvPadding,
		Creator:        anyvec32.CurrentCreator(),
	}
}

// LoadConfig decodes a YAML configuration.
// Omitted keys keep their defaults.
func LoadConfig(data []byte) (*Config, error) {
	res := DefaultConfig()
	if err := yaml.Unmarshal(data, res); err != nil {
		return nil, essentials.AddCtx("load config", err)
	}
	return res, nil
}

// PaddingForLength computes the smallest cnn_brnn padding
// for which every input of up to maxLen frames yields at
// least as many usable timesteps as it has frames.
func PaddingForLength(maxLen int) int {
	return maxLen + 15
}

// withDefaults creates a copy of the config with defaults
// filled in, and validates the result.
func (c *Config) withDefaults() (*Config, error) {
	res := *c
	if res.Units == 0 {
		res.Units = DefaultUnits
	}
	if res.InputDim == 0 {
		res.InputDim = DefaultInputDim
	}
	if res.OutputDim == 0 {
		res.OutputDim = DefaultOutputDim
	}
	if res.RecurrentDepth == 0 {
		res.RecurrentDepth = DefaultRecurrentDepth
	}
	if res.LSTM == "" {
		res.LSTM = DefaultLSTM
	}
	if res.ConvPadding == 0 {
		res.ConvPadding = DefaultConvPadding
	}
	if res.MaxInputLength > 0 {
		res.ConvPadding = PaddingForLength(res.MaxInputLength)
	}
	if res.Creator == nil {
		res.Creator = anyvec32.CurrentCreator()
	}

	switch {
	case res.Units < 0:
		return nil, fmt.Errorf("%w: units must be positive, got %d", ErrInvalidArgument, res.Units)
	case res.InputDim < 0:
		return nil, fmt.Errorf("%w: input_dim must be positive, got %d", ErrInvalidArgument,
			res.InputDim)
	case res.OutputDim < 2:
		return nil, fmt.Errorf("%w: output_dim must be at least 2, got %d", ErrInvalidArgument,
			res.OutputDim)
	case res.RecurrentDepth < 0:
		return nil, fmt.Errorf("%w: recurrent_depth must be positive, got %d",
			ErrInvalidArgument, res.RecurrentDepth)
	case res.Dropout < 0 || res.Dropout >= 1:
		return nil, fmt.Errorf("%w: dropout must be in [0, 1), got %v", ErrInvalidArgument,
			res.Dropout)
	case res.ConvPadding < 0:
		return nil, fmt.Errorf("%w: conv_padding must not be negative, got %d",
			ErrInvalidArgument, res.ConvPadding)
	}
	return &res, nil
}
