package speechctc

import (
	"fmt"
	"strings"
)

// A Variant is a model architecture.
type Variant int

// These are the supported architectures.
const (
	// DNNBRNN is a feed-forward block followed by a
	// bidirectional simple RNN, as in Deep Speech 1.
	DNNBRNN Variant = iota

	// DNNBLSTM is a feed-forward block followed by a
	// bidirectional LSTM whose directions are summed.
	DNNBLSTM

	// DeepRNN is a feed-forward block followed by a stack
	// of simple RNNs.
	DeepRNN

	// DeepLSTM is a feed-forward block followed by a stack
	// of LSTMs.
	DeepLSTM

	// CNNBRNN is a stack of time-axis convolutions
	// followed by a stack of LSTMs.
	CNNBRNN

	numVariants
)

// DefaultVariant is used when no variant is named.
const DefaultVariant = DNNBRNN

var variantNames = [numVariants]string{
	DNNBRNN:  "dnn_brnn",
	DNNBLSTM: "dnn_blstm",
	DeepRNN:  "deep_rnn",
	DeepLSTM: "deep_lstm",
	CNNBRNN:  "cnn_brnn",
}

// Variants returns every supported architecture.
func Variants() []Variant {
	res := make([]Variant, numVariants)
	for i := range res {
		res[i] = Variant(i)
	}
	return res
}

// ParseVariant finds the Variant with the given name.
// The empty name and "default" refer to DefaultVariant.
func ParseVariant(name string) (Variant, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "default" {
		return DefaultVariant, nil
	}
	for i, n := range variantNames {
		if n == name {
			return Variant(i), nil
		}
	}
	return 0, fmt.Errorf("%w: not a valid model: %q", ErrInvalidArgument, name)
}

// String returns the name of the variant.
func (v Variant) String() string {
	if v < 0 || v >= numVariants {
		return fmt.Sprintf("Variant(%d)", int(v))
	}
	return variantNames[v]
}

// MarshalText encodes the variant's name.
func (v Variant) MarshalText() ([]byte, error) {
	if v < 0 || v >= numVariants {
		return nil, fmt.Errorf("%w: unknown variant %d", ErrInvalidArgument, int(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText decodes a variant's name.
func (v *Variant) UnmarshalText(text []byte) error {
	parsed, err := ParseVariant(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// layers declares the layers of the architecture.
func (v Variant) layers(cfg *Config) ([]*LayerConfig, error) {
	switch v {
	case DNNBRNN:
		return dnnBRNN(cfg), nil
	case DNNBLSTM:
		return dnnBLSTM(cfg)
	case DeepRNN:
		return deepRNN(cfg), nil
	case DeepLSTM:
		return deepLSTM(cfg)
	case CNNBRNN:
		return cnnBRNN(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown variant %d", ErrInvalidArgument, int(v))
	}
}
