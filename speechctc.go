// Package speechctc builds neural networks for end-to-end
// speech recognition trained with the CTC cost.
//
// A model maps a batch of feature sequences (typically
// MFCC frames) to per-timestep log-probabilities over an
// alphabet whose last symbol is the CTC blank.
// Five architectures are available, selected by Variant.
// Every architecture shares a feed-forward front end and
// an output block, and differs in its recurrent core.
//
// Models are built once from a Config and then handed to
// a training driver, such as anysgd.SGD via a Trainer.
package speechctc

import "errors"

// ErrInvalidArgument is wrapped by errors caused by an
// unusable model configuration.
var ErrInvalidArgument = errors.New("invalid argument")
