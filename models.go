package speechctc

import (
	"fmt"

	"github.com/unixpickle/speechctc/cells"
)

// rnnDropout is the drop probability for the inputs of
// the bidirectional simple RNN in dnn_brnn, regardless of
// Config.Dropout.
const rnnDropout = 0.2

// convKernelSize and convStrides determine the
// convolutions of cnn_brnn.
const convKernelSize = 5

var convStrides = []int{1, 1, 2}

func dnnBRNN(cfg *Config) []*LayerConfig {
	p := policyFor(DNNBRNN)
	res := frontEnd(cfg, p, true)
	res = append(res,
		dropoutLayer("bi_rnn_dropout", rnnDropout),
		&LayerConfig{
			Name:          "bi_rnn",
			Kind:          SimpleRNN,
			Units:         cfg.Units,
			KernelInit:    p.RecurrentKernel,
			RecurrentInit: p.RecurrentState,
			BiasInit:      p.RecurrentBias,
			Activation:    ActivationReLU,
			Bidirectional: true,
			Merge:         MergeConcat,
		},
	)
	return append(res, backEnd(cfg, p)...)
}

func dnnBLSTM(cfg *Config) ([]*LayerConfig, error) {
	impl, err := lookupImpl(cfg)
	if err != nil {
		return nil, err
	}
	p := policyFor(DNNBLSTM)
	res := frontEnd(cfg, p, impl.Masking())
	lstm := lstmLayer("bi_lstm", cfg, p, impl)
	lstm.Bidirectional = true
	lstm.Merge = MergeSum
	res = append(res, recurrentInput(lstm, cfg)...)
	return append(res, backEnd(cfg, p)...), nil
}

func deepRNN(cfg *Config) []*LayerConfig {
	p := policyFor(DeepRNN)
	res := frontEnd(cfg, p, true)
	for i := 1; i <= cfg.RecurrentDepth; i++ {
		name := fmt.Sprintf("deep_rnn_%d", i)
		res = append(res,
			dropoutLayer(name+"_dropout", cfg.Dropout),
			&LayerConfig{
				Name:          name,
				Kind:          SimpleRNN,
				Units:         cfg.Units,
				KernelInit:    p.RecurrentKernel,
				RecurrentInit: p.RecurrentState,
				BiasInit:      p.RecurrentBias,
				Activation:    ActivationReLU,
			},
		)
	}
	return append(res, backEnd(cfg, p)...)
}

func deepLSTM(cfg *Config) ([]*LayerConfig, error) {
	impl, err := lookupImpl(cfg)
	if err != nil {
		return nil, err
	}
	p := policyFor(DeepLSTM)
	res := frontEnd(cfg, p, impl.Masking())
	for i := 1; i <= cfg.RecurrentDepth; i++ {
		lstm := lstmLayer(fmt.Sprintf("lstm_%d", i), cfg, p, impl)
		res = append(res, recurrentInput(lstm, cfg)...)
	}
	return append(res, backEnd(cfg, p)...), nil
}

func cnnBRNN(cfg *Config) ([]*LayerConfig, error) {
	impl, err := lookupImpl(cfg)
	if err != nil {
		return nil, err
	}
	p := policyFor(CNNBRNN)
	norms := 0
	batchNorm := func() *LayerConfig {
		norms++
		return &LayerConfig{Name: fmt.Sprintf("batchnorm_%d", norms), Kind: BatchNorm}
	}

	var res []*LayerConfig
	if cfg.BatchNorm {
		res = append(res, batchNorm())
	}
	res = append(res, &LayerConfig{
		Name:    "zero_padding",
		Kind:    ZeroPadding,
		Padding: cfg.ConvPadding,
	})
	for i, stride := range convStrides {
		res = append(res,
			&LayerConfig{
				Name:       fmt.Sprintf("conv_%d", i+1),
				Kind:       Conv1D,
				Units:      cfg.Units,
				KernelSize: convKernelSize,
				Stride:     stride,
				KernelInit: p.ConvKernel,
				BiasInit:   p.ConvBias,
				Activation: ActivationReLU,
			},
			dropoutLayer(fmt.Sprintf("dropout_%d", i+1), cfg.Dropout),
		)
		if cfg.BatchNorm {
			res = append(res, batchNorm())
		}
	}
	for i := 1; i <= cfg.RecurrentDepth; i++ {
		lstm := lstmLayer(fmt.Sprintf("lstm_%d", i), cfg, p, impl)
		res = append(res, recurrentInput(lstm, cfg)...)
	}
	if cfg.BatchNorm {
		res = append(res, batchNorm())
	}
	back := backEnd(cfg, p)
	res = append(res, back[:2]...)
	if cfg.BatchNorm {
		res = append(res, batchNorm())
	}
	return append(res, back[2:]...), nil
}

// frontEnd declares the three clipped ReLU layers shared
// by the dnn_* and deep_* architectures.
func frontEnd(cfg *Config, p *initPolicy, mask bool) []*LayerConfig {
	var res []*LayerConfig
	if mask {
		res = append(res, &LayerConfig{Name: "masking", Kind: Masking})
	}
	for i := 1; i <= 3; i++ {
		res = append(res,
			denseLayer(fmt.Sprintf("fc_%d", i), cfg.Units, ActivationClippedReLU, p),
			dropoutLayer(fmt.Sprintf("dropout_%d", i), cfg.Dropout),
		)
	}
	return res
}

// backEnd declares the output block: a ReLU layer, its
// dropout, and the softmax layer.
func backEnd(cfg *Config, p *initPolicy) []*LayerConfig {
	return []*LayerConfig{
		denseLayer("fc_4", cfg.Units, ActivationReLU, p),
		dropoutLayer("dropout_4", cfg.Dropout),
		denseLayer("softmax", cfg.OutputDim, ActivationSoftmax, p),
	}
}

func denseLayer(name string, units int, activation string, p *initPolicy) *LayerConfig {
	return &LayerConfig{
		Name:       name,
		Kind:       Dense,
		Units:      units,
		KernelInit: p.DenseKernel,
		BiasInit:   p.DenseBias,
		Activation: activation,
	}
}

func dropoutLayer(name string, rate float64) *LayerConfig {
	return &LayerConfig{
		Name: name,
		Kind: Dropout,
		Rate: rate,
	}
}

func lstmLayer(name string, cfg *Config, p *initPolicy, impl cells.Impl) *LayerConfig {
	return &LayerConfig{
		Name:           name,
		Kind:           LSTM,
		Units:          cfg.Units,
		KernelInit:     p.RecurrentKernel,
		RecurrentInit:  p.RecurrentState,
		BiasInit:       p.RecurrentBias,
		UnitForgetBias: p.UnitForgetBias,
		Impl:           impl,
	}
}

// recurrentInput prefixes an LSTM with input dropout if
// its implementation is the masking-capable one.
func recurrentInput(lstm *LayerConfig, cfg *Config) []*LayerConfig {
	if !lstm.Impl.Masking() {
		return []*LayerConfig{lstm}
	}
	return []*LayerConfig{dropoutLayer(lstm.Name+"_dropout", cfg.Dropout), lstm}
}

func lookupImpl(cfg *Config) (cells.Impl, error) {
	impl, err := cells.Lookup(cfg.LSTM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return impl, nil
}
