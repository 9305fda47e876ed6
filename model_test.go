package speechctc

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/speechctc/seqnet"
)

func testConfig() *Config {
	return &Config{
		Units:          4,
		InputDim:       3,
		OutputDim:      5,
		Dropout:        0.2,
		RecurrentDepth: 2,
		ConvPadding:    PaddingForLength(12),
		Creator:        anyvec64.DefaultCreator{},
	}
}

func TestBuildInterface(t *testing.T) {
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			cfg := testConfig()
			cfg.Model = v.String()
			model, err := Build(cfg)
			if err != nil {
				t.Fatal(err)
			}
			if model.Variant() != v {
				t.Errorf("expected variant %v but got %v", v, model.Variant())
			}
			expectedIn := []TensorSpec{
				{Name: "the_input", Shape: []int{-1, -1, 3}},
				{Name: "the_labels", Shape: []int{-1, -1}},
				{Name: "input_length", Shape: []int{-1, 1}},
				{Name: "label_length", Shape: []int{-1, 1}},
			}
			if !reflect.DeepEqual(model.Inputs(), expectedIn) {
				t.Errorf("unexpected inputs: %v", model.Inputs())
			}
			expectedOut := []TensorSpec{{Name: "ctc", Shape: []int{-1, 1}}}
			if !reflect.DeepEqual(model.Outputs(), expectedOut) {
				t.Errorf("unexpected outputs: %v", model.Outputs())
			}
		})
	}
}

func TestBuildInvalid(t *testing.T) {
	cfg := testConfig()
	cfg.Model = "not_a_model"
	if _, err := Build(cfg); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument but got %v", err)
	}

	cfg = testConfig()
	cfg.Model = "deep_lstm"
	cfg.LSTM = "not_an_lstm"
	if _, err := Build(cfg); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument but got %v", err)
	}

	cfg = testConfig()
	cfg.Dropout = 1
	if _, err := Build(cfg); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument but got %v", err)
	}
}

func TestBuildDefault(t *testing.T) {
	expected := layerSummary(t, "dnn_brnn", testConfig())
	for _, name := range []string{"", "default"} {
		cfg := testConfig()
		cfg.Model = name
		model, err := Build(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if model.Variant() != DNNBRNN {
			t.Errorf("name %q: got variant %v", name, model.Variant())
		}
		if actual := layerSummary(t, name, testConfig()); !reflect.DeepEqual(actual, expected) {
			t.Errorf("name %q: expected layers %v but got %v", name, expected, actual)
		}
	}
}

func TestOutputDim(t *testing.T) {
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			cfg1 := testConfig()
			cfg2 := testConfig()
			cfg2.OutputDim = 9
			layers1 := layerSummary(t, v.String(), cfg1)
			layers2 := layerSummary(t, v.String(), cfg2)
			if len(layers1) != len(layers2) {
				t.Fatalf("layer count changed from %d to %d", len(layers1), len(layers2))
			}
			last := len(layers1) - 1
			if !reflect.DeepEqual(layers1[:last], layers2[:last]) {
				t.Errorf("hidden layers changed: %v vs %v", layers1, layers2)
			}
			if layers1[last].Width != 5 || layers2[last].Width != 9 {
				t.Errorf("unexpected softmax widths %d and %d", layers1[last].Width,
					layers2[last].Width)
			}

			cfg2.Model = v.String()
			model, err := Build(cfg2)
			if err != nil {
				t.Fatal(err)
			}
			out := model.Predict(testInputs(cfg2, []int{6, 4}))
			for _, batch := range out.Output() {
				if batch.Packed.Len() != 9*countPresent(batch.Present) {
					t.Fatal("unexpected output width")
				}
			}
		})
	}
}

func TestZeroDropout(t *testing.T) {
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			cfg := testConfig()
			cfg.Dropout = 0
			model, err := BuildVariant(v, cfg)
			if err != nil {
				t.Fatal(err)
			}
			in := testInputs(cfg, []int{7, 5})
			out1 := flatten(model.Predict(in))
			out2 := flatten(model.Predict(in))
			if !reflect.DeepEqual(out1, out2) {
				t.Error("inference is not deterministic")
			}

			if v == DNNBRNN {
				// The recurrent input dropout has a fixed rate.
				return
			}
			model.SetTraining(true)
			out3 := flatten(model.Predict(in))
			if !closeSlices(out1, out3) {
				t.Error("training with zero dropout changed the output")
			}
		})
	}
}

func TestSetTraining(t *testing.T) {
	cfg := testConfig()
	cfg.Dropout = 0.5
	model, err := BuildVariant(DeepRNN, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(model.dropouts) != 4+cfg.RecurrentDepth {
		t.Fatalf("expected %d dropout layers but got %d", 4+cfg.RecurrentDepth,
			len(model.dropouts))
	}
	model.SetTraining(true)
	for _, d := range model.dropouts {
		if !d.Enabled || d.KeepProb != 0.5 {
			t.Fatal("unexpected dropout state")
		}
	}
	model.SetTraining(false)
	for _, d := range model.dropouts {
		if d.Enabled {
			t.Fatal("dropout still enabled")
		}
	}
}

func TestMaskingLayers(t *testing.T) {
	cases := []struct {
		variant Variant
		lstm    string
		masked  bool
	}{
		{DNNBRNN, "fused", true},
		{DeepRNN, "fused", true},
		{DNNBLSTM, "fused", false},
		{DNNBLSTM, "masked", true},
		{DeepLSTM, "fused", false},
		{DeepLSTM, "masked", true},
		{CNNBRNN, "masked", false},
	}
	for _, tc := range cases {
		cfg := testConfig()
		cfg.LSTM = tc.lstm
		model, err := BuildVariant(tc.variant, cfg)
		if err != nil {
			t.Fatal(err)
		}
		masked := model.Layers()[0].Kind == Masking
		if masked != tc.masked {
			t.Errorf("%v (%s): expected masking=%v", tc.variant, tc.lstm, tc.masked)
		}
	}
}

func TestCNNBatchNorm(t *testing.T) {
	cfg := testConfig()
	cfg.BatchNorm = true
	model, err := BuildVariant(CNNBRNN, cfg)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, l := range model.Layers() {
		if l.Kind == BatchNorm {
			names = append(names, l.Name)
		}
	}
	expected := []string{"batchnorm_1", "batchnorm_2", "batchnorm_3", "batchnorm_4",
		"batchnorm_5", "batchnorm_6"}
	if !reflect.DeepEqual(names, expected) {
		t.Errorf("expected %v but got %v", expected, names)
	}
	last := model.Layers()[len(model.Layers())-2]
	if last.Name != "batchnorm_6" {
		t.Errorf("unexpected layer before softmax: %s", last.Name)
	}
	if _, err := model.Loss(mustBatch(t, model, []int{8, 6}, [][]int{{1}, {2}})); err != nil {
		t.Fatal(err)
	}
}

func TestCNNBatchNormInference(t *testing.T) {
	cfg := testConfig()
	cfg.BatchNorm = true
	cfg.Dropout = 0
	model, err := BuildVariant(CNNBRNN, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(model.norms) != 6 {
		t.Fatalf("expected 6 batch norms but got %d", len(model.norms))
	}

	inputs := anyseq.SeparateSeqs(testInputs(cfg, []int{9, 7, 12}).Output())
	samples := SliceSampleList{
		{Input: inputs[0], Label: []int{0}},
		{Input: inputs[1], Label: []int{1, 2}},
		{Input: inputs[2], Label: []int{3}},
	}
	if err := model.PostTrain(samples, 2); err != nil {
		t.Fatal(err)
	}
	for _, bn := range model.norms {
		if bn.Training {
			t.Fatal("model left in training mode")
		}
	}

	alone := model.Predict(anyseq.ConstSeqList(cfg.Creator, inputs[:1]))
	steps := anyseq.SeparateSeqs(alone.Output())[0]
	var varies bool
	for _, step := range steps[1:] {
		if !closeSlices(flattenVec(step), flattenVec(steps[0])) {
			varies = true
		}
	}
	if !varies {
		t.Error("single-utterance output is constant over time")
	}

	batched := model.Predict(anyseq.ConstSeqList(cfg.Creator, inputs))
	batchedSteps := anyseq.SeparateSeqs(batched.Output())[0]
	for i, step := range steps {
		if !closeSlices(flattenVec(step), flattenVec(batchedSteps[i])) {
			t.Errorf("step %d: inference output depends on the batch", i)
			break
		}
	}

	trainer := &Trainer{Model: model}
	trainer.Gradient(samples)
	for _, bn := range model.norms {
		if bn.Training {
			t.Fatal("gradient left model in training mode")
		}
	}
}

func TestCNNLengths(t *testing.T) {
	cfg := testConfig()
	cfg.MaxInputLength = 12
	model, err := BuildVariant(CNNBRNN, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if model.Config().ConvPadding != 27 {
		t.Fatalf("unexpected padding: %d", model.Config().ConvPadding)
	}
	for frames := 1; frames <= 12; frames++ {
		out := model.Predict(testInputs(cfg, []int{frames}))
		steps := seqnet.Lengths(out)[0]
		if steps-2 != model.PredictionLength(frames) {
			t.Errorf("%d frames: predicted %d steps but PredictionLength is %d", frames,
				steps, model.PredictionLength(frames))
		}
		if model.PredictionLength(frames) < frames {
			t.Errorf("%d frames: only %d usable steps", frames, model.PredictionLength(frames))
		}
		expected := (frames+1)/2 - 2
		if expected < 0 {
			expected = 0
		}
		if actual := model.OutputLength(frames); actual != expected {
			t.Errorf("%d frames: expected output length %d but got %d", frames, expected, actual)
		}
	}

	cfg.MaxInputLength = 0
	cfg.ConvPadding = 0
	model, err = BuildVariant(CNNBRNN, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if model.Config().ConvPadding != DefaultConvPadding {
		t.Errorf("unexpected default padding: %d", model.Config().ConvPadding)
	}
	if model.PredictionLength(10) != 1+(10+2176-13)/2-2 {
		t.Errorf("unexpected prediction length: %d", model.PredictionLength(10))
	}
}

func TestRecurrentLengths(t *testing.T) {
	for _, v := range []Variant{DNNBRNN, DNNBLSTM, DeepRNN, DeepLSTM} {
		model, err := BuildVariant(v, testConfig())
		if err != nil {
			t.Fatal(err)
		}
		for _, pair := range [][2]int{{0, 0}, {2, 0}, {3, 1}, {50, 48}} {
			if actual := model.OutputLength(pair[0]); actual != pair[1] {
				t.Errorf("%v: length %d: expected %d but got %d", v, pair[0], pair[1], actual)
			}
		}
	}
}

func TestLoss(t *testing.T) {
	for _, v := range Variants() {
		for _, lstm := range []string{"fused", "masked"} {
			t.Run(v.String()+"/"+lstm, func(t *testing.T) {
				cfg := testConfig()
				cfg.LSTM = lstm
				model, err := BuildVariant(v, cfg)
				if err != nil {
					t.Fatal(err)
				}
				batch := mustBatch(t, model, []int{9, 7}, [][]int{{0, 1}, {3}})
				cost, err := model.Loss(batch)
				if err != nil {
					t.Fatal(err)
				}
				costs := flattenVec(cost.Output())
				if len(costs) != 2 {
					t.Fatalf("expected 2 costs but got %d", len(costs))
				}
				for _, c := range costs {
					if math.IsNaN(c) || math.IsInf(c, 0) || c <= 0 {
						t.Errorf("unexpected cost: %f", c)
					}
				}
			})
		}
	}
}

func TestLossInvalidBatch(t *testing.T) {
	model, err := BuildVariant(DeepRNN, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	batch := mustBatch(t, model, []int{5, 4}, [][]int{{1}, {2}})

	batch.InputLength[0] = 10
	if _, err := model.Loss(batch); err == nil {
		t.Error("expected error for oversized input length")
	}
	batch.InputLength[0] = 3
	batch.Labels[1][0] = 4
	if _, err := model.Loss(batch); err == nil {
		t.Error("expected error for blank label")
	}
	batch.Labels[1][0] = 2
	batch.LabelLength = batch.LabelLength[:1]
	if _, err := model.Loss(batch); err == nil {
		t.Error("expected error for missing label length")
	}
}

func TestNewBatch(t *testing.T) {
	model, err := BuildVariant(DNNBRNN, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	batch := mustBatch(t, model, []int{6, 3}, [][]int{{1, 2, 3}, {4}})
	if !reflect.DeepEqual(seqnet.Lengths(batch.Input), []int{6, 6}) {
		t.Errorf("unexpected input lengths: %v", seqnet.Lengths(batch.Input))
	}
	if !reflect.DeepEqual(batch.InputLength, []float64{4, 1}) {
		t.Errorf("unexpected input_length: %v", batch.InputLength)
	}
	if !reflect.DeepEqual(batch.LabelLength, []float64{3, 1}) {
		t.Errorf("unexpected label_length: %v", batch.LabelLength)
	}
	if !reflect.DeepEqual(batch.Labels, [][]float64{{1, 2, 3}, {4, 0, 0}}) {
		t.Errorf("unexpected labels: %v", batch.Labels)
	}

	c := anyvec64.DefaultCreator{}
	_, err = model.NewBatch([][]anyvec.Vector{{c.MakeVector(2)}}, [][]int{{1}})
	if err == nil {
		t.Error("expected error for bad frame size")
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig([]byte("model: cnn_brnn\nunits: 256\nbatch_norm: true\n" +
		"max_input_length: 100\n"))
	if err != nil {
		t.Fatal(err)
	}
	expected := DefaultConfig()
	expected.Model = "cnn_brnn"
	expected.Units = 256
	expected.BatchNorm = true
	expected.MaxInputLength = 100
	if !reflect.DeepEqual(cfg, expected) {
		t.Errorf("expected %+v but got %+v", expected, cfg)
	}
	if _, err := LoadConfig([]byte("units: [1, 2]")); err == nil {
		t.Error("expected error for malformed config")
	}
}

type layerInfo struct {
	Name  string
	Kind  LayerKind
	Width int
}

func layerSummary(t *testing.T, name string, cfg *Config) []layerInfo {
	cfg.Model = name
	model, err := Build(cfg)
	if err != nil {
		t.Fatal(err)
	}
	var res []layerInfo
	width := cfg.InputDim
	for _, l := range model.Layers() {
		width = l.OutputWidth(width)
		res = append(res, layerInfo{Name: l.Name, Kind: l.Kind, Width: width})
	}
	return res
}

func testInputs(cfg *Config, lengths []int) anyseq.Seq {
	c := cfg.Creator
	seqs := make([][]anyvec.Vector, len(lengths))
	for i, n := range lengths {
		for j := 0; j < n; j++ {
			vec := c.MakeVector(cfg.InputDim)
			anyvec.Rand(vec, anyvec.Normal, nil)
			seqs[i] = append(seqs[i], vec)
		}
	}
	return anyseq.ConstSeqList(c, seqs)
}

func mustBatch(t *testing.T, m *Model, lengths []int, labels [][]int) *Batch {
	cfg := m.Config()
	inputs := anyseq.SeparateSeqs(testInputs(&cfg, lengths).Output())
	batch, err := m.NewBatch(inputs, labels)
	if err != nil {
		t.Fatal(err)
	}
	return batch
}

func flatten(s anyseq.Seq) []float64 {
	var res []float64
	for _, batch := range s.Output() {
		res = append(res, flattenVec(batch.Packed)...)
	}
	return res
}

func flattenVec(v anyvec.Vector) []float64 {
	return v.Data().([]float64)
}

func closeSlices(s1, s2 []float64) bool {
	if len(s1) != len(s2) {
		return false
	}
	for i, x := range s1 {
		if math.Abs(x-s2[i]) > 1e-8 {
			return false
		}
	}
	return true
}

func countPresent(pres []bool) int {
	var n int
	for _, p := range pres {
		if p {
			n++
		}
	}
	return n
}
