package ctcloss

import (
	"errors"
	"reflect"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet/anyctc"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestCostIgnoresGarbage(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	seqs := randomPredictions(c, []int{6, 4}, 3)
	labels := [][]int{{0, 1}, {1}}
	lengths := []int{4, 2}

	cost1, err := Cost(anyseq.ConstSeqList(c, seqs), labels, lengths)
	if err != nil {
		t.Fatal(err)
	}
	for _, seq := range seqs {
		for _, step := range seq[:GarbageSteps] {
			anyvec.Rand(step, anyvec.Normal, nil)
		}
	}
	cost2, err := Cost(anyseq.ConstSeqList(c, seqs), labels, lengths)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, cost1.Output(), cost2.Output())
}

func TestCostTruncates(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	seqs := randomPredictions(c, []int{7, 5, 3}, 4)
	labels := [][]int{{2, 0}, {1}, {0}}
	lengths := []int{3, 3, 1}

	actual, err := Cost(anyseq.ConstSeqList(c, seqs), labels, lengths)
	if err != nil {
		t.Fatal(err)
	}

	truncated := make([][]anyvec.Vector, len(seqs))
	for i, seq := range seqs {
		truncated[i] = seq[GarbageSteps : GarbageSteps+lengths[i]]
	}
	expected := anyctc.Cost(anyseq.ConstSeqList(c, truncated), labels)
	assertClose(t, actual.Output(), expected.Output())
}

func TestCostProp(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	var vars []*anydiff.Var
	var batches []*anyseq.ResBatch
	for _, pres := range [][]bool{{true, true}, {true, true}, {true, true}, {true, false}, {true, false}} {
		var n int
		for _, p := range pres {
			if p {
				n++
			}
		}
		v := anydiff.NewVar(c.MakeVector(n * 3))
		anyvec.Rand(v.Vector, anyvec.Normal, nil)
		vars = append(vars, v)
		batches = append(batches, &anyseq.ResBatch{Packed: v, Present: pres})
	}
	seq := anyseq.ResSeq(c, batches)
	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			res, err := Cost(seq, [][]int{{0, 1}, {1}}, []int{3, 1})
			if err != nil {
				t.Fatal(err)
			}
			return res
		},
		V: vars,
	}
	checker.FullCheck(t)
}

func TestCostErrors(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	seq := anyseq.ConstSeqList(c, randomPredictions(c, []int{6, 4}, 3))
	cases := []struct {
		name    string
		labels  [][]int
		lengths []int
	}{
		{"TooLong", [][]int{{0}, {1}}, []int{4, 3}},
		{"Zero", [][]int{{0}, {1}}, []int{0, 2}},
		{"Negative", [][]int{{0}, {1}}, []int{-1, 2}},
		{"Blank", [][]int{{2}, {1}}, []int{4, 2}},
		{"NegativeLabel", [][]int{{0}, {-1}}, []int{4, 2}},
		{"Count", [][]int{{0}}, []int{4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Cost(seq, tc.labels, tc.lengths)
			if !errors.Is(err, ErrBadBatch) {
				t.Errorf("expected ErrBadBatch but got %v", err)
			}
		})
	}
}

func TestAvailableSteps(t *testing.T) {
	for in, out := range []int{0, 0, 0, 1, 2} {
		if actual := AvailableSteps(in); actual != out {
			t.Errorf("length %d: expected %d but got %d", in, out, actual)
		}
	}
}

func TestDecodeLabels(t *testing.T) {
	rows := [][]float64{{3, 1, 0, 0}, {2, 0, 0, 0}}
	labels, err := DecodeLabels(rows, []int{2, 4})
	if err != nil {
		t.Fatal(err)
	}
	expected := [][]int{{3, 1}, {2, 0, 0, 0}}
	if !reflect.DeepEqual(labels, expected) {
		t.Errorf("expected %v but got %v", expected, labels)
	}
	if _, err := DecodeLabels(rows, []int{5, 0}); !errors.Is(err, ErrBadBatch) {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := DecodeLabels([][]float64{{1.5}}, []int{1}); !errors.Is(err, ErrBadBatch) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDecodeLengths(t *testing.T) {
	lengths, err := DecodeLengths([]float64{3, 0, 17})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(lengths, []int{3, 0, 17}) {
		t.Errorf("unexpected lengths: %v", lengths)
	}
	if _, err := DecodeLengths([]float64{-2}); !errors.Is(err, ErrBadBatch) {
		t.Errorf("unexpected error: %v", err)
	}
}

func randomPredictions(c anyvec.Creator, lengths []int, classes int) [][]anyvec.Vector {
	res := make([][]anyvec.Vector, len(lengths))
	for i, n := range lengths {
		for j := 0; j < n; j++ {
			vec := c.MakeVector(classes)
			anyvec.Rand(vec, anyvec.Normal, nil)
			res[i] = append(res[i], anydiff.LogSoftmax(anydiff.NewConst(vec), classes).Output())
		}
	}
	return res
}

func assertClose(t *testing.T, actual, expected anyvec.Vector) {
	t.Helper()
	if actual.Len() != expected.Len() {
		t.Fatalf("expected length %d but got %d", expected.Len(), actual.Len())
	}
	diff := actual.Copy()
	diff.Sub(expected)
	if anyvec.AbsMax(diff).(float64) > 1e-6 {
		t.Errorf("expected %v but got %v", expected.Data(), actual.Data())
	}
}
