package seqnet

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// A seqFunc maps the packed timesteps of sequence idx to
// a new packed sequence with outSteps timesteps.
type seqFunc func(idx int, in anydiff.Res, steps int) (out anydiff.Res, outSteps int)

// A batchFunc maps the packed timesteps of every sequence
// in a batch to the packed outputs of every sequence,
// concatenated in order.
type batchFunc func(ins []anydiff.Res, steps []int) (out anydiff.Res, outSteps []int)

type poolSeq struct {
	In       anyseq.Seq
	Pools    []*anydiff.Var
	Lengths  []int
	OutLens  []int
	Res      anydiff.Res
	Out      []*anyseq.Batch
	V        anydiff.VarSet
	creator  anyvec.Creator
	hasSteps bool
}

// poolSeqs separates a batch of sequences, applies f to
// each sequence as a single packed vector, and joins the
// results back into a batch.
//
// Unlike timestep-wise operations, f may see the whole
// sequence at once, which makes it possible to pad, trim,
// and convolve along the time axis.
func poolSeqs(in anyseq.Seq, f seqFunc) anyseq.Seq {
	return poolBatch(in, func(ins []anydiff.Res, steps []int) (anydiff.Res, []int) {
		outs := make([]anydiff.Res, len(ins))
		outSteps := make([]int, len(ins))
		for i, x := range ins {
			outs[i], outSteps[i] = f(i, x, steps[i])
		}
		return anydiff.Concat(outs...), outSteps
	})
}

// poolBatch is like poolSeqs, but f sees every sequence
// at once.
func poolBatch(in anyseq.Seq, f batchFunc) anyseq.Seq {
	c := in.Creator()
	raw := anyseq.SeparateSeqs(in.Output())
	res := &poolSeq{
		In:      in,
		Pools:   make([]*anydiff.Var, len(raw)),
		Lengths: make([]int, len(raw)),
		creator: c,
		V:       anydiff.MergeVarSets(anydiff.VarSet{}, in.Vars()),
	}
	if len(raw) == 0 {
		return res
	}

	ins := make([]anydiff.Res, len(raw))
	for i, steps := range raw {
		var packed anyvec.Vector
		if len(steps) == 0 {
			packed = c.MakeVector(0)
		} else {
			packed = c.Concat(steps...)
		}
		res.Pools[i] = anydiff.NewVar(packed)
		res.Lengths[i] = len(steps)
		ins[i] = res.Pools[i]
	}
	res.Res, res.OutLens = f(ins, append([]int{}, res.Lengths...))

	var total int
	for _, n := range res.OutLens {
		total += n
	}
	if total > 0 {
		res.hasSteps = true
		out := res.Res.Output()
		size := out.Len() / total
		outVecs := make([][]anyvec.Vector, len(raw))
		var offset int
		for i, n := range res.OutLens {
			outVecs[i] = splitVec(out.Slice(offset, offset+n*size), n)
			offset += n * size
		}
		res.Out = anyseq.ConstSeqList(c, outVecs).Output()
	}

	res.V = anydiff.MergeVarSets(anydiff.VarSet{}, res.Res.Vars())
	for _, p := range res.Pools {
		res.V.Del(p)
	}
	res.V = anydiff.MergeVarSets(res.V, in.Vars())
	return res
}

func (p *poolSeq) Creator() anyvec.Creator {
	return p.creator
}

func (p *poolSeq) Output() []*anyseq.Batch {
	return p.Out
}

func (p *poolSeq) Vars() anydiff.VarSet {
	return p.V
}

func (p *poolSeq) Propagate(u []*anyseq.Batch, g anydiff.Grad) {
	if !p.hasSteps || len(u) == 0 {
		return
	}

	var upParts []anyvec.Vector
	for i, steps := range anyseq.SeparateSeqs(u) {
		if p.OutLens[i] > 0 {
			upParts = append(upParts, steps...)
		}
	}
	upstream := p.creator.Concat(upParts...)

	for _, pool := range p.Pools {
		g[pool] = p.creator.MakeVector(pool.Vector.Len())
	}
	p.Res.Propagate(upstream, g)

	downstream := make([][]anyvec.Vector, len(p.Pools))
	for i, pool := range p.Pools {
		downstream[i] = splitVec(g[pool], p.Lengths[i])
		delete(g, pool)
	}

	if g.Intersects(p.In.Vars()) {
		p.In.Propagate(anyseq.ConstSeqList(p.creator, downstream).Output(), g)
	}
}

func splitVec(vec anyvec.Vector, parts int) []anyvec.Vector {
	if parts == 0 {
		return nil
	}
	res := make([]anyvec.Vector, parts)
	chunkSize := vec.Len() / parts
	for i := range res {
		res[i] = vec.Slice(i*chunkSize, (i+1)*chunkSize)
	}
	return res
}

func stepSize(in anydiff.Res, steps int) int {
	if steps == 0 {
		return 0
	}
	return in.Output().Len() / steps
}

func float64s(v anyvec.Vector) []float64 {
	switch d := v.Data().(type) {
	case []float64:
		return d
	case []float32:
		res := make([]float64, len(d))
		for i, x := range d {
			res[i] = float64(x)
		}
		return res
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", d))
	}
}
