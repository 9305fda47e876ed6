// Package initializer provides weight initialization
// schemes for the layers of a speech model.
//
// Every weight matrix in this module is stored row-major
// with one row per output, i.e. as an out-by-in matrix.
// Initializers receive the vector along with the fan-in
// and fan-out of the layer, which double as the matrix
// dimensions for schemes like Orthogonal.
package initializer

import (
	"fmt"
	"math"

	"github.com/unixpickle/anyvec"
)

// DefaultStddev is the standard deviation used by a zero
// RandomNormal.
const DefaultStddev = 0.05

// An Initializer fills a parameter vector in place.
type Initializer interface {
	Init(v anyvec.Vector, fanIn, fanOut int)
}

// RandomNormal samples each component from a normal
// distribution with mean Mean and standard deviation
// Stddev.
//
// A zero Stddev means DefaultStddev.
type RandomNormal struct {
	Mean   float64
	Stddev float64
}

// Init fills v with normal samples.
func (r RandomNormal) Init(v anyvec.Vector, fanIn, fanOut int) {
	stddev := r.Stddev
	if stddev == 0 {
		stddev = DefaultStddev
	}
	c := v.Creator()
	anyvec.Rand(v, anyvec.Normal, nil)
	v.Scale(c.MakeNumeric(stddev))
	if r.Mean != 0 {
		v.AddScalar(c.MakeNumeric(r.Mean))
	}
}

// GlorotUniform samples uniformly from [-limit, limit),
// where limit is sqrt(6 / (fanIn + fanOut)).
type GlorotUniform struct{}

// Init fills v with uniform samples.
func (g GlorotUniform) Init(v anyvec.Vector, fanIn, fanOut int) {
	if fanIn+fanOut == 0 {
		panic("fan-in plus fan-out must be positive")
	}
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	c := v.Creator()
	anyvec.Rand(v, anyvec.Uniform, nil)
	v.Scale(c.MakeNumeric(2 * limit))
	v.AddScalar(c.MakeNumeric(-limit))
}

// Zeros sets every component to zero.
type Zeros struct{}

// Init zeroes v.
func (z Zeros) Init(v anyvec.Vector, fanIn, fanOut int) {
	v.Scale(v.Creator().MakeNumeric(0))
}

// float64s copies the contents of a vector into a
// []float64.
func float64s(v anyvec.Vector) []float64 {
	switch d := v.Data().(type) {
	case []float64:
		return append([]float64{}, d...)
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
