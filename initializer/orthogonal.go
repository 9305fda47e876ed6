package initializer

import (
	"github.com/unixpickle/anyvec"
	"gonum.org/v1/gonum/mat"
)

// Orthogonal produces a (semi-)orthogonal matrix scaled
// by Gain.
//
// The vector is treated as a fanOut-by-fanIn matrix.
// If the matrix is tall, its columns are orthonormal;
// otherwise its rows are.
//
// A zero Gain means 1.
type Orthogonal struct {
	Gain float64
}

// Init fills v with an orthogonal matrix.
func (o Orthogonal) Init(v anyvec.Vector, fanIn, fanOut int) {
	rows, cols := fanOut, fanIn
	if rows*cols != v.Len() {
		panic("orthogonal initializer: vector size does not match fans")
	}
	gain := o.Gain
	if gain == 0 {
		gain = 1
	}

	long, short := rows, cols
	if cols > rows {
		long, short = cols, rows
	}

	c := v.Creator()
	sample := c.MakeVector(long * short)
	anyvec.Rand(sample, anyvec.Normal, nil)
	a := mat.NewDense(long, short, float64s(sample))

	var qr mat.QR
	qr.Factorize(a)
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	// Flip columns so the diagonal of R is positive, which
	// makes the distribution uniform over orthogonal
	// matrices.
	thin := make([]float64, long*short)
	for j := 0; j < short; j++ {
		sign := 1.0
		if r.At(j, j) < 0 {
			sign = -1
		}
		for i := 0; i < long; i++ {
			thin[i*short+j] = sign * gain * q.At(i, j)
		}
	}

	res := thin
	if cols > rows {
		res = make([]float64, rows*cols)
		for i := 0; i < long; i++ {
			for j := 0; j < short; j++ {
				res[j*cols+i] = thin[i*short+j]
			}
		}
	}
	v.SetData(c.MakeNumericList(res))
}
