package signals

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

var errSingular = errors.New("singular design matrix")

// fit is an ordinary least squares solution.
type fit struct {
	Beta []float64
	RSS  float64
	TSS  float64
	// StdErr is only populated when requested.
	StdErr []float64
	N, K   int
}

func (f fit) RSquared() float64 {
	if f.TSS == 0 {
		return 0
	}
	return 1 - f.RSS/f.TSS
}

// ols regresses y on the columns of x. An intercept column must be supplied by the caller.
func ols(x [][]float64, y []float64, withStdErr bool) (fit, error) {
	n := len(y)
	if n == 0 || len(x) != n {
		return fit{}, errSingular
	}
	k := len(x[0])
	if n <= k {
		return fit{}, errSingular
	}

	X := mat.NewDense(n, k, nil)
	for i, row := range x {
		X.SetRow(i, row)
	}
	Y := mat.NewVecDense(n, append([]float64(nil), y...))

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return fit{}, errSingular
	}
	var xty mat.VecDense
	xty.MulVec(X.T(), Y)
	var beta mat.VecDense
	beta.MulVec(&inv, &xty)

	var fitted mat.VecDense
	fitted.MulVec(X, &beta)

	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(n)

	out := fit{Beta: make([]float64, k), N: n, K: k}
	for i := 0; i < k; i++ {
		out.Beta[i] = beta.AtVec(i)
	}
	for i := 0; i < n; i++ {
		r := y[i] - fitted.AtVec(i)
		out.RSS += r * r
		d := y[i] - mean
		out.TSS += d * d
	}
	if withStdErr {
		sigma2 := out.RSS / float64(n-k)
		out.StdErr = make([]float64, k)
		for i := 0; i < k; i++ {
			out.StdErr[i] = math.Sqrt(sigma2 * inv.At(i, i))
		}
	}
	return out, nil
}
