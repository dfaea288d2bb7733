package association

import (
	"fmt"
	"math"

	"github.com/gmaffy/goctar/errs"
	"gonum.org/v1/gonum/mat"
)

const (
	// MaxIterations bounds the IRLS loop of the Poisson fit.
	MaxIterations = 100
	// Tolerance is the relative deviance change that ends the IRLS loop.
	Tolerance = 1e-8
)

const minMean = 1e-10

// PoissonCoefficient fits log E[g] = b0 + b1*a by iteratively reweighted least squares
// and returns b1. Soft failures return NaN together with an error wrapping
// ErrDegenerateInput or ErrConvergenceFailure. A length mismatch returns ErrShapeMismatch.
func PoissonCoefficient(a, g []float64) (float64, error) {
	if len(a) != len(g) {
		return math.NaN(), errs.Shape("accessibility vector", len(a), len(g))
	}
	n := len(a)
	if n < 2 {
		return math.NaN(), fmt.Errorf("%w: %d cells", errs.ErrDegenerateInput, n)
	}

	var sumY float64
	for _, y := range g {
		if y < 0 || math.IsNaN(y) {
			return math.NaN(), fmt.Errorf("%w: Poisson response has value %v", errs.ErrDegenerateInput, y)
		}
		sumY += y
	}
	if sumY == 0 {
		return math.NaN(), fmt.Errorf("%w: Poisson response is all zero", errs.ErrDegenerateInput)
	}
	if popVariance(a) <= varianceFloor {
		return math.NaN(), fmt.Errorf("%w: constant predictor", errs.ErrDegenerateInput)
	}

	b0, b1 := math.Log(sumY/float64(n)), 0.0
	devOld := poissonDeviance(a, g, b0, b1)

	var (
		chol mat.Cholesky
		beta mat.VecDense
	)
	for iter := 0; iter < MaxIterations; iter++ {
		var s00, s01, s11, r0, r1 float64
		for i, x := range a {
			eta := b0 + b1*x
			mu := math.Max(math.Exp(eta), minMean)
			z := eta + (g[i]-mu)/mu
			s00 += mu
			s01 += mu * x
			s11 += mu * x * x
			r0 += mu * z
			r1 += mu * x * z
		}

		xtwx := mat.NewSymDense(2, []float64{s00, s01, s01, s11})
		if ok := chol.Factorize(xtwx); !ok {
			return math.NaN(), fmt.Errorf("%w: singular weighted design at iteration %d", errs.ErrConvergenceFailure, iter)
		}
		if err := chol.SolveVecTo(&beta, mat.NewVecDense(2, []float64{r0, r1})); err != nil {
			return math.NaN(), fmt.Errorf("%w: %v", errs.ErrConvergenceFailure, err)
		}
		b0, b1 = beta.AtVec(0), beta.AtVec(1)

		dev := poissonDeviance(a, g, b0, b1)
		if math.IsNaN(dev) || math.IsInf(dev, 0) || math.IsNaN(b1) || math.IsInf(b1, 0) {
			return math.NaN(), fmt.Errorf("%w: fit diverged at iteration %d", errs.ErrConvergenceFailure, iter)
		}
		if math.Abs(dev-devOld)/(math.Abs(dev)+0.1) < Tolerance {
			return b1, nil
		}
		devOld = dev
	}
	return math.NaN(), fmt.Errorf("%w: no convergence after %d iterations", errs.ErrConvergenceFailure, MaxIterations)
}

func poissonDeviance(a, g []float64, b0, b1 float64) float64 {
	var dev float64
	for i, x := range a {
		mu := math.Max(math.Exp(b0+b1*x), minMean)
		y := g[i]
		if y > 0 {
			dev += y * math.Log(y/mu)
		}
		dev -= y - mu
	}
	return 2 * dev
}
