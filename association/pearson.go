package association

import (
	"fmt"
	"math"
	"strings"

	"github.com/gmaffy/goctar/errs"
	"gonum.org/v1/gonum/stat"
)

// DegenerateCorrelation is reported instead of a correlation when either vector has
// (near) zero variance. It is a fixed fallback, not a measured correlation.
const DegenerateCorrelation = -0.0345

// varianceFloor is the population variance at or below which a vector is treated as constant.
const varianceFloor = 1e-6

// Mode selects the association statistic.
type Mode int

const (
	// Correlation scores a pair by the Pearson correlation of accessibility and expression.
	Correlation Mode = iota
	// Regression scores a pair by the accessibility coefficient of a Poisson GLM on expression.
	Regression
)

func (m Mode) String() string {
	switch m {
	case Correlation:
		return "corr"
	case Regression:
		return "poisson"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "corr", "correlation", "pearson":
		return Correlation, nil
	case "poisson", "regression", "glm":
		return Regression, nil
	}
	return Correlation, fmt.Errorf("unknown association mode %q (valid: corr, poisson)", s)
}

// Pearson returns the Pearson correlation of a and g, or DegenerateCorrelation when
// either has variance <= 1e-6. Only a length mismatch is an error.
func Pearson(a, g []float64) (float64, error) {
	if len(a) != len(g) {
		return math.NaN(), errs.Shape("accessibility vector", len(a), len(g))
	}
	if len(a) < 2 {
		return DegenerateCorrelation, nil
	}
	if popVariance(a) <= varianceFloor || popVariance(g) <= varianceFloor {
		return DegenerateCorrelation, nil
	}
	return stat.Correlation(a, g, nil), nil
}

// PearsonSparse is Pearson for a sparse accessibility vector. It only visits the
// non-zero entries of a, so scoring many peaks against one gene stays cheap.
func PearsonSparse(a SparseVector, g []float64) (float64, error) {
	m := NewMoments(g)
	return m.pearsonSparse(a)
}

// Moments caches the population mean and variance of an expression vector so it
// can be correlated with many accessibility vectors.
type Moments struct {
	Values   []float64
	Mean     float64
	Variance float64
}

func NewMoments(g []float64) Moments {
	mean, variance := popMeanVariance(g)
	return Moments{Values: g, Mean: mean, Variance: variance}
}

func (m Moments) pearsonSparse(a SparseVector) (float64, error) {
	n := len(m.Values)
	if a.N != n {
		return math.NaN(), errs.Shape("accessibility vector", a.N, n)
	}
	if n < 2 || m.Variance <= varianceFloor {
		return DegenerateCorrelation, nil
	}

	var sumA, sumA2, sumAG float64
	for k, i := range a.Index {
		v := a.Value[k]
		sumA += v
		sumA2 += v * v
		sumAG += v * m.Values[i]
	}
	fn := float64(n)
	meanA := sumA / fn
	varA := sumA2/fn - meanA*meanA
	if varA <= varianceFloor {
		return DegenerateCorrelation, nil
	}
	cov := sumAG/fn - meanA*m.Mean
	r := cov / math.Sqrt(varA) / math.Sqrt(m.Variance)
	// rounding can push |r| a hair past 1
	return math.Max(-1, math.Min(1, r)), nil
}

func popMeanVariance(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	if len(x) == 1 {
		return x[0], 0
	}
	mean, variance := stat.MeanVariance(x, nil)
	n := float64(len(x))
	return mean, variance * (n - 1) / n
}

func popVariance(x []float64) float64 {
	_, v := popMeanVariance(x)
	return v
}
