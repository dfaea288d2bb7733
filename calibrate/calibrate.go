package calibrate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gmaffy/goctar/errs"
	"gonum.org/v1/gonum/stat"
)

// Alternative selects which tail of the control distribution counts as extreme.
type Alternative int

const (
	// Greater counts controls >= observed.
	Greater Alternative = iota
	// TwoSided counts controls with |control| >= |observed|.
	TwoSided
)

func (a Alternative) String() string {
	switch a {
	case Greater:
		return "greater"
	case TwoSided:
		return "two-sided"
	}
	return fmt.Sprintf("Alternative(%d)", int(a))
}

func ParseAlternative(s string) (Alternative, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "greater", "one-sided":
		return Greater, nil
	case "two-sided", "twosided", "two":
		return TwoSided, nil
	}
	return Greater, fmt.Errorf("unknown alternative %q (valid: greater, two-sided)", s)
}

type Options struct {
	Alternative Alternative
	// Pooled compares each centred observed statistic against the centred controls of every row.
	Pooled bool
}

// PValue is (1 + #controls at least as extreme as observed) / (1 + #controls).
// NaN controls are skipped; a NaN observed value or a row without controls gives NaN.
func PValue(observed float64, controls []float64, alt Alternative) float64 {
	if math.IsNaN(observed) {
		return math.NaN()
	}
	valid, extreme := 0, 0
	for _, c := range controls {
		if math.IsNaN(c) {
			continue
		}
		valid++
		switch alt {
		case TwoSided:
			if math.Abs(c) >= math.Abs(observed) {
				extreme++
			}
		default:
			if c >= observed {
				extreme++
			}
		}
	}
	if valid == 0 {
		return math.NaN()
	}
	return float64(1+extreme) / float64(1+valid)
}

// PValues computes one p-value per row. Rows may hold different numbers of controls.
func PValues(observed []float64, controls [][]float64, opts Options) ([]float64, error) {
	if len(observed) != len(controls) {
		return nil, errs.Shape("control rows", len(controls), len(observed))
	}
	if opts.Pooled {
		return pooledPValues(observed, controls), nil
	}
	p := make([]float64, len(observed))
	for i, obs := range observed {
		p[i] = PValue(obs, controls[i], opts.Alternative)
	}
	return p, nil
}

// BenjaminiHochberg returns q-values for p. NaN entries stay NaN and are not counted
// among the tests.
func BenjaminiHochberg(p []float64) []float64 {
	q := make([]float64, len(p))
	order := make([]int, 0, len(p))
	for i, v := range p {
		if math.IsNaN(v) {
			q[i] = math.NaN()
			continue
		}
		order = append(order, i)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return p[order[a]] < p[order[b]]
	})

	m := float64(len(order))
	running := 1.0
	for r := len(order) - 1; r >= 0; r-- {
		i := order[r]
		adj := p[i] * m / float64(r+1)
		if adj < running {
			running = adj
		}
		q[i] = running
	}
	return q
}

// Calibrate turns observed statistics and their control rows into p-values and BH q-values
// computed over exactly this batch.
func Calibrate(observed []float64, controls [][]float64, opts Options) ([]float64, []float64, error) {
	p, err := PValues(observed, controls, opts)
	if err != nil {
		return nil, nil, err
	}
	return p, BenjaminiHochberg(p), nil
}

// Delta differences target and complement statistics, observed and controls alike.
func Delta(targetObs, complementObs []float64, targetCtl, complementCtl [][]float64) ([]float64, [][]float64, error) {
	n := len(targetObs)
	if len(complementObs) != n {
		return nil, nil, errs.Shape("complement statistics", len(complementObs), n)
	}
	if len(targetCtl) != n {
		return nil, nil, errs.Shape("target control rows", len(targetCtl), n)
	}
	if len(complementCtl) != n {
		return nil, nil, errs.Shape("complement control rows", len(complementCtl), n)
	}
	obs := make([]float64, n)
	ctl := make([][]float64, n)
	for i := range targetObs {
		obs[i] = targetObs[i] - complementObs[i]
		if len(targetCtl[i]) != len(complementCtl[i]) {
			return nil, nil, fmt.Errorf("row %d: %w", i, errs.Shape("complement controls", len(complementCtl[i]), len(targetCtl[i])))
		}
		ctl[i] = make([]float64, len(targetCtl[i]))
		for j := range targetCtl[i] {
			ctl[i][j] = targetCtl[i][j] - complementCtl[i][j]
		}
	}
	return obs, ctl, nil
}

// CalibrateDelta is Calibrate applied to the differenced statistics.
func CalibrateDelta(targetObs, complementObs []float64, targetCtl, complementCtl [][]float64, opts Options) ([]float64, []float64, error) {
	obs, ctl, err := Delta(targetObs, complementObs, targetCtl, complementCtl)
	if err != nil {
		return nil, nil, err
	}
	return Calibrate(obs, ctl, opts)
}

// pooledPValues centres and scales every row by its control mean and standard deviation,
// then ranks each |centred observed| against all |centred controls| of the batch.
func pooledPValues(observed []float64, controls [][]float64) []float64 {
	p := make([]float64, len(observed))
	centred := make([]float64, len(observed))
	var pool []float64
	for i, row := range controls {
		valid := make([]float64, 0, len(row))
		for _, c := range row {
			if !math.IsNaN(c) {
				valid = append(valid, c)
			}
		}
		centred[i] = math.NaN()
		if len(valid) < 2 || math.IsNaN(observed[i]) {
			continue
		}
		mean, variance := stat.MeanVariance(valid, nil)
		sd := math.Sqrt(variance * float64(len(valid)-1) / float64(len(valid)))
		if sd == 0 {
			continue
		}
		for _, c := range valid {
			pool = append(pool, math.Abs((c-mean)/sd))
		}
		centred[i] = math.Abs((observed[i] - mean) / sd)
	}
	sort.Float64s(pool)

	for i, c := range centred {
		if math.IsNaN(c) {
			p[i] = math.NaN()
			continue
		}
		extreme := len(pool) - sort.SearchFloat64s(pool, c)
		p[i] = float64(1+extreme) / float64(1+len(pool))
	}
	return p
}
