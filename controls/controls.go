package controls

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gmaffy/goctar/binning"
	"github.com/gmaffy/goctar/errs"
	"golang.org/x/exp/rand"
)

// DefaultB is the default control-pool size per peak.
const DefaultB = 200

// Policy decides what happens when a bin holds fewer than B other peaks.
type Policy int

const (
	// Replace draws the B controls with replacement from the undersized bin.
	Replace Policy = iota
	// Strict reports ErrInsufficientBinPopulation for the peak.
	Strict
	// Merge widens the pool to neighbouring bins until it holds B other peaks,
	// then draws without replacement. Falls back to Replace if the whole grid is too small.
	Merge
)

func (p Policy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Strict:
		return "strict"
	case Merge:
		return "merge"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return Replace, nil
	case "strict":
		return Strict, nil
	case "merge":
		return Merge, nil
	}
	return Replace, fmt.Errorf("unknown undersized-bin policy %q (valid: replace, strict, merge)", s)
}

type Options struct {
	B      int
	Seed   uint64
	Policy Policy
}

// Matrix is the (num_peaks, B) control index matrix, stored row-major.
// Rows of failed peaks hold -1.
type Matrix struct {
	Rows  int
	Cols  int
	Index []int

	// Failed lists peaks that got no controls.
	Failed []errs.UnitError
	// Replaced lists peaks whose pool was drawn with replacement.
	Replaced []int
}

func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Index: make([]int, rows*cols)}
}

// Row returns the controls of peak i. The slice aliases the matrix.
func (m *Matrix) Row(i int) []int {
	return m.Index[i*m.Cols : (i+1)*m.Cols]
}

// OK reports whether peak i has a usable control row.
func (m *Matrix) OK(i int) bool {
	if m.Cols == 0 {
		return true
	}
	return m.Index[i*m.Cols] >= 0
}

// Validate checks the matrix against a peak count: every entry names a peak in [0, peaks),
// except failed rows, which hold -1 in every column.
func (m *Matrix) Validate(peaks int) error {
	if m.Rows < 0 || m.Cols < 0 {
		return fmt.Errorf("%w: control matrix is %dx%d", errs.ErrShapeMismatch, m.Rows, m.Cols)
	}
	if len(m.Index) != m.Rows*m.Cols {
		return errs.Shape("control matrix entries", len(m.Index), m.Rows*m.Cols)
	}
	for p := 0; p < m.Rows; p++ {
		row := m.Row(p)
		failed := m.Cols > 0 && row[0] == -1
		for j, c := range row {
			switch {
			case failed && c != -1:
				return fmt.Errorf("peak %d column %d: %w", p, j, errs.Shape("control peak index in failed row", c, -1))
			case !failed && (c < 0 || c >= peaks):
				return fmt.Errorf("peak %d column %d: %w", p, j, errs.Shape("control peak index", c, peaks))
			}
		}
	}
	return nil
}

// Sample draws B controls per peak with the default Replace policy.
func Sample(a *binning.Assignment, b int, seed uint64) (*Matrix, error) {
	return SampleWithOptions(a, Options{B: b, Seed: seed, Policy: Replace})
}

// SampleWithOptions draws opts.B controls for every peak from its covariate bin, excluding the
// peak itself. Each peak uses its own random stream derived from (seed, peak index), so the
// result depends only on the seed and the input ordering.
func SampleWithOptions(a *binning.Assignment, opts Options) (*Matrix, error) {
	if a == nil {
		return nil, fmt.Errorf("nil bin assignment")
	}
	if opts.B < 1 {
		return nil, fmt.Errorf("control pool size must be >= 1, got %d", opts.B)
	}

	m := NewMatrix(a.NumPeaks(), opts.B)
	for p, key := range a.Keys {
		row := m.Row(p)
		pool := a.Members(key)

		if opts.Policy == Merge && len(pool)-1 < opts.B {
			for d := 1; d <= a.MaxRadius(); d++ {
				pool = a.Neighborhood(key, d)
				if len(pool)-1 >= opts.B {
					break
				}
			}
		}

		self := sort.SearchInts(pool, p)
		n := len(pool) - 1
		if self >= len(pool) || pool[self] != p {
			// p is always in its own bin; guard against a hand-built assignment.
			self = len(pool)
			n = len(pool)
		}
		candidate := func(j int) int {
			if j < self {
				return pool[j]
			}
			return pool[j+1]
		}

		if n == 0 {
			fill(row, -1)
			m.Failed = append(m.Failed, errs.UnitError{Index: p, Err: fmt.Errorf("%w: bin %v holds only the peak itself", errs.ErrInsufficientBinPopulation, key)})
			continue
		}

		rng := rand.New(rand.NewSource(streamSeed(opts.Seed, p)))
		if n >= opts.B {
			for i, j := range floyd(rng, n, opts.B) {
				row[i] = candidate(j)
			}
			continue
		}

		if opts.Policy == Strict {
			fill(row, -1)
			m.Failed = append(m.Failed, errs.UnitError{Index: p, Err: fmt.Errorf("%w: bin %v has %d candidates, need %d", errs.ErrInsufficientBinPopulation, key, n, opts.B)})
			continue
		}
		for i := range row {
			row[i] = candidate(rng.Intn(n))
		}
		m.Replaced = append(m.Replaced, p)
	}
	return m, nil
}

// floyd draws k distinct integers from [0, n) in O(k).
func floyd(rng *rand.Rand, n, k int) []int {
	out := make([]int, 0, k)
	chosen := make(map[int]struct{}, k)
	for j := n - k; j < n; j++ {
		t := rng.Intn(j + 1)
		if _, ok := chosen[t]; ok {
			t = j
		}
		chosen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// streamSeed mixes the run seed with a peak index (splitmix64 finaliser).
func streamSeed(seed uint64, peak int) uint64 {
	z := seed + 0x9e3779b97f4a7c15*uint64(peak+1)
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func fill(row []int, v int) {
	for i := range row {
		row[i] = v
	}
}
