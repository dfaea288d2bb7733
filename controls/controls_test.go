package controls

import (
	"errors"
	"testing"

	"github.com/gmaffy/goctar/binning"
	"github.com/gmaffy/goctar/errs"
	"github.com/matryer/is"
	"golang.org/x/exp/rand"
)

func randomAssignment(t *testing.T, n, k int, seed uint64) *binning.Assignment {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	peaks := make([]binning.Covariates, n)
	for i := range peaks {
		peaks[i] = binning.Covariates{GC: r.Float64(), MeanAccessibility: r.ExpFloat64()}
	}
	a, err := binning.BinPeaks(peaks, k)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestSampleSameBinDistinctExcludesSelf(t *testing.T) {
	is := is.New(t)
	a := randomAssignment(t, 2000, 2, 1)
	m, err := Sample(a, 50, 42)
	is.NoErr(err)
	is.Equal(m.Rows, 2000)
	is.Equal(m.Cols, 50)
	is.Equal(len(m.Failed), 0)

	for p := 0; p < m.Rows; p++ {
		seen := make(map[int]bool)
		for _, c := range m.Row(p) {
			is.True(c != p)                 // never its own control
			is.Equal(a.Keys[c], a.Keys[p])  // same covariate bin
			is.True(!seen[c])               // no repeats when the bin is large enough
			seen[c] = true
		}
	}
}

func TestSampleDeterministic(t *testing.T) {
	is := is.New(t)
	a := randomAssignment(t, 500, 3, 2)
	m1, err := Sample(a, 20, 99)
	is.NoErr(err)
	m2, err := Sample(a, 20, 99)
	is.NoErr(err)
	is.Equal(m1.Index, m2.Index)

	m3, err := Sample(a, 20, 100)
	is.NoErr(err)
	differs := false
	for i := range m1.Index {
		if m1.Index[i] != m3.Index[i] {
			differs = true
			break
		}
	}
	is.True(differs) // another seed draws other controls
}

func TestSampleUndersizedBinReplaces(t *testing.T) {
	is := is.New(t)
	// three peaks in one bin: each has two peers
	peaks := []binning.Covariates{{GC: 0.5, MeanAccessibility: 1}, {GC: 0.5, MeanAccessibility: 1}, {GC: 0.5, MeanAccessibility: 1}}
	a, err := binning.BinPeaks(peaks, 1)
	is.NoErr(err)

	m, err := Sample(a, 200, 0)
	is.NoErr(err)
	is.Equal(len(m.Failed), 0)
	is.Equal(len(m.Replaced), 3)
	for p := 0; p < 3; p++ {
		for _, c := range m.Row(p) {
			is.True(c != p)
			is.True(c >= 0 && c < 3)
		}
	}
}

func TestSampleSingletonBinFails(t *testing.T) {
	is := is.New(t)
	peaks := []binning.Covariates{{GC: 0.1, MeanAccessibility: 1}, {GC: 0.9, MeanAccessibility: 5}}
	a, err := binning.BinPeaks(peaks, 2)
	is.NoErr(err)

	m, err := Sample(a, 10, 0)
	is.NoErr(err) // per-peak failures do not abort
	is.Equal(len(m.Failed), 2)
	is.True(errors.Is(m.Failed[0], errs.ErrInsufficientBinPopulation))
	is.True(!m.OK(0))
	is.Equal(m.Row(1)[0], -1)
}

func TestSampleStrictPolicy(t *testing.T) {
	is := is.New(t)
	peaks := []binning.Covariates{{GC: 0.5, MeanAccessibility: 1}, {GC: 0.5, MeanAccessibility: 1}, {GC: 0.5, MeanAccessibility: 1}}
	a, err := binning.BinPeaks(peaks, 1)
	is.NoErr(err)

	m, err := SampleWithOptions(a, Options{B: 5, Seed: 1, Policy: Strict})
	is.NoErr(err)
	is.Equal(len(m.Failed), 3)
	for _, f := range m.Failed {
		is.True(errors.Is(f, errs.ErrInsufficientBinPopulation))
	}
}

func TestSampleMergePolicy(t *testing.T) {
	is := is.New(t)
	a := randomAssignment(t, 300, 10, 5) // about 3 peaks per bin
	m, err := SampleWithOptions(a, Options{B: 20, Seed: 3, Policy: Merge})
	is.NoErr(err)
	is.Equal(len(m.Failed), 0)
	is.Equal(len(m.Replaced), 0) // neighbours supply enough peers

	for p := 0; p < m.Rows; p++ {
		seen := make(map[int]bool)
		for _, c := range m.Row(p) {
			is.True(c != p)
			is.True(!seen[c])
			seen[c] = true
		}
	}
}

func TestParsePolicy(t *testing.T) {
	is := is.New(t)
	for _, p := range []Policy{Replace, Strict, Merge} {
		got, err := ParsePolicy(p.String())
		is.NoErr(err)
		is.Equal(got, p)
	}
	_, err := ParsePolicy("sometimes")
	is.True(err != nil)
}

func TestFloydDistinct(t *testing.T) {
	is := is.New(t)
	r := rand.New(rand.NewSource(11))
	got := floyd(r, 10, 10)
	seen := make(map[int]bool)
	for _, v := range got {
		is.True(v >= 0 && v < 10)
		is.True(!seen[v])
		seen[v] = true
	}
	is.Equal(len(seen), 10)
}

func TestMatrixValidate(t *testing.T) {
	is := is.New(t)
	a := randomAssignment(t, 300, 2, 5)
	m, err := Sample(a, 20, 1)
	is.NoErr(err)
	is.NoErr(m.Validate(300))
	is.True(errors.Is(m.Validate(10), errs.ErrShapeMismatch)) // indices past the peak count

	failed := &Matrix{Rows: 2, Cols: 2, Index: []int{-1, -1, 0, 0}}
	is.NoErr(failed.Validate(2))

	for _, index := range [][]int{
		{1, -3, 0, 1}, // negative index
		{1, -1, 0, 1}, // -1 inside a usable row
		{-1, 1, 0, 1}, // failed row with a usable entry
		{1, 0, 0},     // short
	} {
		bad := &Matrix{Rows: 2, Cols: 2, Index: index}
		is.True(errors.Is(bad.Validate(2), errs.ErrShapeMismatch))
	}
}
