package matrixio

import (
	"fmt"
	"math"

	"github.com/gmaffy/goctar/controls"
	"github.com/gmaffy/goctar/errs"
	"github.com/sbinet/npyio/npz"
)

// ControlArchive is what a run persists about its control draws. Statistics are optional.
type ControlArchive struct {
	Matrix *controls.Matrix
	Seed   uint64
	Policy controls.Policy

	// Observed and Statistics are aligned with the scored pairs; Statistics is row-major
	// with Matrix.Cols columns. NaN marks missing values.
	Observed   []float64
	Statistics [][]float64
}

// WriteControls saves the archive as a NumPy .npz file. Index arrays are int64, failed
// rows hold -1. The reasons recorded for failed peaks are not stored; ReadControls rebuilds
// them from the -1 rows.
func WriteControls(path string, a ControlArchive) error {
	if a.Matrix == nil {
		return fmt.Errorf("no control matrix to write")
	}
	w, err := npz.Create(path)
	if err != nil {
		return err
	}

	idx := make([]int64, len(a.Matrix.Index))
	for i, v := range a.Matrix.Index {
		idx[i] = int64(v)
	}
	type array struct {
		name string
		v    any
	}
	arrays := []array{
		{"controls", idx},
		{"shape", []int64{int64(a.Matrix.Rows), int64(a.Matrix.Cols)}},
		{"seed", []uint64{a.Seed}},
		{"policy", []int64{int64(a.Policy)}},
	}
	if len(a.Matrix.Replaced) > 0 {
		replaced := make([]int64, len(a.Matrix.Replaced))
		for i, p := range a.Matrix.Replaced {
			replaced[i] = int64(p)
		}
		arrays = append(arrays, array{"replaced", replaced})
	}
	if a.Observed != nil {
		flat := make([]float64, 0, len(a.Statistics)*a.Matrix.Cols)
		for i, row := range a.Statistics {
			if len(row) != a.Matrix.Cols {
				w.Close()
				return fmt.Errorf("statistics row %d: %w", i, errs.Shape("columns", len(row), a.Matrix.Cols))
			}
			flat = append(flat, row...)
		}
		arrays = append(arrays, array{"observed", a.Observed}, array{"statistics", flat})
	}

	for _, arr := range arrays {
		if err := w.Write(arr.name, arr.v); err != nil {
			w.Close()
			return fmt.Errorf("writing %s to %s: %w", arr.name, path, err)
		}
	}
	return w.Close()
}

// ReadControls loads an archive written by WriteControls.
func ReadControls(path string) (ControlArchive, error) {
	r, err := npz.Open(path)
	if err != nil {
		return ControlArchive{}, err
	}
	defer r.Close()

	var (
		idx    []int64
		shape  []int64
		seed   []uint64
		policy []int64
	)
	for name, ptr := range map[string]any{"controls": &idx, "shape": &shape, "seed": &seed, "policy": &policy} {
		if err := r.Read(name, ptr); err != nil {
			return ControlArchive{}, fmt.Errorf("reading %s from %s: %w", name, path, err)
		}
	}
	if len(shape) != 2 {
		return ControlArchive{}, fmt.Errorf("%s: %w", path, errs.Shape("shape entries", len(shape), 2))
	}
	if int64(len(idx)) != shape[0]*shape[1] {
		return ControlArchive{}, fmt.Errorf("%s: %w", path, errs.Shape("control entries", len(idx), int(shape[0]*shape[1])))
	}
	if len(seed) != 1 || len(policy) != 1 {
		return ControlArchive{}, fmt.Errorf("%s: malformed seed or policy", path)
	}

	m := controls.NewMatrix(int(shape[0]), int(shape[1]))
	for i, v := range idx {
		m.Index[i] = int(v)
	}
	if err := m.Validate(m.Rows); err != nil {
		return ControlArchive{}, fmt.Errorf("%s: %w", path, err)
	}
	for p := 0; p < m.Rows; p++ {
		if !m.OK(p) {
			m.Failed = append(m.Failed, errs.UnitError{Index: p, Err: fmt.Errorf("%w: no controls stored for peak %d", errs.ErrInsufficientBinPopulation, p)})
		}
	}
	keys := r.Keys()
	if hasKey(keys, "replaced") {
		var replaced []int64
		if err := r.Read("replaced", &replaced); err != nil {
			return ControlArchive{}, fmt.Errorf("reading replaced from %s: %w", path, err)
		}
		for _, p := range replaced {
			if p < 0 || p >= int64(m.Rows) {
				return ControlArchive{}, fmt.Errorf("%s: %w", path, errs.Shape("replaced peak index", int(p), m.Rows))
			}
			m.Replaced = append(m.Replaced, int(p))
		}
	}
	a := ControlArchive{Matrix: m, Seed: seed[0], Policy: controls.Policy(policy[0])}

	if !hasKey(keys, "observed") {
		return a, nil
	}
	var flat []float64
	if err := r.Read("observed", &a.Observed); err != nil {
		return a, fmt.Errorf("reading observed from %s: %w", path, err)
	}
	if err := r.Read("statistics", &flat); err != nil {
		return a, fmt.Errorf("reading statistics from %s: %w", path, err)
	}
	if len(flat) != len(a.Observed)*m.Cols {
		return a, fmt.Errorf("%s: %w", path, errs.Shape("statistics", len(flat), len(a.Observed)*m.Cols))
	}
	a.Statistics = make([][]float64, len(a.Observed))
	for i := range a.Statistics {
		a.Statistics[i] = flat[i*m.Cols : (i+1)*m.Cols]
	}
	return a, nil
}

func hasKey(keys []string, name string) bool {
	for _, k := range keys {
		if k == name || k == name+".npy" {
			return true
		}
	}
	return false
}

// CountMissing counts NaN entries across the statistics rows.
func CountMissing(stats [][]float64) int {
	n := 0
	for _, row := range stats {
		for _, v := range row {
			if math.IsNaN(v) {
				n++
			}
		}
	}
	return n
}
