package association

import (
	"fmt"
	"sort"
)

// SparseVector holds the non-zero entries of a length-N vector. Index is strictly increasing.
type SparseVector struct {
	N     int
	Index []int
	Value []float64
}

// Sparsify keeps the non-zero entries of x.
func Sparsify(x []float64) SparseVector {
	v := SparseVector{N: len(x)}
	for i, val := range x {
		if val != 0 {
			v.Index = append(v.Index, i)
			v.Value = append(v.Value, val)
		}
	}
	return v
}

// Dense writes the vector into buf (grown if needed) and returns it.
func (v SparseVector) Dense(buf []float64) []float64 {
	if cap(buf) < v.N {
		buf = make([]float64, v.N)
	}
	buf = buf[:v.N]
	for i := range buf {
		buf[i] = 0
	}
	for k, i := range v.Index {
		buf[i] = v.Value[k]
	}
	return buf
}

// NNZ is the number of stored entries.
func (v SparseVector) NNZ() int {
	return len(v.Index)
}

func (v SparseVector) Sum() float64 {
	var s float64
	for _, x := range v.Value {
		s += x
	}
	return s
}

func (v SparseVector) Mean() float64 {
	if v.N == 0 {
		return 0
	}
	return v.Sum() / float64(v.N)
}

// Binarized maps every stored entry to 1.
func (v SparseVector) Binarized() SparseVector {
	out := SparseVector{N: v.N, Index: v.Index, Value: make([]float64, len(v.Value))}
	for i := range out.Value {
		out.Value[i] = 1
	}
	return out
}

// Select restricts the vector to the given positions, renumbered 0..len(keep)-1.
// keep must be strictly increasing.
func (v SparseVector) Select(keep []int) SparseVector {
	out := SparseVector{N: len(keep)}
	k := 0
	for newPos, old := range keep {
		for k < len(v.Index) && v.Index[k] < old {
			k++
		}
		if k < len(v.Index) && v.Index[k] == old {
			out.Index = append(out.Index, newPos)
			out.Value = append(out.Value, v.Value[k])
		}
	}
	return out
}

// Validate checks the index is in range and strictly increasing.
func (v SparseVector) Validate() error {
	if len(v.Index) != len(v.Value) {
		return fmt.Errorf("sparse vector has %d indices and %d values", len(v.Index), len(v.Value))
	}
	if !sort.IntsAreSorted(v.Index) {
		return fmt.Errorf("sparse vector indices are not sorted")
	}
	for k, i := range v.Index {
		if i < 0 || i >= v.N {
			return fmt.Errorf("sparse vector index %d out of range [0,%d)", i, v.N)
		}
		if k > 0 && v.Index[k-1] == i {
			return fmt.Errorf("sparse vector index %d repeated", i)
		}
	}
	return nil
}
