package controls

import (
	"slices"
	"sort"
	"testing"

	"github.com/matryer/is"
)

func TestParseNull(t *testing.T) {
	is := is.New(t)
	n, err := ParseNull("")
	is.NoErr(err)
	is.Equal(n, MatchedPeaks)
	n, err = ParseNull(" Permutation ")
	is.NoErr(err)
	is.Equal(n, CellPermutation)
	is.Equal(n.String(), "permutation")
	_, err = ParseNull("bootstrap")
	is.True(err != nil)
}

func TestShufflesArePermutations(t *testing.T) {
	is := is.New(t)
	p, err := NewPermuter(50, 10, 3, nil)
	is.NoErr(err)
	is.Equal(p.Strata(), 1)

	s := p.Shuffles(4, 7)
	moved := 0
	for b := 0; b < p.B; b++ {
		dest := append([]int(nil), s.Next()...)
		for i, d := range dest {
			if i != d {
				moved++
			}
		}
		sort.Ints(dest)
		for i, d := range dest {
			is.Equal(i, d) // every position used once
		}
	}
	is.True(moved > 0)
}

func TestShufflesStayInStratum(t *testing.T) {
	is := is.New(t)
	labels := []string{"B", "A", "A", "B", "C", "A", "B", "B", "A", "C"}
	p, err := NewPermuter(len(labels), 20, 9, labels)
	is.NoErr(err)
	is.Equal(p.Strata(), 3)

	s := p.Shuffles(0, 0)
	for b := 0; b < p.B; b++ {
		for i, d := range s.Next() {
			is.Equal(labels[i], labels[d])
		}
	}
}

func TestShufflesDeterministicPerPair(t *testing.T) {
	is := is.New(t)
	p, err := NewPermuter(40, 5, 11, nil)
	is.NoErr(err)

	first := append([]int(nil), p.Shuffles(2, 3).Next()...)
	again := append([]int(nil), p.Shuffles(2, 3).Next()...)
	is.Equal(first, again)

	other := append([]int(nil), p.Shuffles(3, 2).Next()...)
	is.True(!slices.Equal(first, other)) // pairs get their own streams

	q, err := NewPermuter(40, 5, 12, nil)
	is.NoErr(err)
	is.True(!slices.Equal(first, q.Shuffles(2, 3).Next()))
}

func TestNewPermuterRejectsBadInput(t *testing.T) {
	is := is.New(t)
	_, err := NewPermuter(0, 5, 1, nil)
	is.True(err != nil)
	_, err = NewPermuter(5, 0, 1, nil)
	is.True(err != nil)
	_, err = NewPermuter(5, 5, 1, []string{"A", "B"})
	is.True(err != nil) // one label per cell
}
