package controls

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/rand"
)

// Null selects how the control distribution of a link is built.
type Null int

const (
	// MatchedPeaks scores the gene against B covariate-matched control peaks.
	MatchedPeaks Null = iota
	// CellPermutation scores the gene against B shuffles of the peak's own cells.
	CellPermutation
)

func (n Null) String() string {
	switch n {
	case MatchedPeaks:
		return "matched"
	case CellPermutation:
		return "permutation"
	}
	return fmt.Sprintf("Null(%d)", int(n))
}

func ParseNull(s string) (Null, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "matched", "peaks":
		return MatchedPeaks, nil
	case "permutation", "permute", "shuffle":
		return CellPermutation, nil
	}
	return MatchedPeaks, fmt.Errorf("unknown null %q (valid: matched, permutation)", s)
}

// Permuter shuffles cells for the permutation null. Cells are only moved within their
// stratum, so a cell-type label keeps its composition in every shuffle.
type Permuter struct {
	B    int
	Seed uint64

	cells  int
	strata [][]int
}

// NewPermuter builds a permuter over the given cell labels. An empty labels slice
// puts all n cells in one stratum.
func NewPermuter(n, b int, seed uint64, labels []string) (*Permuter, error) {
	if n < 1 {
		return nil, fmt.Errorf("permutation needs at least one cell, got %d", n)
	}
	if b < 1 {
		return nil, fmt.Errorf("permutation count must be >= 1, got %d", b)
	}
	p := &Permuter{B: b, Seed: seed, cells: n}
	if len(labels) == 0 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		p.strata = [][]int{all}
		return p, nil
	}
	if len(labels) != n {
		return nil, fmt.Errorf("%d cell labels for %d cells", len(labels), n)
	}

	byLabel := make(map[string][]int)
	for i, l := range labels {
		byLabel[l] = append(byLabel[l], i)
	}
	names := make([]string, 0, len(byLabel))
	for l := range byLabel {
		names = append(names, l)
	}
	sort.Strings(names)
	for _, l := range names {
		p.strata = append(p.strata, byLabel[l])
	}
	return p, nil
}

func (p *Permuter) Cells() int { return p.cells }

func (p *Permuter) Strata() int { return len(p.strata) }

// Shuffles returns a generator for the B shuffles of one (peak, gene) pair. The shuffles
// depend only on the seed and the pair, never on scheduling.
func (p *Permuter) Shuffles(peak, gene int) *Shuffles {
	return &Shuffles{
		p:    p,
		rng:  rand.New(rand.NewSource(streamSeed(streamSeed(p.Seed, peak), gene))),
		dest: make([]int, p.cells),
	}
}

// Shuffles yields successive cell permutations for one pair.
type Shuffles struct {
	p    *Permuter
	rng  *rand.Rand
	dest []int
}

// Next returns the next permutation as a destination map: cell i moves to position dest[i].
// The slice is reused by the following call.
func (s *Shuffles) Next() []int {
	for _, cells := range s.p.strata {
		for _, c := range cells {
			s.dest[c] = c
		}
		s.rng.Shuffle(len(cells), func(i, j int) {
			a, b := cells[i], cells[j]
			s.dest[a], s.dest[b] = s.dest[b], s.dest[a]
		})
	}
	return s.dest
}
