package pairs

import (
	"fmt"
	"sort"

	"github.com/biogo/store/interval"
)

const (
	Promoter = "promoter"
	Distal   = "distal"
)

const (
	DefaultWindow           = 200_000
	DefaultPromoterDistance = 1_000
)

// Region is a half-open genomic interval [Start, End).
type Region struct {
	Chrom string
	Start int
	End   int
}

// Midpoint of the region, rounded down.
func (r Region) Midpoint() int {
	return r.Start + (r.End-r.Start)/2
}

// Site is a single position, typically a gene TSS.
type Site struct {
	Chrom string
	Pos   int
}

// Candidate is a peak-gene pair to be tested, by index into the peak and gene lists.
type Candidate struct {
	Peak     int
	Gene     int
	Distance int
	Category string
}

type Options struct {
	Window           int
	PromoterDistance int
}

func DefaultOptions() Options {
	return Options{Window: DefaultWindow, PromoterDistance: DefaultPromoterDistance}
}

// Categorize labels a signed peak-to-TSS distance.
func Categorize(distance, promoterDistance int) string {
	if distance < 0 {
		distance = -distance
	}
	if distance <= promoterDistance {
		return Promoter
	}
	return Distal
}

type peakInterval struct {
	start, end int
	uid        uintptr
}

func (p peakInterval) Overlap(b interval.IntRange) bool {
	return p.start < b.End && p.end > b.Start
}

func (p peakInterval) ID() uintptr {
	return p.uid
}

func (p peakInterval) Range() interval.IntRange {
	return interval.IntRange{Start: p.start, End: p.end}
}

// Index holds one interval tree of peaks per chromosome.
type Index struct {
	trees map[string]*interval.IntTree
	peaks []Region
}

func NewIndex(peaks []Region) (*Index, error) {
	idx := &Index{trees: make(map[string]*interval.IntTree), peaks: peaks}
	for i, p := range peaks {
		if p.End <= p.Start {
			return nil, fmt.Errorf("peak %d (%s:%d-%d) is empty", i, p.Chrom, p.Start, p.End)
		}
		tree, ok := idx.trees[p.Chrom]
		if !ok {
			tree = &interval.IntTree{}
			idx.trees[p.Chrom] = tree
		}
		if err := tree.Insert(peakInterval{start: p.Start, end: p.End, uid: uintptr(i)}, false); err != nil {
			return nil, fmt.Errorf("indexing peak %d: %w", i, err)
		}
	}
	return idx, nil
}

// Overlapping returns the peaks intersecting [start, end) on chrom, in ascending index order.
func (idx *Index) Overlapping(chrom string, start, end int) []int {
	tree, ok := idx.trees[chrom]
	if !ok || end <= start {
		return nil
	}
	hits := tree.Get(peakInterval{start: start, end: end})
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = int(h.ID())
	}
	sort.Ints(out)
	return out
}

// Window pairs every gene with each peak overlapping TSS ± opts.Window. Distance is the
// peak midpoint minus the TSS.
func Window(peaks []Region, tss []Site, opts Options) ([]Candidate, error) {
	if opts.Window < 0 || opts.PromoterDistance < 0 {
		return nil, fmt.Errorf("window and promoter distance must be non-negative")
	}
	idx, err := NewIndex(peaks)
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for g, site := range tss {
		lo := max(site.Pos-opts.Window, 0)
		for _, p := range idx.Overlapping(site.Chrom, lo, site.Pos+opts.Window+1) {
			d := peaks[p].Midpoint() - site.Pos
			out = append(out, Candidate{Peak: p, Gene: g, Distance: d, Category: Categorize(d, opts.PromoterDistance)})
		}
	}
	return out, nil
}
