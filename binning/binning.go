package binning

import (
	"fmt"
	"math"
	"sort"
)

// Covariates are the technical covariates a peak is matched on.
type Covariates struct {
	GC                float64
	MeanAccessibility float64
}

// Key is the joint bin of a peak: GC bucket and accessibility bucket.
type Key struct {
	GC            int
	Accessibility int
}

type Config struct {
	GCBins            int
	AccessibilityBins int
	// UseGC false collapses the GC axis into a single bucket.
	UseGC bool
}

// DefaultConfig bins both axes into k equal-population buckets.
func DefaultConfig(k int) Config {
	return Config{GCBins: k, AccessibilityBins: k, UseGC: true}
}

// Assignment maps every peak to exactly one bin.
type Assignment struct {
	Keys              []Key
	GCBins            int
	AccessibilityBins int

	members map[Key][]int
	order   []Key
}

// BinPeaks assigns each peak to a (GC decile, accessibility decile) style bin using k buckets per axis.
func BinPeaks(peaks []Covariates, k int) (*Assignment, error) {
	return Bin(peaks, DefaultConfig(k))
}

func Bin(peaks []Covariates, cfg Config) (*Assignment, error) {
	if cfg.AccessibilityBins < 1 {
		return nil, fmt.Errorf("accessibility bin count must be >= 1, got %d", cfg.AccessibilityBins)
	}
	gcBins := cfg.GCBins
	if !cfg.UseGC {
		gcBins = 1
	}
	if gcBins < 1 {
		return nil, fmt.Errorf("GC bin count must be >= 1, got %d", cfg.GCBins)
	}

	gc := make([]float64, len(peaks))
	acc := make([]float64, len(peaks))
	for i, p := range peaks {
		if cfg.UseGC && (math.IsNaN(p.GC) || p.GC < 0 || p.GC > 1) {
			return nil, fmt.Errorf("peak %d: GC content %v outside [0,1]", i, p.GC)
		}
		if math.IsNaN(p.MeanAccessibility) || math.IsInf(p.MeanAccessibility, 0) || p.MeanAccessibility < 0 {
			return nil, fmt.Errorf("peak %d: mean accessibility %v is not a non-negative number", i, p.MeanAccessibility)
		}
		gc[i] = p.GC
		acc[i] = p.MeanAccessibility
	}

	var gcBucket []int
	if cfg.UseGC {
		gcBucket = RankQuantile(gc, gcBins)
	} else {
		gcBucket = make([]int, len(peaks))
	}
	accBucket := RankQuantile(acc, cfg.AccessibilityBins)

	a := &Assignment{
		Keys:              make([]Key, len(peaks)),
		GCBins:            gcBins,
		AccessibilityBins: cfg.AccessibilityBins,
		members:           make(map[Key][]int),
	}
	for i := range peaks {
		key := Key{GC: gcBucket[i], Accessibility: accBucket[i]}
		a.Keys[i] = key
		a.members[key] = append(a.members[key], i)
	}
	for key := range a.members {
		a.order = append(a.order, key)
	}
	sort.Slice(a.order, func(i, j int) bool {
		return a.Index(a.order[i]) < a.Index(a.order[j])
	})
	return a, nil
}

// RankQuantile places each value into one of k equal-population buckets.
// Values are ordered by value, then by original index. A run of identical values
// takes the bucket of its first member.
func RankQuantile(values []float64, k int) []int {
	n := len(values)
	out := make([]int, n)
	if n == 0 || k <= 1 {
		return out
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return values[order[a]] < values[order[b]]
	})
	for r, i := range order {
		if r > 0 && values[i] == values[order[r-1]] {
			out[i] = out[order[r-1]]
			continue
		}
		out[i] = r * k / n
	}
	return out
}

// Index flattens a key into a single bin number.
func (a *Assignment) Index(key Key) int {
	return key.GC*a.AccessibilityBins + key.Accessibility
}

// Members returns the peaks in a bin in ascending index order. The slice must not be modified.
func (a *Assignment) Members(key Key) []int {
	return a.members[key]
}

// Bins lists the non-empty bins in ascending Index order.
func (a *Assignment) Bins() []Key {
	return a.order
}

func (a *Assignment) NumPeaks() int {
	return len(a.Keys)
}

// Neighborhood returns, in ascending order, every peak whose bin lies within Chebyshev
// distance d of key on the GC x accessibility grid.
func (a *Assignment) Neighborhood(key Key, d int) []int {
	if d <= 0 {
		return a.members[key]
	}
	var out []int
	for g := key.GC - d; g <= key.GC+d; g++ {
		if g < 0 || g >= a.GCBins {
			continue
		}
		for c := key.Accessibility - d; c <= key.Accessibility+d; c++ {
			if c < 0 || c >= a.AccessibilityBins {
				continue
			}
			out = append(out, a.members[Key{GC: g, Accessibility: c}]...)
		}
	}
	sort.Ints(out)
	return out
}

// MaxRadius is the Chebyshev distance that covers the whole grid from any key.
func (a *Assignment) MaxRadius() int {
	if a.GCBins > a.AccessibilityBins {
		return a.GCBins - 1
	}
	return a.AccessibilityBins - 1
}
