package binning

import (
	"testing"

	"github.com/matryer/is"
	"golang.org/x/exp/rand"
)

func TestRankQuantileEqualPopulation(t *testing.T) {
	is := is.New(t)
	values := []float64{0.9, 0.1, 0.5, 0.3, 0.7, 0.2, 0.8, 0.4, 0.6, 0.0}
	got := RankQuantile(values, 5)

	counts := make(map[int]int)
	for _, b := range got {
		counts[b]++
	}
	is.Equal(len(counts), 5) // five buckets used
	for b, n := range counts {
		is.Equal(n, 2) // two values per bucket
		is.True(b >= 0 && b < 5)
	}
	is.Equal(got[9], 0) // smallest value in first bucket
	is.Equal(got[0], 4) // largest value in last bucket
}

func TestRankQuantileTiesCollapse(t *testing.T) {
	is := is.New(t)
	values := []float64{1, 1, 1, 1, 1, 1}
	got := RankQuantile(values, 3)
	for _, b := range got {
		is.Equal(b, 0) // identical values share a bucket
	}

	mixed := []float64{0, 2, 2, 2, 5, 6}
	got = RankQuantile(mixed, 3)
	is.Equal(got[1], got[2])
	is.Equal(got[2], got[3])
}

func TestRankQuantileHeavyTiesLeaveBucketsEmpty(t *testing.T) {
	is := is.New(t)
	// 70 peaks closed in every cell, then 30 distinct accessibilities
	values := make([]float64, 100)
	for i := 70; i < 100; i++ {
		values[i] = float64(i - 69)
	}
	got := RankQuantile(values, 5)

	counts := make([]int, 5)
	for _, b := range got {
		counts[b]++
	}
	is.Equal(counts, []int{70, 0, 0, 10, 20}) // the zero run fills bucket 0 and skips 1 and 2
	is.Equal(got[69], 0)
	is.Equal(got[70], 3)
}

func TestRankQuantileFewerValuesThanBuckets(t *testing.T) {
	is := is.New(t)
	got := RankQuantile([]float64{3, 1}, 10)
	is.Equal(got, []int{5, 0})
}

func TestBinPeaksPartition(t *testing.T) {
	is := is.New(t)
	r := rand.New(rand.NewSource(7))

	for _, k := range []int{1, 2, 3, 5, 10} {
		peaks := make([]Covariates, 237)
		for i := range peaks {
			peaks[i] = Covariates{GC: r.Float64(), MeanAccessibility: r.ExpFloat64()}
		}
		a, err := BinPeaks(peaks, k)
		is.NoErr(err)
		is.Equal(len(a.Keys), len(peaks))

		seen := make(map[int]int)
		for _, key := range a.Bins() {
			for _, p := range a.Members(key) {
				seen[p]++
				is.Equal(a.Keys[p], key) // member agrees with its key
			}
		}
		is.Equal(len(seen), len(peaks)) // union is the input
		for _, n := range seen {
			is.Equal(n, 1) // no duplicates
		}
	}
}

func TestBinWithoutGC(t *testing.T) {
	is := is.New(t)
	peaks := []Covariates{
		{GC: 0.1, MeanAccessibility: 1},
		{GC: 0.9, MeanAccessibility: 2},
		{GC: 0.5, MeanAccessibility: 3},
		{GC: 0.2, MeanAccessibility: 4},
	}
	a, err := Bin(peaks, Config{GCBins: 4, AccessibilityBins: 2, UseGC: false})
	is.NoErr(err)
	is.Equal(a.GCBins, 1)
	for _, key := range a.Keys {
		is.Equal(key.GC, 0)
	}
	is.Equal(len(a.Bins()), 2)
}

func TestBinRejectsInvalidCovariates(t *testing.T) {
	is := is.New(t)
	_, err := BinPeaks([]Covariates{{GC: 1.5, MeanAccessibility: 1}}, 2)
	is.True(err != nil)
	_, err = BinPeaks([]Covariates{{GC: 0.5, MeanAccessibility: -1}}, 2)
	is.True(err != nil)
	_, err = BinPeaks([]Covariates{{GC: 0.5, MeanAccessibility: 1}}, 0)
	is.True(err != nil)
}

func TestNeighborhood(t *testing.T) {
	is := is.New(t)
	var peaks []Covariates
	for g := 0; g < 3; g++ {
		for c := 0; c < 3; c++ {
			peaks = append(peaks, Covariates{GC: float64(g) / 4, MeanAccessibility: float64(c)})
		}
	}
	a, err := BinPeaks(peaks, 3)
	is.NoErr(err)

	center := a.Keys[4]
	is.Equal(center, Key{GC: 1, Accessibility: 1})
	is.Equal(a.Neighborhood(center, 0), []int{4})
	is.Equal(len(a.Neighborhood(center, 1)), 9)
	corner := Key{GC: 0, Accessibility: 0}
	is.Equal(a.Neighborhood(corner, 1), []int{0, 1, 3, 4})
	is.Equal(a.MaxRadius(), 2)
}
