package report

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/gmaffy/goctar/linkage"
	"github.com/montanaflynn/stats"
	"github.com/samber/lo"
)

// DefaultAlpha is the q-value cutoff used to count significant links.
const DefaultAlpha = 0.05

// Summary is the run-level digest written to metrics.json.
// Distribution fields are nil when there is nothing to summarise.
type Summary struct {
	Dataset  string  `json:"dataset"`
	Mode     string  `json:"mode"`
	Controls int     `json:"controls"`
	Seed     uint64  `json:"seed"`
	Alpha    float64 `json:"alpha"`

	Pairs       int `json:"pairs"`
	Tested      int `json:"tested"`
	Calibrated  int `json:"calibrated"`
	Failed      int `json:"failed"`
	Significant int `json:"significant"`

	ByCategory            map[string]int `json:"by_category"`
	SignificantByCategory map[string]int `json:"significant_by_category"`

	MedianStatistic *float64 `json:"median_statistic"`
	StatisticP95    *float64 `json:"statistic_p95"`
	MedianControl   *float64 `json:"median_control"`
	MissingControls int      `json:"missing_controls"`
	MinPValue       *float64 `json:"min_p"`
	MedianPValue    *float64 `json:"median_p"`
}

func finite(xs []float64) []float64 {
	return lo.Filter(xs, func(v float64, _ int) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) })
}

func ptr(v float64, err error) *float64 {
	if err != nil || math.IsNaN(v) {
		return nil
	}
	return &v
}

// Summarize counts pairs and describes the observed, control and p-value distributions.
func Summarize(prs []linkage.PeakGenePair, controlStats [][]float64, alpha float64) Summary {
	s := Summary{
		Alpha:                 alpha,
		Pairs:                 len(prs),
		ByCategory:            lo.CountValuesBy(prs, func(p linkage.PeakGenePair) string { return p.Category }),
		SignificantByCategory: map[string]int{},
	}
	var observed, pvals []float64
	for _, p := range prs {
		if p.State != linkage.Unscored {
			s.Tested++
		}
		if p.Err != nil {
			s.Failed++
		}
		if p.State != linkage.Calibrated {
			continue
		}
		s.Calibrated++
		observed = append(observed, p.Tested())
		pvals = append(pvals, p.PValue)
		if p.QValue <= alpha {
			s.Significant++
			s.SignificantByCategory[p.Category]++
		}
	}

	observed = finite(observed)
	pvals = finite(pvals)
	s.MedianStatistic = ptr(stats.Median(observed))
	s.StatisticP95 = ptr(stats.Percentile(observed, 95))
	s.MinPValue = ptr(stats.Min(pvals))
	s.MedianPValue = ptr(stats.Median(pvals))

	var ctl []float64
	for _, row := range controlStats {
		ctl = append(ctl, row...)
	}
	kept := finite(ctl)
	s.MissingControls = len(ctl) - len(kept)
	s.MedianControl = ptr(stats.Median(kept))
	return s
}

// WriteMetrics writes s as indented JSON.
func WriteMetrics(path string, s Summary) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
