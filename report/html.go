package report

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/gmaffy/goctar/linkage"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/montanaflynn/stats"
)

const histogramBins = 20

// ====== Charts ====== //

func pValueHistogram(prs []linkage.PeakGenePair) *charts.Bar {
	counts := make([]int, histogramBins)
	for _, p := range prs {
		if p.State != linkage.Calibrated || math.IsNaN(p.PValue) {
			continue
		}
		b := int(p.PValue * histogramBins)
		if b >= histogramBins {
			b = histogramBins - 1
		}
		counts[b]++
	}
	labels := make([]string, histogramBins)
	data := make([]opts.BarData, histogramBins)
	for i := range counts {
		labels[i] = fmt.Sprintf("%.2f", float64(i)/histogramBins)
		data[i] = opts.BarData{Value: counts[i]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{Title: "Empirical p-values"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "p"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "pairs"}),
	)
	bar.SetXAxis(labels).AddSeries("p-value", data)
	return bar
}

func observedVsControls(prs []linkage.PeakGenePair, tested []int, controlStats [][]float64) *charts.Scatter {
	var data []opts.ScatterData
	for k, i := range tested {
		if k >= len(controlStats) {
			break
		}
		mean, err := stats.Mean(finite(controlStats[k]))
		obs := prs[i].Tested()
		if err != nil || math.IsNaN(obs) {
			continue
		}
		data = append(data, opts.ScatterData{Name: prs[i].PeakName + ":" + prs[i].GeneName, Value: []interface{}{mean, obs}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{Title: "Observed statistic vs control mean"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "control mean", Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "observed", Type: "value"}),
	)
	scatter.AddSeries("pairs", data)
	return scatter
}

// qqPlot compares -log10 of the sorted p-values with their uniform expectation.
func qqPlot(prs []linkage.PeakGenePair) *charts.Line {
	var pvals []float64
	for _, p := range prs {
		if p.State == linkage.Calibrated && !math.IsNaN(p.PValue) {
			pvals = append(pvals, p.PValue)
		}
	}
	sort.Float64s(pvals)
	n := float64(len(pvals))
	x := make([]string, len(pvals))
	observed := make([]opts.LineData, len(pvals))
	expected := make([]opts.LineData, len(pvals))
	for i, p := range pvals {
		e := -math.Log10((float64(i) + 0.5) / n)
		x[i] = fmt.Sprintf("%.3f", e)
		observed[i] = opts.LineData{Value: -math.Log10(p)}
		expected[i] = opts.LineData{Value: e}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{Title: "QQ plot"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "expected -log10 p"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "observed -log10 p"}),
	)
	line.SetXAxis(x).AddSeries("observed", observed).AddSeries("uniform", expected)
	return line
}

// WriteHTML renders the diagnostic charts of one run to path. tested and controlStats
// are aligned as in linkage.Result.
func WriteHTML(path string, prs []linkage.PeakGenePair, tested []int, controlStats [][]float64) error {
	page := components.NewPage()
	page.PageTitle = "goctar"
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(pValueHistogram(prs), observedVsControls(prs, tested, controlStats), qqPlot(prs))

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}
