package linkage

import (
	"fmt"
	"math"

	"github.com/gmaffy/goctar/association"
	"github.com/gmaffy/goctar/binning"
	"github.com/gmaffy/goctar/errs"
	"github.com/gmaffy/goctar/pairs"
	"github.com/jinzhu/copier"
	"github.com/samber/lo"
)

// AllCells names the unrestricted cell population.
const AllCells = "ALL"

type Peak struct {
	Name   string
	Region pairs.Region
	// GC is NaN when unknown.
	GC            float64
	Accessibility association.SparseVector `copier:"-"`
}

type Gene struct {
	Name       string
	TSS        pairs.Site
	Expression []float64 `copier:"-"`
}

// Dataset is one cell population: every accessibility and expression vector follows Cells.
type Dataset struct {
	Name   string
	Cells  []string
	Labels []string
	Peaks  []Peak
	Genes  []Gene
}

func (d *Dataset) NumCells() int {
	return len(d.Cells)
}

// Validate checks that every vector matches the cell count.
func (d *Dataset) Validate() error {
	n := len(d.Cells)
	if d.Labels != nil && len(d.Labels) != n {
		return errs.Shape("cell labels", len(d.Labels), n)
	}
	for i, p := range d.Peaks {
		if p.Accessibility.N != n {
			return fmt.Errorf("peak %s: %w", p.Name, errs.Shape("accessibility cells", p.Accessibility.N, n))
		}
		if err := p.Accessibility.Validate(); err != nil {
			return fmt.Errorf("peak %d (%s): %w", i, p.Name, err)
		}
	}
	for _, g := range d.Genes {
		if len(g.Expression) != n {
			return fmt.Errorf("gene %s: %w", g.Name, errs.Shape("expression cells", len(g.Expression), n))
		}
	}
	return nil
}

// HasGC reports whether every peak carries a GC fraction.
func (d *Dataset) HasGC() bool {
	return len(d.Peaks) > 0 && lo.EveryBy(d.Peaks, func(p Peak) bool { return !math.IsNaN(p.GC) })
}

// Covariates returns per-peak GC and mean accessibility over the cells of d.
func (d *Dataset) Covariates() []binning.Covariates {
	return lo.Map(d.Peaks, func(p Peak, _ int) binning.Covariates {
		gc := p.GC
		if math.IsNaN(gc) {
			gc = 0
		}
		return binning.Covariates{GC: gc, MeanAccessibility: p.Accessibility.Mean()}
	})
}

func (d *Dataset) accessibility() []association.SparseVector {
	return lo.Map(d.Peaks, func(p Peak, _ int) association.SparseVector { return p.Accessibility })
}

func (d *Dataset) expression() [][]float64 {
	return lo.Map(d.Genes, func(g Gene, _ int) []float64 { return g.Expression })
}

// Subset returns a deep, independent copy of d restricted to the cells where keep is true.
func (d *Dataset) Subset(name string, keep []bool) (*Dataset, error) {
	if len(keep) != len(d.Cells) {
		return nil, errs.Shape("cell mask", len(keep), len(d.Cells))
	}
	idx := lo.Filter(lo.Range(len(keep)), func(i int, _ int) bool { return keep[i] })
	if len(idx) == 0 {
		return nil, fmt.Errorf("subset %q has no cells", name)
	}

	out := &Dataset{}
	if err := copier.CopyWithOption(out, d, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("cloning dataset: %w", err)
	}
	out.Name = name
	out.Cells = lo.Map(idx, func(i int, _ int) string { return d.Cells[i] })
	if d.Labels != nil {
		out.Labels = lo.Map(idx, func(i int, _ int) string { return d.Labels[i] })
	}
	for p := range out.Peaks {
		out.Peaks[p].Accessibility = d.Peaks[p].Accessibility.Select(idx)
	}
	for g := range out.Genes {
		src := d.Genes[g].Expression
		out.Genes[g].Expression = lo.Map(idx, func(i int, _ int) float64 { return src[i] })
	}
	return out, nil
}

func (d *Dataset) labelMask(label string, want bool) ([]bool, error) {
	if d.Labels == nil {
		return nil, fmt.Errorf("dataset %q has no cell labels", d.Name)
	}
	if !lo.Contains(d.Labels, label) {
		return nil, fmt.Errorf("no cells labelled %q", label)
	}
	return lo.Map(d.Labels, func(l string, _ int) bool { return (l == label) == want }), nil
}

// ForLabel is the subset of cells labelled label.
func (d *Dataset) ForLabel(label string) (*Dataset, error) {
	keep, err := d.labelMask(label, true)
	if err != nil {
		return nil, err
	}
	return d.Subset(label, keep)
}

// Complement is the subset of cells not labelled label.
func (d *Dataset) Complement(label string) (*Dataset, error) {
	keep, err := d.labelMask(label, false)
	if err != nil {
		return nil, err
	}
	return d.Subset("not_"+label, keep)
}

// LowExpressionMask keeps a candidate when its peak and its gene both have a non-zero
// fraction above minPct and a mean above minMean over the cells of d.
func (d *Dataset) LowExpressionMask(cands []pairs.Candidate, minPct, minMean float64) []bool {
	n := float64(d.NumCells())
	peakOK := lo.Map(d.Peaks, func(p Peak, _ int) bool {
		return float64(p.Accessibility.NNZ())/n > minPct && p.Accessibility.Mean() > minMean
	})
	geneOK := lo.Map(d.Genes, func(g Gene, _ int) bool {
		nnz := lo.CountBy(g.Expression, func(v float64) bool { return v != 0 })
		return float64(nnz)/n > minPct && lo.Sum(g.Expression)/n > minMean
	})
	return lo.Map(cands, func(c pairs.Candidate, _ int) bool {
		return peakOK[c.Peak] && geneOK[c.Gene]
	})
}
