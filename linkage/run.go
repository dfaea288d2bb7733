package linkage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/gmaffy/goctar/association"
	"github.com/gmaffy/goctar/binning"
	"github.com/gmaffy/goctar/calibrate"
	"github.com/gmaffy/goctar/controls"
	"github.com/gmaffy/goctar/errs"
	"github.com/gmaffy/goctar/pairs"
	"github.com/samber/lo"
)

type Config struct {
	Binning     binning.Config
	Controls    int
	Seed        uint64
	Policy      controls.Policy
	Mode        association.Mode
	Binarize    bool
	Threads     int
	Calibration calibrate.Options

	// Null picks matched control peaks or per-pair cell permutations. Under the
	// permutation null Controls is the number of shuffles and Stratify keeps
	// shuffled cells within their label.
	Null     controls.Null
	Stratify bool

	// The low-expression filter is applied when either threshold is positive.
	MinPct  float64
	MinMean float64

	Progress func(done, total int)
	Logger   *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		Binning:  binning.DefaultConfig(5),
		Controls: controls.DefaultB,
		Policy:   controls.Replace,
		Mode:     association.Correlation,
		Null:     controls.MatchedPeaks,
		Threads:  runtime.NumCPU(),
	}
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c Config) filtering() bool {
	return c.MinPct > 0 || c.MinMean > 0
}

func (c Config) scoreOptions() association.Options {
	return association.Options{
		Mode:     c.Mode,
		Binarize: c.Binarize,
		Threads:  c.Threads,
		Progress: c.Progress,
		Logger:   c.Logger,
	}
}

// Result holds the pairs of one run together with the arrays they were calibrated from.
// Observed and ControlStats are aligned with Tested.
type Result struct {
	Pairs        []PeakGenePair
	Assignment   *binning.Assignment
	Controls     *controls.Matrix
	Tested       []int
	Observed     []float64
	ControlStats [][]float64
}

// DrawControls bins the peaks of ds on GC and mean accessibility and samples cfg.Controls
// controls per peak. GC binning is skipped when any peak lacks a GC value.
func DrawControls(ds *Dataset, cfg Config) (*binning.Assignment, *controls.Matrix, error) {
	logger := cfg.logger()
	bcfg := cfg.Binning
	if bcfg.UseGC && !ds.HasGC() {
		logger.Warn("GC content missing, binning on accessibility only", "dataset", ds.Name)
		bcfg.UseGC = false
	}
	assign, err := binning.Bin(ds.Covariates(), bcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("binning peaks: %w", err)
	}
	m, err := controls.SampleWithOptions(assign, controls.Options{B: cfg.Controls, Seed: cfg.Seed, Policy: cfg.Policy})
	if err != nil {
		return nil, nil, fmt.Errorf("sampling controls: %w", err)
	}
	logger.Info("controls drawn", "dataset", ds.Name, "peaks", assign.NumPeaks(), "bins", len(assign.Bins()),
		"B", cfg.Controls, "seed", cfg.Seed, "policy", cfg.Policy.String(), "failed", len(m.Failed), "with_replacement", len(m.Replaced))
	return assign, m, nil
}

// Run draws controls on ds and scores and calibrates every candidate against them.
// Under the permutation null no control peaks are drawn.
func Run(ctx context.Context, ds *Dataset, cands []pairs.Candidate, cfg Config) (*Result, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if cfg.Null == controls.CellPermutation {
		return RunWithControls(ctx, ds, cands, nil, cfg)
	}
	assign, m, err := DrawControls(ds, cfg)
	if err != nil {
		return nil, err
	}
	res, err := RunWithControls(ctx, ds, cands, m, cfg)
	if err != nil {
		return nil, err
	}
	res.Assignment = assign
	return res, nil
}

// RunWithControls scores and calibrates candidates against an existing control matrix.
// m must be nil under the permutation null.
func RunWithControls(ctx context.Context, ds *Dataset, cands []pairs.Candidate, m *controls.Matrix, cfg Config) (*Result, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.checkControls(ds, m); err != nil {
		return nil, err
	}
	logger := cfg.logger()
	start := time.Now()

	prs := NewPairs(ds, cands)
	tested := testedPairs(ds, prs, cands, cfg)

	scored, err := score(ctx, ds, prs, tested, m, cfg)
	if err != nil {
		return nil, err
	}
	failed := unitErrs(scored.Failed)
	for k, i := range tested {
		if err := prs[i].SetScore(scored.Observed[k], failed[k]); err != nil {
			return nil, err
		}
	}

	p, q, err := calibrate.Calibrate(scored.Observed, scored.Controls, cfg.Calibration)
	if err != nil {
		return nil, err
	}
	for k, i := range tested {
		if err := prs[i].SetSignificance(p[k], q[k]); err != nil {
			return nil, err
		}
	}
	logger.Info("pairs calibrated", "dataset", ds.Name, "pairs", len(prs), "tested", len(tested),
		"mode", cfg.Mode.String(), "elapsed", time.Since(start).String())
	return &Result{Pairs: prs, Controls: m, Tested: tested, Observed: scored.Observed, ControlStats: scored.Controls}, nil
}

// RunDelta draws one control matrix on the full dataset, scores the candidates separately on
// the cells labelled label and on all other cells, and calibrates the difference.
// Controls are scored on each subset's unfiltered peaks.
func RunDelta(ctx context.Context, ds *Dataset, cands []pairs.Candidate, label string, cfg Config) (*Result, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if cfg.Null == controls.CellPermutation {
		return RunDeltaWithControls(ctx, ds, cands, nil, label, cfg)
	}
	assign, m, err := DrawControls(ds, cfg)
	if err != nil {
		return nil, err
	}
	res, err := RunDeltaWithControls(ctx, ds, cands, m, label, cfg)
	if err != nil {
		return nil, err
	}
	res.Assignment = assign
	return res, nil
}

// RunDeltaWithControls is RunDelta against an existing control matrix drawn on ds.
func RunDeltaWithControls(ctx context.Context, ds *Dataset, cands []pairs.Candidate, m *controls.Matrix, label string, cfg Config) (*Result, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.checkControls(ds, m); err != nil {
		return nil, err
	}
	logger := cfg.logger()
	start := time.Now()

	target, err := ds.ForLabel(label)
	if err != nil {
		return nil, err
	}
	complement, err := ds.Complement(label)
	if err != nil {
		return nil, err
	}

	prs := NewPairs(target, cands)
	tested := testedPairs(target, prs, cands, cfg)

	tScored, err := score(ctx, target, prs, tested, m, cfg)
	if err != nil {
		return nil, fmt.Errorf("scoring %s: %w", target.Name, err)
	}
	cScored, err := score(ctx, complement, prs, tested, m, cfg)
	if err != nil {
		return nil, fmt.Errorf("scoring %s: %w", complement.Name, err)
	}

	obs, ctl, err := calibrate.Delta(tScored.Observed, cScored.Observed, tScored.Controls, cScored.Controls)
	if err != nil {
		return nil, err
	}
	p, q, err := calibrate.Calibrate(obs, ctl, cfg.Calibration)
	if err != nil {
		return nil, err
	}
	tFailed, cFailed := unitErrs(tScored.Failed), unitErrs(cScored.Failed)
	for k, i := range tested {
		e := errors.Join(tFailed[k], cFailed[k])
		if err := prs[i].SetDelta(tScored.Observed[k], cScored.Observed[k], e); err != nil {
			return nil, err
		}
		if err := prs[i].SetSignificance(p[k], q[k]); err != nil {
			return nil, err
		}
	}
	logger.Info("delta pairs calibrated", "target", target.Name, "target_cells", target.NumCells(),
		"complement_cells", complement.NumCells(), "pairs", len(prs), "tested", len(tested), "elapsed", time.Since(start).String())
	return &Result{Pairs: prs, Controls: m, Tested: tested, Observed: obs, ControlStats: ctl}, nil
}

func (c Config) checkControls(ds *Dataset, m *controls.Matrix) error {
	if c.Null == controls.CellPermutation {
		if m != nil {
			return fmt.Errorf("control matrix given for the %s null", c.Null)
		}
		return nil
	}
	if m == nil {
		return fmt.Errorf("no control matrix for the %s null", c.Null)
	}
	if m.Rows != len(ds.Peaks) {
		return errs.Shape("control rows", m.Rows, len(ds.Peaks))
	}
	return nil
}

// permuter builds the cell shuffler for ds, or nil under the matched-peak null.
func (c Config) permuter(ds *Dataset) (*controls.Permuter, error) {
	if c.Null != controls.CellPermutation {
		return nil, nil
	}
	var labels []string
	if c.Stratify {
		if ds.Labels == nil {
			return nil, fmt.Errorf("dataset %q has no cell labels to stratify on", ds.Name)
		}
		labels = ds.Labels
	}
	p, err := controls.NewPermuter(ds.NumCells(), c.Controls, c.Seed, labels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ds.Name, err)
	}
	c.logger().Debug("cell permutation null", "dataset", ds.Name, "cells", p.Cells(), "strata", p.Strata(), "B", p.B)
	return p, nil
}

// testedPairs applies the low-expression filter and marks filtered pairs.
func testedPairs(ds *Dataset, prs []PeakGenePair, cands []pairs.Candidate, cfg Config) []int {
	if !cfg.filtering() {
		return lo.Range(len(prs))
	}
	keep := ds.LowExpressionMask(cands, cfg.MinPct, cfg.MinMean)
	var tested []int
	for i, ok := range keep {
		if ok {
			tested = append(tested, i)
			continue
		}
		prs[i].Err = ErrLowExpression
	}
	cfg.logger().Info("low-expression filter", "dataset", ds.Name, "kept", len(tested), "dropped", len(prs)-len(tested),
		"min_pct", cfg.MinPct, "min_mean", cfg.MinMean)
	return tested
}

func score(ctx context.Context, ds *Dataset, prs []PeakGenePair, tested []int, m *controls.Matrix, cfg Config) (*association.Result, error) {
	perm, err := cfg.permuter(ds)
	if err != nil {
		return nil, err
	}
	links := lo.Map(tested, func(i int, _ int) association.Link {
		return association.Link{Peak: prs[i].Peak, Gene: prs[i].Gene}
	})
	return association.ScoreBatch(ctx, association.Batch{
		Accessibility: ds.accessibility(),
		Expression:    ds.expression(),
		Links:         links,
		Controls:      m,
		Permuter:      perm,
	}, cfg.scoreOptions())
}

// unitErrs joins the failures recorded for each link.
func unitErrs(failed []errs.UnitError) map[int]error {
	grouped := lo.GroupBy(failed, func(f errs.UnitError) int { return f.Index })
	return lo.MapValues(grouped, func(fs []errs.UnitError, _ int) error {
		return errors.Join(lo.Map(fs, func(f errs.UnitError, _ int) error { return f.Err })...)
	})
}
