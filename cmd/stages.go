/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log"
	"log/slog"
	"path/filepath"

	"github.com/gmaffy/goctar/controls"
	"github.com/gmaffy/goctar/linkage"
	"github.com/gmaffy/goctar/matrixio"
	"github.com/gmaffy/goctar/pairs"
	"github.com/gmaffy/goctar/report"
	"github.com/gmaffy/goctar/utils"
)

const controlsFile = "controls.npz"

func fail(logger *slog.Logger, program, sample, key string, err error) {
	utils.LogStage(logger, tool, program, sample, "FAILED: "+err.Error(), key)
	log.Fatalf("%s failed: %v", program, err)
}

// controlsKey identifies a control draw in the stage log. Equal keys on the same inputs
// give identical matrices.
func controlsKey(o options) string {
	b := o.run.Binning
	return fmt.Sprintf("seed=%d B=%d bins=%dx%d policy=%s gc=%t",
		o.run.Seed, o.run.Controls, b.GCBins, b.AccessibilityBins, o.run.Policy, o.files.Fasta != "")
}

func scoreKey(o options) string {
	return fmt.Sprintf("%s null=%s stratify=%t mode=%s binarize=%t alternative=%s pooled=%t min_pct=%g min_mean=%g",
		controlsKey(o), o.run.Null, o.run.Stratify, o.run.Mode, o.run.Binarize, o.run.Calibration.Alternative, o.run.Calibration.Pooled, o.run.MinPct, o.run.MinMean)
}

func loadInputs(o options, logger *slog.Logger, withPairs bool) (*linkage.Dataset, []pairs.Candidate) {
	fmt.Printf("================================== Loading Start ======================================\n\n")
	utils.LogStage(logger, tool, "LOAD", linkage.AllCells, utils.StatusStarted, "ALL")
	ds, err := matrixio.LoadDataset(o.files, logger)
	if err != nil {
		fail(logger, "LOAD", linkage.AllCells, "ALL", err)
	}
	var cands []pairs.Candidate
	if withPairs {
		if cands, err = matrixio.LoadCandidates(o.pairsFile, ds, o.window, logger); err != nil {
			fail(logger, "LOAD", linkage.AllCells, "ALL", err)
		}
		fmt.Printf("Candidate pairs: %d\n", len(cands))
	}
	utils.LogStage(logger, tool, "LOAD", linkage.AllCells, utils.StatusCompleted, "ALL")
	fmt.Printf("Cells: %d, peaks: %d, genes: %d\n\n", ds.NumCells(), len(ds.Peaks), len(ds.Genes))
	fmt.Printf("================================== Loading End ======================================\n\n")
	return ds, cands
}

// controlStage reuses resultsDir/controls.npz when the log shows an identical draw completed,
// and draws and saves a new matrix otherwise. The permutation null needs no matrix.
func controlStage(o options, ds *linkage.Dataset, resultsDir string, entries []utils.LogEntry, logger *slog.Logger) *controls.Matrix {
	if o.run.Null == controls.CellPermutation {
		fmt.Printf("Null: %d cell permutations per pair (stratified: %t), no control peaks drawn\n\n", o.run.Controls, o.run.Stratify)
		return nil
	}
	fmt.Printf("================================== Controls Start ======================================\n\n")
	defer fmt.Printf("================================== Controls End ======================================\n\n")

	path := filepath.Join(resultsDir, controlsFile)
	key := controlsKey(o)
	if utils.StageHasCompleted(entries, "CONTROLS", linkage.AllCells, key) && utils.FileExists(path) {
		a, err := matrixio.ReadControls(path)
		if err == nil && a.Matrix.Rows == len(ds.Peaks) && a.Matrix.Cols == o.run.Controls {
			fmt.Printf("Controls already drawn with %s, reusing %s\n\n", key, path)
			return a.Matrix
		}
		logger.Warn("control archive cannot be reused, drawing again", "file", path, "err", err)
	}

	utils.LogStage(logger, tool, "CONTROLS", linkage.AllCells, utils.StatusStarted, key)
	_, m, err := linkage.DrawControls(ds, o.run)
	if err != nil {
		fail(logger, "CONTROLS", linkage.AllCells, key, err)
	}
	if len(m.Failed) > 0 {
		fmt.Printf("%d peaks have no usable controls (policy %s)\n", len(m.Failed), o.run.Policy)
	}
	err = matrixio.WriteControls(path, matrixio.ControlArchive{Matrix: m, Seed: o.run.Seed, Policy: o.run.Policy})
	if err != nil {
		fail(logger, "CONTROLS", linkage.AllCells, key, err)
	}
	utils.LogStage(logger, tool, "CONTROLS", linkage.AllCells, utils.StatusCompleted, key)
	fmt.Printf("Controls written to %s\n\n", path)
	return m
}

// writeOutputs writes links.tsv, metrics.json and report.html to dir and adds the control
// statistics to the shared control archive. Permutation runs have no archive.
func writeOutputs(o options, res *linkage.Result, name, dir, archive string) error {
	if err := matrixio.WriteLinks(filepath.Join(dir, "links.tsv"), res.Pairs); err != nil {
		return err
	}
	if res.Controls != nil {
		err := matrixio.WriteControls(archive, matrixio.ControlArchive{
			Matrix:     res.Controls,
			Seed:       o.run.Seed,
			Policy:     o.run.Policy,
			Observed:   res.Observed,
			Statistics: res.ControlStats,
		})
		if err != nil {
			return err
		}
	}

	s := report.Summarize(res.Pairs, res.ControlStats, report.DefaultAlpha)
	s.Dataset = name
	s.Mode = o.run.Mode.String()
	s.Controls = o.run.Controls
	s.Seed = o.run.Seed
	if err := report.WriteMetrics(filepath.Join(dir, "metrics.json"), s); err != nil {
		return err
	}
	if err := report.WriteHTML(filepath.Join(dir, "report.html"), res.Pairs, res.Tested, res.ControlStats); err != nil {
		return err
	}
	fmt.Printf("Pairs: %d, tested: %d, significant at q <= %g: %d\n\n", s.Pairs, s.Tested, s.Alpha, s.Significant)
	return nil
}
