/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/gmaffy/goctar/association"
	"github.com/gmaffy/goctar/calibrate"
	"github.com/gmaffy/goctar/controls"
	"github.com/gmaffy/goctar/linkage"
	"github.com/gmaffy/goctar/matrixio"
	"github.com/gmaffy/goctar/pairs"
	"github.com/gmaffy/goctar/utils"
	"github.com/spf13/cobra"
)

const tool = "GOCTAR"

// options is everything a command needs, after config file and flags are merged.
type options struct {
	files     matrixio.DatasetFiles
	pairsFile string
	outDir    string
	verbose   bool
	window    pairs.Options
	run       linkage.Config
}

// withDefaults fills the keys absent from the config file.
func withDefaults(cfg utils.Config) utils.Config {
	set := func(key string, apply func()) {
		if !cfg.Set[key] {
			apply()
		}
	}
	set("OutputDir", func() { cfg.OutputDir = "goctar_results" })
	set("Bins", func() { cfg.Bins = 5 })
	set("Controls", func() { cfg.Controls = controls.DefaultB })
	set("Window", func() { cfg.Window = pairs.DefaultWindow })
	set("PromoterDistance", func() { cfg.PromoterDistance = pairs.DefaultPromoterDistance })
	set("Mode", func() { cfg.Mode = association.Correlation.String() })
	set("Policy", func() { cfg.Policy = controls.Replace.String() })
	set("Null", func() { cfg.Null = controls.MatchedPeaks.String() })
	set("Alternative", func() { cfg.Alternative = calibrate.Greater.String() })
	return cfg
}

// option returns the flag value when it was set on the command line, else fromConfig.
func option[T any](cmd *cobra.Command, flag string, get func(string) (T, error), fromConfig T) T {
	if cmd.Flags().Lookup(flag) == nil || !cmd.Flags().Changed(flag) {
		return fromConfig
	}
	v, err := get(flag)
	if err != nil {
		log.Fatalf("Error getting %s flag: %v", flag, err)
	}
	return v
}

func readOptions(cmd *cobra.Command) options {
	cfg := utils.Config{Set: map[string]bool{}}
	if cfgFile != "" {
		fmt.Printf("Reading config file %s ...\n\n", cfgFile)
		var err error
		if cfg, err = utils.ReadConfig(cfgFile); err != nil {
			log.Fatalf("Error reading config file: %v", err)
		}
	}
	cfg = withDefaults(cfg)
	f := cmd.Flags()

	o := options{
		files: matrixio.DatasetFiles{
			Accessibility: option(cmd, "accessibility", f.GetString, cfg.Accessibility),
			Peaks:         option(cmd, "peaks", f.GetString, cfg.Peaks),
			Cells:         option(cmd, "cells", f.GetString, cfg.Cells),
			Expression:    option(cmd, "expression", f.GetString, cfg.Expression),
			Genes:         option(cmd, "genes", f.GetString, cfg.Genes),
			CellTypes:     option(cmd, "cell_types", f.GetString, cfg.CellTypes),
			Fasta:         option(cmd, "fasta", f.GetString, cfg.Fasta),
			Threads:       option(cmd, "threads", f.GetInt, cfg.Threads),
		},
		pairsFile: option(cmd, "pairs", f.GetString, cfg.Pairs),
		outDir:    option(cmd, "out", f.GetString, cfg.OutputDir),
		verbose:   option(cmd, "verbose", f.GetBool, false),
		window: pairs.Options{
			Window:           option(cmd, "window", f.GetInt, cfg.Window),
			PromoterDistance: option(cmd, "promoter_distance", f.GetInt, cfg.PromoterDistance),
		},
	}
	if o.files.Threads <= 0 {
		o.files.Threads = runtime.NumCPU()
	}

	run := linkage.DefaultConfig()
	run.Binning.AccessibilityBins = option(cmd, "bins", f.GetInt, cfg.Bins)
	run.Binning.GCBins = option(cmd, "gc_bins", f.GetInt, cfg.GCBins)
	if run.Binning.GCBins <= 0 {
		run.Binning.GCBins = run.Binning.AccessibilityBins
	}
	run.Controls = option(cmd, "controls", f.GetInt, cfg.Controls)
	run.Seed = option(cmd, "seed", f.GetUint64, cfg.Seed)
	run.Binarize = option(cmd, "binarize", f.GetBool, cfg.Binarize)
	run.Stratify = option(cmd, "stratify", f.GetBool, cfg.Stratify)
	run.MinPct = option(cmd, "min_pct", f.GetFloat64, cfg.MinPct)
	run.MinMean = option(cmd, "min_mean", f.GetFloat64, cfg.MinMean)
	run.Calibration.Pooled = option(cmd, "pooled", f.GetBool, false)
	run.Threads = o.files.Threads

	var err error
	if run.Mode, err = association.ParseMode(option(cmd, "mode", f.GetString, cfg.Mode)); err != nil {
		log.Fatalf("Error parsing mode: %v", err)
	}
	if run.Policy, err = controls.ParsePolicy(option(cmd, "policy", f.GetString, cfg.Policy)); err != nil {
		log.Fatalf("Error parsing policy: %v", err)
	}
	if run.Null, err = controls.ParseNull(option(cmd, "null", f.GetString, cfg.Null)); err != nil {
		log.Fatalf("Error parsing null: %v", err)
	}
	alt := option(cmd, "alternative", f.GetString, cfg.Alternative)
	if run.Calibration.Alternative, err = calibrate.ParseAlternative(alt); err != nil {
		log.Fatalf("Error parsing alternative: %v", err)
	}
	o.run = run
	return o
}

// ====== Flags ====== //

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("accessibility", "a", "", "peak accessibility counts as cell<TAB>peak<TAB>count (.gz, .bgz, .bz2, .zst accepted)")
	cmd.Flags().StringP("peaks", "p", "", "peak BED file (chrom, start, end, name)")
	cmd.Flags().String("cells", "", "cell barcodes, one per line")
	cmd.Flags().StringP("expression", "e", "", "gene expression counts as cell<TAB>gene<TAB>count")
	cmd.Flags().StringP("genes", "g", "", "gene table with columns gene and optionally chrom, tss")
	cmd.Flags().String("pairs", "", "candidate pairs table (peak, gene, distance, category); built from TSS windows when empty")
	cmd.Flags().StringP("fasta", "f", "", "genome FASTA for peak GC content; accessibility-only bins when empty")
	cmd.Flags().Int("window", pairs.DefaultWindow, "TSS window for candidate pairs (bp)")
	cmd.Flags().Int("promoter_distance", pairs.DefaultPromoterDistance, "max |distance| of a promoter pair (bp)")
}

func addControlFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("bins", "k", 5, "quantile bins per covariate")
	cmd.Flags().Int("gc_bins", 0, "GC bins (default: same as --bins)")
	cmd.Flags().IntP("controls", "B", controls.DefaultB, "control peaks per peak (permutations per pair with --null permutation)")
	cmd.Flags().Uint64P("seed", "s", 0, "random seed")
	cmd.Flags().String("policy", controls.Replace.String(), "undersized bins: replace, strict or merge")
}

func addScoreFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("mode", "m", association.Correlation.String(), "association statistic: corr or poisson")
	cmd.Flags().Bool("binarize", false, "binarize accessibility before scoring")
	cmd.Flags().String("null", controls.MatchedPeaks.String(), "null distribution: matched (control peaks) or permutation (B cell shuffles per pair)")
	cmd.Flags().Bool("stratify", false, "shuffle cells only within their cell type (permutation null)")
	cmd.Flags().String("alternative", calibrate.Greater.String(), "greater or two-sided")
	cmd.Flags().Bool("pooled", false, "pool standardised controls across all pairs")
	cmd.Flags().Float64("min_pct", 0, "drop pairs whose peak or gene is non-zero in at most this fraction of cells")
	cmd.Flags().Float64("min_mean", 0, "drop pairs whose peak or gene mean is at most this value")
}

// ====== Run setup ====== //

// setup creates the results directory and the logger. Previous stage records are returned
// before the new run appends to the log.
func setup(o options) (string, *slog.Logger, *os.File, []utils.LogEntry) {
	resultsDir, err := utils.CreateResultsDir(o.outDir)
	if err != nil {
		log.Fatalf("Error creating results directory: %v", err)
	}
	logPath := filepath.Join(resultsDir, "goctar.log")
	entries, err := utils.ParseLogFile(logPath)
	if err != nil {
		log.Fatalf("Error reading log file %s: %v", logPath, err)
	}
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger, logFile, err := utils.NewLogger(logPath, level)
	if err != nil {
		log.Fatalf("Error creating log file: %v", err)
	}
	return resultsDir, logger, logFile, entries
}

func requireFiles(paths map[string]string) {
	for flag, path := range paths {
		if path == "" {
			log.Fatalf("--%s is required (flag or config file)", flag)
		}
		if !utils.FileExists(path) {
			log.Fatalf("%s file %s does not exist", flag, path)
		}
	}
}

func progress(logger *slog.Logger, what string) func(done, total int) {
	step := 0
	return func(done, total int) {
		pct := 100 * done / max(total, 1)
		if pct/10 < step {
			step = 0 // next scoring pass
		}
		if pct/10 > step || done == total {
			step = pct / 10
			logger.Info("scoring", "stage", what, "done", done, "total", total, "percent", pct)
		}
	}
}
