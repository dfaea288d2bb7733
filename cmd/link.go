/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/gmaffy/goctar/linkage"
	"github.com/gmaffy/goctar/utils"
	"github.com/spf13/cobra"
)

// linkCmd represents the link command
var linkCmd = &cobra.Command{
	Use:   "link -a <accessibility> -p <peaks.bed> --cells <cells.txt> -e <expression> -g <genes.tsv> [args]",
	Short: "Scores and calibrates peak-gene links on all cells",
	Long: `link runs the full pipeline on all cells:

1. bin peaks on GC content (with --fasta) and mean accessibility
2. draw B matched control peaks per peak (skipped on restart when controls.npz matches),
   or with --null permutation shuffle each pair's cells B times instead
3. score each candidate pair and its controls (Pearson or Poisson regression)
4. empirical p-values and Benjamini-Hochberg q-values

Writes links.tsv, controls.npz, metrics.json and report.html to the output directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		o := readOptions(cmd)
		requireFiles(map[string]string{
			"accessibility": o.files.Accessibility,
			"peaks":         o.files.Peaks,
			"cells":         o.files.Cells,
			"expression":    o.files.Expression,
			"genes":         o.files.Genes,
		})
		resultsDir, logger, logFile, entries := setup(o)
		defer logFile.Close()
		o.run.Logger = logger
		o.run.Progress = progress(logger, "link")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		utils.LogStage(logger, tool, "INITIALISE", linkage.AllCells, utils.StatusStarted, "ALL")
		ds, cands := loadInputs(o, logger, true)
		m := controlStage(o, ds, resultsDir, entries, logger)

		fmt.Printf("================================== Linking Start ======================================\n\n")
		key := scoreKey(o)
		utils.LogStage(logger, tool, "LINK", linkage.AllCells, utils.StatusStarted, key)
		res, err := linkage.RunWithControls(ctx, ds, cands, m, o.run)
		if err != nil {
			fail(logger, "LINK", linkage.AllCells, key, err)
		}
		if err := writeOutputs(o, res, linkage.AllCells, resultsDir, filepath.Join(resultsDir, controlsFile)); err != nil {
			fail(logger, "LINK", linkage.AllCells, key, err)
		}
		utils.LogStage(logger, tool, "LINK", linkage.AllCells, utils.StatusCompleted, key)
		fmt.Printf("Results written to %s\n\n", resultsDir)
		fmt.Printf("================================== Linking End ======================================\n\n")
	},
}

func init() {
	rootCmd.AddCommand(linkCmd)
	addInputFlags(linkCmd)
	addControlFlags(linkCmd)
	addScoreFlags(linkCmd)
}
