/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/gmaffy/goctar/linkage"
	"github.com/gmaffy/goctar/utils"
	"github.com/spf13/cobra"
)

// deltaCmd represents the delta command
var deltaCmd = &cobra.Command{
	Use:   "delta -l <label> --cell_types <labels.tsv> [args]",
	Short: "Tests whether links are stronger in one cell type than in all other cells",
	Long: `delta scores every candidate pair separately on the cells labelled --label and on all
remaining cells, against one set of controls drawn on all cells, and calibrates the difference
(target minus rest).

Outputs go to <out>/delta_<label>; the control matrix is shared with link through <out>/controls.npz.`,
	Run: func(cmd *cobra.Command, args []string) {
		label, lErr := cmd.Flags().GetString("label")
		if lErr != nil {
			log.Fatalf("Error getting label flag: %v", lErr)
		}
		if label == "" {
			log.Fatalf("--label is required")
		}

		o := readOptions(cmd)
		requireFiles(map[string]string{
			"accessibility": o.files.Accessibility,
			"peaks":         o.files.Peaks,
			"cells":         o.files.Cells,
			"expression":    o.files.Expression,
			"genes":         o.files.Genes,
			"cell_types":    o.files.CellTypes,
		})
		resultsDir, logger, logFile, entries := setup(o)
		defer logFile.Close()
		o.run.Logger = logger
		o.run.Progress = progress(logger, "delta "+label)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		utils.LogStage(logger, tool, "INITIALISE", label, utils.StatusStarted, "ALL")
		ds, cands := loadInputs(o, logger, true)
		m := controlStage(o, ds, resultsDir, entries, logger)

		fmt.Printf("================================== Delta %s Start ======================================\n\n", label)
		key := scoreKey(o)
		utils.LogStage(logger, tool, "DELTA", label, utils.StatusStarted, key)
		res, err := linkage.RunDeltaWithControls(ctx, ds, cands, m, label, o.run)
		if err != nil {
			fail(logger, "DELTA", label, key, err)
		}
		dir, err := utils.CreateResultsDir(filepath.Join(resultsDir, "delta_"+label))
		if err != nil {
			fail(logger, "DELTA", label, key, err)
		}
		if err := writeOutputs(o, res, label, dir, filepath.Join(dir, controlsFile)); err != nil {
			fail(logger, "DELTA", label, key, err)
		}
		utils.LogStage(logger, tool, "DELTA", label, utils.StatusCompleted, key)
		fmt.Printf("Results written to %s\n\n", dir)
		fmt.Printf("================================== Delta %s End ======================================\n\n", label)
	},
}

func init() {
	rootCmd.AddCommand(deltaCmd)
	addInputFlags(deltaCmd)
	addControlFlags(deltaCmd)
	addScoreFlags(deltaCmd)
	deltaCmd.Flags().StringP("label", "l", "", "cell type to compare against all other cells")
	deltaCmd.Flags().String("cell_types", "", "cell labels table with columns cell and label")
}
