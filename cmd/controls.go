/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/gmaffy/goctar/controls"
	"github.com/gmaffy/goctar/linkage"
	"github.com/gmaffy/goctar/utils"
	"github.com/spf13/cobra"
)

// controlsCmd represents the controls command
var controlsCmd = &cobra.Command{
	Use:   "controls -a <accessibility> -p <peaks.bed> --cells <cells.txt> [args]",
	Short: "Draws matched control peaks and saves them to controls.npz",
	Long: `controls bins peaks on GC content and mean accessibility and draws B control peaks per
peak from the same bin. The matrix is written to <out>/controls.npz and reused by link and
delta runs with the same seed, B, bins and policy.`,
	Run: func(cmd *cobra.Command, args []string) {
		o := readOptions(cmd)
		requireFiles(map[string]string{
			"accessibility": o.files.Accessibility,
			"peaks":         o.files.Peaks,
			"cells":         o.files.Cells,
		})
		o.files.Genes = ""
		o.run.Null = controls.MatchedPeaks
		resultsDir, logger, logFile, entries := setup(o)
		defer logFile.Close()
		o.run.Logger = logger

		utils.LogStage(logger, tool, "INITIALISE", linkage.AllCells, utils.StatusStarted, "ALL")
		ds, _ := loadInputs(o, logger, false)
		m := controlStage(o, ds, resultsDir, entries, logger)
		fmt.Printf("Control matrix: %d peaks x %d controls, %d failed, %d drawn with replacement\n\n",
			m.Rows, m.Cols, len(m.Failed), len(m.Replaced))
	},
}

func init() {
	rootCmd.AddCommand(controlsCmd)
	controlsCmd.Flags().StringP("accessibility", "a", "", "peak accessibility counts as cell<TAB>peak<TAB>count")
	controlsCmd.Flags().StringP("peaks", "p", "", "peak BED file (chrom, start, end, name)")
	controlsCmd.Flags().String("cells", "", "cell barcodes, one per line")
	controlsCmd.Flags().StringP("fasta", "f", "", "genome FASTA for peak GC content")
	addControlFlags(controlsCmd)
}
