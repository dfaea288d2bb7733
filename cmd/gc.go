/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/gmaffy/goctar/gc"
	"github.com/gmaffy/goctar/matrixio"
	"github.com/gmaffy/goctar/utils"
	"github.com/spf13/cobra"
)

// gcCmd represents the gc command
var gcCmd = &cobra.Command{
	Use:   "gc -p <peaks.bed> -f <genome.fa> [args]",
	Short: "Computes the GC fraction of every peak",
	Long: `gc writes <out>/gc.tsv with the (G+C+S)/(A+C+G+T+S+W) fraction of every peak interval.
The FASTA may be plain, gzip, bgzip, bzip2 or zstd compressed.`,
	Run: func(cmd *cobra.Command, args []string) {
		o := readOptions(cmd)
		requireFiles(map[string]string{"peaks": o.files.Peaks, "fasta": o.files.Fasta})
		resultsDir, logger, logFile, _ := setup(o)
		defer logFile.Close()

		regions, names, err := matrixio.ReadBED(o.files.Peaks)
		if err != nil {
			log.Fatalf("Error reading peaks: %v", err)
		}
		utils.LogStage(logger, tool, "GC", o.files.Peaks, utils.StatusStarted, o.files.Fasta)
		gcs, err := gc.FromFile(o.files.Fasta, regions, o.files.Threads, logger)
		if err != nil {
			fail(logger, "GC", o.files.Peaks, o.files.Fasta, err)
		}
		out := filepath.Join(resultsDir, "gc.tsv")
		if err := matrixio.WriteGC(out, regions, names, gcs); err != nil {
			fail(logger, "GC", o.files.Peaks, o.files.Fasta, err)
		}
		utils.LogStage(logger, tool, "GC", o.files.Peaks, utils.StatusCompleted, o.files.Fasta)
		fmt.Printf("GC content of %d peaks written to %s\n\n", len(regions), out)
	},
}

func init() {
	rootCmd.AddCommand(gcCmd)
	gcCmd.Flags().StringP("peaks", "p", "", "peak BED file (chrom, start, end, name)")
	gcCmd.Flags().StringP("fasta", "f", "", "genome FASTA")
}
