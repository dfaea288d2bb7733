/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/gmaffy/goctar/matrixio"
	"github.com/gmaffy/goctar/pairs"
	"github.com/spf13/cobra"
)

// pairsCmd represents the pairs command
var pairsCmd = &cobra.Command{
	Use:   "pairs -p <peaks.bed> -g <genes.tsv> [args]",
	Short: "Lists candidate peak-gene pairs around gene TSSs",
	Long: `pairs writes <out>/pairs.tsv with every peak overlapping TSS ± window of each gene.
The gene table needs the columns gene, chrom and tss. The output can be passed to link
and delta with --pairs.`,
	Run: func(cmd *cobra.Command, args []string) {
		o := readOptions(cmd)
		requireFiles(map[string]string{"peaks": o.files.Peaks, "genes": o.files.Genes})
		resultsDir, logger, logFile, _ := setup(o)
		defer logFile.Close()

		regions, peakNames, err := matrixio.ReadBED(o.files.Peaks)
		if err != nil {
			log.Fatalf("Error reading peaks: %v", err)
		}
		geneNames, sites, err := matrixio.ReadGenes(o.files.Genes)
		if err != nil {
			log.Fatalf("Error reading genes: %v", err)
		}
		if sites == nil {
			log.Fatalf("%s has no chrom and tss columns", o.files.Genes)
		}
		cands, err := pairs.Window(regions, sites, o.window)
		if err != nil {
			log.Fatalf("Error pairing peaks with genes: %v", err)
		}
		out := filepath.Join(resultsDir, "pairs.tsv")
		if err := matrixio.WritePairs(out, cands, peakNames, geneNames); err != nil {
			log.Fatalf("Error writing pairs: %v", err)
		}
		promoters := 0
		for _, c := range cands {
			if c.Category == pairs.Promoter {
				promoters++
			}
		}
		logger.Info("pairs written", "file", out, "pairs", len(cands), "promoter", promoters, "window", o.window.Window)
		fmt.Printf("%d candidate pairs (%d promoter) written to %s\n\n", len(cands), promoters, out)
	},
}

func init() {
	rootCmd.AddCommand(pairsCmd)
	pairsCmd.Flags().StringP("peaks", "p", "", "peak BED file (chrom, start, end, name)")
	pairsCmd.Flags().StringP("genes", "g", "", "gene table with columns gene, chrom, tss")
	pairsCmd.Flags().Int("window", pairs.DefaultWindow, "TSS window (bp)")
	pairsCmd.Flags().Int("promoter_distance", pairs.DefaultPromoterDistance, "max |distance| of a promoter pair (bp)")
}
