/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "goctar",
	Short: "Links accessible chromatin peaks to genes in single-cell multiome data",
	Long: `goctar tests peak-gene links by correlating peak accessibility with gene expression
across cells and calibrating every link against GC and accessibility matched control peaks:
1.	link:     score and calibrate candidate pairs on all cells
2.	delta:    compare one labelled cell type against all other cells
3.	controls: draw and save the matched control peaks only
4.	gc:       GC content of peak intervals from a genome FASTA
5.	pairs:    candidate peak-gene pairs around gene TSSs
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var cfgFile string

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file ")
	rootCmd.PersistentFlags().StringP("out", "o", "goctar_results", "output directory")
	rootCmd.PersistentFlags().IntP("threads", "t", 0, "worker threads (default: number of CPUs)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging on stderr")
}
