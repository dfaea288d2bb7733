package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gmaffy/goctar/association"
	"github.com/gmaffy/goctar/controls"
	"github.com/gmaffy/goctar/pairs"
	"github.com/matryer/is"
	"github.com/spf13/cobra"
)

func testCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	c.Flags().StringVarP(&cfgFile, "config", "c", "", "")
	c.Flags().StringP("out", "o", "goctar_results", "")
	c.Flags().IntP("threads", "t", 0, "")
	c.Flags().BoolP("verbose", "v", false, "")
	addInputFlags(c)
	addControlFlags(c)
	addScoreFlags(c)
	if err := c.ParseFlags(args); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cfgFile = "" })
	return c
}

func TestReadOptionsDefaults(t *testing.T) {
	is := is.New(t)
	o := readOptions(testCommand(t))
	is.Equal(o.outDir, "goctar_results")
	is.Equal(o.run.Controls, controls.DefaultB)
	is.Equal(o.run.Binning.AccessibilityBins, 5)
	is.Equal(o.run.Binning.GCBins, 5)
	is.Equal(o.run.Mode, association.Correlation)
	is.Equal(o.run.Policy, controls.Replace)
	is.Equal(o.run.Null, controls.MatchedPeaks)
	is.True(!o.run.Stratify)
	is.Equal(o.window, pairs.DefaultOptions())
	is.True(o.run.Threads > 0)
}

func TestReadOptionsFlagsOverrideConfig(t *testing.T) {
	is := is.New(t)
	cfg := filepath.Join(t.TempDir(), "goctar.config")
	err := os.WriteFile(cfg, []byte("Controls: 50\nSeed: 9\nMode: poisson\nBins: 4\nGCBins: 2\nPeaks: from_config.bed\n"), 0o644)
	is.NoErr(err)

	o := readOptions(testCommand(t, "--config", cfg, "-B", "80", "--policy", "merge"))
	is.Equal(o.run.Controls, 80)    // flag wins
	is.Equal(o.run.Seed, uint64(9)) // config
	is.Equal(o.run.Mode, association.Regression)
	is.Equal(o.run.Policy, controls.Merge)
	is.Equal(o.run.Binning.GCBins, 2)
	is.Equal(o.run.Binning.AccessibilityBins, 4)
	is.Equal(o.files.Peaks, "from_config.bed")
}

func TestReadOptionsPermutationNull(t *testing.T) {
	is := is.New(t)
	cfg := filepath.Join(t.TempDir(), "goctar.config")
	is.NoErr(os.WriteFile(cfg, []byte("Null: permutation\nStratify: true\n"), 0o644))

	o := readOptions(testCommand(t, "--config", cfg))
	is.Equal(o.run.Null, controls.CellPermutation)
	is.True(o.run.Stratify)
	is.True(strings.Contains(scoreKey(o), "null=permutation stratify=true"))

	o = readOptions(testCommand(t, "--config", cfg, "--null", "matched", "--stratify=false"))
	is.Equal(o.run.Null, controls.MatchedPeaks) // flag wins
	is.True(!o.run.Stratify)
	is.True(strings.Contains(scoreKey(o), "null=matched stratify=false"))
}
