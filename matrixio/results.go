package matrixio

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gmaffy/goctar/linkage"
	"github.com/gmaffy/goctar/pairs"
)

var linkColumns = []string{
	"peak", "gene", "distance", "category", "statistic", "complement", "delta", "p", "q", "state", "error",
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', 8, 64)
}

// WriteLinks writes one tab-separated row per pair. Missing values are written as NA.
func WriteLinks(path string, prs []linkage.PeakGenePair) error {
	return writeTSV(path, linkColumns, func(yield func([]string) error) error {
		for _, p := range prs {
			msg := ""
			if p.Err != nil {
				msg = strings.ReplaceAll(p.Err.Error(), "\n", "; ")
			}
			err := yield([]string{
				p.PeakName,
				p.GeneName,
				strconv.Itoa(p.Distance),
				p.Category,
				formatFloat(p.Statistic),
				formatFloat(p.Complement),
				formatFloat(p.Delta),
				formatFloat(p.PValue),
				formatFloat(p.QValue),
				p.State.String(),
				msg,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func writeTSV(path string, header []string, rows func(yield func([]string) error) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write(header); err != nil {
		return err
	}
	if err := rows(w.Write); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// WritePairs writes candidates in the layout ReadPairs accepts.
func WritePairs(path string, cands []pairs.Candidate, peakNames, geneNames []string) error {
	return writeTSV(path, []string{"peak", "gene", "distance", "category"}, func(yield func([]string) error) error {
		for _, c := range cands {
			if err := yield([]string{peakNames[c.Peak], geneNames[c.Gene], strconv.Itoa(c.Distance), c.Category}); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteGC writes one row per peak with its interval and GC fraction.
func WriteGC(path string, regions []pairs.Region, names []string, gcs []float64) error {
	return writeTSV(path, []string{"peak", "chrom", "start", "end", "gc"}, func(yield func([]string) error) error {
		for i, r := range regions {
			if err := yield([]string{names[i], r.Chrom, strconv.Itoa(r.Start), strconv.Itoa(r.End), formatFloat(gcs[i])}); err != nil {
				return err
			}
		}
		return nil
	})
}
