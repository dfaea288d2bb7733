package matrixio

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/gmaffy/goctar/gc"
	"github.com/gmaffy/goctar/linkage"
	"github.com/gmaffy/goctar/pairs"
)

// DatasetFiles names the inputs of one dataset. Fasta and CellTypes are optional; without
// Genes the dataset holds peaks only.
type DatasetFiles struct {
	Accessibility string
	Peaks         string
	Cells         string
	Expression    string
	Genes         string
	CellTypes     string
	Fasta         string
	Threads       int
}

// LoadDataset reads every input into memory. Without a FASTA, peaks get a NaN GC value.
func LoadDataset(files DatasetFiles, logger *slog.Logger) (*linkage.Dataset, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cells, err := ReadNames(files.Cells)
	if err != nil {
		return nil, err
	}
	regions, peakNames, err := ReadBED(files.Peaks)
	if err != nil {
		return nil, err
	}
	var (
		geneNames []string
		sites     []pairs.Site
	)
	if files.Genes != "" {
		if geneNames, sites, err = ReadGenes(files.Genes); err != nil {
			return nil, err
		}
	}
	cellIdx := IndexOf(cells)
	if len(cellIdx) != len(cells) {
		return nil, fmt.Errorf("%s: duplicate cell names", files.Cells)
	}
	peakIdx := IndexOf(peakNames)
	if len(peakIdx) != len(peakNames) {
		return nil, fmt.Errorf("%s: duplicate peak names", files.Peaks)
	}

	acc, err := ReadCOO(files.Accessibility, cellIdx, peakIdx)
	if err != nil {
		return nil, err
	}
	var expr [][]float64
	if len(geneNames) > 0 {
		if expr, err = ReadDenseCOO(files.Expression, cellIdx, IndexOf(geneNames)); err != nil {
			return nil, err
		}
	}

	gcs := make([]float64, len(regions))
	if files.Fasta != "" {
		if gcs, err = gc.FromFile(files.Fasta, regions, files.Threads, logger); err != nil {
			return nil, err
		}
	} else {
		for i := range gcs {
			gcs[i] = math.NaN()
		}
	}

	ds := &linkage.Dataset{Name: linkage.AllCells, Cells: cells}
	for i, r := range regions {
		ds.Peaks = append(ds.Peaks, linkage.Peak{Name: peakNames[i], Region: r, GC: gcs[i], Accessibility: acc[i]})
	}
	for i, name := range geneNames {
		g := linkage.Gene{Name: name, Expression: expr[i]}
		if sites != nil {
			g.TSS = sites[i]
		}
		ds.Genes = append(ds.Genes, g)
	}
	if files.CellTypes != "" {
		if ds.Labels, err = ReadCellLabels(files.CellTypes, cells); err != nil {
			return nil, err
		}
	}
	logger.Info("dataset loaded", "cells", len(cells), "peaks", len(ds.Peaks), "genes", len(ds.Genes),
		"gc", files.Fasta != "", "labels", ds.Labels != nil)
	return ds, ds.Validate()
}

// LoadCandidates reads the candidate table at path, or pairs peaks with gene TSSs within
// opts.Window when path is empty.
func LoadCandidates(path string, ds *linkage.Dataset, opts pairs.Options, logger *slog.Logger) ([]pairs.Candidate, error) {
	if path != "" {
		return ReadPairs(path, IndexOf(peakNamesOf(ds)), IndexOf(geneNamesOf(ds)), logger)
	}
	regions := make([]pairs.Region, len(ds.Peaks))
	for i, p := range ds.Peaks {
		regions[i] = p.Region
	}
	sites := make([]pairs.Site, len(ds.Genes))
	for i, g := range ds.Genes {
		if g.TSS.Chrom == "" {
			return nil, fmt.Errorf("gene %s has no TSS: provide a pair table or chrom/tss gene columns", g.Name)
		}
		sites[i] = g.TSS
	}
	return pairs.Window(regions, sites, opts)
}

func peakNamesOf(ds *linkage.Dataset) []string {
	out := make([]string, len(ds.Peaks))
	for i, p := range ds.Peaks {
		out[i] = p.Name
	}
	return out
}

func geneNamesOf(ds *linkage.Dataset) []string {
	out := make([]string, len(ds.Genes))
	for i, g := range ds.Genes {
		out[i] = g.Name
	}
	return out
}
