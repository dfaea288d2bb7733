package matrixio

import (
	"fmt"
	"log/slog"

	"github.com/gmaffy/goctar/pairs"
	"github.com/gmaffy/goctar/utils"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/samber/lo"
)

func readTable(path string, types map[string]series.Type) (dataframe.DataFrame, error) {
	rc, err := utils.OpenReader(path)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	defer rc.Close()

	df := dataframe.ReadCSV(rc,
		dataframe.WithDelimiter('\t'),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(types),
	)
	if df.Err != nil {
		return df, fmt.Errorf("reading %s: %w", path, df.Err)
	}
	return df, nil
}

func requireColumns(df dataframe.DataFrame, path string, cols ...string) error {
	names := df.Names()
	for _, c := range cols {
		if !lo.Contains(names, c) {
			return fmt.Errorf("%s: missing column %q (have %v)", path, c, names)
		}
	}
	return nil
}

// ReadPairs reads a tab-separated candidate table with columns peak, gene, distance and
// category. Rows naming a peak or gene that is not loaded are dropped and counted.
func ReadPairs(path string, peaks, genes map[string]int, logger *slog.Logger) ([]pairs.Candidate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	df, err := readTable(path, map[string]series.Type{"distance": series.Int})
	if err != nil {
		return nil, err
	}
	if err := requireColumns(df, path, "peak", "gene", "distance", "category"); err != nil {
		return nil, err
	}

	peakNames := df.Col("peak").Records()
	geneNames := df.Col("gene").Records()
	categories := df.Col("category").Records()
	distances, err := df.Col("distance").Int()
	if err != nil {
		return nil, fmt.Errorf("%s: distance column: %w", path, err)
	}

	out := make([]pairs.Candidate, 0, df.Nrow())
	dropped := 0
	for i := range peakNames {
		p, okP := peaks[peakNames[i]]
		g, okG := genes[geneNames[i]]
		if !okP || !okG {
			dropped++
			continue
		}
		out = append(out, pairs.Candidate{Peak: p, Gene: g, Distance: distances[i], Category: categories[i]})
	}
	if dropped > 0 {
		logger.Warn("dropped candidate pairs with unknown peak or gene", "file", path, "dropped", dropped, "kept", len(out))
	}
	return out, nil
}

// ReadCellLabels reads columns cell and label and returns one label per entry of cells.
// Cells absent from the table get an empty label.
func ReadCellLabels(path string, cells []string) ([]string, error) {
	df, err := readTable(path, nil)
	if err != nil {
		return nil, err
	}
	if err := requireColumns(df, path, "cell", "label"); err != nil {
		return nil, err
	}
	byCell := lo.SliceToMap(lo.Zip2(df.Col("cell").Records(), df.Col("label").Records()), func(t lo.Tuple2[string, string]) (string, string) {
		return t.A, t.B
	})
	return lo.Map(cells, func(c string, _ int) string {
		return byCell[c]
	}), nil
}

// ReadGenes reads columns gene, chrom and tss. The coordinate columns are optional;
// without them the returned sites are nil.
func ReadGenes(path string) ([]string, []pairs.Site, error) {
	df, err := readTable(path, map[string]series.Type{"tss": series.Int})
	if err != nil {
		return nil, nil, err
	}
	if err := requireColumns(df, path, "gene"); err != nil {
		return nil, nil, err
	}
	names := df.Col("gene").Records()
	if dup := lo.FindDuplicates(names); len(dup) > 0 {
		return nil, nil, fmt.Errorf("%s: duplicate gene %q", path, dup[0])
	}
	if requireColumns(df, path, "chrom", "tss") != nil {
		return names, nil, nil
	}
	chroms := df.Col("chrom").Records()
	tss, err := df.Col("tss").Int()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: tss column: %w", path, err)
	}
	sites := make([]pairs.Site, len(names))
	for i := range names {
		sites[i] = pairs.Site{Chrom: chroms[i], Pos: tss[i]}
	}
	return names, sites, nil
}
