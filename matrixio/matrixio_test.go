package matrixio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gmaffy/goctar/controls"
	"github.com/gmaffy/goctar/errs"
	"github.com/gmaffy/goctar/linkage"
	"github.com/gmaffy/goctar/pairs"
	"github.com/matryer/is"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadNamesRejectsDuplicates(t *testing.T) {
	is := is.New(t)
	names, err := ReadNames(writeFile(t, "cells.txt", "# header\nc1\nc2 extra\n\nc3\n"))
	is.NoErr(err)
	is.Equal(names, []string{"c1", "c2", "c3"})

	_, err = ReadNames(writeFile(t, "dup.txt", "c1\nc2\nc1\n"))
	is.True(err != nil)
}

func TestReadBED(t *testing.T) {
	is := is.New(t)
	path := writeFile(t, "peaks.bed", "track name=x\nchr1\t100\t200\tp1\nchr2\t5\t15\n")
	regions, names, err := ReadBED(path)
	is.NoErr(err)
	is.Equal(regions, []pairs.Region{{Chrom: "chr1", Start: 100, End: 200}, {Chrom: "chr2", Start: 5, End: 15}})
	is.Equal(names, []string{"p1", "chr2:5-15"})

	_, _, err = ReadBED(writeFile(t, "bad.bed", "chr1\tx\t10\n"))
	is.True(err != nil)
}

func TestReadCOO(t *testing.T) {
	is := is.New(t)
	cells := IndexOf([]string{"c0", "c1", "c2"})
	features := IndexOf([]string{"f0", "f1"})
	path := writeFile(t, "m.coo", "% comment\nc2\tf0\t1\nc0\tf0\t2\nc2\tf0\t3\nc1\tf1\t0\n")

	vs, err := ReadCOO(path, cells, features)
	is.NoErr(err)
	is.Equal(len(vs), 2)
	is.Equal(vs[0].Index, []int{0, 2})     // sorted by cell
	is.Equal(vs[0].Value, []float64{2, 4}) // duplicates summed
	is.Equal(vs[1].NNZ(), 0)               // explicit zero dropped
	is.Equal(vs[1].N, 3)

	dense, err := ReadDenseCOO(path, cells, features)
	is.NoErr(err)
	is.Equal(dense[0], []float64{2, 0, 4})
}

func TestReadCOOErrors(t *testing.T) {
	is := is.New(t)
	cells := IndexOf([]string{"c0"})
	features := IndexOf([]string{"f0"})
	for _, body := range []string{"cX\tf0\t1\n", "c0\tfX\t1\n", "c0\tf0\t-1\n", "c0\tf0\n"} {
		_, err := ReadCOO(writeFile(t, "bad.coo", body), cells, features)
		is.True(err != nil)
	}
}

func TestReadPairsDropsUnknown(t *testing.T) {
	is := is.New(t)
	path := writeFile(t, "pairs.tsv", "peak\tgene\tdistance\tcategory\n"+
		"p0\tg0\t-500\tpromoter\n"+
		"p1\tg0\t25000\tdistal\n"+
		"pX\tg0\t10\tdistal\n")
	cands, err := ReadPairs(path, IndexOf([]string{"p0", "p1"}), IndexOf([]string{"g0"}), nil)
	is.NoErr(err)
	is.Equal(cands, []pairs.Candidate{
		{Peak: 0, Gene: 0, Distance: -500, Category: "promoter"},
		{Peak: 1, Gene: 0, Distance: 25000, Category: "distal"},
	})

	_, err = ReadPairs(writeFile(t, "nocat.tsv", "peak\tgene\tdistance\np0\tg0\t1\n"), IndexOf([]string{"p0"}), IndexOf([]string{"g0"}), nil)
	is.True(err != nil)
}

func TestReadCellLabels(t *testing.T) {
	is := is.New(t)
	path := writeFile(t, "labels.tsv", "cell\tlabel\nc1\tB\nc0\tA\n")
	labels, err := ReadCellLabels(path, []string{"c0", "c1", "c2"})
	is.NoErr(err)
	is.Equal(labels, []string{"A", "B", ""})
}

func TestReadGenes(t *testing.T) {
	is := is.New(t)
	names, sites, err := ReadGenes(writeFile(t, "genes.tsv", "gene\tchrom\ttss\ng0\tchr1\t1000\ng1\tchr2\t50\n"))
	is.NoErr(err)
	is.Equal(names, []string{"g0", "g1"})
	is.Equal(sites, []pairs.Site{{Chrom: "chr1", Pos: 1000}, {Chrom: "chr2", Pos: 50}})

	names, sites, err = ReadGenes(writeFile(t, "names.tsv", "gene\ng0\n"))
	is.NoErr(err)
	is.Equal(names, []string{"g0"})
	is.True(sites == nil)
}

func TestControlArchiveRoundTrip(t *testing.T) {
	is := is.New(t)
	m := controls.NewMatrix(3, 2)
	copy(m.Index, []int{1, 2, -1, -1, 0, 1})
	m.Replaced = []int{2}
	nan := math.NaN()
	in := ControlArchive{
		Matrix:     m,
		Seed:       42,
		Policy:     controls.Merge,
		Observed:   []float64{0.5, nan, 0.1},
		Statistics: [][]float64{{0.1, 0.2}, {nan, nan}, {0.3, 0.0}},
	}
	path := filepath.Join(t.TempDir(), "controls.npz")
	is.NoErr(WriteControls(path, in))

	out, err := ReadControls(path)
	is.NoErr(err)
	is.Equal(out.Seed, uint64(42))
	is.Equal(out.Policy, controls.Merge)
	is.Equal(out.Matrix.Index, m.Index)
	is.Equal(len(out.Matrix.Failed), 1) // row 1 holds -1
	is.Equal(out.Matrix.Failed[0].Index, 1)
	is.True(errors.Is(out.Matrix.Failed[0].Err, errs.ErrInsufficientBinPopulation))
	is.Equal(out.Matrix.Replaced, []int{2})
	is.Equal(out.Statistics[2], []float64{0.3, 0.0})
	is.True(math.IsNaN(out.Observed[1]))
	is.Equal(CountMissing(out.Statistics), 2)
}

func TestControlArchiveWithoutStatistics(t *testing.T) {
	is := is.New(t)
	m := controls.NewMatrix(2, 1)
	copy(m.Index, []int{1, 0})
	path := filepath.Join(t.TempDir(), "controls.npz")
	is.NoErr(WriteControls(path, ControlArchive{Matrix: m, Seed: 7}))

	out, err := ReadControls(path)
	is.NoErr(err)
	is.Equal(out.Policy, controls.Replace)
	is.True(out.Observed == nil)
	is.True(out.Statistics == nil)
	is.Equal(len(out.Matrix.Failed), 0)
	is.True(out.Matrix.Replaced == nil)
}

func TestReadControlsRejectsBadIndices(t *testing.T) {
	is := is.New(t)
	for _, index := range [][]int{
		{1, -3, 0, 2, 0, 1}, // negative index
		{1, -1, 0, 2, 0, 1}, // -1 inside a usable row
		{1, 2, 0, 3, 0, 1},  // past the last peak
	} {
		m := controls.NewMatrix(3, 2)
		copy(m.Index, index)
		path := filepath.Join(t.TempDir(), "controls.npz")
		is.NoErr(WriteControls(path, ControlArchive{Matrix: m}))
		_, err := ReadControls(path)
		is.True(errors.Is(err, errs.ErrShapeMismatch))
	}

	m := controls.NewMatrix(2, 1)
	copy(m.Index, []int{1, 0})
	m.Replaced = []int{5}
	path := filepath.Join(t.TempDir(), "controls.npz")
	is.NoErr(WriteControls(path, ControlArchive{Matrix: m}))
	_, err := ReadControls(path)
	is.True(errors.Is(err, errs.ErrShapeMismatch)) // replaced peak out of range
}

func TestWriteLinks(t *testing.T) {
	is := is.New(t)
	ds := &linkage.Dataset{
		Peaks: []linkage.Peak{{Name: "p0"}},
		Genes: []linkage.Gene{{Name: "g0"}},
	}
	prs := linkage.NewPairs(ds, []pairs.Candidate{
		{Peak: 0, Gene: 0, Distance: -300, Category: pairs.Promoter},
		{Peak: 0, Gene: 0, Distance: 9000, Category: pairs.Distal},
	})
	is.NoErr(prs[0].SetScore(0.25, nil))
	is.NoErr(prs[0].SetSignificance(0.01, 0.02))
	prs[1].Err = errors.Join(linkage.ErrLowExpression, errors.New("second"))

	path := filepath.Join(t.TempDir(), "links.tsv")
	is.NoErr(WriteLinks(path, prs))
	raw, err := os.ReadFile(path)
	is.NoErr(err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	is.Equal(len(lines), 3) // header plus one line per pair
	is.Equal(lines[0], strings.Join(linkColumns, "\t"))
	is.Equal(lines[1], "p0\tg0\t-300\tpromoter\t0.25\tNA\tNA\t0.01\t0.02\tcalibrated\t")
	is.True(strings.HasSuffix(lines[2], "unscored\tlow expression in cell subset; second"))
}

func TestWritePairsReadsBack(t *testing.T) {
	is := is.New(t)
	cands := []pairs.Candidate{
		{Peak: 1, Gene: 0, Distance: -20, Category: pairs.Promoter},
		{Peak: 0, Gene: 0, Distance: 150000, Category: pairs.Distal},
	}
	peaks, genes := []string{"p0", "p1"}, []string{"g0"}
	path := filepath.Join(t.TempDir(), "pairs.tsv")
	is.NoErr(WritePairs(path, cands, peaks, genes))

	back, err := ReadPairs(path, IndexOf(peaks), IndexOf(genes), nil)
	is.NoErr(err)
	is.Equal(back, cands)
}

func TestLoadDataset(t *testing.T) {
	is := is.New(t)
	files := DatasetFiles{
		Cells:         writeFile(t, "cells.txt", "c0\nc1\nc2\n"),
		Peaks:         writeFile(t, "peaks.bed", "chr1\t0\t4\tp0\nchr1\t100\t104\tp1\n"),
		Genes:         writeFile(t, "genes.tsv", "gene\tchrom\ttss\ng0\tchr1\t50\n"),
		Accessibility: writeFile(t, "acc.coo", "c0\tp0\t1\nc2\tp1\t2\n"),
		Expression:    writeFile(t, "expr.coo", "c1\tg0\t5\n"),
		CellTypes:     writeFile(t, "labels.tsv", "cell\tlabel\nc0\tA\nc1\tB\nc2\tA\n"),
		Fasta:         writeFile(t, "genome.fa", ">chr1\nGGCCAAAA\n"),
		Threads:       1,
	}
	ds, err := LoadDataset(files, nil)
	is.NoErr(err)
	is.Equal(ds.NumCells(), 3)
	is.Equal(ds.Labels, []string{"A", "B", "A"})
	is.Equal(ds.Peaks[0].GC, 1.0)
	is.Equal(ds.Peaks[1].GC, 0.0) // past the end of chr1
	is.Equal(ds.Peaks[1].Accessibility.Dense(nil), []float64{0, 0, 2})
	is.Equal(ds.Genes[0].Expression, []float64{0, 5, 0})
	is.Equal(ds.Genes[0].TSS, pairs.Site{Chrom: "chr1", Pos: 50})

	cands, err := LoadCandidates("", ds, pairs.Options{Window: 60, PromoterDistance: 10}, nil)
	is.NoErr(err)
	is.Equal(len(cands), 2) // both peaks lie within 60bp of the TSS

	files.Fasta = ""
	ds, err = LoadDataset(files, nil)
	is.NoErr(err)
	is.True(math.IsNaN(ds.Peaks[0].GC))
	is.True(!ds.HasGC())
}
