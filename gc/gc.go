package gc

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/gmaffy/goctar/pairs"
	"github.com/gmaffy/goctar/utils"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Fraction is (G+C+S)/(A+C+G+T+S+W) over seq, case-insensitive. Other symbols (N, R, Y, ...)
// are ignored. An interval without countable bases has GC 0.
func Fraction[T ~byte](seq []T) float64 {
	var gc, total int
	for _, b := range seq {
		switch b {
		case 'G', 'g', 'C', 'c', 'S', 's':
			gc++
			total++
		case 'A', 'a', 'T', 't', 'W', 'w':
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(gc) / float64(total)
}

// FromFasta computes the GC fraction of every region from the sequences in r.
// Chromosomes are scanned once each, in parallel with at most threads workers.
// Regions are clipped to the chromosome; a region on a chromosome absent from r is an error.
func FromFasta(r io.Reader, regions []pairs.Region, threads int, logger *slog.Logger) ([]float64, error) {
	if logger == nil {
		logger = slog.Default()
	}
	byChrom := lo.GroupBy(lo.Range(len(regions)), func(i int) string {
		return regions[i].Chrom
	})

	out := make([]float64, len(regions))
	var (
		seen = make(map[string]bool)
		g    errgroup.Group
	)
	if threads > 0 {
		g.SetLimit(threads)
	}

	sc := seqio.NewScanner(fasta.NewReader(r, linear.NewSeq("", nil, alphabet.DNA)))
	for sc.Next() {
		s := sc.Seq().(*linear.Seq)
		idx, ok := byChrom[s.ID]
		if !ok {
			continue
		}
		seen[s.ID] = true

		g.Go(func() error {
			letters := s.Seq
			for _, i := range idx {
				start := max(regions[i].Start, 0)
				end := min(regions[i].End, len(letters))
				if end <= start {
					out[i] = 0
					continue
				}
				out[i] = Fraction([]alphabet.Letter(letters[start:end]))
			}
			logger.Debug("GC computed", "chrom", s.ID, "regions", len(idx))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := sc.Error(); err != nil {
		return nil, fmt.Errorf("reading FASTA: %w", err)
	}

	missing := lo.Filter(lo.Keys(byChrom), func(chrom string, _ int) bool {
		return !seen[chrom]
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%d chromosome(s) not found in FASTA: %s", len(missing), strings.Join(lo.Subset(missing, 0, 5), ", "))
	}
	return out, nil
}

// FromFile opens a plain, gzip, bgzf, bzip2 or zstd FASTA and calls FromFasta.
func FromFile(path string, regions []pairs.Region, threads int, logger *slog.Logger) ([]float64, error) {
	rc, err := utils.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return FromFasta(rc, regions, threads, logger)
}
