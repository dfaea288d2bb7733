package association

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/gmaffy/goctar/controls"
	"github.com/gmaffy/goctar/errs"
	"golang.org/x/sync/errgroup"
)

// Score returns the statistic of one accessibility/expression pair. Degenerate inputs and
// failed fits are recovered locally (sentinel or NaN); only ErrShapeMismatch is returned.
func Score(a, g []float64, mode Mode) (float64, error) {
	switch mode {
	case Correlation:
		return Pearson(a, g)
	case Regression:
		v, err := PoissonCoefficient(a, g)
		if errors.Is(err, errs.ErrShapeMismatch) {
			return v, err
		}
		return v, nil
	}
	return math.NaN(), fmt.Errorf("unknown association mode %v", mode)
}

// Link is a peak-gene pair to score, by row index into Batch.Accessibility and Batch.Expression.
type Link struct {
	Peak int
	Gene int
}

// Batch is the in-memory input of ScoreBatch. All vectors share one cell ordering.
type Batch struct {
	Accessibility []SparseVector
	Expression    [][]float64
	Links         []Link
	// Controls may be nil, in which case only observed statistics are computed.
	Controls *controls.Matrix
	// Permuter, when set, replaces the control peaks: each link is scored against
	// Permuter.B cell shuffles of its own peak. It is exclusive with Controls.
	Permuter *controls.Permuter
}

type Options struct {
	Mode     Mode
	Binarize bool
	Threads  int
	// Progress is called with the number of finished links. Calls are serialised.
	Progress func(done, total int)
	Logger   *slog.Logger
}

// Result is aligned with Batch.Links: Observed[i] and Controls[i] belong to link i.
// Missing statistics are NaN.
type Result struct {
	Observed []float64
	Controls [][]float64
	// Failed holds per-link soft failures in link order.
	Failed []errs.UnitError
}

// Validate checks every dimension of the batch against the cell count.
func (b Batch) Validate() error {
	cells := -1
	for i, a := range b.Accessibility {
		if cells < 0 {
			cells = a.N
		}
		if a.N != cells {
			return fmt.Errorf("peak %d: %w", i, errs.Shape("cells", a.N, cells))
		}
	}
	for i, g := range b.Expression {
		if cells < 0 {
			cells = len(g)
		}
		if len(g) != cells {
			return fmt.Errorf("gene %d: %w", i, errs.Shape("cells", len(g), cells))
		}
	}
	for i, l := range b.Links {
		if l.Peak < 0 || l.Peak >= len(b.Accessibility) {
			return fmt.Errorf("link %d: %w", i, errs.Shape("peak index", l.Peak, len(b.Accessibility)))
		}
		if l.Gene < 0 || l.Gene >= len(b.Expression) {
			return fmt.Errorf("link %d: %w", i, errs.Shape("gene index", l.Gene, len(b.Expression)))
		}
	}
	if b.Controls != nil {
		if b.Controls.Rows != len(b.Accessibility) {
			return errs.Shape("control matrix rows", b.Controls.Rows, len(b.Accessibility))
		}
		if err := b.Controls.Validate(len(b.Accessibility)); err != nil {
			return err
		}
	}
	if b.Permuter != nil {
		if b.Controls != nil {
			return fmt.Errorf("batch has both a control matrix and a cell permuter")
		}
		if cells >= 0 && b.Permuter.Cells() != cells {
			return errs.Shape("permuter cells", b.Permuter.Cells(), cells)
		}
	}
	return nil
}

// ScoreBatch scores every link and, when a control matrix is given, the B controls of the
// link's peak against the same gene. With a permuter the controls are instead B cell
// shuffles of the link's own peak. Links are independent and scored in parallel.
func ScoreBatch(ctx context.Context, b Batch, opts Options) (*Result, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threads := opts.Threads
	if threads < 1 {
		threads = runtime.NumCPU()
	}

	start := time.Now()
	acc := b.Accessibility
	if opts.Binarize {
		acc = make([]SparseVector, len(b.Accessibility))
		for i, a := range b.Accessibility {
			acc[i] = a.Binarized()
		}
	}

	moments := make([]Moments, len(b.Expression))
	if opts.Mode == Correlation {
		for i, g := range b.Expression {
			moments[i] = NewMoments(g)
		}
	}

	n := len(b.Links)
	res := &Result{Observed: make([]float64, n), Controls: make([][]float64, n)}
	failed := make([][]errs.UnitError, n)

	chunk := n / (threads * 8)
	if chunk < 1 {
		chunk = 1
	}

	var (
		done       int
		progressMu sync.Mutex
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			s := scorer{mode: opts.Mode, acc: acc, expr: b.Expression, moments: moments}
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				var (
					obs      float64
					ctl      []float64
					unitErrs []error
				)
				if b.Permuter != nil {
					obs, ctl, unitErrs = s.permuted(b.Links[i], b.Permuter)
				} else {
					obs, ctl, unitErrs = s.link(b.Links[i], b.Controls)
				}
				res.Observed[i] = obs
				res.Controls[i] = ctl
				for _, e := range unitErrs {
					failed[i] = append(failed[i], errs.UnitError{Index: i, Err: e})
				}
			}
			progressMu.Lock()
			done += hi - lo
			if opts.Progress != nil {
				opts.Progress(done, n)
			}
			progressMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, f := range failed {
		res.Failed = append(res.Failed, f...)
	}
	logger.Debug("scored links", "links", n, "mode", opts.Mode.String(), "failed", len(res.Failed), "elapsed", time.Since(start).String())
	return res, nil
}

// scorer is owned by one worker; buf and shuffled are reused across calls.
type scorer struct {
	mode     Mode
	acc      []SparseVector
	expr     [][]float64
	moments  []Moments
	buf      []float64
	shuffled []int
}

func (s *scorer) stat(peak, gene int) (float64, error) {
	return s.statVector(s.acc[peak], gene)
}

func (s *scorer) statVector(a SparseVector, gene int) (float64, error) {
	if s.mode == Correlation {
		return s.moments[gene].pearsonSparse(a)
	}
	s.buf = a.Dense(s.buf)
	return PoissonCoefficient(s.buf, s.expr[gene])
}

func (s *scorer) link(l Link, m *controls.Matrix) (float64, []float64, []error) {
	var unitErrs []error
	obs, err := s.stat(l.Peak, l.Gene)
	if err != nil {
		unitErrs = append(unitErrs, fmt.Errorf("observed statistic: %w", err))
	}
	if m == nil {
		return obs, nil, unitErrs
	}

	ctl := make([]float64, m.Cols)
	if !m.OK(l.Peak) {
		for j := range ctl {
			ctl[j] = math.NaN()
		}
		return obs, ctl, append(unitErrs, fmt.Errorf("peak %d: %w", l.Peak, errs.ErrInsufficientBinPopulation))
	}
	nFailed := 0
	var firstErr error
	for j, c := range m.Row(l.Peak) {
		v, err := s.stat(c, l.Gene)
		if err != nil {
			nFailed++
			if firstErr == nil {
				firstErr = err
			}
		}
		ctl[j] = v
	}
	if nFailed > 0 {
		unitErrs = append(unitErrs, fmt.Errorf("%d of %d control statistics missing: %w", nFailed, m.Cols, firstErr))
	}
	return obs, ctl, unitErrs
}

// permuted scores the link against shuffles of its own peak. Only the stored entries move,
// so a shuffle costs O(nnz) on top of the statistic.
func (s *scorer) permuted(l Link, p *controls.Permuter) (float64, []float64, []error) {
	var unitErrs []error
	obs, err := s.stat(l.Peak, l.Gene)
	if err != nil {
		unitErrs = append(unitErrs, fmt.Errorf("observed statistic: %w", err))
	}

	a := s.acc[l.Peak]
	if cap(s.shuffled) < len(a.Index) {
		s.shuffled = make([]int, len(a.Index))
	}
	moved := SparseVector{N: a.N, Index: s.shuffled[:len(a.Index)], Value: a.Value}

	ctl := make([]float64, p.B)
	shuffles := p.Shuffles(l.Peak, l.Gene)
	nFailed := 0
	var firstErr error
	for j := range ctl {
		dest := shuffles.Next()
		for k, i := range a.Index {
			moved.Index[k] = dest[i]
		}
		v, err := s.statVector(moved, l.Gene)
		if err != nil {
			nFailed++
			if firstErr == nil {
				firstErr = err
			}
		}
		ctl[j] = v
	}
	if nFailed > 0 {
		unitErrs = append(unitErrs, fmt.Errorf("%d of %d permuted statistics missing: %w", nFailed, p.B, firstErr))
	}
	return obs, ctl, unitErrs
}
