package linkage

import (
	"errors"
	"fmt"
	"math"

	"github.com/gmaffy/goctar/pairs"
)

// ErrLowExpression marks a pair dropped by the low-expression filter of a cell subset.
var ErrLowExpression = errors.New("low expression in cell subset")

// ErrState is returned for an out-of-order pair transition.
var ErrState = errors.New("invalid pair state transition")

type State int

const (
	Unscored State = iota
	Scored
	Calibrated
)

func (s State) String() string {
	switch s {
	case Unscored:
		return "unscored"
	case Scored:
		return "scored"
	case Calibrated:
		return "calibrated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// PeakGenePair is one candidate link and the statistics computed for it.
// Statistic fields are NaN until filled.
type PeakGenePair struct {
	Peak     int
	Gene     int
	PeakName string
	GeneName string
	Distance int
	Category string

	Statistic float64
	// Complement and Delta are only set by delta runs: Statistic is then the
	// target-subset statistic and Delta = Statistic - Complement.
	Complement float64
	Delta      float64
	PValue     float64
	QValue     float64

	State State
	Err   error
}

// NewPairs builds fresh Unscored pairs for the candidates.
func NewPairs(ds *Dataset, cands []pairs.Candidate) []PeakGenePair {
	out := make([]PeakGenePair, len(cands))
	for i, c := range cands {
		out[i] = PeakGenePair{
			Peak:       c.Peak,
			Gene:       c.Gene,
			Distance:   c.Distance,
			Category:   c.Category,
			Statistic:  math.NaN(),
			Complement: math.NaN(),
			Delta:      math.NaN(),
			PValue:     math.NaN(),
			QValue:     math.NaN(),
		}
		if c.Peak >= 0 && c.Peak < len(ds.Peaks) {
			out[i].PeakName = ds.Peaks[c.Peak].Name
		}
		if c.Gene >= 0 && c.Gene < len(ds.Genes) {
			out[i].GeneName = ds.Genes[c.Gene].Name
		}
	}
	return out
}

// SetScore moves an Unscored pair to Scored.
func (p *PeakGenePair) SetScore(stat float64, err error) error {
	if p.State != Unscored {
		return fmt.Errorf("%w: score on %s pair %s-%s", ErrState, p.State, p.PeakName, p.GeneName)
	}
	p.Statistic = stat
	p.Err = err
	p.State = Scored
	return nil
}

// SetDelta moves an Unscored pair to Scored with both subset statistics.
func (p *PeakGenePair) SetDelta(target, complement float64, err error) error {
	if err := p.SetScore(target, err); err != nil {
		return err
	}
	p.Complement = complement
	p.Delta = target - complement
	return nil
}

// SetSignificance moves a Scored pair to Calibrated.
func (p *PeakGenePair) SetSignificance(pval, qval float64) error {
	if p.State != Scored {
		return fmt.Errorf("%w: calibrate on %s pair %s-%s", ErrState, p.State, p.PeakName, p.GeneName)
	}
	p.PValue = pval
	p.QValue = qval
	p.State = Calibrated
	return nil
}

// Tested is the statistic the p-value refers to.
func (p PeakGenePair) Tested() float64 {
	if !math.IsNaN(p.Delta) {
		return p.Delta
	}
	return p.Statistic
}
