package keyderive

import (
	"errors"
	"fmt"
)

// ErrNoMatchFound is returned when no catalogue scheme reproduces every known pair.
var ErrNoMatchFound = errors.New("keyderive: no candidate scheme matches all known pairs")

// KnownPair is one observed (seed, field, item) → address mapping.
type KnownPair struct {
	Seed    NamespaceSeed
	Field   string
	Item    string
	Address Address
}

// Score is a candidate's result over a calibration table.
type Score struct {
	Scheme  Scheme
	Matched int
	Total   int
}

func (s Score) Complete() bool { return s.Total > 0 && s.Matched == s.Total }

func (s Score) String() string {
	return fmt.Sprintf("%s %d/%d", s.Scheme, s.Matched, s.Total)
}

// Calibration is the outcome of a calibration run.
type Calibration struct {
	// Selected is the first catalogue scheme matching every pair.
	Selected Scheme
	// Scores holds one entry per catalogue scheme, in catalogue order.
	Scores []Score
}

// Matches returns every scheme that matched all pairs.
func (c *Calibration) Matches() []Scheme {
	var out []Scheme
	for _, s := range c.Scores {
		if s.Complete() {
			out = append(out, s.Scheme)
		}
	}
	return out
}

// NoMatchError carries the scores of a failed calibration.
type NoMatchError struct {
	Best   Score
	Scores []Score
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("%v (best: %s)", ErrNoMatchFound, e.Best)
}

func (e *NoMatchError) Unwrap() error { return ErrNoMatchFound }

// Calibrate tries every scheme in Catalogue against pairs and selects the first
// one reproducing all of them. A partial match is never accepted. A pair whose
// field an indexed scheme cannot number counts as a miss for that scheme.
func Calibrate(pairs []KnownPair) (*Calibration, error) {
	return CalibrateWith(Catalogue(), pairs)
}

// CalibrateWith is Calibrate over an explicit candidate list.
func CalibrateWith(candidates []Scheme, pairs []KnownPair) (*Calibration, error) {
	if len(pairs) == 0 {
		return nil, errors.New("keyderive: calibration table is empty")
	}
	if len(candidates) == 0 {
		return nil, errors.New("keyderive: no candidate schemes")
	}

	scores := make([]Score, 0, len(candidates))
	selected := -1
	for i, sch := range candidates {
		sc := Score{Scheme: sch, Total: len(pairs)}
		for _, p := range pairs {
			got, err := sch.Derive(p.Seed, p.Field, p.Item)
			if errors.Is(err, ErrUnknownField) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("keyderive: candidate %s: %w", sch, err)
			}
			if got == p.Address {
				sc.Matched++
			}
		}
		scores = append(scores, sc)
		if selected < 0 && sc.Complete() {
			selected = i
		}
	}

	if selected < 0 {
		best := scores[0]
		for _, sc := range scores[1:] {
			if sc.Matched > best.Matched {
				best = sc
			}
		}
		return nil, &NoMatchError{Best: best, Scores: scores}
	}
	return &Calibration{Selected: candidates[selected], Scores: scores}, nil
}
