// Package optim tunes controller gains by random local search.
package optim

import "github.com/san-kum/pdlander/internal/control"

// DefaultInitialScore is the best score a fresh State starts from.
const DefaultInitialScore = -100.0

// State is the optimizer's record of the gains it has found. Best is the
// gain set in use; Candidate is only flown while Optimizing is set.
type State struct {
	Best       control.GainSet
	Candidate  control.GainSet
	BestScore  float64
	Optimizing bool
}

func NewState(initial control.GainSet, score float64) *State {
	return &State{
		Best:      initial,
		Candidate: initial,
		BestScore: score,
	}
}

// DefaultState starts from the hand-tuned gains and a score of -100.
func DefaultState() *State {
	return NewState(control.DefaultGains(), DefaultInitialScore)
}

// ActiveGains returns the candidate while a trial is running, else the best.
func (s *State) ActiveGains() control.GainSet {
	if s.Optimizing {
		return s.Candidate
	}
	return s.Best
}
