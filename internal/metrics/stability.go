package metrics

import (
	"math"

	"github.com/san-kum/pdlander/internal/dynamo"
)

// Stability is the fraction of steps with the hull angle within threshold
// radians of upright.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(obs dynamo.State, a dynamo.Action, reward float64) {
	if len(obs) <= dynamo.ObsAngle {
		return
	}
	s.samples++
	if math.Abs(obs[dynamo.ObsAngle]) > s.threshold {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}

// Default returns a fresh set of the standard rollout metrics.
func Default() []dynamo.Metric {
	return []dynamo.Metric{
		NewControlEffort(),
		NewStability(0.4),
	}
}
