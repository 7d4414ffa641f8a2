package control

import (
	"math"

	"github.com/san-kum/pdlander/internal/dynamo"
)

// Discrete labels emitted by the PD law.
const (
	LabelNoop   = 0
	LabelLeft   = 1
	LabelMain   = 2
	LabelRight  = 3
	maxBankRate = math.Pi / 4
)

// PD is a stateless proportional-derivative controller for one control mode.
type PD struct {
	mode dynamo.ActionKind
}

func NewPD(mode dynamo.ActionKind) *PD {
	return &PD{mode: mode}
}

func (p *PD) Mode() dynamo.ActionKind {
	return p.mode
}

// Commands returns the raw lateral and angular commands before clipping or
// discretisation.
func Commands(obs dynamo.State, g GainSet) (lateral, angular float64) {
	x := obs[dynamo.ObsX]
	alt := obs[dynamo.ObsAltitude]
	vx := obs[dynamo.ObsVX]
	angle := obs[dynamo.ObsAngle]
	omega := obs[dynamo.ObsAngularVelocity]

	// Aim for a cone above the pad, banking toward the centre.
	targetOffset := math.Abs(x)
	targetAngle := maxBankRate * (x + vx)

	posErr := targetOffset - alt
	angErr := targetAngle - angle

	lateral = g.KpPos*posErr + g.KdPos*vx
	angular = g.KpAng*angErr + g.KdAng*omega
	return lateral, angular
}

// SelectAction applies the PD law. A grounded observation yields the
// neutral action without looking at the other fields.
func (p *PD) SelectAction(obs dynamo.State, g GainSet) (dynamo.Action, error) {
	if obs.Grounded() {
		return dynamo.Neutral(p.mode), nil
	}
	if err := obs.CheckObservation(); err != nil {
		return dynamo.Action{}, err
	}

	lateral, angular := Commands(obs, g)

	if p.mode == dynamo.Continuous {
		return dynamo.ContinuousAction(clip(lateral), clip(angular)), nil
	}

	switch {
	case math.Abs(lateral) >= math.Abs(angular):
		return dynamo.DiscreteAction(LabelMain), nil
	case angular < 0:
		return dynamo.DiscreteAction(LabelLeft), nil
	default:
		return dynamo.DiscreteAction(LabelMain), nil
	}
}

func clip(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
