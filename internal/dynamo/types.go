package dynamo

import (
	"fmt"
	"math"
)

// ObservationDim is the length of a lander observation.
const ObservationDim = 8

// Observation indices.
const (
	ObsX = iota
	ObsAltitude
	ObsVX
	ObsVY
	ObsAngle
	ObsAngularVelocity
	ObsLeftContact
	ObsRightContact
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Grounded reports whether either leg-contact flag is set. It only inspects
// indices 6 and 7 and returns false when they are missing.
func (s State) Grounded() bool {
	if len(s) <= ObsRightContact {
		return false
	}
	return s[ObsLeftContact] != 0 || s[ObsRightContact] != 0
}

// CheckObservation returns ErrInvalidObservation unless s has exactly
// ObservationDim values.
func (s State) CheckObservation() error {
	if len(s) != ObservationDim {
		return fmt.Errorf("%w: got %d", ErrInvalidObservation, len(s))
	}
	return nil
}

type Control []float64

type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

// Metric accumulates a scalar over the steps of an episode.
type Metric interface {
	Name() string
	Observe(obs State, a Action, reward float64)
	Value() float64
	Reset()
}

type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

// ActionKind distinguishes continuous from discrete actions.
type ActionKind int

const (
	Continuous ActionKind = iota
	Discrete
)

func (k ActionKind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Discrete:
		return "discrete"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// ParseActionKind accepts "continuous" or "discrete".
func ParseActionKind(s string) (ActionKind, error) {
	switch s {
	case "continuous":
		return Continuous, nil
	case "discrete":
		return Discrete, nil
	default:
		return 0, fmt.Errorf("unknown control mode: %q", s)
	}
}

// Action is either a continuous 2-vector or a discrete label. Kind selects
// which field is meaningful.
type Action struct {
	Kind   ActionKind
	Vector [2]float64
	Label  int
}

func ContinuousAction(main, lateral float64) Action {
	return Action{Kind: Continuous, Vector: [2]float64{main, lateral}}
}

func DiscreteAction(label int) Action {
	return Action{Kind: Discrete, Label: label}
}

// Neutral returns the no-op action for kind.
func Neutral(kind ActionKind) Action {
	if kind == Discrete {
		return DiscreteAction(0)
	}
	return ContinuousAction(0, 0)
}

// Values flattens the action for recording: the vector for continuous
// actions, the label for discrete ones.
func (a Action) Values() []float64 {
	if a.Kind == Discrete {
		return []float64{float64(a.Label)}
	}
	return []float64{a.Vector[0], a.Vector[1]}
}

func (a Action) String() string {
	if a.Kind == Discrete {
		return fmt.Sprintf("%d", a.Label)
	}
	return fmt.Sprintf("[%.4f %.4f]", a.Vector[0], a.Vector[1])
}
