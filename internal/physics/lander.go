package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/pdlander/internal/dynamo"
)

const (
	// Scale converts the classic lander's pixel geometry to world units.
	Scale = 30.0

	DefaultGravity          = -10.0
	DefaultMainEngineAccel  = 16.5
	DefaultSideEngineAccel  = 2.3
	DefaultSideEngineAlpha  = 6.3
	DefaultLanderMass       = 5.2
	DefaultLanderInertia    = 0.9
	DefaultLinearDamping    = 0.0
	DefaultAngularDamping   = 0.0
	LegAway                 = 20.0 / Scale
	LegDown                 = 18.0 / Scale
	hullHalfWidthBottom     = 17.0 / Scale
	hullHalfWidthTop        = 14.0 / Scale
	hullBottom              = -10.0 / Scale
	hullTop                 = 17.0 / Scale
	hullShoulder            = 0.0
	landerStateDim          = 6
	landerControlDim        = 4
	landerControlMain       = 0
	landerControlSide       = 1
	landerControlWind       = 2
	landerControlTurbulence = 3
)

// HullPolygon is the lander body outline in body coordinates.
var HullPolygon = [][2]float64{
	{-hullHalfWidthTop, hullTop},
	{-hullHalfWidthBottom, hullShoulder},
	{-hullHalfWidthBottom, hullBottom},
	{hullHalfWidthBottom, hullBottom},
	{hullHalfWidthBottom, hullShoulder},
	{hullHalfWidthTop, hullTop},
}

// Lander is a planar rigid body with a main engine along the body axis and
// two side engines. State is (x, y, theta, vx, vy, omega); control is
// (main power, signed side power, wind force, turbulence torque).
type Lander struct {
	Gravity        float64
	MainAccel      float64
	SideAccel      float64
	SideAlpha      float64
	Mass           float64
	Inertia        float64
	LinearDamping  float64
	AngularDamping float64
}

func NewLander() *Lander {
	return &Lander{
		Gravity:        DefaultGravity,
		MainAccel:      DefaultMainEngineAccel,
		SideAccel:      DefaultSideEngineAccel,
		SideAlpha:      DefaultSideEngineAlpha,
		Mass:           DefaultLanderMass,
		Inertia:        DefaultLanderInertia,
		LinearDamping:  DefaultLinearDamping,
		AngularDamping: DefaultAngularDamping,
	}
}

func (l *Lander) StateDim() int   { return landerStateDim }
func (l *Lander) ControlDim() int { return landerControlDim }

// Derive returns d/dt of (x, y, theta, vx, vy, omega). Wind is a force and
// turbulence a torque, so both scale with mass and inertia.
func (l *Lander) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	theta, vx, vy, omega := x[2], x[3], x[4], x[5]

	var main, side, wind, turbulence float64
	if len(u) > landerControlMain {
		main = math.Max(0, u[landerControlMain])
	}
	if len(u) > landerControlSide {
		side = u[landerControlSide]
	}
	if len(u) > landerControlWind {
		wind = u[landerControlWind]
	}
	if len(u) > landerControlTurbulence {
		turbulence = u[landerControlTurbulence]
	}

	sin, cos := math.Sin(theta), math.Cos(theta)

	ax := -sin*main*l.MainAccel + cos*side*l.SideAccel + wind/l.Mass - l.LinearDamping*vx
	ay := cos*main*l.MainAccel + sin*side*l.SideAccel + l.Gravity - l.LinearDamping*vy
	alpha := -side*l.SideAlpha + turbulence/l.Inertia - l.AngularDamping*omega

	return dynamo.State{vx, vy, omega, ax, ay, alpha}
}

// ToWorld maps a body-frame point to world coordinates for state x.
func ToWorld(x dynamo.State, px, py float64) (float64, float64) {
	sin, cos := math.Sin(x[2]), math.Cos(x[2])
	return x[0] + px*cos - py*sin, x[1] + px*sin + py*cos
}

// Feet returns the world positions of the left and right foot.
func (l *Lander) Feet(x dynamo.State) [2][2]float64 {
	var feet [2][2]float64
	for i, side := range [2]float64{-1, 1} {
		fx, fy := ToWorld(x, side*LegAway, -LegDown)
		feet[i] = [2]float64{fx, fy}
	}
	return feet
}

// Hull returns the body outline in world coordinates.
func (l *Lander) Hull(x dynamo.State) [][2]float64 {
	pts := make([][2]float64, len(HullPolygon))
	for i, p := range HullPolygon {
		wx, wy := ToWorld(x, p[0], p[1])
		pts[i] = [2]float64{wx, wy}
	}
	return pts
}

func (l *Lander) GetParams() map[string]float64 {
	return map[string]float64{
		"gravity":         l.Gravity,
		"main_accel":      l.MainAccel,
		"side_accel":      l.SideAccel,
		"side_alpha":      l.SideAlpha,
		"mass":            l.Mass,
		"inertia":         l.Inertia,
		"linear_damping":  l.LinearDamping,
		"angular_damping": l.AngularDamping,
	}
}

func (l *Lander) SetParam(name string, value float64) error {
	switch name {
	case "gravity":
		if value >= 0 {
			return fmt.Errorf("gravity must be negative, got %g", value)
		}
		l.Gravity = value
	case "main_accel":
		l.MainAccel = value
	case "side_accel":
		l.SideAccel = value
	case "side_alpha":
		l.SideAlpha = value
	case "mass":
		if value <= 0 {
			return fmt.Errorf("mass must be positive, got %g", value)
		}
		l.Mass = value
	case "inertia":
		if value <= 0 {
			return fmt.Errorf("inertia must be positive, got %g", value)
		}
		l.Inertia = value
	case "linear_damping":
		l.LinearDamping = value
	case "angular_damping":
		l.AngularDamping = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
