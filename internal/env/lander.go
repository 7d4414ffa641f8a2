package env

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/pdlander/internal/config"
	"github.com/san-kum/pdlander/internal/dynamo"
	"github.com/san-kum/pdlander/internal/integrators"
	"github.com/san-kum/pdlander/internal/physics"
)

const (
	FPS       = 50.0
	ViewportW = 600.0
	ViewportH = 400.0
	Chunks    = 11

	WorldW = ViewportW / physics.Scale
	WorldH = ViewportH / physics.Scale

	DefaultMaxEpisodeSteps = 1000
	DiscreteActions        = 4

	// Initial velocity kick, drawn uniformly per axis.
	InitialRandomVelocity = 2.0

	// Touchdown faster than this breaks the legs.
	HardLandingSpeed = 4.0

	mainFuelCost     = 0.30
	sideFuelCost     = 0.03
	crashReward      = -100.0
	restReward       = 100.0
	groundFriction   = 0.9
	contactTolerance = 1e-3
	tipAlpha         = 3.0
	restVelocity     = 0.05
	restSteps        = 25
)

var ErrClosed = errors.New("env: environment is closed")

// LunarLander is a planar landing task: bring the craft to rest on both legs
// inside the helipad without touching the hull to the ground or leaving the
// screen.
type LunarLander struct {
	dyn   *physics.Lander
	integ dynamo.Integrator
	space ActionSpace

	renderMode      string
	maxSteps        int
	enableWind      bool
	windPower       float64
	turbulencePower float64

	seed    uint64
	terrain *Terrain

	x          dynamo.State
	t          float64
	steps      int
	legContact [2]bool
	gameOver   bool
	restCount  int

	hasShaping  bool
	prevShaping float64
	mPower      float64
	sPower      float64
	sDir        float64
	windIdx     int
	torqueIdx   int

	closed bool
}

// LanderOptions are the tunable parameters of a LunarLander.
type LanderOptions struct {
	Continuous      bool
	Gravity         float64
	EnableWind      bool
	WindPower       float64
	TurbulencePower float64
	MaxEpisodeSteps int
	RenderMode      string
	Integrator      string
}

func DefaultLanderOptions() LanderOptions {
	return LanderOptions{
		Gravity:         physics.DefaultGravity,
		WindPower:       15.0,
		TurbulencePower: 1.5,
		MaxEpisodeSteps: DefaultMaxEpisodeSteps,
		Integrator:      "rk4",
	}
}

func NewLunarLander(opts LanderOptions) (*LunarLander, error) {
	dyn := physics.NewLander()
	if err := dyn.SetParam("gravity", opts.Gravity); err != nil {
		return nil, err
	}
	integ, ok := integrators.ByName(opts.Integrator)
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", opts.Integrator)
	}
	if opts.MaxEpisodeSteps <= 0 {
		return nil, fmt.Errorf("max_episode_steps must be positive, got %d", opts.MaxEpisodeSteps)
	}

	var space ActionSpace
	if opts.Continuous {
		space = NewBox(-1, 1)
	} else {
		space = NewDiscreteSpace(DiscreteActions)
	}

	l := &LunarLander{
		dyn:             dyn,
		integ:           integ,
		space:           space,
		renderMode:      opts.RenderMode,
		maxSteps:        opts.MaxEpisodeSteps,
		enableWind:      opts.EnableWind,
		windPower:       opts.WindPower,
		turbulencePower: opts.TurbulencePower,
	}
	return l, nil
}

func newLunarLanderFromConfig(forceContinuous bool) Factory {
	return func(cfg config.EnvConfig) (Environment, error) {
		opts, err := landerOptions(cfg)
		if err != nil {
			return nil, err
		}
		if forceContinuous {
			opts.Continuous = true
		}
		return NewLunarLander(opts)
	}
}

func landerOptions(cfg config.EnvConfig) (LanderOptions, error) {
	opts := DefaultLanderOptions()
	var err error

	if opts.Continuous, err = cfg.Bool(config.KeyContinuous, false); err != nil {
		return opts, err
	}
	if opts.Gravity, err = cfg.Float(config.KeyGravity, opts.Gravity); err != nil {
		return opts, err
	}
	if opts.EnableWind, err = cfg.Bool(config.KeyEnableWind, false); err != nil {
		return opts, err
	}
	if opts.WindPower, err = cfg.Float(config.KeyWindPower, opts.WindPower); err != nil {
		return opts, err
	}
	if opts.TurbulencePower, err = cfg.Float(config.KeyTurbulencePower, opts.TurbulencePower); err != nil {
		return opts, err
	}
	steps, err := cfg.Float(config.KeyMaxEpisodeSteps, float64(opts.MaxEpisodeSteps))
	if err != nil {
		return opts, err
	}
	opts.MaxEpisodeSteps = int(steps)
	opts.RenderMode = cfg.RenderMode()
	opts.Integrator = cfg.String(config.KeyIntegrator, opts.Integrator)
	return opts, nil
}

func (l *LunarLander) ActionSpace() ActionSpace { return l.space }

func (l *LunarLander) ObservationKind() ObservationKind {
	if l.renderMode == config.RenderRGB {
		return RawImage
	}
	return PhysicalState
}

func (l *LunarLander) Reset(seed *uint64) (dynamo.State, Info, error) {
	if l.closed {
		return nil, nil, ErrClosed
	}
	if seed != nil {
		l.seed = *seed
		l.space.Seed(*seed)
	} else {
		l.seed = rand.Uint64()
	}
	src := rand.NewSource(l.seed)
	l.terrain = newTerrain(src, WorldW, WorldH, Chunks)

	kick := distuv.Uniform{Min: -InitialRandomVelocity, Max: InitialRandomVelocity, Src: src}
	l.x = dynamo.State{WorldW / 2, WorldH, 0, kick.Rand(), kick.Rand(), 0}
	l.t = 0
	l.steps = 0
	l.legContact = [2]bool{}
	l.gameOver = false
	l.restCount = 0
	l.hasShaping = false
	l.prevShaping = 0

	idx := rand.New(src)
	l.windIdx = idx.Intn(19999) - 9999
	l.torqueIdx = idx.Intn(19999) - 9999

	res, err := l.advance(0, 0)
	if err != nil {
		return nil, nil, err
	}
	l.steps = 0
	return res.Observation, res.Info, nil
}

func (l *LunarLander) Step(a dynamo.Action) (StepResult, error) {
	if l.closed {
		return StepResult{}, ErrClosed
	}
	if l.x == nil {
		return StepResult{}, errors.New("env: step before reset")
	}
	main, side, err := l.enginePower(a)
	if err != nil {
		return StepResult{}, err
	}
	return l.advance(main, side)
}

// enginePower converts an action to main power in {0} ∪ [0.5, 1] and signed
// side power in {0} ∪ ±[0.5, 1].
func (l *LunarLander) enginePower(a dynamo.Action) (main, side float64, err error) {
	if a.Kind != l.space.Kind() {
		return 0, 0, fmt.Errorf("%w: %s action for %s space", dynamo.ErrInvalidAction, a.Kind, l.space.Kind())
	}

	if a.Kind == dynamo.Discrete {
		if !l.space.Contains(a) {
			return 0, 0, fmt.Errorf("%w: label %d", dynamo.ErrInvalidAction, a.Label)
		}
		switch a.Label {
		case 1:
			side = -1
		case 2:
			main = 1
		case 3:
			side = 1
		}
		return main, side, nil
	}

	a0, a1 := a.Vector[0], a.Vector[1]
	if math.IsNaN(a0) || math.IsNaN(a1) {
		return 0, 0, fmt.Errorf("%w: NaN component", dynamo.ErrInvalidAction)
	}
	a0 = math.Max(-1, math.Min(1, a0))
	a1 = math.Max(-1, math.Min(1, a1))

	if a0 > 0 {
		main = (a0 + 1) * 0.5
	}
	if math.Abs(a1) > 0.5 {
		side = a1
	}
	return main, side, nil
}

func (l *LunarLander) advance(main, side float64) (StepResult, error) {
	var wind, torque float64
	if l.enableWind && !l.legContact[0] && !l.legContact[1] {
		wind = math.Tanh(math.Sin(0.02*float64(l.windIdx))+math.Sin(math.Pi*0.01*float64(l.windIdx))) * l.windPower
		l.windIdx++
		torque = math.Tanh(math.Sin(0.02*float64(l.torqueIdx))+math.Sin(math.Pi*0.01*float64(l.torqueIdx))) * l.turbulencePower
		l.torqueIdx++
	}

	dt := 1.0 / FPS
	u := dynamo.Control{main, side, wind, torque}
	next := l.integ.Step(l.dyn, l.x, u, l.t, dt)
	if !next.IsValid() {
		return StepResult{}, &dynamo.SimulationError{Step: l.steps, Seed: &l.seed, Wrapped: dynamo.ErrInvalidState}
	}
	l.x = next
	l.t += dt
	l.steps++
	l.mPower = main
	l.sPower = math.Abs(side)
	l.sDir = math.Copysign(1, side)

	l.resolveContacts()
	obs := l.observe()

	shaping := -100*math.Hypot(obs[0], obs[1]) -
		100*math.Hypot(obs[2], obs[3]) -
		100*math.Abs(obs[4]) +
		10*obs[6] + 10*obs[7]

	reward := 0.0
	if l.hasShaping {
		reward = shaping - l.prevShaping
	}
	l.prevShaping = shaping
	l.hasShaping = true

	reward -= l.mPower * mainFuelCost
	reward -= l.sPower * sideFuelCost

	done := false
	if l.gameOver || math.Abs(obs[0]) >= 1 {
		done = true
		reward = crashReward
	}
	if !l.awake() {
		done = true
		reward = restReward
	}
	truncated := !done && l.steps >= l.maxSteps

	return StepResult{
		Observation: obs,
		Reward:      reward,
		Done:        done,
		Truncated:   truncated,
		Info: Info{
			"seed":      l.seed,
			"steps":     l.steps,
			"game_over": l.gameOver,
			"awake":     l.awake(),
		},
	}, nil
}

// resolveContacts keeps the feet above ground, applies friction and tipping,
// and flags hull contact as a crash.
func (l *LunarLander) resolveContacts() {
	pen := math.Inf(-1)
	for _, f := range l.dyn.Feet(l.x) {
		pen = math.Max(pen, l.terrain.Height(f[0])-f[1])
	}
	if pen > 0 {
		if -l.x[4] > HardLandingSpeed {
			l.gameOver = true
		}
		l.x[1] += pen
		if l.x[4] < 0 {
			l.x[4] = 0
		}
		l.x[3] *= groundFriction
		l.x[5] *= groundFriction
	}

	for i, f := range l.dyn.Feet(l.x) {
		l.legContact[i] = f[1] <= l.terrain.Height(f[0])+contactTolerance
	}
	switch {
	case l.legContact[0] && !l.legContact[1]:
		l.x[5] -= tipAlpha / FPS
	case l.legContact[1] && !l.legContact[0]:
		l.x[5] += tipAlpha / FPS
	}

	for _, p := range l.dyn.Hull(l.x) {
		if p[1] < l.terrain.Height(p[0])-contactTolerance {
			l.gameOver = true
			break
		}
	}

	if l.legContact[0] && l.legContact[1] &&
		math.Hypot(l.x[3], l.x[4]) < restVelocity && math.Abs(l.x[5]) < restVelocity {
		l.restCount++
	} else {
		l.restCount = 0
	}
}

func (l *LunarLander) awake() bool {
	return l.restCount < restSteps
}

func (l *LunarLander) observe() dynamo.State {
	x, y, theta, vx, vy, omega := l.x[0], l.x[1], l.x[2], l.x[3], l.x[4], l.x[5]
	obs := dynamo.State{
		(x - WorldW/2) / (WorldW / 2),
		(y - (l.terrain.HelipadY + physics.LegDown)) / (WorldH / 2),
		vx * (WorldW / 2) / FPS,
		vy * (WorldH / 2) / FPS,
		theta,
		20.0 * omega / FPS,
		0,
		0,
	}
	if l.legContact[0] {
		obs[6] = 1
	}
	if l.legContact[1] {
		obs[7] = 1
	}
	return obs
}

// Render draws the current frame. It fails before the first Reset.
func (l *LunarLander) Render() (image.Image, error) {
	if l.closed {
		return nil, ErrClosed
	}
	if l.terrain == nil {
		return nil, errors.New("env: render before reset")
	}
	return renderFrame(l), nil
}

// RawState returns a copy of the physical state (x, y, theta, vx, vy, omega)
// in world units.
func (l *LunarLander) RawState() dynamo.State {
	return l.x.Clone()
}

func (l *LunarLander) Terrain() *Terrain {
	return l.terrain
}

// Engines returns the main and side engine power applied in the last step.
func (l *LunarLander) Engines() (main, side float64) {
	return l.mPower, l.sPower
}

func (l *LunarLander) Close() error {
	l.closed = true
	return nil
}
