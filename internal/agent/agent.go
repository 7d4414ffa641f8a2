// Package agent ties the PD controller, its gain optimizer and rollouts
// together behind one object.
package agent

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/san-kum/pdlander/internal/config"
	"github.com/san-kum/pdlander/internal/control"
	"github.com/san-kum/pdlander/internal/dynamo"
	"github.com/san-kum/pdlander/internal/env"
	"github.com/san-kum/pdlander/internal/experiment"
	"github.com/san-kum/pdlander/internal/metrics"
	"github.com/san-kum/pdlander/internal/optim"
	"github.com/san-kum/pdlander/internal/viz"
)

type settings struct {
	logger     *zap.Logger
	state      *optim.State
	factory    env.Factory
	searchOpts []optim.Option
	seed       *uint64
	record     bool
}

type Option func(*settings)

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithState starts from an existing optimizer state instead of the defaults.
func WithState(st *optim.State) Option {
	return func(s *settings) { s.state = st }
}

// WithEnvFactory replaces env.Make for every environment the agent creates.
func WithEnvFactory(f env.Factory) Option {
	return func(s *settings) { s.factory = f }
}

// WithSearchOptions forwards options to the random search.
func WithSearchOptions(opts ...optim.Option) Option {
	return func(s *settings) { s.searchOpts = append(s.searchOpts, opts...) }
}

// WithEpisodeSeed makes optimizer rollouts reproducible: trial n is seeded
// with seed+n. Without it every trial draws a fresh seed.
func WithEpisodeSeed(seed uint64) Option {
	return func(s *settings) { s.seed = &seed }
}

// WithRecording keeps full trajectories in VisualiseTrajectory results.
func WithRecording() Option {
	return func(s *settings) { s.record = true }
}

// Agent flies the lander with the PD law using the optimizer's active gains.
type Agent struct {
	envCfg  config.EnvConfig
	pd      *control.PD
	space   env.ActionSpace
	state   *optim.State
	runner  *experiment.Runner
	search  *optim.RandomSearch
	factory env.Factory
	logger  *zap.Logger
	record  bool

	seedBase *uint64
	episodes atomic.Uint64
}

// New builds an agent for the environment described by envCfg. One
// environment is made up front to learn its action space.
func New(envCfg config.EnvConfig, opts ...Option) (*Agent, error) {
	s := settings{
		logger:  zap.NewNop(),
		factory: env.Make,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.state == nil {
		s.state = optim.DefaultState()
	}

	e, err := s.factory(envCfg)
	if err != nil {
		return nil, fmt.Errorf("make environment: %w", err)
	}
	space := e.ActionSpace()
	if err := e.Close(); err != nil {
		return nil, fmt.Errorf("close environment: %w", err)
	}

	a := &Agent{
		envCfg:   envCfg.Clone(),
		pd:       control.NewPD(space.Kind()),
		space:    space,
		state:    s.state,
		factory:  s.factory,
		logger:   s.logger,
		record:   s.record,
		seedBase: s.seed,
	}
	a.runner = experiment.NewRunner(envCfg,
		experiment.WithEnvFactory(s.factory),
		experiment.WithLogger(s.logger),
	)
	searchOpts := append([]optim.Option{optim.WithLogger(s.logger)}, s.searchOpts...)
	a.search = optim.NewRandomSearch(a.state, a.rollout, searchOpts...)
	return a, nil
}

// Mode is the action kind the controller emits.
func (a *Agent) Mode() dynamo.ActionKind {
	return a.pd.Mode()
}

func (a *Agent) State() *optim.State {
	return a.state
}

func (a *Agent) Search() *optim.RandomSearch {
	return a.search
}

// Action returns a random action for an empty observation, otherwise the PD
// action under the active gains.
func (a *Agent) Action(obs dynamo.State) (dynamo.Action, error) {
	if len(obs) == 0 {
		return a.space.Sample(), nil
	}
	return a.pd.SelectAction(obs, a.state.ActiveGains())
}

// Act lets the agent serve directly as a rollout policy.
func (a *Agent) Act(obs dynamo.State) (dynamo.Action, error) {
	return a.Action(obs)
}

func (a *Agent) policy(g control.GainSet) experiment.Policy {
	return experiment.PolicyFunc(func(obs dynamo.State) (dynamo.Action, error) {
		return a.pd.SelectAction(obs, g)
	})
}

func (a *Agent) nextSeed() *uint64 {
	if a.seedBase == nil {
		return nil
	}
	seed := *a.seedBase + a.episodes.Add(1)
	return &seed
}

func (a *Agent) rollout(ctx context.Context, g control.GainSet) (float64, error) {
	res, err := a.runner.RunEpisode(ctx, a.policy(g), a.nextSeed())
	if err != nil {
		return 0, err
	}
	return res.Return, nil
}

// Optimize runs one step of the gain search.
func (a *Agent) Optimize(ctx context.Context, step int) error {
	return a.search.Improve(ctx, step)
}

// Tune runs steps 1..n of the gain search. The environment is checked once
// up front so an unusable configuration fails before any trial.
func (a *Agent) Tune(ctx context.Context, n int, onStep func(optim.Report)) error {
	if err := a.runner.Validate(); err != nil {
		return err
	}
	return a.search.Run(ctx, n, onStep)
}

// VisualiseTrajectory flies one episode with the active gains. With plot set
// the episode runs in the terminal viewer.
func (a *Agent) VisualiseTrajectory(ctx context.Context, seed *uint64, plot bool) (*experiment.Result, error) {
	cfg := a.envCfg
	if plot {
		cfg = cfg.WithRenderMode(config.RenderHuman)
	}
	opts := []experiment.Option{
		experiment.WithEnvFactory(a.factory),
		experiment.WithLogger(a.logger),
		experiment.WithMetrics(metrics.Default),
	}
	if a.record {
		opts = append(opts, experiment.WithRecording())
	}
	runner := experiment.NewRunner(cfg, opts...)

	if !plot {
		return runner.RunEpisode(ctx, a, seed)
	}

	ep, err := runner.Start(a, seed)
	if err != nil {
		return nil, err
	}
	defer ep.Close()
	if _, err := viz.Run(ctx, ep, fmt.Sprintf("%s %s", cfg.ID(), a.state.ActiveGains())); err != nil {
		return ep.Result(), err
	}
	return ep.Result(), nil
}
