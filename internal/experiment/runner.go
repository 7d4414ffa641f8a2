// Package experiment runs controller rollouts against environments.
package experiment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/pdlander/internal/config"
	"github.com/san-kum/pdlander/internal/dynamo"
	"github.com/san-kum/pdlander/internal/env"
)

// Policy maps an observation to the action to take.
type Policy interface {
	Act(obs dynamo.State) (dynamo.Action, error)
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(obs dynamo.State) (dynamo.Action, error)

func (f PolicyFunc) Act(obs dynamo.State) (dynamo.Action, error) {
	return f(obs)
}

// Observer is notified after every environment step.
type Observer interface {
	OnStep(obs dynamo.State, a dynamo.Action, r env.StepResult)
}

// Result is the outcome of one episode.
type Result struct {
	Return       float64
	Steps        int
	Done         bool
	Truncated    bool
	Seed         *uint64
	Observations []dynamo.State
	Actions      []dynamo.Action
	Rewards      []float64
	Metrics      map[string]float64
}

type Option func(*Runner)

// WithEnvFactory replaces env.Make as the environment constructor.
func WithEnvFactory(f env.Factory) Option {
	return func(r *Runner) { r.makeEnv = f }
}

// WithMetrics sets the constructor for per-episode metrics. It is called once
// per episode so concurrent rollouts never share metric state.
func WithMetrics(f func() []dynamo.Metric) Option {
	return func(r *Runner) { r.newMetrics = f }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithRecording keeps the per-step trajectory in Result.
func WithRecording() Option {
	return func(r *Runner) { r.record = true }
}

// Runner plays episodes of one environment configuration. It is safe for
// concurrent use as long as the policies passed to it are.
type Runner struct {
	cfg        config.EnvConfig
	makeEnv    env.Factory
	newMetrics func() []dynamo.Metric
	logger     *zap.Logger
	record     bool
}

func NewRunner(cfg config.EnvConfig, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg.Clone(),
		makeEnv: env.Make,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns a copy of the environment configuration.
func (r *Runner) Config() config.EnvConfig {
	return r.cfg.Clone()
}

// Validate makes one environment and checks the controller can consume its
// observations.
func (r *Runner) Validate() error {
	e, err := r.makeEnv(r.cfg)
	if err != nil {
		return fmt.Errorf("make environment: %w", err)
	}
	defer e.Close()
	return checkKind(e)
}

func checkKind(e env.Environment) error {
	if kind := e.ObservationKind(); kind != env.PhysicalState {
		return fmt.Errorf("%w: %s", dynamo.ErrUnsupportedObservationKind, kind)
	}
	return nil
}

// RunEpisode plays one episode to termination and returns its cumulative
// reward. The environment is closed on every path.
func (r *Runner) RunEpisode(ctx context.Context, p Policy, seed *uint64, observers ...Observer) (*Result, error) {
	ep, err := r.Start(p, seed)
	if err != nil {
		return nil, err
	}
	defer ep.Close()

	for !ep.Finished() {
		select {
		case <-ctx.Done():
			return ep.Result(), ctx.Err()
		default:
		}

		sr, err := ep.Step()
		if err != nil {
			return ep.Result(), err
		}
		for _, o := range observers {
			o.OnStep(ep.lastObs, ep.lastAction, sr)
		}
	}

	res := ep.Result()
	r.logger.Debug("episode finished",
		zap.Float64("return", res.Return),
		zap.Int("steps", res.Steps),
		zap.Bool("done", res.Done),
		zap.Bool("truncated", res.Truncated),
	)
	return res, nil
}

// Start makes and resets an environment and returns an episode that is
// advanced one step at a time. The caller must Close it.
func (r *Runner) Start(p Policy, seed *uint64) (*Episode, error) {
	e, err := r.makeEnv(r.cfg)
	if err != nil {
		return nil, fmt.Errorf("make environment: %w", err)
	}
	if err := checkKind(e); err != nil {
		e.Close()
		return nil, err
	}

	obs, _, err := e.Reset(seed)
	if err != nil {
		e.Close()
		return nil, &dynamo.SimulationError{Seed: seed, Wrapped: fmt.Errorf("reset: %w", err)}
	}

	var metrics []dynamo.Metric
	if r.newMetrics != nil {
		metrics = r.newMetrics()
		for _, m := range metrics {
			m.Reset()
		}
	}

	ep := &Episode{
		env:     e,
		policy:  p,
		obs:     obs,
		metrics: metrics,
		record:  r.record,
		result: &Result{
			Seed:    seed,
			Metrics: make(map[string]float64),
		},
	}
	if ep.record {
		ep.result.Observations = append(ep.result.Observations, obs.Clone())
	}
	return ep, nil
}

// Episode is one running rollout.
type Episode struct {
	env     env.Environment
	policy  Policy
	obs     dynamo.State
	metrics []dynamo.Metric
	record  bool
	result  *Result
	done    bool
	closed  bool

	lastObs    dynamo.State
	lastAction dynamo.Action
}

// Env exposes the environment, e.g. for rendering.
func (ep *Episode) Env() env.Environment {
	return ep.env
}

// Observation is the latest observation.
func (ep *Episode) Observation() dynamo.State {
	return ep.obs
}

func (ep *Episode) Finished() bool {
	return ep.done
}

// Step selects an action for the current observation and applies it.
func (ep *Episode) Step() (env.StepResult, error) {
	if ep.done {
		return env.StepResult{}, fmt.Errorf("episode already finished")
	}

	a, err := ep.policy.Act(ep.obs)
	if err != nil {
		return env.StepResult{}, &dynamo.SimulationError{Step: ep.result.Steps, Seed: ep.result.Seed, Wrapped: err}
	}

	sr, err := ep.env.Step(a)
	if err != nil {
		return env.StepResult{}, &dynamo.SimulationError{Step: ep.result.Steps, Seed: ep.result.Seed, Wrapped: err}
	}

	for _, m := range ep.metrics {
		m.Observe(ep.obs, a, sr.Reward)
	}

	res := ep.result
	res.Return += sr.Reward
	res.Steps++
	if ep.record {
		res.Actions = append(res.Actions, a)
		res.Rewards = append(res.Rewards, sr.Reward)
		res.Observations = append(res.Observations, sr.Observation.Clone())
	}

	ep.lastObs, ep.lastAction = ep.obs, a
	ep.obs = sr.Observation
	if sr.Terminal() {
		ep.done = true
		res.Done, res.Truncated = sr.Done, sr.Truncated
	}
	return sr, nil
}

// Result returns the accumulated outcome so far, including metric values.
func (ep *Episode) Result() *Result {
	for _, m := range ep.metrics {
		ep.result.Metrics[m.Name()] = m.Value()
	}
	return ep.result
}

// Close releases the environment. Repeated calls are no-ops.
func (ep *Episode) Close() error {
	if ep.closed {
		return nil
	}
	ep.closed = true
	return ep.env.Close()
}
