package optim

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/pdlander/internal/control"
	"github.com/san-kum/pdlander/internal/dynamo"
)

const (
	DefaultTrials     = 5
	DefaultNoiseScale = 20.0
)

// Rollout flies one episode with the given gains and returns its return.
type Rollout func(ctx context.Context, g control.GainSet) (float64, error)

// Report summarises one Improve call.
type Report struct {
	Step      int
	Sigma     float64
	Mean      float64
	Accepted  bool
	BestScore float64
	Best      control.GainSet
}

type Option func(*RandomSearch)

func WithTrials(n int) Option {
	return func(rs *RandomSearch) { rs.trials = n }
}

func WithNoiseScale(scale float64) Option {
	return func(rs *RandomSearch) { rs.noiseScale = scale }
}

func WithSeed(seed uint64) Option {
	return func(rs *RandomSearch) { rs.src = rand.NewSource(seed) }
}

func WithSource(src rand.Source) Option {
	return func(rs *RandomSearch) { rs.src = src }
}

func WithLogger(l *zap.Logger) Option {
	return func(rs *RandomSearch) { rs.logger = l }
}

// WithParallelTrials runs the trials of a step concurrently. The rollout
// must then be safe for concurrent use.
func WithParallelTrials(on bool) Option {
	return func(rs *RandomSearch) { rs.parallel = on }
}

// RandomSearch perturbs the best gains with Gaussian noise that shrinks as
// 1/sqrt(step) and keeps the candidate when its mean return is no worse.
type RandomSearch struct {
	state      *State
	rollout    Rollout
	trials     int
	noiseScale float64
	src        rand.Source
	parallel   bool
	logger     *zap.Logger
	history    []Report
}

func NewRandomSearch(state *State, rollout Rollout, opts ...Option) *RandomSearch {
	rs := &RandomSearch{
		state:      state,
		rollout:    rollout,
		trials:     DefaultTrials,
		noiseScale: DefaultNoiseScale,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(rs)
	}
	if rs.src == nil {
		rs.src = rand.NewSource(rand.Uint64())
	}
	if rs.trials < 1 {
		rs.trials = 1
	}
	return rs
}

func (rs *RandomSearch) State() *State {
	return rs.state
}

// History returns a copy of the reports of all completed steps.
func (rs *RandomSearch) History() []Report {
	out := make([]Report, len(rs.history))
	copy(out, rs.history)
	return out
}

// Sigma is the noise standard deviation used at step.
func (rs *RandomSearch) Sigma(step int) float64 {
	return rs.noiseScale / math.Sqrt(float64(step))
}

// Improve runs one search step: perturb, evaluate the candidate over the
// configured number of trials, accept on mean >= best score. Optimizing is
// cleared on return whatever the outcome.
func (rs *RandomSearch) Improve(ctx context.Context, step int) error {
	if step <= 0 {
		return fmt.Errorf("%w: got %d", dynamo.ErrInvalidStep, step)
	}

	sigma := rs.Sigma(step)
	noise := distuv.Normal{Mu: 0, Sigma: sigma, Src: rs.src}
	var delta [4]float64
	for i := range delta {
		delta[i] = noise.Rand()
	}

	st := rs.state
	st.Candidate = st.Best.Perturbed(delta)
	st.Optimizing = true
	defer func() { st.Optimizing = false }()

	scores, err := rs.evaluate(ctx, st.ActiveGains())
	if err != nil {
		return fmt.Errorf("optimizer step %d: %w", step, err)
	}

	mean := stat.Mean(scores, nil)
	accepted := mean >= st.BestScore
	if accepted {
		st.Best = st.Candidate
		st.BestScore = mean
		rs.logger.Info("candidate accepted",
			zap.Int("step", step),
			zap.Float64("score", mean),
			zap.Stringer("gains", st.Best),
		)
	}

	rs.history = append(rs.history, Report{
		Step:      step,
		Sigma:     sigma,
		Mean:      mean,
		Accepted:  accepted,
		BestScore: st.BestScore,
		Best:      st.Best,
	})
	rs.logger.Debug("search step",
		zap.Int("step", step),
		zap.Float64("sigma", sigma),
		zap.Float64("mean", mean),
		zap.Bool("accepted", accepted),
	)
	return nil
}

func (rs *RandomSearch) evaluate(ctx context.Context, g control.GainSet) ([]float64, error) {
	scores := make([]float64, rs.trials)

	if !rs.parallel {
		for i := range scores {
			s, err := rs.rollout(ctx, g)
			if err != nil {
				return nil, fmt.Errorf("trial %d: %w", i, err)
			}
			scores[i] = s
		}
		return scores, nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	for i := range scores {
		eg.Go(func() error {
			s, err := rs.rollout(ctx, g)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			scores[i] = s
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// Run calls Improve for steps 1..n, invoking onStep after each one.
func (rs *RandomSearch) Run(ctx context.Context, n int, onStep func(Report)) error {
	for step := 1; step <= n; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rs.Improve(ctx, step); err != nil {
			return err
		}
		if onStep != nil {
			onStep(rs.history[len(rs.history)-1])
		}
	}
	return nil
}
