package agent_test

import (
	"context"
	"image"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/pdlander/internal/agent"
	"github.com/san-kum/pdlander/internal/config"
	"github.com/san-kum/pdlander/internal/control"
	"github.com/san-kum/pdlander/internal/dynamo"
	"github.com/san-kum/pdlander/internal/env"
	"github.com/san-kum/pdlander/internal/optim"
)

// scriptedEnv ends every episode after one step with a fixed reward.
type scriptedEnv struct {
	reward float64
	space  env.ActionSpace
	seeds  *[]*uint64
	mu     *sync.Mutex
}

func (s *scriptedEnv) Reset(seed *uint64) (dynamo.State, env.Info, error) {
	s.mu.Lock()
	*s.seeds = append(*s.seeds, seed)
	s.mu.Unlock()
	return dynamo.State{0.1, 1, 0, 0, 0, 0, 0, 0}, env.Info{}, nil
}

func (s *scriptedEnv) Step(dynamo.Action) (env.StepResult, error) {
	return env.StepResult{
		Observation: make(dynamo.State, dynamo.ObservationDim),
		Reward:      s.reward,
		Done:        true,
	}, nil
}

func (s *scriptedEnv) Render() (image.Image, error)         { return nil, nil }
func (s *scriptedEnv) ActionSpace() env.ActionSpace         { return s.space }
func (s *scriptedEnv) ObservationKind() env.ObservationKind { return env.PhysicalState }
func (s *scriptedEnv) Close() error                         { return nil }

var _ = Describe("Agent", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("construction", func() {
		It("resolves the control mode from the action space", func() {
			discrete, err := agent.New(config.EnvConfig{})
			Expect(err).NotTo(HaveOccurred())
			Expect(discrete.Mode()).To(Equal(dynamo.Discrete))

			continuous, err := agent.New(config.EnvConfig{config.KeyID: "LunarLanderContinuous-v2"})
			Expect(err).NotTo(HaveOccurred())
			Expect(continuous.Mode()).To(Equal(dynamo.Continuous))
		})

		It("propagates unknown environment ids", func() {
			_, err := agent.New(config.EnvConfig{config.KeyID: "Moonbase-v9"})
			Expect(err).To(MatchError(dynamo.ErrUnknownEnvironment))
		})

		It("starts from the default optimizer state", func() {
			a, err := agent.New(config.EnvConfig{})
			Expect(err).NotTo(HaveOccurred())
			Expect(a.State().Best).To(Equal(control.DefaultGains()))
			Expect(a.State().BestScore).To(Equal(-100.0))
		})
	})

	Describe("Action", func() {
		var a *agent.Agent

		BeforeEach(func() {
			var err error
			a, err = agent.New(config.EnvConfig{config.KeyContinuous: true})
			Expect(err).NotTo(HaveOccurred())
		})

		It("samples the action space for an empty observation", func() {
			act, err := a.Action(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(act.Kind).To(Equal(dynamo.Continuous))
			Expect(act.Vector[0]).To(BeNumerically(">=", -1))
			Expect(act.Vector[0]).To(BeNumerically("<=", 1))
		})

		It("returns the neutral action on leg contact", func() {
			act, err := a.Action(dynamo.State{0.3, 0.1, 0.2, -0.1, 0.05, 0.01, 1, 0})
			Expect(err).NotTo(HaveOccurred())
			Expect(act.Vector).To(Equal([2]float64{0, 0}))
		})

		It("rejects malformed observations", func() {
			_, err := a.Action(dynamo.State{1, 2, 3})
			Expect(err).To(MatchError(dynamo.ErrInvalidObservation))
		})

		It("uses the candidate gains only while optimizing", func() {
			obs := dynamo.State{0.2, 0.5, 0.1, -0.2, 0.02, 0.01, 0, 0}
			st := a.State()
			st.Candidate = control.GainSet{KpPos: -1, KdPos: 0, KpAng: 0.001, KdAng: 0}

			pd := control.NewPD(dynamo.Continuous)
			wantBest, _ := pd.SelectAction(obs, st.Best)
			wantCand, _ := pd.SelectAction(obs, st.Candidate)

			got, err := a.Action(obs)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(wantBest))

			st.Optimizing = true
			got, err = a.Action(obs)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(wantCand))
			st.Optimizing = false
		})
	})

	Describe("Optimize", func() {
		var (
			seeds []*uint64
			mu    sync.Mutex
		)

		scripted := func(reward float64) env.Factory {
			return func(config.EnvConfig) (env.Environment, error) {
				return &scriptedEnv{
					reward: reward,
					space:  env.NewDiscreteSpace(env.DiscreteActions),
					seeds:  &seeds,
					mu:     &mu,
				}, nil
			}
		}

		BeforeEach(func() {
			seeds = nil
		})

		It("rejects non-positive steps", func() {
			a, err := agent.New(config.EnvConfig{}, agent.WithEnvFactory(scripted(0)))
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Optimize(ctx, 0)).To(MatchError(dynamo.ErrInvalidStep))
			Expect(a.State().Optimizing).To(BeFalse())
		})

		It("promotes a better candidate after five rollouts", func() {
			a, err := agent.New(config.EnvConfig{},
				agent.WithEnvFactory(scripted(42)),
				agent.WithSearchOptions(optim.WithSeed(1)),
			)
			Expect(err).NotTo(HaveOccurred())

			Expect(a.Optimize(ctx, 1)).To(Succeed())
			Expect(a.State().BestScore).To(Equal(42.0))
			Expect(a.State().Best).NotTo(Equal(control.DefaultGains()))
			Expect(a.State().Optimizing).To(BeFalse())
			Expect(seeds).To(HaveLen(5))
		})

		It("seeds trials consecutively when an episode seed is set", func() {
			a, err := agent.New(config.EnvConfig{},
				agent.WithEnvFactory(scripted(0)),
				agent.WithEpisodeSeed(100),
				agent.WithSearchOptions(optim.WithTrials(3), optim.WithSeed(1)),
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Optimize(ctx, 1)).To(Succeed())

			Expect(seeds).To(HaveLen(3))
			for i, s := range seeds {
				Expect(s).NotTo(BeNil())
				Expect(*s).To(Equal(uint64(101 + i)))
			}
		})

		It("runs the requested number of steps in Tune", func() {
			a, err := agent.New(config.EnvConfig{}, agent.WithEnvFactory(scripted(-1)))
			Expect(err).NotTo(HaveOccurred())

			var reports []optim.Report
			Expect(a.Tune(ctx, 4, func(r optim.Report) { reports = append(reports, r) })).To(Succeed())
			Expect(reports).To(HaveLen(4))
			Expect(reports[0].Accepted).To(BeTrue())
			Expect(a.Search().History()).To(HaveLen(4))
		})

		It("fails fast on image observations", func() {
			a, err := agent.New(config.EnvConfig{config.KeyRenderMode: config.RenderRGB})
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Tune(ctx, 3, nil)).To(MatchError(dynamo.ErrUnsupportedObservationKind))
			Expect(a.Optimize(ctx, 1)).To(MatchError(dynamo.ErrUnsupportedObservationKind))
			Expect(a.State().Optimizing).To(BeFalse())
			Expect(a.Search().History()).To(BeEmpty())
		})
	})

	Describe("VisualiseTrajectory", func() {
		It("is reproducible for a given seed and reports metrics", func() {
			cfg := config.EnvConfig{config.KeyMaxEpisodeSteps: 60}
			a, err := agent.New(cfg, agent.WithRecording())
			Expect(err).NotTo(HaveOccurred())

			seed := uint64(2024)
			first, err := a.VisualiseTrajectory(ctx, &seed, false)
			Expect(err).NotTo(HaveOccurred())
			second, err := a.VisualiseTrajectory(ctx, &seed, false)
			Expect(err).NotTo(HaveOccurred())

			Expect(first.Return).To(Equal(second.Return))
			Expect(first.Steps).To(BeNumerically(">", 0))
			Expect(first.Rewards).To(HaveLen(first.Steps))
			Expect(first.Metrics).To(HaveKey("control_effort"))
			Expect(first.Metrics).To(HaveKey("stability"))
		})
	})
})
