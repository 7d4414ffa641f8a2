package optim_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/pdlander/internal/control"
	"github.com/san-kum/pdlander/internal/dynamo"
	"github.com/san-kum/pdlander/internal/optim"
)

// recorder counts rollouts and captures the gains and flag each one saw.
type recorder struct {
	mu         sync.Mutex
	calls      int
	gains      []control.GainSet
	optimizing []bool
}

func (r *recorder) rollout(state *optim.State, score float64) optim.Rollout {
	return func(ctx context.Context, g control.GainSet) (float64, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls++
		r.gains = append(r.gains, g)
		r.optimizing = append(r.optimizing, state.Optimizing)
		return score, nil
	}
}

var _ = Describe("State", func() {
	It("starts from the default gains and a score of -100", func() {
		st := optim.DefaultState()
		Expect(st.Best).To(Equal(control.DefaultGains()))
		Expect(st.BestScore).To(Equal(-100.0))
		Expect(st.Optimizing).To(BeFalse())
	})

	It("selects the candidate only while optimizing", func() {
		st := optim.DefaultState()
		st.Candidate = control.GainSet{KpPos: 1}
		Expect(st.ActiveGains()).To(Equal(st.Best))
		st.Optimizing = true
		Expect(st.ActiveGains()).To(Equal(st.Candidate))
	})
})

var _ = Describe("RandomSearch", func() {
	var (
		ctx   context.Context
		state *optim.State
		rec   *recorder
	)

	BeforeEach(func() {
		ctx = context.Background()
		state = optim.DefaultState()
		rec = &recorder{}
	})

	Context("with an invalid step", func() {
		It("rejects zero and negative steps without touching state", func() {
			rs := optim.NewRandomSearch(state, rec.rollout(state, 0), optim.WithSeed(1))
			for _, step := range []int{0, -3} {
				err := rs.Improve(ctx, step)
				Expect(errors.Is(err, dynamo.ErrInvalidStep)).To(BeTrue())
			}
			Expect(rec.calls).To(BeZero())
			Expect(state.Best).To(Equal(control.DefaultGains()))
			Expect(state.Optimizing).To(BeFalse())
		})
	})

	Context("when the candidate scores better", func() {
		It("accepts it and clears the optimizing flag", func() {
			rs := optim.NewRandomSearch(state, rec.rollout(state, 50), optim.WithSeed(1))
			Expect(rs.Improve(ctx, 1)).To(Succeed())

			Expect(rec.calls).To(Equal(optim.DefaultTrials))
			Expect(state.BestScore).To(Equal(50.0))
			Expect(state.Best).To(Equal(state.Candidate))
			Expect(state.Best).NotTo(Equal(control.DefaultGains()))
			Expect(state.Optimizing).To(BeFalse())
		})

		It("flies the candidate in every trial", func() {
			rs := optim.NewRandomSearch(state, rec.rollout(state, 50), optim.WithSeed(2))
			Expect(rs.Improve(ctx, 1)).To(Succeed())

			for i := range rec.gains {
				Expect(rec.optimizing[i]).To(BeTrue())
				Expect(rec.gains[i]).To(Equal(state.Candidate))
			}
		})
	})

	Context("when the candidate scores worse", func() {
		It("keeps the best gains and clears the optimizing flag", func() {
			rs := optim.NewRandomSearch(state, rec.rollout(state, -500), optim.WithSeed(1))
			Expect(rs.Improve(ctx, 1)).To(Succeed())

			Expect(state.Best).To(Equal(control.DefaultGains()))
			Expect(state.BestScore).To(Equal(-100.0))
			Expect(state.Optimizing).To(BeFalse())
			Expect(rs.History()).To(HaveLen(1))
			Expect(rs.History()[0].Accepted).To(BeFalse())
		})
	})

	Context("when the candidate ties the best score", func() {
		It("accepts it", func() {
			rs := optim.NewRandomSearch(state, rec.rollout(state, -100), optim.WithSeed(3))
			Expect(rs.Improve(ctx, 1)).To(Succeed())

			Expect(state.BestScore).To(Equal(-100.0))
			Expect(state.Best).To(Equal(state.Candidate))
			Expect(state.Best).NotTo(Equal(control.DefaultGains()))
		})
	})

	Context("when a rollout fails", func() {
		It("returns the error and still clears the optimizing flag", func() {
			boom := errors.New("env exploded")
			rs := optim.NewRandomSearch(state, func(context.Context, control.GainSet) (float64, error) {
				return 0, boom
			}, optim.WithSeed(1))

			err := rs.Improve(ctx, 4)
			Expect(err).To(MatchError(boom))
			Expect(err.Error()).To(ContainSubstring("step 4"))
			Expect(state.Optimizing).To(BeFalse())
			Expect(state.Best).To(Equal(control.DefaultGains()))
			Expect(rs.History()).To(BeEmpty())
		})
	})

	It("averages the trial returns", func() {
		var n atomic.Int64
		rs := optim.NewRandomSearch(state, func(context.Context, control.GainSet) (float64, error) {
			return float64(n.Add(1)) * 10, nil
		}, optim.WithSeed(1))

		Expect(rs.Improve(ctx, 1)).To(Succeed())
		Expect(state.BestScore).To(BeNumerically("~", 30.0, 1e-9))
	})

	It("honours the trial count option", func() {
		rs := optim.NewRandomSearch(state, rec.rollout(state, 0), optim.WithTrials(3), optim.WithSeed(1))
		Expect(rs.Improve(ctx, 1)).To(Succeed())
		Expect(rec.calls).To(Equal(3))
	})

	It("shrinks the noise as 1/sqrt(step)", func() {
		rs := optim.NewRandomSearch(state, rec.rollout(state, 0))
		Expect(rs.Sigma(1)).To(Equal(20.0))
		Expect(rs.Sigma(4)).To(Equal(10.0))
		Expect(rs.Sigma(100)).To(BeNumerically("~", 2.0, 1e-12))

		scaled := optim.NewRandomSearch(state, rec.rollout(state, 0), optim.WithNoiseScale(1))
		Expect(scaled.Sigma(16)).To(Equal(0.25))
	})

	It("perturbs less at late steps", func() {
		early := optim.DefaultState()
		late := optim.DefaultState()
		optim.NewRandomSearch(early, rec.rollout(early, 0), optim.WithSeed(9)).Improve(ctx, 1)
		optim.NewRandomSearch(late, rec.rollout(late, 0), optim.WithSeed(9)).Improve(ctx, 10000)

		base := control.DefaultGains()
		Expect(math.Abs(late.Best.KpPos - base.KpPos)).To(BeNumerically("<", math.Abs(early.Best.KpPos-base.KpPos)))
	})

	It("is reproducible for a fixed seed", func() {
		a := optim.DefaultState()
		b := optim.DefaultState()
		Expect(optim.NewRandomSearch(a, rec.rollout(a, 0), optim.WithSeed(5)).Improve(ctx, 1)).To(Succeed())
		Expect(optim.NewRandomSearch(b, rec.rollout(b, 0), optim.WithSeed(5)).Improve(ctx, 1)).To(Succeed())
		Expect(a.Best).To(Equal(b.Best))
	})

	Context("with parallel trials", func() {
		It("runs every trial with the candidate and mutates state afterwards", func() {
			rs := optim.NewRandomSearch(state, rec.rollout(state, 10),
				optim.WithSeed(1), optim.WithParallelTrials(true))
			Expect(rs.Improve(ctx, 1)).To(Succeed())

			Expect(rec.calls).To(Equal(optim.DefaultTrials))
			Expect(rec.optimizing).To(HaveEach(BeTrue()))
			Expect(state.BestScore).To(Equal(10.0))
			Expect(state.Optimizing).To(BeFalse())
		})

		It("propagates the first error", func() {
			boom := errors.New("boom")
			rs := optim.NewRandomSearch(state, func(context.Context, control.GainSet) (float64, error) {
				return 0, boom
			}, optim.WithParallelTrials(true))

			Expect(rs.Improve(ctx, 1)).To(MatchError(boom))
			Expect(state.Optimizing).To(BeFalse())
		})
	})

	Describe("Run", func() {
		It("reports every step in order", func() {
			rs := optim.NewRandomSearch(state, rec.rollout(state, 0), optim.WithSeed(1))
			var steps []int
			Expect(rs.Run(ctx, 3, func(r optim.Report) { steps = append(steps, r.Step) })).To(Succeed())
			Expect(steps).To(Equal([]int{1, 2, 3}))
			Expect(rs.History()).To(HaveLen(3))
		})

		It("stops when the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			rs := optim.NewRandomSearch(state, rec.rollout(state, 0))
			Expect(rs.Run(cctx, 3, nil)).To(MatchError(context.Canceled))
			Expect(rec.calls).To(BeZero())
		})
	})
})
