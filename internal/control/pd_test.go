package control

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/pdlander/internal/dynamo"
)

func randomObservation(r *rand.Rand) dynamo.State {
	obs := make(dynamo.State, dynamo.ObservationDim)
	for i := 0; i < 6; i++ {
		obs[i] = r.Float64()*4 - 2
	}
	return obs
}

func randomGains(r *rand.Rand) GainSet {
	return GainSet{
		KpPos: r.NormFloat64() * 100,
		KdPos: r.NormFloat64() * 100,
		KpAng: r.NormFloat64() * 100,
		KdAng: r.NormFloat64() * 100,
	}
}

func TestZeroObservationContinuous(t *testing.T) {
	g := NewWithT(t)
	pd := NewPD(dynamo.Continuous)
	gains := GainSet{KpPos: 59.45, KdPos: -12.94, KpAng: -35.50, KdAng: 2.78}

	a, err := pd.SelectAction(make(dynamo.State, 8), gains)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(a.Kind).To(Equal(dynamo.Continuous))
	g.Expect(a.Vector).To(Equal([2]float64{0, 0}))
}

func TestGroundedIsNeutral(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	for _, leg := range []int{dynamo.ObsLeftContact, dynamo.ObsRightContact} {
		for i := 0; i < 100; i++ {
			obs := randomObservation(r)
			obs[leg] = 1
			gains := randomGains(r)

			a, err := NewPD(dynamo.Continuous).SelectAction(obs, gains)
			if err != nil {
				t.Fatal(err)
			}
			if a != dynamo.ContinuousAction(0, 0) {
				t.Fatalf("continuous grounded action = %v, want [0 0]", a)
			}

			a, err = NewPD(dynamo.Discrete).SelectAction(obs, gains)
			if err != nil {
				t.Fatal(err)
			}
			if a != dynamo.DiscreteAction(0) {
				t.Fatalf("discrete grounded action = %v, want 0", a)
			}
		}
	}
}

func TestLegTouchedExample(t *testing.T) {
	obs := dynamo.State{0.3, 0.1, -0.5, -1, 0.2, 0.1, 1, 0}

	a, _ := NewPD(dynamo.Continuous).SelectAction(obs, DefaultGains())
	if a.Vector != [2]float64{0, 0} {
		t.Errorf("expected [0 0], got %v", a)
	}
	a, _ = NewPD(dynamo.Discrete).SelectAction(obs, DefaultGains())
	if a.Label != 0 {
		t.Errorf("expected 0, got %v", a)
	}
}

func TestContinuousWithinBounds(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	pd := NewPD(dynamo.Continuous)

	for i := 0; i < 1000; i++ {
		a, err := pd.SelectAction(randomObservation(r), randomGains(r))
		if err != nil {
			t.Fatal(err)
		}
		for _, v := range a.Vector {
			if v < -1 || v > 1 {
				t.Fatalf("component %f outside [-1, 1]", v)
			}
		}
	}
}

func TestDiscreteLabels(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	pd := NewPD(dynamo.Discrete)

	for i := 0; i < 1000; i++ {
		a, err := pd.SelectAction(randomObservation(r), randomGains(r))
		if err != nil {
			t.Fatal(err)
		}
		if a.Kind != dynamo.Discrete {
			t.Fatalf("expected discrete action, got %v", a.Kind)
		}
		if a.Label != LabelLeft && a.Label != LabelMain {
			t.Fatalf("airborne discrete label %d not in {1, 2}", a.Label)
		}
	}
}

// The non-dominant branch resolves to the main engine for a non-negative
// angular command, same as the dominant branch.
func TestDiscreteTieBreakRegression(t *testing.T) {
	pd := NewPD(dynamo.Discrete)
	angularOnly := GainSet{KdAng: 1}

	tests := []struct {
		name  string
		obs   dynamo.State
		gains GainSet
		want  int
	}{
		{"lateral dominant", dynamo.State{0, -1, 0, 0, 0, 0, 0, 0}, GainSet{KpPos: 1}, LabelMain},
		{"equal magnitudes", dynamo.State{0, -1, 0, 0, 0, 1, 0, 0}, GainSet{KpPos: 1, KdAng: 1}, LabelMain},
		{"angular negative", dynamo.State{0, 0, 0, 0, 0, -1, 0, 0}, angularOnly, LabelLeft},
		{"angular positive", dynamo.State{0, 0, 0, 0, 0, 1, 0, 0}, angularOnly, LabelMain},
		{"all zero", make(dynamo.State, 8), GainSet{}, LabelMain},
	}

	for _, tt := range tests {
		a, err := pd.SelectAction(tt.obs, tt.gains)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if a.Label != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, a.Label, tt.want)
		}
	}
}

func TestCommands(t *testing.T) {
	obs := dynamo.State{0.5, 1.0, 0.2, -0.3, 0.1, 0.05, 0, 0}
	gains := GainSet{KpPos: 2, KdPos: 3, KpAng: 4, KdAng: 5}

	lateral, angular := Commands(obs, gains)

	posErr := math.Abs(0.5) - 1.0
	angErr := math.Pi/4*(0.5+0.2) - 0.1
	wantLateral := 2*posErr + 3*0.2
	wantAngular := 4*angErr + 5*0.05

	if math.Abs(lateral-wantLateral) > 1e-12 {
		t.Errorf("lateral = %f, want %f", lateral, wantLateral)
	}
	if math.Abs(angular-wantAngular) > 1e-12 {
		t.Errorf("angular = %f, want %f", angular, wantAngular)
	}
}

// Position error is taken against altitude, so a craft on the left is
// treated the same as one on the right.
func TestPositionErrorUsesAltitude(t *testing.T) {
	gains := GainSet{KpPos: 1}
	left, _ := Commands(dynamo.State{-0.4, 0.1, 0, 0, 0, 0, 0, 0}, gains)
	right, _ := Commands(dynamo.State{0.4, 0.1, 0, 0, 0, 0, 0, 0}, gains)

	if left != right {
		t.Errorf("expected symmetric lateral command, got %f and %f", left, right)
	}
	if math.Abs(left-0.3) > 1e-12 {
		t.Errorf("expected 0.3, got %f", left)
	}
}

func TestContinuousClipping(t *testing.T) {
	a, err := NewPD(dynamo.Continuous).SelectAction(dynamo.State{0, -5, 0, 0, 3, 0, 0, 0}, DefaultGains())
	if err != nil {
		t.Fatal(err)
	}
	if a.Vector[0] != 1 {
		t.Errorf("expected lateral clipped to 1, got %f", a.Vector[0])
	}
	if a.Vector[1] != 1 {
		t.Errorf("expected angular clipped to 1, got %f", a.Vector[1])
	}
}

func TestInvalidObservation(t *testing.T) {
	pd := NewPD(dynamo.Continuous)

	for _, obs := range []dynamo.State{nil, {1, 2, 3}, make(dynamo.State, 7), make(dynamo.State, 9)} {
		_, err := pd.SelectAction(obs, DefaultGains())
		if !errors.Is(err, dynamo.ErrInvalidObservation) {
			t.Errorf("len %d: expected ErrInvalidObservation, got %v", len(obs), err)
		}
	}
}

func TestGainSetParams(t *testing.T) {
	g := NewWithT(t)
	gains := DefaultGains()

	g.Expect(gains.SetParam("kd_ang", 1.5)).To(Succeed())
	g.Expect(gains.GetParams()).To(HaveKeyWithValue("kd_ang", 1.5))
	g.Expect(gains.SetParam("ki", 1)).To(HaveOccurred())

	fromSlice, err := GainsFromSlice(gains.Slice())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(fromSlice).To(Equal(gains))

	_, err = GainsFromSlice([]float64{1, 2})
	g.Expect(err).To(HaveOccurred())

	g.Expect(gains.Perturbed([4]float64{1, 1, 1, 1}).KpPos).To(Equal(gains.KpPos + 1))
}
