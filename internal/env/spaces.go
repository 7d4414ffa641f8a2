package env

import (
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/pdlander/internal/dynamo"
)

// Box is a continuous action space of two components in [Low, High].
type Box struct {
	Low, High float64
	rng       distuv.Uniform
}

func NewBox(low, high float64) *Box {
	b := &Box{Low: low, High: high}
	b.Seed(uint64(time.Now().UnixNano()))
	return b
}

func (b *Box) Kind() dynamo.ActionKind { return dynamo.Continuous }

func (b *Box) Seed(seed uint64) {
	b.rng = distuv.Uniform{Min: b.Low, Max: b.High, Src: rand.NewSource(seed)}
}

func (b *Box) Sample() dynamo.Action {
	return dynamo.ContinuousAction(b.rng.Rand(), b.rng.Rand())
}

func (b *Box) Contains(a dynamo.Action) bool {
	if a.Kind != dynamo.Continuous {
		return false
	}
	for _, v := range a.Vector {
		if math.IsNaN(v) || v < b.Low || v > b.High {
			return false
		}
	}
	return true
}

// DiscreteSpace holds the labels 0..N-1.
type DiscreteSpace struct {
	N   int
	rng *rand.Rand
}

func NewDiscreteSpace(n int) *DiscreteSpace {
	d := &DiscreteSpace{N: n}
	d.Seed(uint64(time.Now().UnixNano()))
	return d
}

func (d *DiscreteSpace) Kind() dynamo.ActionKind { return dynamo.Discrete }

func (d *DiscreteSpace) Seed(seed uint64) {
	d.rng = rand.New(rand.NewSource(seed))
}

func (d *DiscreteSpace) Sample() dynamo.Action {
	return dynamo.DiscreteAction(d.rng.Intn(d.N))
}

func (d *DiscreteSpace) Contains(a dynamo.Action) bool {
	return a.Kind == dynamo.Discrete && a.Label >= 0 && a.Label < d.N
}
