package env

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Terrain is a piecewise-linear ground profile with a flat helipad in the
// middle.
type Terrain struct {
	X        []float64
	Y        []float64
	HelipadY float64
	PadLeft  float64
	PadRight float64
}

func newTerrain(src rand.Source, width, height float64, chunks int) *Terrain {
	heights := distuv.Uniform{Min: 0, Max: height / 2, Src: src}
	helipadY := height / 4

	raw := make([]float64, chunks+1)
	for i := range raw {
		raw[i] = heights.Rand()
	}
	mid := chunks / 2
	for i := mid - 2; i <= mid+2; i++ {
		if i >= 0 && i < len(raw) {
			raw[i] = helipadY
		}
	}

	t := &Terrain{
		X:        make([]float64, chunks),
		Y:        make([]float64, chunks),
		HelipadY: helipadY,
	}
	for i := 0; i < chunks; i++ {
		t.X[i] = width / float64(chunks-1) * float64(i)
		prev := raw[max(i-1, 0)]
		t.Y[i] = 0.33 * (prev + raw[i] + raw[i+1])
	}
	for i := mid - 1; i <= mid+1; i++ {
		t.Y[i] = helipadY
	}
	t.PadLeft = t.X[mid-1]
	t.PadRight = t.X[mid+1]
	return t
}

// Height returns the ground height at x, clamped to the terrain ends.
func (t *Terrain) Height(x float64) float64 {
	n := len(t.X)
	if x <= t.X[0] {
		return t.Y[0]
	}
	if x >= t.X[n-1] {
		return t.Y[n-1]
	}
	for i := 1; i < n; i++ {
		if x <= t.X[i] {
			f := (x - t.X[i-1]) / (t.X[i] - t.X[i-1])
			return t.Y[i-1] + f*(t.Y[i]-t.Y[i-1])
		}
	}
	return t.Y[n-1]
}
