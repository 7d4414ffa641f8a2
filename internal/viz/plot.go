package viz

import (
	"fmt"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/pdlander/internal/dynamo"
)

// Plot draws a single series, or a placeholder when there is too little data.
func Plot(data []float64, caption string, height, width int) string {
	if len(data) < 2 {
		return fmt.Sprintf("%s: not enough data", caption)
	}
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}

// Cumulative returns the running sum of rewards.
func Cumulative(rewards []float64) []float64 {
	out := make([]float64, len(rewards))
	sum := 0.0
	for i, r := range rewards {
		sum += r
		out[i] = sum
	}
	return out
}

// Column extracts observation component idx from a trajectory.
func Column(obs []dynamo.State, idx int) []float64 {
	out := make([]float64, 0, len(obs))
	for _, o := range obs {
		if idx < len(o) {
			out = append(out, o[idx])
		}
	}
	return out
}

// TrajectoryPlots renders altitude, angle and cumulative reward of a run.
func TrajectoryPlots(obs []dynamo.State, rewards []float64) string {
	return Plot(Column(obs, dynamo.ObsAltitude), "altitude", 8, 70) + "\n\n" +
		Plot(Column(obs, dynamo.ObsAngle), "angle (rad)", 8, 70) + "\n\n" +
		Plot(Cumulative(rewards), "cumulative reward", 8, 70)
}
