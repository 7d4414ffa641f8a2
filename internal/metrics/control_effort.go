package metrics

import (
	"math"

	"github.com/san-kum/pdlander/internal/dynamo"
)

// ControlEffort is the mean engine demand per step: |a0|+|a1| for continuous
// actions, 1 for any firing discrete label.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(obs dynamo.State, a dynamo.Action, reward float64) {
	if a.Kind == dynamo.Discrete {
		if a.Label != 0 {
			c.sum++
		}
	} else {
		c.sum += math.Abs(a.Vector[0]) + math.Abs(a.Vector[1])
	}
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}
