// Package physics provides the rigid-body model of the lander craft.
//
// [Lander] implements [dynamo.System] and [dynamo.Configurable]; the
// environment integrates it with an [dynamo.Integrator] and handles ground
// contact itself.
//
//	dyn := physics.NewLander()
//	x = integ.Step(dyn, x, dynamo.Control{main, side, wind, torque}, t, dt)
package physics
