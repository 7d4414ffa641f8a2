// Package dynamo provides the core primitives shared by the lander controller,
// the simulation and the gain tuner.
//
//   - [State]: vector representing a physical state or an observation
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: numerical integrator interface
//   - [Action]: tagged continuous/discrete action
//
// # Observations
//
// The lander observation is an 8-vector:
//
//	[x, altitude, vx, vy, angle, angular velocity, left leg contact, right leg contact]
//
// Use [State.Grounded] to check the contact flags without validating the
// full vector.
package dynamo
