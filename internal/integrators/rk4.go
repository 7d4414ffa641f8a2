package integrators

import "github.com/san-kum/pdlander/internal/dynamo"

// RK4 is the classic fourth-order Runge-Kutta stepper. The stage buffers are
// reused between calls, so an RK4 must not be shared across goroutines.
type RK4 struct {
	k       [4]dynamo.State
	scratch dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.scratch) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(dynamo.State, n)
	}
	r.scratch = make(dynamo.State, n)
}

// stage evaluates the derivative at x + h*dx into dst.
func (r *RK4) stage(dst dynamo.State, dyn dynamo.System, x, dx dynamo.State, u dynamo.Control, t, h float64) {
	if dx == nil {
		copy(dst, dyn.Derive(x, u, t))
		return
	}
	for i := range x {
		r.scratch[i] = x[i] + h*dx[i]
	}
	copy(dst, dyn.Derive(r.scratch, u, t))
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	r.ensureScratch(len(x))
	half := dt * 0.5

	r.stage(r.k[0], dyn, x, nil, u, t, 0)
	r.stage(r.k[1], dyn, x, r.k[0], u, t+half, half)
	r.stage(r.k[2], dyn, x, r.k[1], u, t+half, half)
	r.stage(r.k[3], dyn, x, r.k[2], u, t+dt, dt)

	next := make(dynamo.State, len(x))
	dt6 := dt / 6.0
	for i := range x {
		next[i] = x[i] + dt6*(r.k[0][i]+2*r.k[1][i]+2*r.k[2][i]+r.k[3][i])
	}
	return next
}
