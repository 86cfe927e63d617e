package pid

// PID is a velocity controller for one wheel.  It is not safe for concurrent
// use; the control loop owns it.
type PID struct {
	Kp, Ki, Kd     float64
	OutMin, OutMax float64

	integrator float64
	prevError  float64
}

func New(kp, ki, kd, outMin, outMax float64) *PID {
	return &PID{
		Kp:     kp,
		Ki:     ki,
		Kd:     kd,
		OutMin: outMin,
		OutMax: outMax,
	}
}

// Update runs one control period and returns the clamped output.
func (p *PID) Update(setpoint, measurement, dt float64) float64 {
	err := setpoint - measurement

	prop := p.Kp * err

	if dt > 0 {
		p.integrator += err * dt
	}
	integral := p.Ki * p.integrator

	var deriv float64
	if dt > 0 {
		deriv = p.Kd * (err - p.prevError) / dt
	}

	out := prop + integral + deriv
	if out > p.OutMax {
		out = p.OutMax
	}
	if out < p.OutMin {
		out = p.OutMin
	}

	// Anti-windup: undo this period's integration if we're pinned at a bound
	// and the error is pushing further into it.
	if dt > 0 && (out == p.OutMax && err > 0 || out == p.OutMin && err < 0) {
		p.integrator -= err * dt
	}

	p.prevError = err
	return out
}

func (p *PID) Reset() {
	p.integrator = 0
	p.prevError = 0
}

func (p *PID) Integrator() float64 {
	return p.integrator
}
