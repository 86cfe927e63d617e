package speedcontrol

import (
	"math"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/motor"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/pid"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/rate"
)

// TickSource is the part of the encoder API the speed loop uses.
type TickSource interface {
	GetAndResetTicks() (left, right uint32)
	PulsesPerRev() uint32
}

// Target is a wheel velocity request: an unsigned rate and a direction.
type Target struct {
	RPS       float64
	Direction int8
}

type Gains struct {
	Kp, Ki, Kd float64
}

type Config struct {
	Gains       Gains
	PWMMax      uint16
	PWMMinStart uint16
}

// Controller closes the loop from encoder ticks to motor PWM for both wheels.
// Everything here runs on the control loop; none of it is safe to call
// concurrently.
type Controller struct {
	ticks  TickSource
	motors motor.Interface
	cfg    Config

	pids    [2]*pid.PID
	targets [2]Target

	// Last measured rates and commands, for diagnostics.
	measured [2]float64
	commands [2]int16
}

func New(ticks TickSource, motors motor.Interface, cfg Config) *Controller {
	c := &Controller{
		ticks:  ticks,
		motors: motors,
		cfg:    cfg,
	}
	for i := range c.pids {
		c.pids[i] = pid.New(cfg.Gains.Kp, cfg.Gains.Ki, cfg.Gains.Kd, 0, float64(cfg.PWMMax))
	}
	return c
}

// Init clears the targets and controller state and discards any ticks that
// accumulated before the loop started.
func (c *Controller) Init() {
	c.ticks.GetAndResetTicks()
	for i := range c.pids {
		c.pids[i].Reset()
		c.targets[i] = Target{Direction: 1}
		c.measured[i] = 0
		c.commands[i] = 0
	}
}

// SetTarget sets the wheel rates.  Negative rates are folded into the
// direction so the PID always sees a magnitude.
func (c *Controller) SetTarget(leftRPS, rightRPS float64, dirLeft, dirRight int8) {
	c.targets[motor.Left] = normaliseTarget(leftRPS, dirLeft)
	c.targets[motor.Right] = normaliseTarget(rightRPS, dirRight)
}

func normaliseTarget(rps float64, dir int8) Target {
	if dir >= 0 {
		dir = 1
	} else {
		dir = -1
	}
	if rps < 0 {
		rps = -rps
		dir = -dir
	}
	return Target{RPS: rps, Direction: dir}
}

// SetGains retunes both wheel PIDs without clearing their state.
func (c *Controller) SetGains(g Gains) {
	c.cfg.Gains = g
	for _, p := range c.pids {
		p.Kp, p.Ki, p.Kd = g.Kp, g.Ki, g.Kd
	}
}

func (c *Controller) Gains() Gains {
	return c.cfg.Gains
}

func (c *Controller) Targets() (left, right Target) {
	return c.targets[motor.Left], c.targets[motor.Right]
}

// Update runs one control period.  dtSec is the measured time since the
// previous Update.
func (c *Controller) Update(dtSec float64) error {
	l, r := c.ticks.GetAndResetTicks()
	ppr := c.ticks.PulsesPerRev()
	c.measured[motor.Left] = rate.EstimateRate(l, dtSec, ppr)
	c.measured[motor.Right] = rate.EstimateRate(r, dtSec, ppr)

	var firstErr error
	for _, id := range motor.All {
		cmd := c.command(id, dtSec)
		c.commands[id] = cmd
		if err := c.motors.SetSpeed(id, cmd); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Controller) command(id motor.ID, dtSec float64) int16 {
	target := c.targets[id]
	p := c.pids[id]
	if target.RPS == 0 {
		p.Reset()
		return 0
	}

	out := p.Update(target.RPS, c.measured[id], dtSec)
	out = applyMinStart(out, target.RPS, float64(c.cfg.PWMMinStart))
	mag := int16(math.Round(math.Abs(out)))
	if mag > int16(c.cfg.PWMMax) {
		mag = int16(c.cfg.PWMMax)
	}
	return mag * int16(target.Direction)
}

// applyMinStart lifts small non-zero outputs to the level that overcomes
// static friction.  Zero stays zero.
func applyMinStart(out, targetRPS, minStart float64) float64 {
	if targetRPS <= 0 {
		return out
	}
	mag := math.Abs(out)
	if mag > 0 && mag < minStart {
		return math.Copysign(minStart, out)
	}
	return out
}

// Measured returns the wheel rates seen by the last Update.
func (c *Controller) Measured() (left, right float64) {
	return c.measured[motor.Left], c.measured[motor.Right]
}

// Commands returns the signed PWM sent by the last Update.
func (c *Controller) Commands() (left, right int16) {
	return c.commands[motor.Left], c.commands[motor.Right]
}

// Stop zeroes both targets and brakes the motors.
func (c *Controller) Stop() error {
	c.SetTarget(0, 0, 1, 1)
	for i := range c.pids {
		c.pids[i].Reset()
		c.commands[i] = 0
	}
	var firstErr error
	for _, id := range motor.All {
		if err := c.motors.Stop(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
