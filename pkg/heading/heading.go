package heading

import (
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/heading/angle"
)

// Corrector is a proportional heading controller.  It splits a base wheel
// rate into left/right rates that steer back towards the target yaw.
type Corrector struct {
	KpYaw float64

	target angle.PlusMinus180
}

func New(kpYaw float64) *Corrector {
	return &Corrector{KpYaw: kpYaw}
}

func (c *Corrector) SetTarget(yawDeg float64) {
	c.target = angle.FromFloat(yawDeg)
}

func (c *Corrector) Target() float64 {
	return c.target.Float()
}

// Error returns the wrapped heading error in degrees for a given yaw.
func (c *Corrector) Error(yawDeg float64) float64 {
	return c.target.Sub(angle.FromFloat(yawDeg)).Float()
}

// Compute returns the wheel rates for yawDeg.  A positive error (target is
// anticlockwise of us) speeds up the right wheel.
func (c *Corrector) Compute(yawDeg, baseRPS float64) (leftRPS, rightRPS float64) {
	w := c.KpYaw * c.Error(yawDeg)
	return baseRPS - w, baseRPS + w
}
