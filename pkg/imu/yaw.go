package imu

import (
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/heading/angle"
)

// YawEstimate is the integrated heading plus the sample it came from.  Stale
// is set when the most recent read failed and the values are carried over
// from the last good read.
type YawEstimate struct {
	AngleDeg float64
	Sample   Sample
	Stale    bool
	// ConsecutiveFailures counts failed reads since the last good one.
	ConsecutiveFailures int
}

// YawEstimator integrates the gyro Z axis into a wrapped yaw angle.  Owned by
// the control loop.
type YawEstimator struct {
	Bias Bias

	yaw      angle.PlusMinus180
	last     Sample
	stale    bool
	failures int
}

func NewYawEstimator(bias Bias) *YawEstimator {
	return &YawEstimator{Bias: bias}
}

// Update reads one sample and integrates it over dtSec.  On a failed read the
// previous yaw and sample are kept, the estimate is marked stale and the read
// error is returned for logging.
func (y *YawEstimator) Update(ch GyroChannel, dtSec float64) (YawEstimate, error) {
	s, err := ch.ReadRaw()
	if err != nil {
		y.stale = true
		y.failures++
		return y.Estimate(), err
	}
	rate := GyroLSBToDPS(s.Gyro[2]) - y.Bias[2]
	y.yaw = y.yaw.Integrate(rate, dtSec)
	y.last = s
	y.stale = false
	y.failures = 0
	return y.Estimate(), nil
}

func (y *YawEstimator) Estimate() YawEstimate {
	return YawEstimate{
		AngleDeg:            y.yaw.Float(),
		Sample:              y.last,
		Stale:               y.stale,
		ConsecutiveFailures: y.failures,
	}
}

// Reset sets the current yaw, e.g. to zero at the start of a run.
func (y *YawEstimator) Reset(angleDeg float64) {
	y.yaw = angle.FromFloat(angleDeg)
}
