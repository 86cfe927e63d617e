package hardware

import (
	"context"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/robot"
)

type Interface interface {
	// Start opens the devices.  Encoder capture begins when the robot calls
	// Parts().StartCapture.
	Start(ctx context.Context) error
	Parts() robot.Parts
	// Shutdown brakes the motors and releases the devices.
	Shutdown()
}
