package sim

import (
	"errors"
	"math"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/imu"
)

var ErrInjected = errors.New("simulated I2C failure")

// Gyro returns an imu.GyroChannel that reports the plant's rotation.
func (p *Plant) Gyro() imu.GyroChannel {
	return simGyro{p}
}

// FailGyroReads makes the next n gyro reads fail.
func (p *Plant) FailGyroReads(n int) {
	p.lock.Lock()
	p.gyroFail = n
	p.lock.Unlock()
}

type simGyro struct{ p *Plant }

func (g simGyro) ReadRaw() (imu.Sample, error) {
	g.p.lock.Lock()
	defer g.p.lock.Unlock()
	if g.p.gyroFail > 0 {
		g.p.gyroFail--
		return imu.Sample{}, ErrInjected
	}
	dps := g.p.yawRate + g.p.cfg.GyroBiasDPS
	raw := math.Round(dps * 16.4)
	raw = math.Max(math.MinInt16, math.Min(math.MaxInt16, raw))
	return imu.Sample{
		Accel: [3]int16{0, 0, 4096},
		Gyro:  [3]int16{0, 0, int16(raw)},
	}, nil
}

func (g simGyro) WhoAmI() (byte, error) {
	return g.p.cfg.WhoAmI, nil
}
