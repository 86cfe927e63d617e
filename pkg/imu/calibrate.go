package imu

import (
	"errors"
	"fmt"
	"time"
)

var ErrNoSamples = errors.New("no good IMU samples")

// Bias is the at-rest gyro output in degrees/sec.
type Bias [3]float64

// CalibrateGyro averages n samples taken with the robot stationary.  Failed
// reads are skipped.  The result is only held in memory.
func CalibrateGyro(ch GyroChannel, n int, pause time.Duration) (Bias, error) {
	fmt.Println("IMU: calibrating gyro, keep the robot still")
	var sum [3]float64
	good := 0
	for i := 0; i < n; i++ {
		s, err := ch.ReadRaw()
		if err == nil {
			for a := range sum {
				sum[a] += float64(s.Gyro[a])
			}
			good++
		}
		if pause > 0 {
			time.Sleep(pause)
		}
	}
	if good == 0 {
		return Bias{}, ErrNoSamples
	}
	var b Bias
	for a := range b {
		b[a] = sum[a] / float64(good) / gyroLSBPerDPS
	}
	fmt.Printf("IMU: gyro bias %.3f %.3f %.3f dps from %d/%d samples\n", b[0], b[1], b[2], good, n)
	return b, nil
}
