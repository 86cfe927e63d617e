package imu

import (
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/exp/io/i2c"
)

const (
	MPU6050Addr    = 0x68
	ExpectedWhoAmI = 0x68

	RegSampleRateDiv = 0x19
	RegConfig        = 0x1A
	RegGyroConfig    = 0x1B
	RegAccelConfig   = 0x1C
	RegIntPinCfg     = 0x37
	RegIntEnable     = 0x38
	RegDataStart     = 0x3B // ACCEL_XOUT_H; 14 bytes through GYRO_ZOUT_L
	RegPwrMgmt1      = 0x6B
	RegWhoAmI        = 0x75

	PwrDeviceReset   = 0x80
	PwrClockPLLXGyro = 0x01
	ConfigDLPF3      = 0x03
	SampleRateDiv7   = 0x07
	GyroRange2000    = 0x18
	AccelRange8G     = 0x10
	IntDataReady     = 0x01

	dataLen = 14

	accelLSBPerG  = 4096.0
	gyroLSBPerDPS = 16.4
)

var ErrShortRead = errors.New("short read from IMU")

// Sample is one raw accelerometer/gyro/temperature reading.
type Sample struct {
	Accel [3]int16
	Gyro  [3]int16
	Temp  int16
}

// GyroChannel is what the control loop needs from the IMU.
type GyroChannel interface {
	ReadRaw() (Sample, error)
	WhoAmI() (byte, error)
}

type port interface {
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) (err error)
}

type MPU6050 struct {
	dev port

	// ResetDelay is how long to wait after a device reset before talking to it again.
	ResetDelay time.Duration
}

var _ GyroChannel = (*MPU6050)(nil)

func NewI2C(deviceFile string, addr int) (*MPU6050, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: deviceFile}, addr)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open IMU at %s/0x%02x", deviceFile, addr)
	}
	return newMPU6050(dev), nil
}

func newMPU6050(dev port) *MPU6050 {
	return &MPU6050{
		dev:        dev,
		ResetDelay: 100 * time.Millisecond,
	}
}

func (m *MPU6050) Close() error {
	if c, ok := m.dev.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Configure resets the device and sets it up for ±2000dps / ±8g with the
// data-ready interrupt enabled.
func (m *MPU6050) Configure() error {
	fmt.Println("IMU: resetting MPU6050")
	if err := m.writeReg(RegPwrMgmt1, PwrDeviceReset); err != nil {
		return pkgerrors.Wrap(err, "failed to reset MPU6050")
	}
	time.Sleep(m.ResetDelay)

	for _, step := range []struct {
		name  string
		reg   byte
		value byte
	}{
		{"clock source", RegPwrMgmt1, PwrClockPLLXGyro},
		{"DLPF", RegConfig, ConfigDLPF3},
		{"sample rate", RegSampleRateDiv, SampleRateDiv7},
		{"gyro range", RegGyroConfig, GyroRange2000},
		{"accel range", RegAccelConfig, AccelRange8G},
		{"interrupt pin", RegIntPinCfg, 0x00},
		{"interrupt enable", RegIntEnable, IntDataReady},
	} {
		if err := m.writeReg(step.reg, step.value); err != nil {
			return pkgerrors.Wrapf(err, "failed to set MPU6050 %s", step.name)
		}
	}
	fmt.Println("IMU: MPU6050 configured")
	return nil
}

func (m *MPU6050) WhoAmI() (byte, error) {
	var buf [1]byte
	if err := m.dev.ReadReg(RegWhoAmI, buf[:]); err != nil {
		return 0, pkgerrors.Wrap(err, "failed to read WHO_AM_I")
	}
	return buf[0], nil
}

// ReadRaw does a single burst read of the accel, temperature and gyro registers.
func (m *MPU6050) ReadRaw() (Sample, error) {
	var buf [dataLen]byte
	if err := m.dev.ReadReg(RegDataStart, buf[:]); err != nil {
		return Sample{}, pkgerrors.Wrap(err, "failed to read IMU data")
	}
	return decodeSample(buf[:])
}

func decodeSample(buf []byte) (Sample, error) {
	if len(buf) < dataLen {
		return Sample{}, ErrShortRead
	}
	be := func(i int) int16 {
		return int16(buf[i])<<8 | int16(buf[i+1])
	}
	var s Sample
	for i := 0; i < 3; i++ {
		s.Accel[i] = be(i * 2)
		s.Gyro[i] = be(8 + i*2)
	}
	s.Temp = be(6)
	return s, nil
}

func (m *MPU6050) writeReg(reg, value byte) error {
	return m.dev.WriteReg(reg, []byte{value})
}

// AccelLSBToG converts a raw accelerometer reading at ±8g to g.
func AccelLSBToG(raw int16) float64 {
	return float64(raw) / accelLSBPerG
}

// GyroLSBToDPS converts a raw gyro reading at ±2000dps to degrees/sec.
func GyroLSBToDPS(raw int16) float64 {
	return float64(raw) / gyroLSBPerDPS
}

func TempLSBToC(raw int16) float64 {
	return 36.53 + float64(raw)/340.0
}
