package ina219

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/exp/io/i2c"
)

const (
	DefaultAddr = 0x41

	RegConfig      = 0
	RegShuntV      = 1
	RegBusV        = 2
	RegPower       = 3
	RegCurrent     = 4
	RegCalibration = 5

	BusVoltageLSB = 0.004
)

// Reading is one snapshot of the battery rail.
type Reading struct {
	BusVolts float64
	Amps     float64
	Watts    float64
}

func (r Reading) String() string {
	return fmt.Sprintf("%.2fV %.2fA %.2fW", r.BusVolts, r.Amps, r.Watts)
}

type Interface interface {
	Configure(shuntOhms float64, maxCurrent float64) error
	Read() (Reading, error)
}

type port interface {
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) (err error)
}

type INA219 struct {
	currentLSB float64
	dev        port
}

var _ Interface = (*INA219)(nil)

func NewI2C(deviceFile string, addr int) (*INA219, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: deviceFile}, addr)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open INA219 at 0x%02x", addr)
	}
	return &INA219{
		dev: dev,
	}, nil
}

func (m *INA219) Close() error {
	if c, ok := m.dev.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Configure writes the calibration register for the given shunt and the
// largest current we expect to measure.
func (m *INA219) Configure(shuntOhms float64, maxCurrent float64) error {
	m.currentLSB = maxCurrent / (1 << 15)
	cval := CalculateCalibrationValue(m.currentLSB, shuntOhms)
	fmt.Printf("PWR: INA219 calibration value: 0x%x\n", cval)
	if err := m.dev.WriteReg(RegCalibration, []byte{byte(cval >> 8), byte(cval)}); err != nil {
		return pkgerrors.Wrap(err, "failed to write INA219 calibration")
	}
	return nil
}

func (m *INA219) Read() (Reading, error) {
	var r Reading
	raw, err := m.read16(RegBusV)
	if err != nil {
		return r, err
	}
	r.BusVolts = float64(raw>>3) * BusVoltageLSB
	raw, err = m.read16(RegCurrent)
	if err != nil {
		return r, err
	}
	r.Amps = float64(int16(raw)) * m.currentLSB
	raw, err = m.read16(RegPower)
	if err != nil {
		return r, err
	}
	r.Watts = float64(raw) * m.currentLSB * 20
	return r, nil
}

func (m *INA219) read16(reg byte) (uint16, error) {
	var buf [2]byte
	if err := m.dev.ReadReg(reg, buf[:]); err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to read INA219 register %d", reg)
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

func CalculateCalibrationValue(currentLSB float64, shuntOhms float64) int16 {
	return int16(0.04096 / (currentLSB * shuntOhms))
}
