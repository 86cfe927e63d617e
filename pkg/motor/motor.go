package motor

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"periph.io/x/periph/conn/gpio"
)

// ID selects one of the two drive motors.
type ID int

const (
	Left ID = iota
	Right
)

func (id ID) String() string {
	switch id {
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("motor(%d)", int(id))
}

var All = []ID{Left, Right}

var ErrUnknownMotor = errors.New("unknown motor")

// DirPin is a direction input of the H-bridge.  gpio.PinOut satisfies it.
type DirPin interface {
	Out(l gpio.Level) error
}

// DutyOutput sets the PWM duty in timer counts, 0..PWMMax.
type DutyOutput interface {
	SetDuty(counts uint16) error
}

// Channel is the wiring of one motor: two direction lines and an enable line
// carrying the PWM signal.
//
//	forward: IN1=0, IN2=1
//	reverse: IN1=1, IN2=0
//	brake:   IN1=0, IN2=0
type Channel struct {
	IN1, IN2 DirPin
	PWM      DutyOutput
}

// Interface is what the controllers need from the motor driver.
type Interface interface {
	SetSpeed(id ID, signedPWM int16) error
	Stop(id ID) error
}

type Driver struct {
	channels [2]Channel
	pwmMax   uint16
}

var _ Interface = (*Driver)(nil)

func New(left, right Channel, pwmMax uint16) *Driver {
	return &Driver{
		channels: [2]Channel{left, right},
		pwmMax:   pwmMax,
	}
}

func (d *Driver) PWMMax() uint16 {
	return d.pwmMax
}

// Init brakes both motors.
func (d *Driver) Init() error {
	for _, id := range All {
		if err := d.Stop(id); err != nil {
			return err
		}
	}
	return nil
}

// SetSpeed drives a motor with a signed PWM command.  Zero brakes.  The
// direction lines are always written before a non-zero duty so the bridge
// never sees the new duty with a stale direction.
func (d *Driver) SetSpeed(id ID, signedPWM int16) error {
	if id != Left && id != Right {
		return ErrUnknownMotor
	}
	ch := d.channels[id]

	if signedPWM == 0 {
		if err := ch.PWM.SetDuty(0); err != nil {
			return pkgerrors.Wrapf(err, "failed to zero %v duty", id)
		}
		return d.setDirection(id, 0)
	}

	dir := 1
	mag := int32(signedPWM)
	if signedPWM < 0 {
		dir = -1
		mag = -mag
	}
	if mag > int32(d.pwmMax) {
		mag = int32(d.pwmMax)
	}

	if err := d.setDirection(id, dir); err != nil {
		return err
	}
	if err := ch.PWM.SetDuty(uint16(mag)); err != nil {
		return pkgerrors.Wrapf(err, "failed to set %v duty", id)
	}
	return nil
}

func (d *Driver) Stop(id ID) error {
	return d.SetSpeed(id, 0)
}

func (d *Driver) setDirection(id ID, dir int) error {
	in1, in2 := gpio.Low, gpio.Low
	switch {
	case dir > 0:
		in2 = gpio.High
	case dir < 0:
		in1 = gpio.High
	}
	ch := d.channels[id]
	if err := ch.IN1.Out(in1); err != nil {
		return pkgerrors.Wrapf(err, "failed to set %v IN1", id)
	}
	if err := ch.IN2.Out(in2); err != nil {
		return pkgerrors.Wrapf(err, "failed to set %v IN2", id)
	}
	return nil
}
