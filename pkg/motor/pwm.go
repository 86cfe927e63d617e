package motor

import (
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/physic"
)

// PeriphPWM maps duty counts onto a periph PWM-capable pin.
type PeriphPWM struct {
	Pin       gpio.PinOut
	Frequency physic.Frequency
	// Max is the count that means 100% duty minus one, like a timer ARR.
	Max uint16
}

func (p *PeriphPWM) SetDuty(counts uint16) error {
	if counts > p.Max {
		counts = p.Max
	}
	return p.Pin.PWM(DutyFromCounts(counts, p.Max), p.Frequency)
}

// DutyFromCounts converts 0..max counts to a periph duty, where max+1 counts
// is a full period.
func DutyFromCounts(counts, max uint16) gpio.Duty {
	return gpio.Duty(uint64(counts) * uint64(gpio.DutyMax) / (uint64(max) + 1))
}
