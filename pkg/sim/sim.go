package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"periph.io/x/periph/conn/gpio"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/clock"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/encoder"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/imu"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/motor"
)

type Config struct {
	PulsesPerRev uint32
	PWMMax       uint16
	// MaxRPS is the wheel speed at full duty.
	MaxRPS float64
	// Stiction is the lowest duty that turns a wheel at all.
	Stiction uint16
	// TimeConstantMS is the first-order lag of the wheel speed; 0 is instant.
	TimeConstantMS float64
	// Scale multiplies each wheel's speed, to model mismatched motors.
	Scale [2]float64

	WheelDiameterMM float64
	TrackWidthMM    float64
	// GyroBiasDPS is added to the simulated gyro Z output.
	GyroBiasDPS float64
	WhoAmI      byte
}

func DefaultConfig() Config {
	return Config{
		PulsesPerRev:    40,
		PWMMax:          99,
		MaxRPS:          3,
		Stiction:        40,
		TimeConstantMS:  0,
		Scale:           [2]float64{1, 1},
		WheelDiameterMM: 65,
		TrackWidthMM:    150,
		WhoAmI:          imu.ExpectedWhoAmI,
	}
}

type wheel struct {
	in1, in2 gpio.Level
	duty     uint16

	rps     float64
	halfPos float64 // position in half-ticks since the last pin toggle
	pinHigh bool
}

// Plant models both drive wheels, their encoders and a gyro.  Time only
// moves when Step is called; the plant owns the clock it advances.
type Plant struct {
	Clock *clock.Manual

	lock     sync.Mutex
	cfg      Config
	wheels   [2]wheel
	channels [2]*encoder.Channel

	gyroFail int
	yawRate  float64
}

func New(cfg Config) *Plant {
	p := &Plant{
		Clock: clock.NewManual(0),
		cfg:   cfg,
	}
	for i := range p.wheels {
		p.wheels[i].pinHigh = true
		if p.cfg.Scale[i] == 0 {
			p.cfg.Scale[i] = 1
		}
	}
	return p
}

// Attach connects the simulated encoder outputs to the channels of pair.
func (p *Plant) Attach(pair *encoder.Pair) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.channels[motor.Left] = pair.Left
	p.channels[motor.Right] = pair.Right
}

// PinLevels returns the current encoder pin levels, for encoder.Pair.Init.
func (p *Plant) PinLevels() (left, right bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.wheels[motor.Left].pinHigh, p.wheels[motor.Right].pinHigh
}

// MotorChannel returns H-bridge wiring that drives the simulated wheel.
func (p *Plant) MotorChannel(id motor.ID) motor.Channel {
	return motor.Channel{
		IN1: dirPin{p: p, id: id, in: 1},
		IN2: dirPin{p: p, id: id, in: 2},
		PWM: dutyOutput{p: p, id: id},
	}
}

type dirPin struct {
	p  *Plant
	id motor.ID
	in int
}

func (d dirPin) Out(l gpio.Level) error {
	d.p.lock.Lock()
	defer d.p.lock.Unlock()
	if d.in == 1 {
		d.p.wheels[d.id].in1 = l
	} else {
		d.p.wheels[d.id].in2 = l
	}
	return nil
}

type dutyOutput struct {
	p  *Plant
	id motor.ID
}

func (d dutyOutput) SetDuty(counts uint16) error {
	d.p.lock.Lock()
	defer d.p.lock.Unlock()
	d.p.wheels[d.id].duty = counts
	return nil
}

// Duty returns the signed drive of a wheel as the H-bridge sees it.
func (p *Plant) Duty(id motor.ID) int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.wheels[id].signedDuty()
}

func (w *wheel) signedDuty() int {
	switch {
	case w.in1 == gpio.Low && w.in2 == gpio.High:
		return int(w.duty)
	case w.in1 == gpio.High && w.in2 == gpio.Low:
		return -int(w.duty)
	}
	return 0
}

// RPS returns the current signed speed of a wheel.
func (p *Plant) RPS(id motor.ID) float64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.wheels[id].rps
}

func (p *Plant) targetRPS(i int) float64 {
	d := p.wheels[i].signedDuty()
	mag := d
	if mag < 0 {
		mag = -mag
	}
	if mag < int(p.cfg.Stiction) || p.cfg.PWMMax <= p.cfg.Stiction {
		return 0
	}
	r := p.cfg.MaxRPS * float64(mag-int(p.cfg.Stiction)) / float64(int(p.cfg.PWMMax)-int(p.cfg.Stiction))
	r *= p.cfg.Scale[i]
	if d < 0 {
		r = -r
	}
	return r
}

// Step advances the simulation in 1ms increments, toggling the encoder pins
// as the wheels turn.
func (p *Plant) Step(d time.Duration) {
	steps := int(d / time.Millisecond)
	for n := 0; n < steps; n++ {
		p.stepMS()
	}
}

func (p *Plant) stepMS() {
	p.Clock.Advance(1)

	p.lock.Lock()
	type edge struct {
		ch   *encoder.Channel
		high bool
	}
	var edges []edge
	for i := range p.wheels {
		w := &p.wheels[i]
		target := p.targetRPS(i)
		if p.cfg.TimeConstantMS > 0 {
			w.rps += (target - w.rps) * math.Min(1, 1/p.cfg.TimeConstantMS)
		} else {
			w.rps = target
		}
		w.halfPos += math.Abs(w.rps) * float64(p.cfg.PulsesPerRev) * 2 / 1000
		for w.halfPos >= 1 {
			w.halfPos--
			w.pinHigh = !w.pinHigh
			if p.channels[i] != nil {
				edges = append(edges, edge{p.channels[i], w.pinHigh})
			}
		}
	}
	p.yawRate = p.bodyYawRateDPS()
	p.lock.Unlock()

	for _, e := range edges {
		e.ch.OnEdge(e.high)
	}
}

// bodyYawRateDPS is the rotation rate implied by the wheel speeds,
// anticlockwise positive.
func (p *Plant) bodyYawRateDPS() float64 {
	if p.cfg.TrackWidthMM <= 0 {
		return 0
	}
	circ := math.Pi * p.cfg.WheelDiameterMM
	vL := p.wheels[motor.Left].rps * circ
	vR := p.wheels[motor.Right].rps * circ
	return (vR - vL) / p.cfg.TrackWidthMM * 180 / math.Pi
}

// Wait steps the plant by d (at least 1ms) so that a poll loop driven by it
// sees the world move.
func (p *Plant) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	p.Step(d)
	return nil
}

// Run steps the plant in real time until ctx is done.
func (p *Plant) Run(ctx context.Context, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Step(period)
		}
	}
}
