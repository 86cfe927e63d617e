package hardware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/clock"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/debug"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/encoder"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/imu"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/ina219"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/motor"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/robot"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/sound"
)

var ErrPinNotFound = errors.New("no such GPIO pin")

// Hardware is the real robot: periph GPIO for the encoders and H-bridges and
// the MPU6050 on I2C.
type Hardware struct {
	cfg  *config.Config
	sink debug.Sink

	clock    *clock.System
	encoders *encoder.Pair
	encPins  [2]gpio.PinIO
	motors   *motor.Driver
	gyro     *imu.MPU6050
	power    *ina219.INA219
	speaker  *sound.Speaker

	ctx            context.Context
	cancel         context.CancelFunc
	capture        sync.Once
	watchersDone   sync.WaitGroup
	backgroundDone sync.WaitGroup
}

var _ Interface = (*Hardware)(nil)

func New(cfg *config.Config, sink debug.Sink) *Hardware {
	return &Hardware{
		cfg:   cfg,
		sink:  sink,
		clock: clock.NewSystem(),
	}
}

func lookupPin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, pkgerrors.Wrapf(ErrPinNotFound, "%q", name)
	}
	return p, nil
}

func (h *Hardware) Start(ctx context.Context) error {
	if _, err := host.Init(); err != nil {
		return pkgerrors.Wrap(err, "failed to initialise periph host")
	}
	h.ctx, h.cancel = context.WithCancel(ctx)

	for i, name := range []string{h.cfg.Encoder.LeftPin, h.cfg.Encoder.RightPin} {
		p, err := lookupPin(name)
		if err != nil {
			return err
		}
		if err := p.In(gpio.PullUp, gpio.BothEdges); err != nil {
			return pkgerrors.Wrapf(err, "failed to configure encoder pin %s", name)
		}
		h.encPins[i] = p
	}
	h.encoders = encoder.NewPair(h.clock, h.cfg.Encoder.MinTickIntervalMS, encoder.Geometry{
		PulsesPerRev:    h.cfg.Encoder.PulsesPerRev,
		WheelDiameterMM: h.cfg.Encoder.WheelDiameterMM,
		SlipFactor:      h.cfg.Encoder.SlipFactor,
	})

	left, err := h.motorChannel(h.cfg.Motor.Left)
	if err != nil {
		return err
	}
	right, err := h.motorChannel(h.cfg.Motor.Right)
	if err != nil {
		return err
	}
	h.motors = motor.New(left, right, h.cfg.Motor.PWMMax)

	h.gyro, err = imu.NewI2C(h.cfg.IMU.Device, h.cfg.IMU.Address)
	if err != nil {
		return err
	}

	if h.cfg.Power.Enabled {
		h.startPowerMonitor()
	}
	if h.cfg.Sound.Enabled {
		h.speaker = sound.NewSpeaker(h.cfg.Sound.Dir)
	}
	fmt.Println("HW: devices open")
	return nil
}

func (h *Hardware) motorChannel(pins config.MotorPins) (motor.Channel, error) {
	in1, err := lookupPin(pins.IN1)
	if err != nil {
		return motor.Channel{}, err
	}
	in2, err := lookupPin(pins.IN2)
	if err != nil {
		return motor.Channel{}, err
	}
	pwm, err := lookupPin(pins.PWM)
	if err != nil {
		return motor.Channel{}, err
	}
	return motor.Channel{
		IN1: in1,
		IN2: in2,
		PWM: &motor.PeriphPWM{
			Pin:       pwm,
			Frequency: physic.Frequency(h.cfg.Motor.PWMFrequencyHz) * physic.Hertz,
			Max:       h.cfg.Motor.PWMMax,
		},
	}, nil
}

func (h *Hardware) startPowerMonitor() {
	ps, err := ina219.NewI2C(h.cfg.IMU.Device, h.cfg.Power.Address)
	if err != nil {
		fmt.Println("HW: failed to open power sensor; ignoring!", err)
		return
	}
	if err := ps.Configure(h.cfg.Power.ShuntOhms, h.cfg.Power.MaxCurrentA); err != nil {
		fmt.Println("HW: failed to configure power sensor; ignoring!", err)
		_ = ps.Close()
		return
	}
	h.power = ps
	h.backgroundDone.Add(1)
	go func() {
		defer h.backgroundDone.Done()
		ina219.Monitor(h.ctx, ps, h.cfg.Power.ReportInterval(), h.cfg.Power.LowVoltage, func(line string) {
			h.sink.Println(line)
		})
	}()
}

// startCapture runs one edge watcher goroutine per encoder.
func (h *Hardware) startCapture() {
	h.capture.Do(func() {
		for i, ch := range []*encoder.Channel{h.encoders.Left, h.encoders.Right} {
			h.watchersDone.Add(1)
			go h.loopWatching(h.encPins[i], ch)
		}
	})
}

// loopWatching restarts the watcher if the pin ever fails, until shutdown.
func (h *Hardware) loopWatching(pin gpio.PinIn, ch *encoder.Channel) {
	defer h.watchersDone.Done()
	for {
		err := encoder.Watch(h.ctx, pin, ch)
		if h.ctx.Err() != nil {
			return
		}
		fmt.Printf("===== !!! WARNING !!! %s ENCODER FAILURE (%v); TRYING TO RECOVER =====\n", ch.Name, err)
		time.Sleep(100 * time.Millisecond)
	}
}

func (h *Hardware) pinLevels() (left, right bool) {
	return h.encPins[0].Read() == gpio.High, h.encPins[1].Read() == gpio.High
}

func (h *Hardware) Parts() robot.Parts {
	p := robot.Parts{
		Clock:        h.clock,
		Encoders:     h.encoders,
		PinLevels:    h.pinLevels,
		StartCapture: h.startCapture,
		Motors:       h.motors,
		Gyro:         h.gyro,
	}
	if h.speaker != nil {
		p.Sounds = h.speaker
	}
	return p
}

func (h *Hardware) Shutdown() {
	fmt.Println("HW: shutting down")
	if h.motors != nil {
		if err := h.motors.Init(); err != nil {
			fmt.Println("HW: failed to brake motors:", err)
		}
	}
	if h.cancel != nil {
		h.cancel()
	}
	h.watchersDone.Wait()
	h.backgroundDone.Wait()
	if h.gyro != nil {
		_ = h.gyro.Close()
	}
	if h.power != nil {
		_ = h.power.Close()
	}
	if h.speaker != nil {
		h.speaker.Close()
	}
	for _, p := range h.encPins {
		if p != nil {
			_ = p.Halt()
		}
	}
	fmt.Println("HW: shut down")
}
