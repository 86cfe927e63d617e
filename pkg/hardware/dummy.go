package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/encoder"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/motor"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/robot"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/sim"
)

// Dummy runs the robot against the simulated plant in real time, for working
// without a chassis.
type Dummy struct {
	cfg      *config.Config
	Plant    *sim.Plant
	encoders *encoder.Pair
	motors   *motor.Driver

	ctx     context.Context
	cancel  context.CancelFunc
	capture sync.Once
	done    sync.WaitGroup
}

var _ Interface = (*Dummy)(nil)

func NewDummy(cfg *config.Config) *Dummy {
	simCfg := sim.DefaultConfig()
	simCfg.PulsesPerRev = cfg.Encoder.PulsesPerRev
	simCfg.PWMMax = cfg.Motor.PWMMax
	simCfg.WheelDiameterMM = cfg.Encoder.WheelDiameterMM
	simCfg.TimeConstantMS = 30

	d := &Dummy{
		cfg:   cfg,
		Plant: sim.New(simCfg),
	}
	d.encoders = encoder.NewPair(d.Plant.Clock, cfg.Encoder.MinTickIntervalMS, encoder.Geometry{
		PulsesPerRev:    cfg.Encoder.PulsesPerRev,
		WheelDiameterMM: cfg.Encoder.WheelDiameterMM,
		SlipFactor:      cfg.Encoder.SlipFactor,
	})
	d.Plant.Attach(d.encoders)
	d.motors = motor.New(d.Plant.MotorChannel(motor.Left), d.Plant.MotorChannel(motor.Right), cfg.Motor.PWMMax)
	return d
}

func (d *Dummy) Start(ctx context.Context) error {
	fmt.Println("DHW: Start")
	d.ctx, d.cancel = context.WithCancel(ctx)
	return nil
}

func (d *Dummy) startCapture() {
	d.capture.Do(func() {
		fmt.Println("DHW: simulation running")
		d.done.Add(1)
		go func() {
			defer d.done.Done()
			d.Plant.Run(d.ctx, time.Millisecond)
		}()
	})
}

func (d *Dummy) Parts() robot.Parts {
	return robot.Parts{
		Clock:        d.Plant.Clock,
		Encoders:     d.encoders,
		PinLevels:    d.Plant.PinLevels,
		StartCapture: d.startCapture,
		Motors:       d.motors,
		Gyro:         d.Plant.Gyro(),
	}
}

func (d *Dummy) Shutdown() {
	fmt.Println("DHW: Shutdown")
	_ = d.motors.Init()
	if d.cancel != nil {
		d.cancel()
	}
	d.done.Wait()
}
