package motion

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/debug"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/encoder"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/motor"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/sim"
)

// recordingMotors passes commands through to the real driver and remembers them.
type recordingMotors struct {
	motor.Interface

	lock     sync.Mutex
	commands []command
}

type command struct {
	id  motor.ID
	pwm int16
}

func (r *recordingMotors) SetSpeed(id motor.ID, pwm int16) error {
	r.lock.Lock()
	r.commands = append(r.commands, command{id, pwm})
	r.lock.Unlock()
	return r.Interface.SetSpeed(id, pwm)
}

func (r *recordingMotors) Commands() []command {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]command(nil), r.commands...)
}

type rig struct {
	plant  *sim.Plant
	pair   *encoder.Pair
	motors *recordingMotors
	sink   *debug.Recorder
	sup    *Supervisor
}

func defaultConfig() Config {
	return Config{
		PWMMax:           99,
		PWMMinStart:      60,
		ForwardSign:      1,
		BalanceLeft:      1,
		BalanceRight:     1,
		PollInterval:     time.Millisecond,
		ProgressInterval: 100 * time.Millisecond,
	}
}

func newRig(cfg Config, plantCfg sim.Config) *rig {
	plant := sim.New(plantCfg)
	pair := encoder.NewPair(plant.Clock, 2, encoder.Geometry{PulsesPerRev: 40, WheelDiameterMM: 65, SlipFactor: 0.95})
	plant.Attach(pair)
	pair.Init(plant.PinLevels())
	drv := motor.New(plant.MotorChannel(motor.Left), plant.MotorChannel(motor.Right), 99)
	motors := &recordingMotors{Interface: drv}
	sink := &debug.Recorder{}
	sup := New(pair, motors, plant.Clock, sink, cfg)
	sup.Waiter = plant
	return &rig{plant, pair, motors, sink, sup}
}

func TestMoveForward(t *testing.T) {
	Convey("Given a simulated robot", t, func() {
		r := newRig(defaultConfig(), sim.DefaultConfig())
		mmPerTick := r.pair.TicksToMM(1)

		Convey("MoveForwardMM(300, 65) stops within a tick of 300mm", func() {
			res, err := r.sup.MoveForwardMM(context.Background(), 300, 65)
			So(err, ShouldBeNil)
			So(res.TraveledMM, ShouldBeGreaterThanOrEqualTo, 300)
			So(res.TraveledMM, ShouldBeLessThan, 300+mmPerTick)
			So(r.sup.State(), ShouldEqual, Done)

			Convey("both motors end at zero", func() {
				cmds := r.motors.Commands()
				So(cmds[0], ShouldResemble, command{motor.Left, 65})
				So(cmds[1], ShouldResemble, command{motor.Right, 65})
				So(cmds[len(cmds)-2], ShouldResemble, command{motor.Left, 0})
				So(cmds[len(cmds)-1], ShouldResemble, command{motor.Right, 0})
				So(r.plant.Duty(motor.Left), ShouldEqual, 0)
				So(r.plant.Duty(motor.Right), ShouldEqual, 0)
			})

			Convey("the wheels are still after the move", func() {
				l, rt := r.pair.TotalLeft(), r.pair.TotalRight()
				r.plant.Step(200 * time.Millisecond)
				So(r.pair.TotalLeft(), ShouldEqual, l)
				So(r.pair.TotalRight(), ShouldEqual, rt)
			})

			Convey("progress is reported and the move ends with STOP!", func() {
				lines := r.sink.Lines()
				So(lines[0], ShouldStartWith, "Drive 300.0 mm, pwm_mag=65 dir_sign=1")
				So(lines[len(lines)-1], ShouldEqual, "STOP!")
				So(r.sink.Contains("Distance: "), ShouldBeTrue)
			})
		})

		Convey("a zero or negative distance does nothing", func() {
			for _, mm := range []float64{0, -10} {
				res, err := r.sup.MoveForwardMM(context.Background(), mm, 65)
				So(err, ShouldBeNil)
				So(res, ShouldResemble, Result{})
			}
			So(r.motors.Commands(), ShouldBeEmpty)
			So(r.sink.Lines(), ShouldBeEmpty)
			So(r.sup.State(), ShouldEqual, Idle)
		})

		Convey("a zero PWM does nothing", func() {
			res, err := r.sup.DriveDistanceMM(context.Background(), 100, 0)
			So(err, ShouldBeNil)
			So(res, ShouldResemble, Result{})
			So(r.motors.Commands(), ShouldBeEmpty)
		})

		Convey("MoveBackwardMM drives both wheels in reverse", func() {
			res, err := r.sup.MoveBackwardMM(context.Background(), 100, 70)
			So(err, ShouldBeNil)
			So(res.TraveledMM, ShouldBeGreaterThanOrEqualTo, 100)
			cmds := r.motors.Commands()
			So(cmds[0], ShouldResemble, command{motor.Left, -70})
			So(cmds[1], ShouldResemble, command{motor.Right, -70})
		})

		Convey("MoveBackwardMM ignores the sign of its PWM", func() {
			_, err := r.sup.MoveBackwardMM(context.Background(), 50, -70)
			So(err, ShouldBeNil)
			So(r.motors.Commands()[0].pwm, ShouldEqual, int16(-70))
		})

		Convey("PWM magnitudes are clamped to the startable range", func() {
			_, err := r.sup.MoveForwardMM(context.Background(), 50, 30)
			So(err, ShouldBeNil)
			So(r.motors.Commands()[0].pwm, ShouldEqual, int16(60))

			_, err = r.sup.MoveForwardMM(context.Background(), 50, 500)
			So(err, ShouldBeNil)
			So(r.motors.Commands()[4].pwm, ShouldEqual, int16(99))
		})
	})
}

func TestMoveConfiguration(t *testing.T) {
	Convey("With wheels wired backwards", t, func() {
		cfg := defaultConfig()
		cfg.ForwardSign = -1
		r := newRig(cfg, sim.DefaultConfig())

		_, err := r.sup.MoveForwardMM(context.Background(), 50, 65)
		So(err, ShouldBeNil)
		So(r.motors.Commands()[0].pwm, ShouldEqual, int16(-65))
		So(r.motors.Commands()[1].pwm, ShouldEqual, int16(-65))
	})

	Convey("With a wheel balance", t, func() {
		cfg := defaultConfig()
		cfg.BalanceLeft = 0.9
		r := newRig(cfg, sim.DefaultConfig())

		_, err := r.sup.MoveForwardMM(context.Background(), 50, 65)
		So(err, ShouldBeNil)
		// 65 * 0.9 = 58.5, truncated.
		So(r.motors.Commands()[0].pwm, ShouldEqual, int16(58))
		So(r.motors.Commands()[1].pwm, ShouldEqual, int16(65))
	})

	Convey("With a coarse poll interval", t, func() {
		cfg := defaultConfig()
		cfg.PollInterval = 20 * time.Millisecond
		r := newRig(cfg, sim.DefaultConfig())

		res, err := r.sup.MoveForwardMM(context.Background(), 300, 65)
		So(err, ShouldBeNil)
		// At 65 PWM the sim wheel turns ~1.27 rps, ~1 tick per 20ms poll.
		So(res.TraveledMM, ShouldBeLessThan, 300+3*r.pair.TicksToMM(1))
	})
}

type gateWaiter struct {
	entered chan struct{}
}

func (g *gateWaiter) Wait(ctx context.Context, d time.Duration) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestMoveTermination(t *testing.T) {
	Convey("Given a robot that can't move", t, func() {
		plantCfg := sim.DefaultConfig()
		plantCfg.Stiction = 100

		Convey("a move with a timeout fails with ErrTimeout and stops the motors", func() {
			cfg := defaultConfig()
			cfg.Timeout = 500 * time.Millisecond
			r := newRig(cfg, plantCfg)

			res, err := r.sup.MoveForwardMM(context.Background(), 100, 65)
			So(err, ShouldEqual, ErrTimeout)
			So(res.TraveledMM, ShouldEqual, 0.0)
			So(res.DurationMS, ShouldBeGreaterThanOrEqualTo, 500)
			So(r.plant.Duty(motor.Left), ShouldEqual, 0)
			So(r.plant.Duty(motor.Right), ShouldEqual, 0)
			So(r.sink.Contains("STOP!"), ShouldBeTrue)
		})

		Convey("a cancelled move returns the context error and stops the motors", func() {
			r := newRig(defaultConfig(), plantCfg)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := r.sup.MoveForwardMM(ctx, 100, 65)
			So(err, ShouldEqual, context.Canceled)
			cmds := r.motors.Commands()
			So(cmds[len(cmds)-1], ShouldResemble, command{motor.Right, 0})
		})

		Convey("a second move while one is running is rejected", func() {
			r := newRig(defaultConfig(), plantCfg)
			gate := &gateWaiter{entered: make(chan struct{}, 1)}
			r.sup.Waiter = gate

			ctx, cancel := context.WithCancel(context.Background())
			errs := make(chan error, 1)
			go func() {
				_, err := r.sup.MoveForwardMM(ctx, 100, 65)
				errs <- err
			}()
			<-gate.entered
			So(r.sup.State(), ShouldEqual, Moving)
			goal, ok := r.sup.Goal()
			So(ok, ShouldBeTrue)
			So(goal.TargetMM, ShouldEqual, 100.0)

			_, err := r.sup.MoveBackwardMM(context.Background(), 100, 65)
			So(err, ShouldEqual, ErrBusy)

			cancel()
			So(<-errs, ShouldEqual, context.Canceled)
			_, ok = r.sup.Goal()
			So(ok, ShouldBeFalse)
		})
	})
}
