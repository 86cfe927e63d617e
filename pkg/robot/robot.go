package robot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/clock"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/debug"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/encoder"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/heading"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/imu"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/motion"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/motor"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/sound"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/speedcontrol"
)

var (
	ErrWrongDevice = errors.New("gyro did not identify as an MPU6050")
	ErrNotStarted  = errors.New("robot not started")
)

// Parts is the hardware the robot is assembled from.
type Parts struct {
	Clock    clock.Clock
	Encoders *encoder.Pair
	// PinLevels reports the current encoder pin levels for priming the edge
	// detectors.
	PinLevels func() (left, right bool)
	// StartCapture, if set, starts whatever feeds edges to the encoders.  It is
	// called once the encoders have been primed.
	StartCapture func()
	Motors    *motor.Driver
	Gyro      imu.GyroChannel
	// Waiter paces the encoder polling of distance moves.  Defaults to real time.
	Waiter motion.Waiter
	Sounds sound.Player
}

// Status is a snapshot for diagnostics.
type Status struct {
	Yaw                   imu.YawEstimate
	TotalLeft, TotalRight uint32
	RPSLeft, RPSRight     float64
	PWMLeft, PWMRight     int16
	Cruising              bool
	BaseRPS               float64
	TargetYaw             float64
	Move                  motion.State
}

type Robot struct {
	cfg   *config.Config
	parts Parts
	sink  debug.Sink

	speed   *speedcontrol.Controller
	heading *heading.Corrector
	yaw     *imu.YawEstimator
	moves   *motion.Supervisor

	// lock serialises the periodic control path and distance moves.
	lock       sync.Mutex
	started    bool
	cruising   bool
	baseRPS    float64
	lastTick   uint32
	lastReport uint32
	imuFailing bool
}

func New(cfg *config.Config, parts Parts, sink debug.Sink) *Robot {
	if parts.Sounds == nil {
		parts.Sounds = sound.Silent{}
	}
	if parts.PinLevels == nil {
		parts.PinLevels = func() (bool, bool) { return true, true }
	}
	r := &Robot{
		cfg:   cfg,
		parts: parts,
		sink:  sink,
		speed: speedcontrol.New(parts.Encoders, parts.Motors, speedcontrol.Config{
			Gains: speedcontrol.Gains{
				Kp: cfg.Speed.Kp,
				Ki: cfg.Speed.Ki,
				Kd: cfg.Speed.Kd,
			},
			PWMMax:      cfg.Motor.PWMMax,
			PWMMinStart: cfg.Motor.PWMMinStart,
		}),
		heading: heading.New(cfg.Heading.KpYaw),
		yaw:     imu.NewYawEstimator(imu.Bias{}),
	}
	r.moves = motion.New(parts.Encoders, parts.Motors, parts.Clock, sink, motion.Config{
		PWMMax:           cfg.Motor.PWMMax,
		PWMMinStart:      cfg.Motor.PWMMinStart,
		ForwardSign:      cfg.Motor.ForwardSign,
		BalanceLeft:      cfg.Motor.BalanceLeft,
		BalanceRight:     cfg.Motor.BalanceRight,
		PollInterval:     cfg.Motion.PollInterval(),
		ProgressInterval: cfg.Motion.ProgressInterval(),
		Timeout:          cfg.Motion.Timeout(),
	})
	if parts.Waiter != nil {
		r.moves.Waiter = parts.Waiter
	}
	return r
}

// Start checks the gyro is the part we expect, calibrates it with the robot
// at rest and brings the encoders and motors to a known state.  An identity
// mismatch is fatal; there is no retry.
func (r *Robot) Start() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.started {
		return nil
	}

	id, err := r.parts.Gyro.WhoAmI()
	if err != nil {
		r.parts.Sounds.Play(sound.Fault)
		return pkgerrors.Wrap(err, "failed to read gyro identity")
	}
	if id != imu.ExpectedWhoAmI {
		r.parts.Sounds.Play(sound.Fault)
		return pkgerrors.Wrapf(ErrWrongDevice, "WHO_AM_I=0x%02x, expected 0x%02x", id, imu.ExpectedWhoAmI)
	}
	if c, ok := r.parts.Gyro.(interface{ Configure() error }); ok {
		if err := c.Configure(); err != nil {
			return err
		}
	}

	if err := r.parts.Motors.Init(); err != nil {
		return pkgerrors.Wrap(err, "failed to initialise motors")
	}
	bias, err := imu.CalibrateGyro(r.parts.Gyro, r.cfg.IMU.CalibrationSamples, r.cfg.IMU.CalibrationPause())
	if err != nil {
		r.parts.Sounds.Play(sound.Fault)
		return pkgerrors.Wrap(err, "gyro calibration failed")
	}
	r.yaw = imu.NewYawEstimator(bias)

	r.parts.Encoders.Init(r.parts.PinLevels())
	if r.parts.StartCapture != nil {
		r.parts.StartCapture()
	}
	r.speed.Init()
	r.lastTick = r.parts.Clock.Now()
	r.lastReport = r.lastTick
	r.started = true

	fmt.Println("ROBOT: started")
	r.parts.Sounds.Play(sound.Startup)
	return nil
}

// Run executes the control loop every control period until ctx is done, then
// stops the motors.
func (r *Robot) Run(ctx context.Context) error {
	r.lock.Lock()
	started := r.started
	r.lock.Unlock()
	if !started {
		return ErrNotStarted
	}

	period := r.cfg.Loop.ControlPeriod()
	fmt.Println("ROBOT: control loop running every", period)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	defer func() {
		r.lock.Lock()
		defer r.lock.Unlock()
		if err := r.speed.Stop(); err != nil {
			fmt.Println("ROBOT: failed to stop motors:", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("ROBOT: control loop stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Step(); err != nil {
				fmt.Println("ROBOT: control step failed:", err)
			}
		}
	}
}

// Step runs one control period using the time measured since the last one.
func (r *Robot) Step() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := r.parts.Clock.Now()
	dtMS := clock.Elapsed(now, r.lastTick)
	r.lastTick = now
	dt := clock.Seconds(dtMS)

	est, err := r.yaw.Update(r.parts.Gyro, dt)
	if err != nil {
		if !r.imuFailing {
			r.sink.Println("IMU: read failed, holding last yaw:", err)
		}
		r.imuFailing = true
	} else if r.imuFailing {
		r.sink.Println(fmt.Sprintf("IMU: recovered, yaw=%.1f", est.AngleDeg))
		r.imuFailing = false
	}

	if r.cruising {
		left, right := r.heading.Compute(est.AngleDeg, r.baseRPS)
		r.speed.SetTarget(left, right, 1, 1)
	}
	err = r.speed.Update(dt)

	if iv := uint32(r.cfg.Loop.ReportIntervalMS); iv > 0 && clock.Elapsed(now, r.lastReport) >= iv {
		r.lastReport = now
		r.sink.Println(r.statusLine(est))
	}
	return err
}

func (r *Robot) statusLine(est imu.YawEstimate) string {
	ml, mr := r.speed.Measured()
	cl, cr := r.speed.Commands()
	return fmt.Sprintf("yaw=%.1f stale=%v L=%d R=%d rps=%.2f/%.2f pwm=%d/%d",
		est.AngleDeg, est.Stale,
		r.parts.Encoders.TotalLeft(), r.parts.Encoders.TotalRight(),
		ml, mr, cl, cr)
}

// Cruise drives at baseRPS per wheel, steering to hold headingDeg.  A
// negative rate drives backwards.
func (r *Robot) Cruise(baseRPS, headingDeg float64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.cruising = true
	r.baseRPS = baseRPS
	r.heading.SetTarget(headingDeg)
}

// Halt ends cruising and brakes the motors.
func (r *Robot) Halt() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.cruising = false
	r.baseRPS = 0
	return r.speed.Stop()
}

// DriveDistanceMM runs a distance move.  The periodic control path is held off
// for the duration and resumes cleanly afterwards, with cruising cancelled.
func (r *Robot) DriveDistanceMM(ctx context.Context, distanceMM float64, signedPWM int16) (motion.Result, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.cruising = false
	r.baseRPS = 0
	if err := r.speed.Stop(); err != nil {
		return motion.Result{}, err
	}
	res, err := r.moves.DriveDistanceMM(ctx, distanceMM, signedPWM)

	// Ticks accumulated during the move must not be seen as one control period.
	r.speed.Init()
	r.lastTick = r.parts.Clock.Now()
	if err != nil {
		r.parts.Sounds.Play(sound.Fault)
		return res, err
	}
	if res.TargetMM > 0 {
		r.parts.Sounds.Play(sound.MoveDone)
	}
	return res, nil
}

func (r *Robot) MoveForwardMM(ctx context.Context, distanceMM float64, pwm int16) (motion.Result, error) {
	return r.DriveDistanceMM(ctx, distanceMM, motion.AbsPWM(pwm))
}

func (r *Robot) MoveBackwardMM(ctx context.Context, distanceMM float64, pwm int16) (motion.Result, error) {
	return r.DriveDistanceMM(ctx, distanceMM, -motion.AbsPWM(pwm))
}

// ResetYaw redefines the current heading.
func (r *Robot) ResetYaw(angleDeg float64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.yaw.Reset(angleDeg)
}

func (r *Robot) SetSpeedGains(g speedcontrol.Gains) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.speed.SetGains(g)
}

func (r *Robot) SpeedGains() speedcontrol.Gains {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.speed.Gains()
}

func (r *Robot) SetHeadingGain(kp float64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.heading.KpYaw = kp
}

func (r *Robot) HeadingGain() float64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.heading.KpYaw
}

// Status returns a snapshot.  It waits for any move in progress to finish.
func (r *Robot) Status() Status {
	r.lock.Lock()
	defer r.lock.Unlock()
	ml, mr := r.speed.Measured()
	cl, cr := r.speed.Commands()
	return Status{
		Yaw:        r.yaw.Estimate(),
		TotalLeft:  r.parts.Encoders.TotalLeft(),
		TotalRight: r.parts.Encoders.TotalRight(),
		RPSLeft:    ml,
		RPSRight:   mr,
		PWMLeft:    cl,
		PWMRight:   cr,
		Cruising:   r.cruising,
		BaseRPS:    r.baseRPS,
		TargetYaw:  r.heading.Target(),
		Move:       r.moves.State(),
	}
}
