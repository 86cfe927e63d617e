package motion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/clock"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/debug"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/motor"
)

var (
	ErrBusy    = errors.New("a move is already in progress")
	ErrTimeout = errors.New("move timed out before reaching its distance")
)

type State int

const (
	Idle State = iota
	Moving
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Moving:
		return "moving"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Odometer is the part of the encoder API the supervisor needs.
type Odometer interface {
	TotalLeft() uint32
	TotalRight() uint32
	TicksToMM(ticks uint32) float64
}

// Waiter pauses between encoder polls.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}

// RealTime waits on the wall clock.  A zero wait only checks for
// cancellation.
type RealTime struct{}

func (RealTime) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Config struct {
	PWMMax      uint16
	PWMMinStart uint16
	// ForwardSign is +1, or -1 if the motors are wired so that a positive
	// command drives the robot backwards.
	ForwardSign  int
	BalanceLeft  float64
	BalanceRight float64

	PollInterval     time.Duration
	ProgressInterval time.Duration
	// Timeout of 0 lets a move run until it reaches its distance.
	Timeout time.Duration
}

// Goal is the move in progress.
type Goal struct {
	TargetMM   float64
	PWM        uint16
	Direction  int
	StartLeft  uint32
	StartRight uint32
}

type Result struct {
	TargetMM   float64
	TraveledMM float64
	LeftMM     float64
	RightMM    float64
	DurationMS uint32
}

// Supervisor runs distance-bounded moves with the motors driven open loop at
// a fixed PWM.
type Supervisor struct {
	odo    Odometer
	motors motor.Interface
	clock  clock.Clock
	sink   debug.Sink
	cfg    Config

	Waiter Waiter

	// active is held for the whole of a move.
	active sync.Mutex

	lock  sync.Mutex
	state State
	goal  *Goal
}

func New(odo Odometer, motors motor.Interface, clk clock.Clock, sink debug.Sink, cfg Config) *Supervisor {
	if cfg.ForwardSign == 0 {
		cfg.ForwardSign = 1
	}
	if cfg.BalanceLeft == 0 {
		cfg.BalanceLeft = 1
	}
	if cfg.BalanceRight == 0 {
		cfg.BalanceRight = 1
	}
	return &Supervisor{
		odo:    odo,
		motors: motors,
		clock:  clk,
		sink:   sink,
		cfg:    cfg,
		Waiter: RealTime{},
	}
}

func (s *Supervisor) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Goal returns a copy of the active goal, if any.
func (s *Supervisor) Goal() (Goal, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.goal == nil {
		return Goal{}, false
	}
	return *s.goal, true
}

// ClampPWM limits a PWM magnitude to the range the motors can actually start in.
func (c Config) ClampPWM(mag int) uint16 {
	if mag < int(c.PWMMinStart) {
		mag = int(c.PWMMinStart)
	}
	if mag > int(c.PWMMax) {
		mag = int(c.PWMMax)
	}
	return uint16(mag)
}

// DriveDistanceMM drives both wheels at signedPWM until the mean wheel
// distance reaches distanceMM.  A non-positive distance or zero PWM is a
// no-op.  The motors are always stopped before returning, including on
// timeout and cancellation, and the result reports the distance covered.
func (s *Supervisor) DriveDistanceMM(ctx context.Context, distanceMM float64, signedPWM int16) (Result, error) {
	if distanceMM <= 0 || signedPWM == 0 {
		return Result{}, nil
	}
	if !s.active.TryLock() {
		return Result{}, ErrBusy
	}
	defer s.active.Unlock()

	mag := s.cfg.ClampPWM(int(math.Abs(float64(signedPWM))))
	dirSign := 1
	if signedPWM < 0 {
		dirSign = -1
	}
	motorDir := dirSign * s.cfg.ForwardSign

	goal := &Goal{
		TargetMM:   distanceMM,
		PWM:        mag,
		Direction:  dirSign,
		StartLeft:  s.odo.TotalLeft(),
		StartRight: s.odo.TotalRight(),
	}
	s.lock.Lock()
	s.goal = goal
	s.state = Moving
	s.lock.Unlock()

	s.sink.Println(fmt.Sprintf("Drive %.1f mm, pwm_mag=%d dir_sign=%d", distanceMM, mag, dirSign))

	pwmL := int16(float64(mag)*s.cfg.BalanceLeft) * int16(motorDir)
	pwmR := int16(float64(mag)*s.cfg.BalanceRight) * int16(motorDir)

	start := s.clock.Now()
	res := Result{TargetMM: distanceMM}
	err := s.setBoth(pwmL, pwmR)
	if err == nil {
		err = s.track(ctx, goal, start, &res)
	}

	if stopErr := s.setBoth(0, 0); stopErr != nil && err == nil {
		err = stopErr
	}
	res.DurationMS = clock.Elapsed(s.clock.Now(), start)
	s.sink.Println("STOP!")

	s.lock.Lock()
	s.goal = nil
	s.state = Done
	s.lock.Unlock()
	return res, err
}

func (s *Supervisor) track(ctx context.Context, goal *Goal, start uint32, res *Result) error {
	lastPrint := start
	for {
		res.LeftMM = s.odo.TicksToMM(s.odo.TotalLeft() - goal.StartLeft)
		res.RightMM = s.odo.TicksToMM(s.odo.TotalRight() - goal.StartRight)
		res.TraveledMM = 0.5 * (res.LeftMM + res.RightMM)

		now := s.clock.Now()
		if s.cfg.ProgressInterval > 0 &&
			clock.Elapsed(now, lastPrint) > uint32(s.cfg.ProgressInterval/time.Millisecond) {
			lastPrint = now
			s.sink.Println(fmt.Sprintf("Distance: %.1f mm   L=%.1f R=%.1f mm", res.TraveledMM, res.LeftMM, res.RightMM))
		}

		if res.TraveledMM >= goal.TargetMM {
			return nil
		}
		if s.cfg.Timeout > 0 && clock.Elapsed(now, start) >= uint32(s.cfg.Timeout/time.Millisecond) {
			return ErrTimeout
		}
		if err := s.Waiter.Wait(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (s *Supervisor) setBoth(left, right int16) error {
	if err := s.motors.SetSpeed(motor.Left, left); err != nil {
		return err
	}
	return s.motors.SetSpeed(motor.Right, right)
}

// AbsPWM is the magnitude of a signed PWM command, saturating MinInt16 to
// MaxInt16 so that the result is never negative.
func AbsPWM(v int16) int16 {
	if v == math.MinInt16 {
		return math.MaxInt16
	}
	if v < 0 {
		return -v
	}
	return v
}

// MoveForwardMM drives forwards whatever the sign of pwm.
func (s *Supervisor) MoveForwardMM(ctx context.Context, distanceMM float64, pwm int16) (Result, error) {
	return s.DriveDistanceMM(ctx, distanceMM, AbsPWM(pwm))
}

// MoveBackwardMM drives backwards whatever the sign of pwm.
func (s *Supervisor) MoveBackwardMM(ctx context.Context, distanceMM float64, pwm int16) (Result, error) {
	return s.DriveDistanceMM(ctx, distanceMM, -AbsPWM(pwm))
}
