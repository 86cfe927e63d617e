package robot

import (
	"context"
	"math"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/debug"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/encoder"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/motion"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/motor"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/sim"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/sound"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/speedcontrol"
)

type recordingPlayer struct {
	played []sound.Event
}

func (p *recordingPlayer) Play(e sound.Event) {
	p.played = append(p.played, e)
}

type testRobot struct {
	*Robot
	plant  *sim.Plant
	pair   *encoder.Pair
	sink   *debug.Recorder
	sounds *recordingPlayer
	period time.Duration
}

func newTestRobot(t *testing.T, plantCfg sim.Config) *testRobot {
	cfg := config.Default()
	cfg.IMU.CalibrationSamples = 20
	cfg.IMU.CalibrationPauseMS = 0
	cfg.Motion.PollIntervalMS = 1

	plant := sim.New(plantCfg)
	pair := encoder.NewPair(plant.Clock, cfg.Encoder.MinTickIntervalMS, encoder.Geometry{
		PulsesPerRev:    cfg.Encoder.PulsesPerRev,
		WheelDiameterMM: cfg.Encoder.WheelDiameterMM,
		SlipFactor:      cfg.Encoder.SlipFactor,
	})
	plant.Attach(pair)
	sink := &debug.Recorder{}
	sounds := &recordingPlayer{}
	r := New(cfg, Parts{
		Clock:     plant.Clock,
		Encoders:  pair,
		PinLevels: plant.PinLevels,
		Motors:    motor.New(plant.MotorChannel(motor.Left), plant.MotorChannel(motor.Right), cfg.Motor.PWMMax),
		Gyro:      plant.Gyro(),
		Waiter:    plant,
		Sounds:    sounds,
	}, sink)
	return &testRobot{
		Robot:  r,
		plant:  plant,
		pair:   pair,
		sink:   sink,
		sounds: sounds,
		period: cfg.Loop.ControlPeriod(),
	}
}

// run advances the plant and the control loop together.
func (tr *testRobot) run(t *testing.T, d time.Duration) {
	t.Helper()
	for elapsed := time.Duration(0); elapsed < d; elapsed += tr.period {
		tr.plant.Step(tr.period)
		if err := tr.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}
}

func TestStartRejectsWrongDevice(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.WhoAmI = 0x70
	tr := newTestRobot(t, cfg)

	err := tr.Start()
	if pkgerrors.Cause(err) != ErrWrongDevice {
		t.Fatalf("Expected ErrWrongDevice, got %v", err)
	}
	if len(tr.sounds.played) != 1 || tr.sounds.played[0] != sound.Fault {
		t.Errorf("Expected the fault chime, got %v", tr.sounds.played)
	}
	if err := tr.Run(context.Background()); err != ErrNotStarted {
		t.Errorf("Expected Run to refuse an unstarted robot, got %v", err)
	}
}

func TestStartCalibratesGyroBias(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.GyroBiasDPS = 3
	tr := newTestRobot(t, cfg)
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	tr.run(t, 2*time.Second)

	st := tr.Status()
	if math.Abs(st.Yaw.AngleDeg) > 0.1 {
		t.Errorf("Yaw drifted to %v at rest", st.Yaw.AngleDeg)
	}
	if st.TotalLeft != 0 || st.TotalRight != 0 {
		t.Errorf("Wheels moved at rest: %d/%d", st.TotalLeft, st.TotalRight)
	}
	if len(tr.sounds.played) != 1 || tr.sounds.played[0] != sound.Startup {
		t.Errorf("Expected the startup chime, got %v", tr.sounds.played)
	}
	if !tr.sink.Contains("yaw=0.0 stale=false") {
		t.Errorf("Expected a periodic status report, got %q", tr.sink.Lines())
	}
}

func expectTicksBetween(t *testing.T, name string, ticks, lo, hi uint32) {
	t.Helper()
	if ticks < lo || ticks > hi {
		t.Errorf("%s: expected %d..%d ticks, got %d", name, lo, hi, ticks)
	}
}

func TestCruise(t *testing.T) {
	for _, tc := range []struct {
		name    string
		baseRPS float64
		scale   [2]float64
		lagMS   float64
		maxYaw  float64
	}{
		{"straight", 1.5, [2]float64{1, 1}, 0, 0.5},
		{"reverse", -1.5, [2]float64{1, 1}, 0, 0.5},
		{"weak right motor", 1.5, [2]float64{1, 0.85}, 0, 8},
		{"weak right motor with lag", 1.5, [2]float64{1, 0.85}, 30, 10},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := sim.DefaultConfig()
			cfg.Scale = tc.scale
			cfg.TimeConstantMS = tc.lagMS
			tr := newTestRobot(t, cfg)
			if err := tr.Start(); err != nil {
				t.Fatal(err)
			}

			tr.Cruise(tc.baseRPS, 0)
			maxYaw := 0.0
			for i := 0; i < 150; i++ {
				tr.run(t, tr.period)
				maxYaw = math.Max(maxYaw, math.Abs(tr.Status().Yaw.AngleDeg))
			}

			// 3s at 1.5rps would be 180 ticks; the loop runs a little slow
			// at this encoder resolution.
			st := tr.Status()
			expectTicksBetween(t, "left", st.TotalLeft, 100, 200)
			expectTicksBetween(t, "right", st.TotalRight, 100, 200)
			if maxYaw > tc.maxYaw {
				t.Errorf("Heading wandered to %.1f degrees", maxYaw)
			}
			if !st.Cruising {
				t.Error("Expected to still be cruising")
			}
			if tc.baseRPS < 0 && tr.plant.RPS(motor.Left) > 0 {
				t.Errorf("Expected to be reversing, left at %v rps", tr.plant.RPS(motor.Left))
			}

			if err := tr.Halt(); err != nil {
				t.Fatal(err)
			}
			if tr.plant.Duty(motor.Left) != 0 || tr.plant.Duty(motor.Right) != 0 {
				t.Error("Halt left a motor driven")
			}
			// Let any lag in the wheels run down first.
			tr.run(t, 300*time.Millisecond)
			l := tr.pair.TotalLeft()
			tr.run(t, 500*time.Millisecond)
			if tr.pair.TotalLeft() != l {
				t.Error("Wheels kept turning after Halt")
			}
		})
	}
}

func TestHeadingCorrectionTurnsTowardsTarget(t *testing.T) {
	tr := newTestRobot(t, sim.DefaultConfig())
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	tr.Cruise(1.0, 20)
	tr.run(t, 20*time.Millisecond)
	l, r := tr.speed.Targets()
	if !(r.RPS > l.RPS) {
		t.Errorf("Target is anticlockwise so the right wheel should lead: %+v %+v", l, r)
	}
}

func TestStaleGyroIsLoggedOnce(t *testing.T) {
	tr := newTestRobot(t, sim.DefaultConfig())
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	tr.plant.FailGyroReads(3)
	tr.run(t, 40*time.Millisecond)
	if st := tr.Status(); !st.Yaw.Stale || st.Yaw.ConsecutiveFailures != 2 {
		t.Errorf("Expected a stale yaw after 2 failures, got %+v", st.Yaw)
	}
	tr.run(t, 40*time.Millisecond)
	if tr.Status().Yaw.Stale {
		t.Error("Expected yaw to recover")
	}

	failures := 0
	for _, l := range tr.sink.Lines() {
		if len(l) >= 16 && l[:16] == "IMU: read failed" {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("Expected one failure line, got %d", failures)
	}
	if !tr.sink.Contains("IMU: recovered") {
		t.Error("Expected a recovery line")
	}
}

func TestDriveDistanceCancelsCruise(t *testing.T) {
	tr := newTestRobot(t, sim.DefaultConfig())
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	tr.Cruise(1.0, 0)
	tr.run(t, 200*time.Millisecond)

	res, err := tr.MoveForwardMM(context.Background(), 200, 70)
	if err != nil {
		t.Fatal(err)
	}
	if res.TraveledMM < 200 {
		t.Errorf("Stopped short at %v mm", res.TraveledMM)
	}
	st := tr.Status()
	if st.Cruising {
		t.Error("A distance move should cancel cruising")
	}
	if st.Move != motion.Done {
		t.Errorf("Expected the move to be done, got %v", st.Move)
	}
	if tr.sounds.played[len(tr.sounds.played)-1] != sound.MoveDone {
		t.Errorf("Expected the done chime, got %v", tr.sounds.played)
	}

	// The next period sees only its own ticks, not the whole move.
	tr.run(t, 20*time.Millisecond)
	if l, r := tr.speed.Measured(); l != 0 || r != 0 {
		t.Errorf("Expected no rate after the move, got %v/%v", l, r)
	}
}

func TestMoveDirectionWithExtremePWM(t *testing.T) {
	for _, tc := range []struct {
		name    string
		forward bool
		pwm     int16
		dirLine string
	}{
		{"forward MinInt16", true, math.MinInt16, "dir_sign=1"},
		{"forward MaxInt16", true, math.MaxInt16, "dir_sign=1"},
		{"back MinInt16", false, math.MinInt16, "dir_sign=-1"},
		{"back MaxInt16", false, math.MaxInt16, "dir_sign=-1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tr := newTestRobot(t, sim.DefaultConfig())
			if err := tr.Start(); err != nil {
				t.Fatal(err)
			}
			move := tr.MoveBackwardMM
			if tc.forward {
				move = tr.MoveForwardMM
			}
			res, err := move(context.Background(), 50, tc.pwm)
			if err != nil {
				t.Fatal(err)
			}
			if res.TraveledMM < 50 {
				t.Errorf("Stopped short at %v mm", res.TraveledMM)
			}
			if !tr.sink.Contains("pwm_mag=99 " + tc.dirLine) {
				t.Errorf("Expected a clamped %s move, got %v", tc.dirLine, tr.sink.Lines())
			}
		})
	}
}

func TestRetune(t *testing.T) {
	tr := newTestRobot(t, sim.DefaultConfig())
	tr.SetSpeedGains(speedcontrol.Gains{Kp: 8, Ki: 1})
	tr.SetHeadingGain(0.1)
	if tr.SpeedGains() != (speedcontrol.Gains{Kp: 8, Ki: 1}) || tr.HeadingGain() != 0.1 {
		t.Errorf("Gains not applied: %+v %v", tr.SpeedGains(), tr.HeadingGain())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	tr := newTestRobot(t, sim.DefaultConfig())
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- tr.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
