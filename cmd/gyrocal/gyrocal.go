package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/alecthomas/kong"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/debug"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/imu"
)

var CLI struct {
	Config  string        `help:"YAML config file." default:"/cfg/wheelbot.yaml" type:"path"`
	Sim     bool          `help:"Use the simulated gyro."`
	Samples int           `help:"Calibration samples; 0 uses the configured count." default:"0"`
	Drift   time.Duration `help:"How long to integrate yaw at rest after calibrating." default:"30s"`
}

func main() {
	kong.Parse(&CLI, kong.Description("Measure the gyro bias and the residual yaw drift."))

	fmt.Println("---- Gyro calibration ----")
	fmt.Println("GOMAXPROCS", runtime.GOMAXPROCS(0))

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		panic(err)
	}
	if CLI.Samples > 0 {
		cfg.IMU.CalibrationSamples = CLI.Samples
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hw hardware.Interface
	if CLI.Sim {
		hw = hardware.NewDummy(cfg)
	} else {
		hw = hardware.New(cfg, debug.Stdout)
	}
	defer func() {
		hw.Shutdown()
		time.Sleep(100 * time.Millisecond)
	}()
	if err := hw.Start(ctx); err != nil {
		panic(err)
	}

	gyro := hw.Parts().Gyro
	id, err := gyro.WhoAmI()
	if err != nil {
		panic(err)
	}
	fmt.Printf("IMU: WHO_AM_I=%#x\n", id)
	if id != imu.ExpectedWhoAmI {
		fmt.Println("IMU: unexpected device, carrying on anyway")
	}
	if c, ok := gyro.(interface{ Configure() error }); ok {
		if err := c.Configure(); err != nil {
			panic(err)
		}
	}

	bias, err := imu.CalibrateGyro(gyro, cfg.IMU.CalibrationSamples, cfg.IMU.CalibrationPause())
	if err != nil {
		panic(err)
	}
	fmt.Printf("Bias (dps): x=%.4f y=%.4f z=%.4f\n", bias[0], bias[1], bias[2])

	if CLI.Drift <= 0 {
		return
	}
	fmt.Println("Integrating yaw at rest for", CLI.Drift)
	yaw := imu.NewYawEstimator(bias)
	period := cfg.Loop.ControlPeriod()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	start := time.Now()
	last := start
	lastReport := start
	failures := 0
	for now := range ticker.C {
		if _, err := yaw.Update(gyro, now.Sub(last).Seconds()); err != nil {
			failures++
		}
		last = now
		if now.Sub(lastReport) >= time.Second {
			fmt.Printf("t=%.0fs yaw=%.3f\n", now.Sub(start).Seconds(), yaw.Estimate().AngleDeg)
			lastReport = now
		}
		if now.Sub(start) >= CLI.Drift {
			break
		}
	}
	elapsed := last.Sub(start).Seconds()
	drift := yaw.Estimate().AngleDeg
	fmt.Printf("Drift: %.3f deg over %.0fs (%.4f dps), %d failed reads\n",
		drift, elapsed, drift/elapsed, failures)
}
