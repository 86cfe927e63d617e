package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/debug"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/robot"
)

var CLI struct {
	Config string `help:"YAML config file." default:"/cfg/wheelbot.yaml" type:"path"`
	InUse  string `help:"Where to record the effective config." default:"/cfg/wheelbot-in-use.yaml" type:"path"`
	Sim    bool   `help:"Drive the simulated robot instead of the hardware."`

	Run     RunCmd     `cmd:"" default:"1" help:"Run the control loop until interrupted."`
	Forward ForwardCmd `cmd:"" help:"Drive forwards a distance."`
	Back    BackCmd    `cmd:"" help:"Drive backwards a distance."`
	Cruise  CruiseCmd  `cmd:"" help:"Cruise at a wheel rate, holding a heading."`
}

type Context struct {
	ctx   context.Context
	robot *robot.Robot
}

type RunCmd struct{}

func (c *RunCmd) Run(ctx *Context) error {
	err := ctx.robot.Run(ctx.ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

type ForwardCmd struct {
	MM  float64 `arg:"" name:"mm" help:"Distance in millimetres."`
	PWM int16   `help:"PWM magnitude." default:"65"`
}

func (c *ForwardCmd) Run(ctx *Context) error {
	res, err := ctx.robot.MoveForwardMM(ctx.ctx, c.MM, c.PWM)
	fmt.Printf("Moved %.1f mm (L=%.1f R=%.1f) in %dms\n", res.TraveledMM, res.LeftMM, res.RightMM, res.DurationMS)
	return err
}

type BackCmd struct {
	MM  float64 `arg:"" name:"mm" help:"Distance in millimetres."`
	PWM int16   `help:"PWM magnitude." default:"65"`
}

func (c *BackCmd) Run(ctx *Context) error {
	res, err := ctx.robot.MoveBackwardMM(ctx.ctx, c.MM, c.PWM)
	fmt.Printf("Moved %.1f mm (L=%.1f R=%.1f) in %dms\n", res.TraveledMM, res.LeftMM, res.RightMM, res.DurationMS)
	return err
}

type CruiseCmd struct {
	RPS     float64       `arg:"" name:"rps" help:"Wheel rate in revolutions per second; negative reverses."`
	Heading float64       `help:"Heading to hold, degrees anticlockwise from the start." default:"0"`
	For     time.Duration `help:"How long to cruise for." default:"5s"`
}

func (c *CruiseCmd) Run(ctx *Context) error {
	loopCtx, cancel := context.WithTimeout(ctx.ctx, c.For)
	defer cancel()
	ctx.robot.Cruise(c.RPS, c.Heading)
	err := ctx.robot.Run(loopCtx)
	if herr := ctx.robot.Halt(); herr != nil {
		return herr
	}
	if err == context.DeadlineExceeded {
		return nil
	}
	return err
}

func main() {
	fmt.Println("---- wheelbot ----")
	fmt.Println("GOMAXPROCS", runtime.GOMAXPROCS(0))

	kctx := kong.Parse(&CLI,
		kong.Name("wheelbot"),
		kong.Description("Two-wheel motion controller."),
	)

	cfg, err := config.Load(CLI.Config)
	kctx.FatalIfErrorf(err)
	fmt.Printf("Using config: %#v\n", *cfg)
	if err := cfg.WriteInUse(CLI.InUse); err != nil {
		fmt.Println(err)
	}

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registerSignalHandlers(cancel)

	sink, err := debug.Open(ctx, cfg.Debug)
	kctx.FatalIfErrorf(err)

	var hw hardware.Interface
	if CLI.Sim {
		hw = hardware.NewDummy(cfg)
	} else {
		hw = hardware.New(cfg, sink)
	}
	defer func() {
		fmt.Println("Zeroing motors for shut down")
		hw.Shutdown()
		time.Sleep(100 * time.Millisecond)
	}()
	if err := hw.Start(ctx); err != nil {
		fmt.Println("Failed to start hardware:", err)
		return
	}

	r := robot.New(cfg, hw.Parts(), sink)
	if err := r.Start(); err != nil {
		fmt.Println("Failed to start robot:", err)
		return
	}

	if err := kctx.Run(&Context{ctx: ctx, robot: r}); err != nil {
		fmt.Println("ERROR:", err)
	}
}

func registerSignalHandlers(cancelFunc context.CancelFunc) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		log.Println("Signal: ", s)
		cancelFunc()
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}()
}
