package main

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/alecthomas/kong"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/debug"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/robot"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/tunable"
)

func floatArg(c *ishell.Context, i int, def float64) (float64, error) {
	if len(c.Args) <= i {
		return def, nil
	}
	return strconv.ParseFloat(c.Args[i], 64)
}

var CLI struct {
	Config string `help:"YAML config file." default:"/cfg/wheelbot.yaml" type:"path"`
	Sim    bool   `help:"Drive the simulated robot instead of the hardware."`
}

func main() {
	kong.Parse(&CLI, kong.Description("Interactive wheelbot console."))

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Console output would fight with the prompt; keep the chatter in memory
	// unless a remote sink is configured.
	recorder := &debug.Recorder{}
	var sink debug.Sink = recorder
	if cfg.Debug.Sink == "serial" || cfg.Debug.Sink == "mqtt" {
		remote, err := debug.Open(ctx, cfg.Debug)
		if err != nil {
			panic(err)
		}
		sink = debug.Multi{recorder, remote}
	}

	var hw hardware.Interface
	if CLI.Sim {
		hw = hardware.NewDummy(cfg)
	} else {
		hw = hardware.New(cfg, sink)
	}
	defer hw.Shutdown()
	if err := hw.Start(ctx); err != nil {
		panic(err)
	}

	r := robot.New(cfg, hw.Parts(), sink)
	if err := r.Start(); err != nil {
		panic(err)
	}

	var loopDone sync.WaitGroup
	loopDone.Add(1)
	go func() {
		defer loopDone.Done()
		_ = r.Run(ctx)
	}()
	defer loopDone.Wait()
	defer cancel()

	var tunables tunable.Tunables
	tunables.Create("kp", cfg.Speed.Kp, 1, func(v float64) {
		g := r.SpeedGains()
		g.Kp = v
		r.SetSpeedGains(g)
	})
	tunables.Create("ki", cfg.Speed.Ki, 0.5, func(v float64) {
		g := r.SpeedGains()
		g.Ki = v
		r.SetSpeedGains(g)
	})
	tunables.Create("kd", cfg.Speed.Kd, 0.1, func(v float64) {
		g := r.SpeedGains()
		g.Kd = v
		r.SetSpeedGains(g)
	})
	tunables.Create("kpyaw", cfg.Heading.KpYaw, 0.01, r.SetHeadingGain)

	shell := ishell.New()
	shell.Println("wheelbot console")
	shell.ShowPrompt(true)

	shell.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "status",
		Func: func(c *ishell.Context) {
			st := r.Status()
			c.Printf("yaw=%.1f (target %.1f) stale=%v failures=%d\n",
				st.Yaw.AngleDeg, st.TargetYaw, st.Yaw.Stale, st.Yaw.ConsecutiveFailures)
			c.Printf("ticks L=%d R=%d rps=%.2f/%.2f pwm=%d/%d\n",
				st.TotalLeft, st.TotalRight, st.RPSLeft, st.RPSRight, st.PWMLeft, st.PWMRight)
			c.Printf("cruising=%v base=%.2f move=%v\n", st.Cruising, st.BaseRPS, st.Move)
		},
	})

	move := func(backwards bool) func(c *ishell.Context) {
		return func(c *ishell.Context) {
			mm, err := floatArg(c, 0, 0)
			if err != nil || len(c.Args) == 0 {
				c.Println("need a distance in mm")
				return
			}
			pwm, err := floatArg(c, 1, 65)
			if err != nil {
				c.Err(err)
				return
			}
			moveFn := r.MoveForwardMM
			if backwards {
				moveFn = r.MoveBackwardMM
			}
			res, err := moveFn(ctx, mm, int16(pwm))
			if err != nil {
				c.Err(err)
			}
			c.Printf("moved %.1f mm (L=%.1f R=%.1f) in %dms\n", res.TraveledMM, res.LeftMM, res.RightMM, res.DurationMS)
		}
	}
	shell.AddCmd(&ishell.Cmd{
		Name: "forward",
		Help: "forward <mm> [pwm]",
		Func: move(false),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "back",
		Help: "back <mm> [pwm]",
		Func: move(true),
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "cruise",
		Help: "cruise <rps> [heading]",
		Func: func(c *ishell.Context) {
			rps, err := floatArg(c, 0, 1)
			if err != nil {
				c.Err(err)
				return
			}
			hdg, err := floatArg(c, 1, r.Status().Yaw.AngleDeg)
			if err != nil {
				c.Err(err)
				return
			}
			r.Cruise(rps, hdg)
			c.Printf("cruising at %.2f rps, heading %.1f\n", rps, hdg)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "halt",
		Help: "halt",
		Func: func(c *ishell.Context) {
			if err := r.Halt(); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "zero",
		Help: "zero [angle] - redefine the current heading",
		Func: func(c *ishell.Context) {
			a, err := floatArg(c, 0, 0)
			if err != nil {
				c.Err(err)
				return
			}
			r.ResetYaw(a)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "tune",
		Help: "tune [next|prev|+|-|<name> <value>]",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				cur := tunables.Current()
				for _, t := range tunables.All {
					marker := " "
					if t == cur {
						marker = "*"
					}
					c.Printf("%s %s = %v\n", marker, t.Name, t.Get())
				}
				return
			}
			switch c.Args[0] {
			case "next":
				tunables.SelectNext()
			case "prev":
				tunables.SelectPrev()
			case "+":
				tunables.Current().Add(1)
			case "-":
				tunables.Current().Add(-1)
			default:
				t := tunables.ByName(c.Args[0])
				if t == nil || len(c.Args) < 2 {
					c.Println("unknown tunable", c.Args[0])
					return
				}
				v, err := strconv.ParseFloat(c.Args[1], 64)
				if err != nil {
					c.Err(err)
					return
				}
				t.Set(v)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "log",
		Help: "log [n] - show the last n diagnostic lines",
		Func: func(c *ishell.Context) {
			n, err := floatArg(c, 0, 20)
			if err != nil {
				c.Err(err)
				return
			}
			lines := recorder.Lines()
			if int(n) < len(lines) {
				lines = lines[len(lines)-int(n):]
			}
			for _, l := range lines {
				c.Println(l)
			}
		},
	})

	shell.Start()
	fmt.Println("Stopping")
	_ = r.Halt()
	time.Sleep(50 * time.Millisecond)
}
