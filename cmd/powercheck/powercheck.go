package main

import (
	"fmt"
	"time"

	"github.com/alecthomas/kong"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/ina219"
)

var CLI struct {
	Config   string        `help:"YAML config file." default:"/cfg/wheelbot.yaml" type:"path"`
	Interval time.Duration `help:"Time between readings." default:"500ms"`
	Count    int           `help:"Number of readings; 0 runs until interrupted." default:"0"`
}

func main() {
	kong.Parse(&CLI, kong.Description("Print battery readings from the INA219."))

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		panic(err)
	}

	if CLI.Interval <= 0 {
		fmt.Println("Interval must be positive")
		return
	}

	sensor, err := ina219.NewI2C(cfg.IMU.Device, cfg.Power.Address)
	if err != nil {
		fmt.Println("Failed to open ina219", err)
		return
	}
	defer sensor.Close()

	err = sensor.Configure(cfg.Power.ShuntOhms, cfg.Power.MaxCurrentA)
	if err != nil {
		fmt.Println("Failed to configure ina219", err)
		return
	}

	n := 0
	for range time.NewTicker(CLI.Interval).C {
		r, err := sensor.Read()
		if err != nil {
			fmt.Println("Read failed:", err)
		} else {
			low := ""
			if r.BusVolts < cfg.Power.LowVoltage {
				low = " LOW"
			}
			fmt.Printf("%v%s\n", r, low)
		}
		n++
		if CLI.Count > 0 && n >= CLI.Count {
			return
		}
	}
}
