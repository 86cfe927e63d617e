package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func writeFile(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "wheelbot.yaml")
	if err := ioutil.WriteFile(path, []byte(body), 0666); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	Convey("The default config", t, func() {
		c := Default()

		Convey("is valid", func() {
			So(c.Validate(), ShouldBeNil)
		})

		Convey("carries the commissioned tuning", func() {
			So(c.Encoder.PulsesPerRev, ShouldEqual, uint32(40))
			So(c.Encoder.WheelDiameterMM, ShouldEqual, 65.0)
			So(c.Encoder.SlipFactor, ShouldEqual, 0.95)
			So(c.Motor.PWMMax, ShouldEqual, uint16(99))
			So(c.Motor.PWMMinStart, ShouldEqual, uint16(60))
			So(c.Speed.Kp, ShouldEqual, 50.0)
			So(c.Speed.Ki, ShouldEqual, 5.0)
			So(c.Heading.KpYaw, ShouldEqual, 0.05)
			So(c.Loop.ControlPeriod().Milliseconds(), ShouldEqual, int64(20))
			So(c.Motion.Timeout(), ShouldEqual, time.Duration(0))
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("Loading config", t, func() {
		Convey("a missing file gives the defaults", func() {
			c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
			So(err, ShouldBeNil)
			So(c, ShouldResemble, Default())
		})

		Convey("a partial file only overrides what it names", func() {
			c, err := Load(writeFile(t, `
speed:
  kp: 8
  ki: 1
motor:
  left:
    pwm: GPIO18
`))
			So(err, ShouldBeNil)
			So(c.Speed.Kp, ShouldEqual, 8.0)
			So(c.Speed.Ki, ShouldEqual, 1.0)
			So(c.Motor.Left.PWM, ShouldEqual, "GPIO18")
			So(c.Motor.Left.IN1, ShouldEqual, "GPIO23")
			So(c.Encoder.PulsesPerRev, ShouldEqual, uint32(40))
		})

		Convey("environment overrides win over the file", func() {
			t.Setenv("WHEELBOT_SPEED_KP", "12.5")
			t.Setenv("WHEELBOT_DEBUG_SINK", "none")
			c, err := Load(writeFile(t, "speed:\n  kp: 8\n"))
			So(err, ShouldBeNil)
			So(c.Speed.Kp, ShouldEqual, 12.5)
			So(c.Debug.Sink, ShouldEqual, "none")
		})

		Convey("invalid YAML is reported", func() {
			_, err := Load(writeFile(t, "speed: [1, 2"))
			So(err, ShouldNotBeNil)
		})

		Convey("invalid values are rejected", func() {
			_, err := Load(writeFile(t, "encoder:\n  pulses_per_rev: 0\n"))
			So(err, ShouldEqual, ErrNoPulsesPerRev)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Validate rejects", t, func() {
		c := Default()

		Convey("a minimum start above the PWM max", func() {
			c.Motor.PWMMinStart = 100
			So(c.Validate(), ShouldEqual, ErrBadPWMRange)
		})

		Convey("a zero forward sign", func() {
			c.Motor.ForwardSign = 0
			So(c.Validate(), ShouldEqual, ErrBadForwardSign)
		})

		Convey("a slip factor over one", func() {
			c.Encoder.SlipFactor = 1.2
			So(c.Validate(), ShouldEqual, ErrBadSlip)
		})

		Convey("a wheel balance", func() {
			Convey("above one", func() {
				c.Motor.BalanceRight = 1.5
				So(c.Validate(), ShouldEqual, ErrBadBalance)
			})
			Convey("of zero", func() {
				c.Motor.BalanceLeft = 0
				So(c.Validate(), ShouldEqual, ErrBadBalance)
			})
		})

		Convey("an enabled power monitor with no report interval", func() {
			c.Power.Enabled = true
			c.Power.ReportIntervalMS = 0
			So(c.Validate(), ShouldEqual, ErrBadPowerPeriod)

			c.Power.Enabled = false
			So(c.Validate(), ShouldBeNil)
		})

		Convey("an unknown sink", func() {
			c.Debug.Sink = "carrier-pigeon"
			So(pkgerrors.Cause(c.Validate()), ShouldEqual, ErrUnknownSinkKind)
		})
	})
}

func TestWriteInUse(t *testing.T) {
	Convey("The in-use file loads back to the same config", t, func() {
		c := Default()
		c.Speed.Kp = 8
		c.Debug.Sink = "serial"
		path := filepath.Join(t.TempDir(), "in-use.yaml")
		So(c.WriteInUse(path), ShouldBeNil)

		loaded, err := Load(path)
		So(err, ShouldBeNil)
		So(loaded, ShouldResemble, c)
	})
}
