package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	pkgerrors "github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

const (
	DefaultPath      = "/cfg/wheelbot.yaml"
	DefaultInUsePath = "/cfg/wheelbot-in-use.yaml"
)

var (
	ErrNoPulsesPerRev  = errors.New("encoder pulses per revolution must be non-zero")
	ErrBadWheel        = errors.New("wheel diameter must be positive")
	ErrBadSlip         = errors.New("slip factor must be in (0, 1]")
	ErrBadPWMRange     = errors.New("PWM minimum start must not exceed PWM max")
	ErrBadForwardSign  = errors.New("forward sign must be +1 or -1")
	ErrBadBalance      = errors.New("wheel balance must be in (0, 1]")
	ErrBadPeriod       = errors.New("control period must be positive")
	ErrBadFrequency    = errors.New("PWM frequency must be positive")
	ErrUnknownSinkKind = errors.New("unknown debug sink kind")
	ErrBadPowerPeriod  = errors.New("power report interval must be positive when monitoring is enabled")
)

type MotorPins struct {
	IN1 string `yaml:"in1"`
	IN2 string `yaml:"in2"`
	PWM string `yaml:"pwm"`
}

type Encoder struct {
	LeftPin           string  `yaml:"left_pin" env:"WHEELBOT_ENCODER_LEFT_PIN"`
	RightPin          string  `yaml:"right_pin" env:"WHEELBOT_ENCODER_RIGHT_PIN"`
	PulsesPerRev      uint32  `yaml:"pulses_per_rev"`
	WheelDiameterMM   float64 `yaml:"wheel_diameter_mm"`
	SlipFactor        float64 `yaml:"slip_factor"`
	MinTickIntervalMS uint32  `yaml:"min_tick_interval_ms" env:"WHEELBOT_DEBOUNCE_MS"`
}

type Motor struct {
	Left           MotorPins `yaml:"left"`
	Right          MotorPins `yaml:"right"`
	PWMMax         uint16    `yaml:"pwm_max"`
	PWMMinStart    uint16    `yaml:"pwm_min_start" env:"WHEELBOT_PWM_MIN_START"`
	PWMFrequencyHz int       `yaml:"pwm_frequency_hz"`
	// ForwardSign flips the meaning of a positive command for wheels wired backwards.
	ForwardSign  int     `yaml:"forward_sign" env:"WHEELBOT_FORWARD_SIGN"`
	BalanceLeft  float64 `yaml:"balance_left"`
	BalanceRight float64 `yaml:"balance_right"`
}

type Speed struct {
	Kp float64 `yaml:"kp" env:"WHEELBOT_SPEED_KP"`
	Ki float64 `yaml:"ki" env:"WHEELBOT_SPEED_KI"`
	Kd float64 `yaml:"kd" env:"WHEELBOT_SPEED_KD"`
}

type Heading struct {
	KpYaw float64 `yaml:"kp_yaw" env:"WHEELBOT_HEADING_KP"`
}

type Motion struct {
	// PollIntervalMS of 0 polls the encoders continuously.
	PollIntervalMS     int `yaml:"poll_interval_ms"`
	ProgressIntervalMS int `yaml:"progress_interval_ms"`
	// TimeoutMS of 0 waits forever.
	TimeoutMS int `yaml:"timeout_ms" env:"WHEELBOT_MOVE_TIMEOUT_MS"`
}

type IMU struct {
	Device             string `yaml:"device" env:"WHEELBOT_I2C_DEVICE"`
	Address            int    `yaml:"address"`
	CalibrationSamples int    `yaml:"calibration_samples" env:"WHEELBOT_GYRO_CAL_SAMPLES"`
	CalibrationPauseMS int    `yaml:"calibration_pause_ms"`
}

type Loop struct {
	ControlPeriodMS  int `yaml:"control_period_ms" env:"WHEELBOT_CONTROL_PERIOD_MS"`
	ReportIntervalMS int `yaml:"report_interval_ms"`
}

type Debug struct {
	// Sink is one of stdout, serial, mqtt or none.
	Sink         string `yaml:"sink" env:"WHEELBOT_DEBUG_SINK"`
	SerialPort   string `yaml:"serial_port" env:"WHEELBOT_DEBUG_SERIAL"`
	BaudRate     int    `yaml:"baud_rate"`
	MQTTBroker   string `yaml:"mqtt_broker" env:"WHEELBOT_MQTT_BROKER"`
	MQTTTopic    string `yaml:"mqtt_topic"`
	MQTTClientID string `yaml:"mqtt_client_id"`
	QueueDepth   int    `yaml:"queue_depth"`
}

type Sound struct {
	Enabled bool   `yaml:"enabled" env:"WHEELBOT_SOUND"`
	Dir     string `yaml:"dir"`
}

type Power struct {
	Enabled          bool    `yaml:"enabled" env:"WHEELBOT_POWER_MONITOR"`
	Address          int     `yaml:"address"`
	ShuntOhms        float64 `yaml:"shunt_ohms"`
	MaxCurrentA      float64 `yaml:"max_current_a"`
	LowVoltage       float64 `yaml:"low_voltage"`
	ReportIntervalMS int     `yaml:"report_interval_ms"`
}

type Config struct {
	Encoder Encoder `yaml:"encoder"`
	Motor   Motor   `yaml:"motor"`
	Speed   Speed   `yaml:"speed"`
	Heading Heading `yaml:"heading"`
	Motion  Motion  `yaml:"motion"`
	IMU     IMU     `yaml:"imu"`
	Loop    Loop    `yaml:"loop"`
	Debug   Debug   `yaml:"debug"`
	Sound   Sound   `yaml:"sound"`
	Power   Power   `yaml:"power"`
}

// Default returns the tuning the robot was commissioned with.
func Default() *Config {
	return &Config{
		Encoder: Encoder{
			LeftPin:           "GPIO5",
			RightPin:          "GPIO6",
			PulsesPerRev:      40,
			WheelDiameterMM:   65,
			SlipFactor:        0.95,
			MinTickIntervalMS: 2,
		},
		Motor: Motor{
			Left:           MotorPins{IN1: "GPIO23", IN2: "GPIO24", PWM: "GPIO12"},
			Right:          MotorPins{IN1: "GPIO27", IN2: "GPIO22", PWM: "GPIO13"},
			PWMMax:         99,
			PWMMinStart:    60,
			PWMFrequencyHz: 20000,
			ForwardSign:    1,
			BalanceLeft:    1.0,
			BalanceRight:   1.0,
		},
		Speed: Speed{
			Kp: 50,
			Ki: 5,
			Kd: 0,
		},
		Heading: Heading{
			KpYaw: 0.05,
		},
		Motion: Motion{
			PollIntervalMS:     1,
			ProgressIntervalMS: 100,
			TimeoutMS:          0,
		},
		IMU: IMU{
			Device:             "/dev/i2c-1",
			Address:            0x68,
			CalibrationSamples: 5000,
			CalibrationPauseMS: 1,
		},
		Loop: Loop{
			ControlPeriodMS:  20,
			ReportIntervalMS: 1000,
		},
		Debug: Debug{
			Sink:         "stdout",
			SerialPort:   "/dev/ttyS0",
			BaudRate:     115200,
			MQTTBroker:   "tcp://localhost:1883",
			MQTTTopic:    "wheelbot/debug",
			MQTTClientID: "wheelbot",
			QueueDepth:   64,
		},
		Sound: Sound{
			Enabled: true,
			Dir:     "/sounds",
		},
		Power: Power{
			Enabled:          false,
			Address:          0x41,
			ShuntOhms:        0.1,
			MaxCurrentA:      3.2,
			LowVoltage:       6.8,
			ReportIntervalMS: 10000,
		},
	}
}

// Load reads the YAML file at path over the defaults and then applies any
// WHEELBOT_* environment overrides.  A missing file is not an error.
func Load(path string) (*Config, error) {
	c := Default()
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, pkgerrors.Wrapf(err, "failed to read config %s", path)
		}
		fmt.Println("CFG: no config file at", path, "using defaults")
	} else if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := env.Parse(c); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to apply environment overrides")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Encoder.PulsesPerRev == 0:
		return ErrNoPulsesPerRev
	case c.Encoder.WheelDiameterMM <= 0:
		return ErrBadWheel
	case c.Encoder.SlipFactor <= 0 || c.Encoder.SlipFactor > 1:
		return ErrBadSlip
	case c.Motor.PWMMinStart > c.Motor.PWMMax:
		return ErrBadPWMRange
	case c.Motor.ForwardSign != 1 && c.Motor.ForwardSign != -1:
		return ErrBadForwardSign
	case c.Motor.BalanceLeft <= 0 || c.Motor.BalanceRight <= 0,
		c.Motor.BalanceLeft > 1 || c.Motor.BalanceRight > 1:
		return ErrBadBalance
	case c.Motor.PWMFrequencyHz <= 0:
		return ErrBadFrequency
	case c.Loop.ControlPeriodMS <= 0:
		return ErrBadPeriod
	case c.Power.Enabled && c.Power.ReportIntervalMS <= 0:
		return ErrBadPowerPeriod
	}
	switch c.Debug.Sink {
	case "stdout", "serial", "mqtt", "none":
	default:
		return pkgerrors.Wrapf(ErrUnknownSinkKind, "%q", c.Debug.Sink)
	}
	return nil
}

// WriteInUse records the effective configuration so that it can be checked
// after a run.
func (c *Config) WriteInUse(path string) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal config")
	}
	if err := ioutil.WriteFile(path, out, 0666); err != nil {
		return pkgerrors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func (m Motion) PollInterval() time.Duration     { return ms(m.PollIntervalMS) }
func (m Motion) ProgressInterval() time.Duration { return ms(m.ProgressIntervalMS) }
func (m Motion) Timeout() time.Duration          { return ms(m.TimeoutMS) }
func (l Loop) ControlPeriod() time.Duration      { return ms(l.ControlPeriodMS) }
func (l Loop) ReportInterval() time.Duration     { return ms(l.ReportIntervalMS) }
func (i IMU) CalibrationPause() time.Duration    { return ms(i.CalibrationPauseMS) }
func (p Power) ReportInterval() time.Duration    { return ms(p.ReportIntervalMS) }
