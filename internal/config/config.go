package config

import (
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/ralvarezdev/rpi-escmotor/pwm"
	"github.com/sirupsen/logrus"
)

// Drivers
const (
	DriverPCA9685 = "pca9685"
	DriverRPIO    = "rpio"
	DriverDummy   = "dummy"
)

// Modes
const (
	ModeSingle = "single"
	ModeTank   = "tank"
)

// NoChannel marks an unused channel
const NoChannel = -1

type (
	// Config is the configuration of the escctl daemon
	Config struct {
		Driver       string
		I2CBus       string
		I2CAddress   uint16
		RPIOPins     []int
		Mode         string
		Channel      int
		LeftChannel  int
		RightChannel int
		ServoChannel int
		Profile      string
		MaxRate      float64
		MaxForward   float64
		MaxBackward  float64
		Invert       bool
		InvertLeft   bool
		InvertRight  bool
		UpdateHz     float64
		EnablePin    string
		SerialPort   string
		SerialBaud   int
		LogLevel     logrus.Level
	}

	// LookupFunc looks up a configuration key, like os.LookupEnv
	LookupFunc func(key string) (string, bool)
)

// Default returns the default configuration
func Default() Config {
	return Config{
		Driver:       DriverPCA9685,
		I2CBus:       "",
		I2CAddress:   0x40,
		RPIOPins:     []int{18, 19},
		Mode:         ModeSingle,
		Channel:      0,
		LeftChannel:  0,
		RightChannel: 1,
		ServoChannel: NoChannel,
		Profile:      "quicrun",
		MaxRate:      2,
		MaxForward:   1,
		MaxBackward:  1,
		UpdateHz:     30,
		SerialBaud:   115200,
		LogLevel:     logrus.InfoLevel,
	}
}

// Load reads the optional .env files into the environment and builds the configuration from the
// ESC_* environment variables. Missing files are ignored
func Load(filenames ...string) (Config, error) {
	for _, filename := range filenames {
		if err := godotenv.Load(filename); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return Config{}, errors.Wrapf(err, "failed to load %s", filename)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromMap builds the configuration from a map of keys, e.g. as returned by godotenv.Unmarshal
func FromMap(values map[string]string) (Config, error) {
	return FromLookup(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	})
}

// FromLookup builds the configuration from the defaults and the values found by lookup
func FromLookup(lookup LookupFunc) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	p.str("ESC_DRIVER", &cfg.Driver)
	p.str("ESC_I2C_BUS", &cfg.I2CBus)
	p.address("ESC_I2C_ADDR", &cfg.I2CAddress)
	p.ints("ESC_RPIO_PINS", &cfg.RPIOPins)
	p.str("ESC_MODE", &cfg.Mode)
	p.integer("ESC_CHANNEL", &cfg.Channel)
	p.integer("ESC_LEFT_CHANNEL", &cfg.LeftChannel)
	p.integer("ESC_RIGHT_CHANNEL", &cfg.RightChannel)
	p.integer("ESC_SERVO_CHANNEL", &cfg.ServoChannel)
	p.str("ESC_PROFILE", &cfg.Profile)
	p.float("ESC_MAX_RATE", &cfg.MaxRate)
	p.float("ESC_MAX_FORWARD", &cfg.MaxForward)
	p.float("ESC_MAX_BACKWARD", &cfg.MaxBackward)
	p.boolean("ESC_INVERT", &cfg.Invert)
	p.boolean("ESC_INVERT_LEFT", &cfg.InvertLeft)
	p.boolean("ESC_INVERT_RIGHT", &cfg.InvertRight)
	p.float("ESC_UPDATE_HZ", &cfg.UpdateHz)
	p.str("ESC_ENABLE_PIN", &cfg.EnablePin)
	p.str("ESC_SERIAL_PORT", &cfg.SerialPort)
	p.integer("ESC_SERIAL_BAUD", &cfg.SerialBaud)
	p.level("ESC_LOG_LEVEL", &cfg.LogLevel)

	if p.err != nil {
		return Config{}, p.err
	}
	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverPCA9685, DriverDummy:
	case DriverRPIO:
		if err := pwm.CheckHardwarePWMPins(c.RPIOPins); err != nil {
			return err
		}
	default:
		return errors.Errorf("unknown driver %q", c.Driver)
	}

	switch c.Mode {
	case ModeSingle:
		if err := c.checkChannel("channel", c.Channel); err != nil {
			return err
		}
	case ModeTank:
		if err := c.checkChannel("left channel", c.LeftChannel); err != nil {
			return err
		}
		if err := c.checkChannel("right channel", c.RightChannel); err != nil {
			return err
		}
		if c.LeftChannel == c.RightChannel {
			return errors.Errorf("left and right channel are both %d", c.LeftChannel)
		}
	default:
		return errors.Errorf("unknown mode %q", c.Mode)
	}

	if c.ServoChannel != NoChannel {
		if err := c.checkChannel("servo channel", c.ServoChannel); err != nil {
			return err
		}
		for _, used := range c.MotorChannels() {
			if used == c.ServoChannel {
				return errors.Errorf("servo channel %d is used by a motor", c.ServoChannel)
			}
		}
	}

	if !(c.MaxForward > 0 && c.MaxForward <= 1) {
		return errors.Errorf("max forward speed %v out of (0, 1]", c.MaxForward)
	}
	if !(c.MaxBackward > 0 && c.MaxBackward <= 1) {
		return errors.Errorf("max backward speed %v out of (0, 1]", c.MaxBackward)
	}
	if !(c.MaxRate >= 0) || math.IsInf(c.MaxRate, 1) {
		return errors.Errorf("max rate %v is not a finite non-negative number", c.MaxRate)
	}
	if !(c.UpdateHz > 0 && c.UpdateHz <= 1000) {
		return errors.Errorf("update rate %vHz out of (0, 1000]", c.UpdateHz)
	}
	if c.SerialPort != "" && c.SerialBaud <= 0 {
		return errors.Errorf("invalid serial baud rate %d", c.SerialBaud)
	}
	return nil
}

// MotorChannels returns the channels driving ESCs in the configured mode
func (c *Config) MotorChannels() []int {
	if c.Mode == ModeTank {
		return []int{c.LeftChannel, c.RightChannel}
	}
	return []int{c.Channel}
}

// UpdateInterval returns the time between control ticks
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.UpdateHz)
}

// checkChannel checks a channel against the number of outputs of the driver
func (c *Config) checkChannel(name string, channel int) error {
	limit := 16
	if c.Driver == DriverRPIO {
		limit = len(c.RPIOPins)
	}
	if channel < 0 || channel >= limit {
		return errors.Errorf("%s %d out of range for driver %s", name, channel, c.Driver)
	}
	return nil
}

type parser struct {
	lookup LookupFunc
	err    error
}

func (p *parser) get(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (p *parser) fail(key, value string, err error) {
	p.err = errors.Wrapf(err, "invalid %s=%q", key, value)
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) integer(key string, dst *int) {
	if v, ok := p.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (p *parser) address(key string, dst *uint16) {
	if v, ok := p.get(key); ok {
		n, err := strconv.ParseUint(v, 0, 16)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = uint16(n)
	}
}

func (p *parser) float(key string, dst *float64) {
	if v, ok := p.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (p *parser) boolean(key string, dst *bool) {
	if v, ok := p.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (p *parser) ints(key string, dst *[]int) {
	if v, ok := p.get(key); ok {
		var out []int
		for _, field := range strings.Split(v, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				p.fail(key, v, err)
				return
			}
			out = append(out, n)
		}
		*dst = out
	}
}

func (p *parser) level(key string, dst *logrus.Level) {
	if v, ok := p.get(key); ok {
		level, err := logrus.ParseLevel(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = level
	}
}
