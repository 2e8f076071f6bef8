package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	tinygoerrors "github.com/ralvarezdev/tinygo-errors"
	rpiescmotor "github.com/ralvarezdev/rpi-escmotor"
	"github.com/ralvarezdev/rpi-escmotor/drive"
	"github.com/ralvarezdev/rpi-escmotor/internal/command"
	"github.com/ralvarezdev/rpi-escmotor/internal/config"
	"github.com/ralvarezdev/rpi-escmotor/internal/killswitch"
	"github.com/ralvarezdev/rpi-escmotor/pwm"
	"github.com/ralvarezdev/rpi-escmotor/servo"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal(err)
	}

	flag.StringVar(&cfg.Driver, "driver", cfg.Driver, "PWM driver: pca9685, rpio or dummy")
	flag.StringVar(&cfg.Mode, "mode", cfg.Mode, "motor layout: single or tank")
	flag.StringVar(&cfg.Profile, "profile", cfg.Profile, "ESC profile: "+strings.Join(rpiescmotor.ProfileNames(), ", "))
	flag.IntVar(&cfg.Channel, "channel", cfg.Channel, "ESC channel in single mode")
	flag.Float64Var(&cfg.MaxRate, "rate", cfg.MaxRate, "max speed change per second, 0 for none")
	flag.Float64Var(&cfg.UpdateHz, "hz", cfg.UpdateHz, "control loop rate")
	flag.StringVar(&cfg.SerialPort, "serial", cfg.SerialPort, "serial port to read commands from instead of stdin")
	flag.IntVar(&cfg.SerialBaud, "baud", cfg.SerialBaud, "serial baud rate")
	flag.StringVar(&cfg.EnablePin, "enable-pin", cfg.EnablePin, "GPIO of the movement enable switch")
	verbose := flag.Bool("v", false, "debug logging")
	listProfiles := flag.Bool("profiles", false, "list ESC profiles and exit")
	flag.Parse()

	if *listProfiles {
		printProfiles(os.Stdout)
		return
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(cfg.LogLevel)
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	if err := run(cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
	log.Info("Stopped")
}

// run sets up the hardware and serves commands until quit or a signal
func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Driver != config.DriverDummy || cfg.EnablePin != "" {
		if _, err := host.Init(); err != nil {
			return errors.Wrap(err, "failed to initialize periph host")
		}
	}

	out, closer, err := openPWM(cfg)
	if err != nil {
		return err
	}
	defer closer()

	enabled := killswitch.Switch(killswitch.Always(true))
	if cfg.EnablePin != "" {
		sw, err := killswitch.New(cfg.EnablePin, true)
		if err != nil {
			return err
		}
		enabled = sw
		log.WithField("pin", cfg.EnablePin).Info("Using movement enable switch")
	}

	profile, code := rpiescmotor.ProfileByName(cfg.Profile)
	if code != tinygoerrors.ErrorCodeNil {
		return errors.Errorf("profile %q: %s", cfg.Profile, rpiescmotor.ErrorMessage(code))
	}

	newHandler := func(channel int, inverted bool, side string) (*rpiescmotor.DefaultHandler, error) {
		logger := log.WithField("motor", side)
		h, code := rpiescmotor.NewDefaultHandler(
			out,
			uint8(channel),
			func(speed float64) { logger.WithField("speed", speed).Debug("Motor speed changed") },
			enabled.Enabled,
			profile,
			inverted,
			cfg.MaxForward,
			cfg.MaxBackward,
			cfg.MaxRate,
			logger,
		)
		return h, codeError(code)
	}

	ctrl := &controller{}
	var loop func(ctx context.Context) error
	switch cfg.Mode {
	case config.ModeTank:
		left, err := newHandler(cfg.LeftChannel, cfg.InvertLeft, "left")
		if err != nil {
			return errors.Wrap(err, "left ESC")
		}
		right, err := newHandler(cfg.RightChannel, cfg.InvertRight, "right")
		if err != nil {
			return errors.Wrap(err, "right ESC")
		}
		tracks, code := drive.NewDifferential(left, right, log.WithField("motor", "tracks"))
		if err := codeError(code); err != nil {
			return err
		}
		ctrl.tracks = tracks
		loop = func(ctx context.Context) error { return tracks.Run(ctx, cfg.UpdateInterval()) }
	default:
		motor, err := newHandler(cfg.Channel, cfg.Invert, "main")
		if err != nil {
			return errors.Wrap(err, "ESC")
		}
		ctrl.motor = motor
		loop = func(ctx context.Context) error { return motor.Run(ctx, cfg.UpdateInterval()) }
	}

	if cfg.ServoChannel != config.NoChannel {
		s, err := servo.New(out, uint8(cfg.ServoChannel), servo.DefaultConfig, log.WithField("servo", cfg.ServoChannel))
		if err != nil {
			return err
		}
		ctrl.servo = s
	}

	input, output, closeInput, err := openInput(cfg)
	if err != nil {
		return err
	}
	defer closeInput()

	log.WithFields(log.Fields{
		"driver":  cfg.Driver,
		"mode":    cfg.Mode,
		"profile": profile.Name,
		"hz":      cfg.UpdateHz,
	}).Info("ESC control loop started")

	if cfg.SerialPort == "" {
		fmt.Fprintln(output, command.Usage)
	}
	return serveCommands(ctx, loop, input, output, ctrl, log.WithField("input", inputName(cfg)))
}

// serveCommands runs the control loop while commands are served. Serving ends when the loop fails,
// and the loop ends when serving does
func serveCommands(
	ctx context.Context,
	loop func(ctx context.Context) error,
	r io.Reader,
	w io.Writer,
	exec command.Executor,
	logger log.FieldLogger,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopErr := make(chan error, 1)
	go func() {
		err := loop(ctx)
		if err != nil && !errors.Is(err, context.Canceled) && logger != nil {
			logger.WithError(err).Error("ESC control loop failed")
		}
		loopErr <- err
		cancel()
	}()

	err := command.Serve(ctx, r, w, exec, logger)

	// The control loop drops the motors to neutral when it ends
	cancel()
	if lerr := <-loopErr; lerr != nil && !errors.Is(lerr, context.Canceled) {
		return lerr
	}
	return err
}

// openPWM opens the configured PWM driver
func openPWM(cfg config.Config) (pwm.PWM, func(), error) {
	logger := log.WithField("driver", cfg.Driver)

	switch cfg.Driver {
	case config.DriverPCA9685:
		bus, err := i2creg.Open(cfg.I2CBus)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to open I2C bus %q", cfg.I2CBus)
		}
		dev, err := pwm.NewPCA9685(bus, cfg.I2CAddress, logger)
		if err != nil {
			bus.Close()
			return nil, nil, err
		}
		return dev, func() { bus.Close() }, nil

	case config.DriverRPIO:
		dev, err := pwm.NewHardwarePWM(cfg.RPIOPins, logger)
		if err != nil {
			return nil, nil, err
		}
		return dev, func() { dev.Close() }, nil

	default:
		return pwm.NewDummy(logger), func() {}, nil
	}
}

// openInput opens the command source, the serial port if configured or else stdin
func openInput(cfg config.Config) (io.Reader, io.Writer, func(), error) {
	if cfg.SerialPort == "" {
		return os.Stdin, os.Stdout, func() {}, nil
	}

	port, err := serial.Open(cfg.SerialPort, &serial.Mode{
		BaudRate: cfg.SerialBaud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "failed to open serial port %s", cfg.SerialPort)
	}
	return port, port, func() { port.Close() }, nil
}

func inputName(cfg config.Config) string {
	if cfg.SerialPort == "" {
		return "stdin"
	}
	return cfg.SerialPort
}

func printProfiles(w io.Writer) {
	for _, name := range rpiescmotor.ProfileNames() {
		profile, _ := rpiescmotor.ProfileByName(name)
		fmt.Fprintf(w, "%-14s idle=%v forward=%v..%v reverse=%v..%v reverse-init=%d phase(s)\n",
			profile.Name,
			profile.IdlePulse,
			profile.ForwardMinPulse, profile.ForwardMaxPulse,
			profile.ReverseMinPulse, profile.ReverseMaxPulse,
			len(profile.ReverseInit),
		)
	}
}
