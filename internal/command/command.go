package command

import (
	"bufio"
	"context"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Kind is the type of a parsed command
type Kind uint8

const (
	KindNone Kind = iota
	KindThrottle
	KindArcade
	KindTank
	KindServo
	KindStop
	KindEmergencyStop
	KindStatus
	KindQuit
)

// Usage is the help text of the command protocol
const Usage = `Commands:
    t <speed>            # Throttle target, -1.0 (full reverse) to 1.0 (full forward)
    a <throttle> <turn>  # Arcade drive, tank mode only
    l <left> <right>     # Track targets, tank mode only
    s <angle>            # Servo angle in degrees
    stop                 # Ramp down to neutral
    estop                # Neutral at once
    status               # Print the current state
    quit                 # Stop and exit`

type (
	// Command is one parsed line of the command protocol
	Command struct {
		Kind Kind
		Args []float64
	}

	// Executor carries out parsed commands. The returned string is written back as the reply
	Executor interface {
		Execute(cmd Command) (string, error)
	}

	// ExecutorFunc adapts a function to the Executor interface
	ExecutorFunc func(cmd Command) (string, error)
)

// Execute calls f(cmd)
func (f ExecutorFunc) Execute(cmd Command) (string, error) {
	return f(cmd)
}

var keywords = map[string]struct {
	kind  Kind
	nargs int
}{
	"t":        {KindThrottle, 1},
	"throttle": {KindThrottle, 1},
	"a":        {KindArcade, 2},
	"arcade":   {KindArcade, 2},
	"l":        {KindTank, 2},
	"tank":     {KindTank, 2},
	"s":        {KindServo, 1},
	"servo":    {KindServo, 1},
	"stop":     {KindStop, 0},
	"estop":    {KindEmergencyStop, 0},
	"status":   {KindStatus, 0},
	"quit":     {KindQuit, 0},
	"q":        {KindQuit, 0},
}

// Parse parses one line. Blank lines and comments starting with '#' parse to KindNone
func Parse(line string) (Command, error) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{Kind: KindNone}, nil
	}

	keyword, ok := keywords[strings.ToLower(fields[0])]
	if !ok {
		return Command{}, errors.Errorf("unknown command %q", fields[0])
	}
	if len(fields)-1 != keyword.nargs {
		return Command{}, errors.Errorf("%s expects %d argument(s), got %d", fields[0], keyword.nargs, len(fields)-1)
	}

	cmd := Command{Kind: keyword.kind}
	for _, field := range fields[1:] {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Command{}, errors.Wrapf(err, "expected number, not %q", field)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Command{}, errors.Errorf("expected a finite number, not %q", field)
		}
		cmd.Args = append(cmd.Args, v)
	}
	return cmd, nil
}

// Serve reads commands line by line from r and hands them to exec until quit, EOF or the context
// is done. Replies and parse errors are written to w
//
// Parameters:
//
// ctx: The context that ends serving
// r: The command source, e.g. stdin or a serial port
// w: The reply sink, may be nil
// exec: The executor of the commands
// logger: The logger to log messages, may be nil
//
// Returns:
//
// nil on quit or EOF, the context error if canceled, or the read error
func Serve(ctx context.Context, r io.Reader, w io.Writer, exec Executor, logger logrus.FieldLogger) error {
	// Canceled on return so the reader stops once a quit is served
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	reply := func(msg string) error {
		if w == nil || msg == "" {
			return nil
		}
		if _, err := io.WriteString(w, msg+"\n"); err != nil {
			return errors.Wrap(err, "failed to write reply")
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if err != nil {
				return errors.Wrap(err, "failed to read commands")
			}
			return nil
		case line := <-lines:
			cmd, err := Parse(line)
			if err != nil {
				if logger != nil {
					logger.WithError(err).WithField("line", line).Warn("Invalid command")
				}
				if err := reply("error: " + err.Error()); err != nil {
					return err
				}
				continue
			}
			if cmd.Kind == KindNone {
				continue
			}

			msg, err := exec.Execute(cmd)
			if err != nil {
				if logger != nil {
					logger.WithError(err).WithField("line", line).Warn("Command failed")
				}
				if err := reply("error: " + err.Error()); err != nil {
					return err
				}
				continue
			}
			if err := reply(msg); err != nil {
				return err
			}

			if cmd.Kind == KindQuit {
				return nil
			}
		}
	}
}
