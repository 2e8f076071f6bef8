package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tinygoerrors "github.com/ralvarezdev/tinygo-errors"
	rpiescmotor "github.com/ralvarezdev/rpi-escmotor"
	"github.com/ralvarezdev/rpi-escmotor/drive"
	"github.com/ralvarezdev/rpi-escmotor/internal/command"
	"github.com/ralvarezdev/rpi-escmotor/pwm"
	"github.com/ralvarezdev/rpi-escmotor/servo"
)

func newTestMotor(t *testing.T, out pwm.PWM, channel uint8) *rpiescmotor.DefaultHandler {
	t.Helper()
	profile := rpiescmotor.ProfileGeneric
	h, code := rpiescmotor.NewDefaultHandler(out, channel, nil, nil, &profile, false, 1, 1, 0, nil)
	if code != tinygoerrors.ErrorCodeNil {
		t.Fatalf("NewDefaultHandler: %s", rpiescmotor.ErrorMessage(code))
	}
	return h
}

func mustParse(t *testing.T, line string) command.Command {
	t.Helper()
	cmd, err := command.Parse(line)
	if err != nil {
		t.Fatalf("Parse(%q): %v", line, err)
	}
	return cmd
}

func TestSingleModeController(t *testing.T) {
	out := pwm.NewDummy(nil)
	motor := newTestMotor(t, out, 0)
	ctrl := &controller{motor: motor}

	if _, err := ctrl.Execute(mustParse(t, "t 0.5")); err != nil {
		t.Fatalf("throttle: %v", err)
	}
	motor.Update(time.Unix(1000, 0))

	status, err := ctrl.Execute(mustParse(t, "status"))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != "profile=generic state=forward target=0.50 speed=0.50 ramp=0s" {
		t.Errorf("status = %q", status)
	}

	if _, err := ctrl.Execute(mustParse(t, "a 0.5 0")); err == nil {
		t.Error("arcade accepted in single mode")
	}
	if _, err := ctrl.Execute(mustParse(t, "t 1.5")); err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Errorf("throttle 1.5 error = %v", err)
	}

	if _, err := ctrl.Execute(mustParse(t, "estop")); err != nil {
		t.Fatalf("estop: %v", err)
	}
	if pulse, _ := out.Pulse(0); pulse != 1500*time.Microsecond {
		t.Errorf("pulse after estop = %v", pulse)
	}
}

func TestTankModeController(t *testing.T) {
	out := pwm.NewDummy(nil)
	tracks, _ := drive.NewDifferential(newTestMotor(t, out, 0), newTestMotor(t, out, 1), nil)
	ctrl := &controller{tracks: tracks}

	if _, err := ctrl.Execute(mustParse(t, "a 0.5 0.25")); err != nil {
		t.Fatalf("arcade: %v", err)
	}
	tracks.Update(time.Unix(1000, 0))

	status, _ := ctrl.Execute(mustParse(t, "status"))
	if status != "left=0.75 right=0.25" {
		t.Errorf("status = %q", status)
	}

	reply, err := ctrl.Execute(mustParse(t, "quit"))
	if err != nil || reply != "bye" {
		t.Errorf("quit = %q, %v", reply, err)
	}
}

func TestServoCommand(t *testing.T) {
	out := pwm.NewDummy(nil)
	ctrl := &controller{motor: newTestMotor(t, out, 0)}

	if _, err := ctrl.Execute(mustParse(t, "s 45")); err == nil {
		t.Error("servo command accepted without a servo")
	}

	s, err := servo.New(out, 5, servo.DefaultConfig, nil)
	if err != nil {
		t.Fatalf("servo.New: %v", err)
	}
	ctrl.servo = s

	if _, err := ctrl.Execute(mustParse(t, "s 45")); err != nil {
		t.Fatalf("servo: %v", err)
	}
	if pulse, _ := out.Pulse(5); pulse != 1000*time.Microsecond {
		t.Errorf("servo pulse = %v, want 1ms", pulse)
	}
}

func TestServeCommandsEndsWhenLoopFails(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	loopErr := errors.New("invalid ESC motor update interval 0s")
	exec := command.ExecutorFunc(func(command.Command) (string, error) { return "", nil })

	done := make(chan error, 1)
	go func() {
		done <- serveCommands(context.Background(), func(context.Context) error { return loopErr }, r, io.Discard, exec, nil)
	}()

	select {
	case err := <-done:
		if !errors.Is(err, loopErr) {
			t.Errorf("serveCommands = %v, want the loop error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("commands were still served after the control loop failed")
	}
}

func TestServeCommandsStopsLoopOnQuit(t *testing.T) {
	stopped := make(chan struct{})
	loop := func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	}
	exec := command.ExecutorFunc(func(cmd command.Command) (string, error) { return "bye", nil })

	if err := serveCommands(context.Background(), loop, strings.NewReader("quit\n"), io.Discard, exec, nil); err != nil {
		t.Fatalf("serveCommands: %v", err)
	}
	select {
	case <-stopped:
	default:
		t.Error("control loop still running after quit")
	}
}
