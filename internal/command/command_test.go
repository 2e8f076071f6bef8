package command

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"t 0.5", Command{Kind: KindThrottle, Args: []float64{0.5}}},
		{"  THROTTLE -1  ", Command{Kind: KindThrottle, Args: []float64{-1}}},
		{"a 0.4 -0.2", Command{Kind: KindArcade, Args: []float64{0.4, -0.2}}},
		{"l 1 1 # full ahead", Command{Kind: KindTank, Args: []float64{1, 1}}},
		{"s 90", Command{Kind: KindServo, Args: []float64{90}}},
		{"stop", Command{Kind: KindStop}},
		{"estop", Command{Kind: KindEmergencyStop}},
		{"status", Command{Kind: KindStatus}},
		{"q", Command{Kind: KindQuit}},
		{"", Command{Kind: KindNone}},
		{"# comment", Command{Kind: KindNone}},
	}

	for _, tt := range tests {
		got, err := Parse(tt.line)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.line, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, line := range []string{"x", "t", "t 1 2", "t fast", "a 1", "stop now", "s nan", "t NaN", "a inf 0", "tank 0 -Inf"} {
		if _, err := Parse(line); err == nil {
			t.Errorf("Parse(%q) returned no error", line)
		}
	}
}

func TestServe(t *testing.T) {
	input := strings.NewReader("t 0.5\nbogus\n\nstatus\nquit\nt 1\n")
	var out bytes.Buffer
	var got []Kind

	exec := ExecutorFunc(func(cmd Command) (string, error) {
		got = append(got, cmd.Kind)
		if cmd.Kind == KindStatus {
			return "idle", nil
		}
		return "", nil
	})

	if err := Serve(context.Background(), input, &out, exec, nil); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	want := []Kind{KindThrottle, KindStatus, KindQuit}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("executed %v, want %v", got, want)
	}
	if !strings.Contains(out.String(), `error: unknown command "bogus"`) {
		t.Errorf("missing parse error in output %q", out.String())
	}
	if !strings.Contains(out.String(), "idle\n") {
		t.Errorf("missing status reply in output %q", out.String())
	}
}

func TestServeReportsExecutorErrors(t *testing.T) {
	var out bytes.Buffer
	exec := ExecutorFunc(func(cmd Command) (string, error) {
		return "", errors.New("tank mode only")
	})

	if err := Serve(context.Background(), strings.NewReader("a 1 0\n"), &out, exec, nil); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if out.String() != "error: tank mode only\n" {
		t.Errorf("output = %q", out.String())
	}
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestServeReportsWriteErrors(t *testing.T) {
	exec := ExecutorFunc(func(cmd Command) (string, error) { return "idle", nil })

	err := Serve(context.Background(), strings.NewReader("status\nstatus\n"), brokenWriter{}, exec, nil)
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Serve = %v, want the write error", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, r, nil, ExecutorFunc(func(Command) (string, error) { return "", nil }), nil)
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
