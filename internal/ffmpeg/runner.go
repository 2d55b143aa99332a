// Package ffmpeg provides transcoder binary detection, capability probing,
// media probing, and process execution for the rendering pipeline.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Environment variables honored by the runner.
const (
	EnvRunTimeoutSec = "FFMPEG_RUN_TIMEOUT_SEC"
	EnvKillGraceSec  = "FFMPEG_KILL_GRACE_SEC"
	EnvLogCmd        = "FFMPEG_LOG_CMD"
	EnvProfileMode   = "FFMPEG_PROFILE_MODE"
)

// maxStderrLines is how many trailing stderr lines are kept for diagnostics.
const maxStderrLines = 100

// ExecError reports a transcoder invocation that exited non-zero or was
// killed. StderrTail holds the last captured stderr lines.
type ExecError struct {
	Cmd        string
	ExitCode   int
	TimedOut   bool
	StderrTail []string
	Err        error
}

func (e *ExecError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("transcoder timed out: %s", e.Cmd)
	}
	return fmt.Sprintf("transcoder exited with code %d: %s", e.ExitCode, e.Cmd)
}

func (e *ExecError) Unwrap() error { return e.Err }

// gpuFailureExitCodes are exit codes observed when a CUDA filter path fails
// at runtime despite the filters being listed as available.
var gpuFailureExitCodes = map[int]bool{218: true, 234: true}

// gpuFailureMarkers are stderr substrings that identify a GPU-path failure.
var gpuFailureMarkers = []string{"nvenc", "overlay_cuda", "scale_cuda", "cuda", "hwupload"}

// IsGPUFailure reports whether err looks like a hardware filter/encoder
// failure that warrants a CPU retry.
func IsGPUFailure(err error) bool {
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		return false
	}
	if gpuFailureExitCodes[execErr.ExitCode] {
		return true
	}
	for _, line := range execErr.StderrTail {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "error") && !strings.Contains(lower, "failed") &&
			!strings.Contains(lower, "impossible") {
			continue
		}
		for _, marker := range gpuFailureMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

// Runner executes transcoder commands with a per-invocation timeout and a
// terminate-then-kill shutdown sequence.
type Runner struct {
	binary    string
	timeout   time.Duration
	killGrace time.Duration
	logCmd    bool
	profile   bool
	logger    *slog.Logger
}

// NewRunner creates a Runner for the given binary path. Environment
// overrides (FFMPEG_RUN_TIMEOUT_SEC, FFMPEG_KILL_GRACE_SEC, FFMPEG_LOG_CMD)
// take precedence over the supplied values.
func NewRunner(binary string, timeout, killGrace time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if sec := envSeconds(EnvRunTimeoutSec); sec > 0 {
		timeout = sec
	}
	if sec := envSeconds(EnvKillGraceSec); sec > 0 {
		killGrace = sec
	}
	return &Runner{
		binary:    binary,
		timeout:   timeout,
		killGrace: killGrace,
		logCmd:    os.Getenv(EnvLogCmd) == "1",
		profile:   os.Getenv(EnvProfileMode) == "1",
		logger:    logger,
	}
}

// SetLogCommands enables command-line logging at debug level.
func (r *Runner) SetLogCommands(v bool) { r.logCmd = v }

// Binary returns the path to the executed binary.
func (r *Runner) Binary() string { return r.binary }

// envSeconds parses an environment variable holding a duration in seconds.
func envSeconds(name string) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	sec, err := strconv.ParseFloat(raw, 64)
	if err != nil || sec <= 0 {
		return 0
	}
	return time.Duration(sec * float64(time.Second))
}

// Run executes the binary with args and waits for completion. On non-zero
// exit an *ExecError with the trailing stderr lines is returned.
func (r *Runner) Run(ctx context.Context, args []string) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	// Terminate first so the transcoder can finalize its output; kill after
	// the grace period.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.killGrace

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("getting stderr pipe: %w", err)
	}

	if r.logCmd {
		r.logger.Debug("running transcoder", slog.String("cmd", r.String(args)))
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", r.binary, err)
	}

	tail := captureTail(stderr)
	waitErr := cmd.Wait()
	elapsed := time.Since(started)

	if waitErr == nil {
		if r.profile {
			r.logger.Info("transcoder finished",
				slog.Duration("elapsed", elapsed),
				slog.Int("args", len(args)))
		}
		return nil
	}

	execErr := &ExecError{
		Cmd:        r.String(args),
		ExitCode:   cmd.ProcessState.ExitCode(),
		TimedOut:   ctx.Err() == context.DeadlineExceeded,
		StderrTail: tail.lines(),
		Err:        waitErr,
	}
	r.logger.Error("transcoder failed",
		slog.Int("exit_code", execErr.ExitCode),
		slog.Bool("timed_out", execErr.TimedOut),
		slog.Duration("elapsed", elapsed),
		slog.String("stderr", lastLine(execErr.StderrTail)),
	)
	return execErr
}

// Output executes the binary and returns stdout, for listing-style
// invocations (-encoders, -filters, -version).
func (r *Runner) Output(ctx context.Context, args []string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	out, err := exec.CommandContext(ctx, r.binary, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", r.binary, err)
	}
	return out, nil
}

// String renders the full command line for logging.
func (r *Runner) String(args []string) string {
	return r.binary + " " + strings.Join(args, " ")
}

// stderrTail is a bounded ring buffer of the most recent stderr lines.
type stderrTail struct {
	mu   sync.Mutex
	buf  []string
	done chan struct{}
}

// captureTail drains rd into a bounded line buffer on a goroutine.
func captureTail(rd io.Reader) *stderrTail {
	t := &stderrTail{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		scanner := bufio.NewScanner(rd)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			t.mu.Lock()
			if len(t.buf) >= maxStderrLines {
				t.buf = t.buf[1:]
			}
			t.buf = append(t.buf, scanner.Text())
			t.mu.Unlock()
		}
	}()
	return t
}

// lines waits for the reader to drain and returns a copy of the buffer.
func (t *stderrTail) lines() []string {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.buf))
	copy(out, t.buf)
	return out
}

func lastLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
