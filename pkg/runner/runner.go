package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single tool invocation end to end.
	DefaultTimeout = 120 * time.Second
	// DefaultMaxOutput caps how much combined stdout/stderr is retained.
	DefaultMaxOutput = 64 * 1024
	// killGrace is how long a process gets to exit after SIGTERM before
	// it is killed.
	killGrace = 3 * time.Second
)

// Options tunes a single invocation. Zero values fall back to the defaults.
type Options struct {
	Timeout   time.Duration
	MaxOutput int
}

// StartError reports that the process could not be spawned at all
// (executable missing, permission denied). No output exists in this case.
type StartError struct {
	Name string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Name, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ExitError reports a process that started but did not succeed: it either
// exceeded the invocation timeout or exited non-zero. Output carries the
// retained tail of the combined stdout/stderr stream.
type ExitError struct {
	Name     string
	TimedOut bool
	ExitCode int
	Output   []byte
	Err      error
}

func (e *ExitError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out", e.Name)
	}
	return fmt.Sprintf("%s exited with code %d", e.Name, e.ExitCode)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Runner runs an external executable with the given argument vector and
// returns its combined output on success. Implementations must never invoke
// a shell.
type Runner interface {
	Run(ctx context.Context, name string, args []string, opts Options) ([]byte, error)
}

// CLIRunner executes commands on the host via os/exec.
type CLIRunner struct {
	log *zap.SugaredLogger
}

// New creates a CLIRunner. The logger may be nil.
func New(log *zap.SugaredLogger) *CLIRunner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &CLIRunner{log: log}
}

// Run spawns name with args, streaming stdout and stderr interleaved into a
// bounded tail buffer. The invocation is limited to opts.Timeout: on expiry
// the process receives SIGTERM, and SIGKILL if it has not exited within the
// grace period. The timeout context is released as soon as the process
// exits, so a fast exit leaks no timer.
func (r *CLIRunner) Run(ctx context.Context, name string, args []string, opts Options) ([]byte, error) {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxOutput == 0 {
		opts.MaxOutput = DefaultMaxOutput
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	out := newTailBuffer(opts.MaxOutput)

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	// Ask nicely first; WaitDelay escalates to SIGKILL.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &StartError{Name: name, Err: err}
	}

	err := cmd.Wait()
	elapsed := time.Since(started)

	if err != nil {
		timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		r.log.Warnw("tool invocation failed",
			"tool", name, "timedOut", timedOut, "exitCode", exitCode, "elapsed", elapsed)
		return nil, &ExitError{
			Name:     name,
			TimedOut: timedOut,
			ExitCode: exitCode,
			Output:   out.Bytes(),
			Err:      err,
		}
	}

	r.log.Debugw("tool invocation succeeded", "tool", name, "elapsed", elapsed)
	return out.Bytes(), nil
}

// Probe verifies the tool is installed and runnable by invoking its version
// subcommand with a short timeout. Used to fail fast before real work.
func Probe(ctx context.Context, r Runner, name string) error {
	_, err := r.Run(ctx, name, []string{"version"}, Options{Timeout: 10 * time.Second})
	return err
}
