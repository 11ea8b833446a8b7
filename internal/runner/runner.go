// Package runner starts a command inside a run and captures its output.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"runcapture/internal/capture"
	"runcapture/internal/procstat"
	"runcapture/internal/run"
)

// Options controls how a command is run.
type Options struct {
	// Quiet disables mirroring of the child's output to the terminal.
	Quiet bool

	// WaitTimeout is how long to wait for the output readers before logging
	// the state of the child and waiting again. Defaults to
	// capture.DefaultWaitTimeout.
	WaitTimeout time.Duration

	// Dir is the working directory of the command.
	Dir string

	// Stdin is connected to the command's stdin. Nil means /dev/null.
	Stdin io.Reader

	// Stdout and Stderr receive the mirrored output. Nil means os.Stdout
	// and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer

	Logger *slog.Logger
}

// Result describes how the command terminated.
type Result struct {
	PID      int
	ExitCode int
	Signal   string
}

// Run executes args in r and blocks until the command has exited and its
// output has been captured. Cancelling ctx kills the command's process group
// and interrupts the capture.
func Run(ctx context.Context, r *run.Run, args []string, opts Options) (*Result, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("not enough arguments")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := r.Init(); err != nil {
		return nil, err
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = opts.Dir
	cmd.Stdin = opts.Stdin
	cmd.Env = append(os.Environ(), run.EnvRunDir+"="+r.Dir, run.EnvRunID+"="+r.ID)
	// Own process group, so cancellation reaches grandchildren too
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	proc, err := capture.PipeCommand(cmd)
	if err != nil {
		return nil, err
	}

	if err := r.WriteStart(strings.Join(args, " "), time.Now()); err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}
	pid := cmd.Process.Pid
	logger.Info("Started command", "run", r.ID, "pid", pid, "command", args[0])

	sessionOpts := []capture.Option{
		capture.WithQuiet(opts.Quiet),
		capture.WithLogger(logger),
	}
	if opts.Stdout != nil || opts.Stderr != nil {
		sessionOpts = append(sessionOpts, capture.WithMirror(orDefault(opts.Stdout, os.Stdout), orDefault(opts.Stderr, os.Stderr)))
	}
	session := capture.New(r, sessionOpts...)
	if err := session.Open(proc); err != nil {
		_ = killGroup(pid)
		_ = cmd.Wait()
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}

	if err := r.WritePID(pid); err != nil {
		logger.Error("Failed to record PID", "run", r.ID, "error", err)
	}

	stop := context.AfterFunc(ctx, func() {
		logger.Info("Cancelling command", "run", r.ID, "pid", pid)
		_ = killGroup(pid)
		_ = session.Interrupt()
	})
	defer stop()

	// The readers must drain the pipes before cmd.Wait closes them.
	for {
		if err := session.Wait(opts.WaitTimeout); err != nil {
			return nil, err
		}
		if session.Done() {
			break
		}
		if info, err := procstat.Describe(pid); err == nil {
			logger.Warn("Command output still open", "run", r.ID, "process", info)
		} else {
			logger.Warn("Command exited but its output is still open", "run", r.ID, "pid", pid)
		}
	}

	waitErr := cmd.Wait()
	stop()
	result := &Result{PID: pid}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			// Check if process was terminated by a signal
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				result.Signal = status.Signal().String()
			}
		} else {
			result.ExitCode = 1
		}
	}

	closeErr := session.Close()

	if err := r.WriteExit(result.ExitCode, result.Signal, time.Now()); err != nil {
		return result, err
	}
	logger.Info("Command finished", "run", r.ID, "pid", pid, "exit_code", result.ExitCode, "signal", result.Signal)

	if closeErr != nil {
		return result, fmt.Errorf("failed to close capture: %w", closeErr)
	}
	return result, ctx.Err()
}

func killGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

func orDefault(w io.Writer, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}
