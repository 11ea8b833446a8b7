package capture

import (
	"fmt"
	"io"
	"os/exec"
)

// Process is the child whose output is captured. Stdout and Stderr must be
// the read ends of pipes connected to the child's output streams.
type Process struct {
	Stdout io.Reader
	Stderr io.Reader

	// Cmd is optional and only used to report the PID.
	Cmd *exec.Cmd
}

// Pid returns the PID of the child, or 0 if it is not known.
func (p *Process) Pid() int {
	if p.Cmd == nil || p.Cmd.Process == nil {
		return 0
	}
	return p.Cmd.Process.Pid
}

// PipeCommand connects pipes to the stdout and stderr of cmd. It must be
// called before cmd.Start.
func PipeCommand(cmd *exec.Cmd) (*Process, error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		_ = stdoutPipe.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	return &Process{
		Stdout: stdoutPipe,
		Stderr: stderrPipe,
		Cmd:    cmd,
	}, nil
}
