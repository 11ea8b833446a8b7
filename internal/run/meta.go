package run

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Info is the metadata recorded next to the captured output. Each field is
// stored in its own file inside the run directory.
type Info struct {
	ID          string
	Command     string
	PID         int
	StartTime   time.Time
	EndTime     time.Time
	ExitCode    int
	Signal      string // signal name if terminated by signal
	ContentType string // MIME type of the captured output
	Completed   bool
}

// WriteStart records the command and start time of the run.
func (r *Run) WriteStart(command string, startTime time.Time) error {
	if err := r.writeFile("cmd", command); err != nil {
		return err
	}
	if err := r.writeFile("starttime", startTime.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return r.writeFile("completed", "false")
}

// WritePID records the PID of the running child process.
func (r *Run) WritePID(pid int) error {
	return r.writeFile("pid", strconv.Itoa(pid))
}

// WriteExit records how the child process terminated.
func (r *Run) WriteExit(exitCode int, signal string, endTime time.Time) error {
	if err := r.writeFile("exit-status", strconv.Itoa(exitCode)); err != nil {
		return err
	}

	if signal != "" {
		if err := r.writeFile("signal", signal); err != nil {
			return err
		}
	}

	if contentType, err := r.detectContentType(); err == nil && contentType != "" {
		if err := r.writeFile("content-type", contentType); err != nil {
			return err
		}
	}

	if err := r.writeFile("endtime", endTime.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return r.writeFile("completed", "true")
}

// Load reads the metadata of the run. Only cmd and starttime are required.
func (r *Run) Load() (*Info, error) {
	info := &Info{ID: r.ID}

	cmdData, err := os.ReadFile(r.PathFor("cmd"))
	if err != nil {
		return nil, fmt.Errorf("failed to read cmd file: %w", err)
	}
	info.Command = string(cmdData)

	startTimeData, err := os.ReadFile(r.PathFor("starttime"))
	if err != nil {
		return nil, fmt.Errorf("failed to read starttime file: %w", err)
	}
	startTime, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(startTimeData)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse starttime: %w", err)
	}
	info.StartTime = startTime

	if data, err := os.ReadFile(r.PathFor("completed")); err == nil {
		info.Completed = strings.TrimSpace(string(data)) == "true"
	}

	if data, err := os.ReadFile(r.PathFor("pid")); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			info.PID = pid
		}
	}

	if data, err := os.ReadFile(r.PathFor("endtime")); err == nil {
		if endTime, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data))); err == nil {
			info.EndTime = endTime
		}
	}

	if data, err := os.ReadFile(r.PathFor("exit-status")); err == nil && len(data) > 0 {
		if exitCode, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			info.ExitCode = exitCode
		}
	}

	if data, err := os.ReadFile(r.PathFor("signal")); err == nil && len(data) > 0 {
		info.Signal = strings.TrimSpace(string(data))
	}

	if data, err := os.ReadFile(r.PathFor("content-type")); err == nil {
		info.ContentType = strings.TrimSpace(string(data))
	}

	return info, nil
}

func (r *Run) writeFile(name, value string) error {
	if err := os.WriteFile(r.PathFor(name), []byte(value), 0600); err != nil {
		return fmt.Errorf("failed to write %s file: %w", name, err)
	}
	return nil
}

// detectContentType sniffs the MIME type of the captured output. An empty
// output has no content type.
func (r *Run) detectContentType() (string, error) {
	f, err := os.Open(r.PathFor(OutputName))
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	// http.DetectContentType uses at most the first 512 bytes
	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	return http.DetectContentType(buf[:n]), nil
}
