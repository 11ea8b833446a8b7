// Package procstat describes a running child process for diagnostics.
package procstat

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Info is a snapshot of one process
type Info struct {
	PID        int32
	Name       string
	Cmdline    string
	Status     string
	CPUPercent float64
	MemoryMB   float64 // RSS in MB
	CreateTime time.Time
	NumThreads int32
	Children   []*Info
}

// Running reports whether a process with the given PID exists.
func Running(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// Describe takes a snapshot of the process and its direct children.
func Describe(pid int) (*Info, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("process not found: %w", err)
	}

	info := fetchInfo(p)

	// Get children processes
	if children, err := p.Children(); err == nil {
		for _, child := range children {
			info.Children = append(info.Children, fetchInfo(child))
		}
	}

	return info, nil
}

// fetchInfo retrieves what is available; short-lived processes may vanish
// between calls, so individual failures are ignored.
func fetchInfo(p *process.Process) *Info {
	info := &Info{
		PID: p.Pid,
	}

	if name, err := p.Name(); err == nil {
		info.Name = name
	}

	if cmdline, err := p.Cmdline(); err == nil {
		info.Cmdline = cmdline
	}

	if cpuPercent, err := p.CPUPercent(); err == nil {
		info.CPUPercent = cpuPercent
	}

	if memInfo, err := p.MemoryInfo(); err == nil {
		info.MemoryMB = float64(memInfo.RSS) / 1024 / 1024
	}

	if createTime, err := p.CreateTime(); err == nil {
		info.CreateTime = time.UnixMilli(createTime)
	}

	if status, err := p.Status(); err == nil && len(status) > 0 {
		info.Status = status[0]
	}

	if numThreads, err := p.NumThreads(); err == nil {
		info.NumThreads = numThreads
	}

	return info
}

// LogValue implements slog.LogValuer.
func (i *Info) LogValue() slog.Value {
	pids := make([]int32, 0, len(i.Children))
	for _, c := range i.Children {
		pids = append(pids, c.PID)
	}
	return slog.GroupValue(
		slog.Int("pid", int(i.PID)),
		slog.String("name", i.Name),
		slog.String("status", i.Status),
		slog.Float64("cpu_percent", i.CPUPercent),
		slog.Float64("memory_mb", i.MemoryMB),
		slog.Int("threads", int(i.NumThreads)),
		slog.Any("children", pids),
	)
}
