package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"runcapture/internal/capture"
	"runcapture/internal/procstat"
)

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := currentRun(v)
			if err != nil {
				return err
			}
			info, err := r.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:      %s\n", r.ID)
			fmt.Fprintf(out, "Dir:      %s\n", r.Dir)
			fmt.Fprintf(out, "Command:  %s\n", info.Command)
			fmt.Fprintf(out, "Started:  %s\n", info.StartTime.Local().Format(time.RFC3339))
			if info.PID != 0 {
				fmt.Fprintf(out, "PID:      %d\n", info.PID)
			}

			switch {
			case info.Completed:
				fmt.Fprintf(out, "Status:   completed (exit %d", info.ExitCode)
				if info.Signal != "" {
					fmt.Fprintf(out, ", %s", info.Signal)
				}
				fmt.Fprintf(out, ") after %s\n", formatDuration(info.EndTime.Sub(info.StartTime)))
			case procstat.Running(info.PID):
				fmt.Fprintf(out, "Status:   running for %s\n", formatDuration(time.Since(info.StartTime)))
				if p, err := procstat.Describe(info.PID); err == nil {
					fmt.Fprintf(out, "Process:  %s (%s) cpu=%.1f%% rss=%.1fMB threads=%d children=%d\n",
						p.Name, p.Status, p.CPUPercent, p.MemoryMB, p.NumThreads, len(p.Children))
				}
			default:
				fmt.Fprintln(out, "Status:   not running (no exit status recorded)")
			}

			if info.ContentType != "" {
				fmt.Fprintf(out, "Output:   %s\n", info.ContentType)
			}

			var counts [2]int
			for entry, err := range capture.Playback(r) {
				if err != nil {
					fmt.Fprintf(out, "Lines:    unreadable (%v)\n", err)
					return nil
				}
				if int(entry.Stream) < len(counts) {
					counts[entry.Stream]++
				}
			}
			fmt.Fprintf(out, "Lines:    %d stdout, %d stderr\n", counts[0], counts[1])
			return nil
		},
	}
}

// formatDuration renders d rounded for humans.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
