package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"runcapture/internal/capture"
	"runcapture/pkg/outputindex"
)

const (
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

func newReplayCmd(v *viper.Viper) *cobra.Command {
	var (
		streamName string
		timestamps bool
		color      string
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Print the captured output of a run in completion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := currentRun(v)
			if err != nil {
				return err
			}

			seq := capture.Playback(r)
			if streamName != "" {
				stream, err := outputindex.ParseStream(streamName)
				if err != nil {
					return err
				}
				seq = capture.Filter(seq, stream)
			}

			out := cmd.OutOrStdout()
			useColor, err := colorEnabled(color, out)
			if err != nil {
				return err
			}

			w := bufio.NewWriter(out)
			for entry, err := range seq {
				if err != nil {
					_ = w.Flush()
					return fmt.Errorf("replay %s: %w", r.Dir, err)
				}
				writeEntry(w, entry, timestamps, useColor)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&streamName, "stream", "", "Only replay one stream (stdout or stderr)")
	cmd.Flags().BoolVarP(&timestamps, "timestamps", "t", false, "Prefix every line with its completion time and stream")
	cmd.Flags().StringVar(&color, "color", "auto", "Highlight stderr lines (auto, always, never)")
	return cmd
}

// colorEnabled decides whether stderr lines are highlighted. In auto mode
// this is only done when writing to a terminal.
func colorEnabled(mode string, out io.Writer) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		f, ok := out.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	}
	return false, fmt.Errorf("invalid color mode %q", mode)
}

func writeEntry(w io.Writer, e capture.Entry, timestamps, useColor bool) {
	if timestamps {
		fmt.Fprintf(w, "%s %s ", e.Time.UTC().Format("2006-01-02T15:04:05.000Z"), e.Stream)
	}
	if useColor && e.Stream == outputindex.Stderr {
		fmt.Fprintf(w, "%s%s%s", ansiRed, e.Line, ansiReset)
		return
	}
	_, _ = w.Write(e.Line)
}
