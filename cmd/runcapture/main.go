package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"runcapture/internal/run"
)

// exitCodeError makes the process exit with the child's exit code.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.code)
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "runcapture",
		Short: "Capture and replay the output of a run",
		Long: `runcapture runs a command, mirrors its stdout and stderr to the terminal
and records both streams in the run directory:

  output        the raw bytes of every completed line
  output.index  one 9-byte record per line: completion time and stream

The run is taken from --run-dir/--run-id or the RUN_DIR/RUN_ID environment
variables. CMD_DIR and MODEL_DIR are used when resolving files.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("run-dir", "", "Run directory (default: $RUN_DIR)")
	rootCmd.PersistentFlags().String("run-id", "", "Run ID (default: $RUN_ID or the run directory name)")
	rootCmd.PersistentFlags().String("cmd-dir", "", "Command directory for file resolution (default: $CMD_DIR)")
	rootCmd.PersistentFlags().String("model-dir", "", "Model directory for file resolution (default: $MODEL_DIR)")
	for key, flag := range map[string]string{
		"run_dir":   "run-dir",
		"run_id":    "run-id",
		"cmd_dir":   "cmd-dir",
		"model_dir": "model-dir",
	} {
		_ = v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}

	rootCmd.AddCommand(newExecCmd(v))
	rootCmd.AddCommand(newReplayCmd(v))
	rootCmd.AddCommand(newStatusCmd(v))
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newResolveCmd(v))
	rootCmd.AddCommand(newArgsCmd())
	return rootCmd
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// currentRun returns the run selected by flags or environment.
func currentRun(v *viper.Viper) (*run.Run, error) {
	cfg, err := run.ConfigFrom(v)
	if err != nil {
		return nil, err
	}
	r, err := run.Current(cfg)
	if err != nil {
		if errors.Is(err, run.ErrNoCurrentRun) {
			return nil, fmt.Errorf("%w: set --run-dir or %s", err, run.EnvRunDir)
		}
		return nil, err
	}
	if r.ID == "" {
		r.ID = filepath.Base(r.Dir)
	}
	return r, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
