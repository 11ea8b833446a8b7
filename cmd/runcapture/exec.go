package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"runcapture/internal/capture"
	"runcapture/internal/runner"
)

func newExecCmd(v *viper.Viper) *cobra.Command {
	var (
		quiet       bool
		waitTimeout time.Duration
		workDir     string
	)

	cmd := &cobra.Command{
		Use:   "exec [flags] -- cmd [args...]",
		Short: "Run a command and capture its output",
		Long: `Run a command inside the current run, mirroring its output to the terminal
and writing output and output.index into the run directory.

The exit status of runcapture is the exit status of the command.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := currentRun(v)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := runner.Run(ctx, r, args, runner.Options{
				Quiet:       quiet,
				WaitTimeout: waitTimeout,
				Dir:         workDir,
				Stdin:       cmd.InOrStdin(),
				Stdout:      cmd.OutOrStdout(),
				Stderr:      cmd.ErrOrStderr(),
			})
			if err != nil && (result == nil || ctx.Err() == nil) {
				return err
			}
			switch {
			case result.ExitCode > 0:
				return &exitCodeError{code: result.ExitCode}
			case result.ExitCode < 0:
				// Terminated by a signal
				return &exitCodeError{code: 1}
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not mirror output to the terminal")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", capture.DefaultWaitTimeout, "Interval for reporting a command whose output stays open")
	cmd.Flags().StringVar(&workDir, "working-directory", "", "Working directory for the command")
	return cmd
}
