package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"runcapture/internal/replayws"
)

func newServeCmd() *cobra.Command {
	var (
		listen   string
		runsRoot string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve captured output over WebSocket",
		Long: `Serve the captured output of every run below --runs-root.

Connect a WebSocket client to /runs/{id}/output to receive the replay as JSON
messages. Add ?stream=stdout or ?stream=stderr to replay a single stream.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return replayws.New(runsRoot, slog.Default()).ListenAndServe(listen)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "localhost:22124", "Address to listen on")
	cmd.Flags().StringVar(&runsRoot, "runs-root", ".", "Directory containing one directory per run")
	return cmd
}
