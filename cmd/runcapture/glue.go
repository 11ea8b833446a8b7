package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"runcapture/internal/opargs"
	"runcapture/internal/run"
)

func newResolveCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve FILE",
		Short: "Resolve a file against the command and model directories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := run.ConfigFrom(v)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), run.ResolveFile(cfg, args[0]))
			return nil
		},
	}
}

func newArgsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "args [key=value|key...]",
		Short: "Decode operation arguments and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := opargs.Parse(args)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(parsed)
		},
	}
}
