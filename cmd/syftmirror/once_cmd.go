package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newOnceCmd())
}

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once [interval-ms] [log-file] [source] [replica]",
		Short: "Run a single mirror cycle and exit",
		Args:  cobra.MaximumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}

			cmd.SilenceUsage = true
			return runMirror(cmd.Context(), cfg, true)
		},
	}
}
