package main

import (
	"fmt"

	"github.com/openmined/syftmirror/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [interval-ms] [log-file] [source] [replica]",
		Short: "Write the current settings to the config file",
		Args:  cobra.MaximumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := resolveConfigPath(cmd)

			if existing, err := config.LoadConfig(path); err == nil && !force {
				fmt.Fprintln(out, "SyftMirror already initialized")
				printConfig(cmd, existing)
				return nil
			}

			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}

			cmd.SilenceUsage = true
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			cfg.Path = path

			fmt.Fprintln(out, "SyftMirror initialized")
			printConfig(cmd, cfg)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")
	return cmd
}
