package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/openmined/syftmirror/internal/config"
	"github.com/openmined/syftmirror/internal/version"
	"github.com/spf13/cobra"
)

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	green = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cyan  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("242")).
			Padding(0, 2)
)

func showHeader(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render(version.AppName+" "+version.Version))
	fmt.Fprintf(out, "%s %s %s\n", cyan.Render(cfg.Source), gray.Render("->"), cyan.Render(cfg.Replica))
}

func printConfig(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config Path: %s\n", green.Render(cfg.Path))
	fmt.Fprintf(out, "Interval:    %s\n", cyan.Render(fmt.Sprintf("%dms", cfg.IntervalMs)))
	fmt.Fprintf(out, "Log File:    %s\n", cyan.Render(cfg.LogFile))
	fmt.Fprintf(out, "Source:      %s\n", cyan.Render(cfg.Source))
	fmt.Fprintf(out, "Replica:     %s\n", cyan.Render(cfg.Replica))
	if len(cfg.Ignore) > 0 {
		fmt.Fprintf(out, "Ignore:      %s\n", gray.Render(fmt.Sprint(cfg.Ignore)))
	}
}
