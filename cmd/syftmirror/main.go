package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/syftmirror/internal/config"
	"github.com/openmined/syftmirror/internal/daemon"
	"github.com/openmined/syftmirror/internal/logsink"
	"github.com/openmined/syftmirror/internal/scheduler"
	"github.com/openmined/syftmirror/internal/utils"
	"github.com/openmined/syftmirror/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	home, _   = os.UserHomeDir()
	envPrefix = "SYFTMIRROR"
)

// consoleHandler receives every record next to the log file. Nil when not
// running from main (tests).
var consoleHandler slog.Handler

var rootCmd = &cobra.Command{
	Use:     "syftmirror [interval-ms] [log-file] [source] [replica]",
	Short:   "Mirror a source folder into a replica folder",
	Long:    "Periodically copies new and changed files from source to replica and deletes\nreplica entries that no longer exist in source.",
	Version: version.Detailed(),
	Args:    cobra.MaximumNArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args)
		if err != nil {
			return err
		}

		// all good now, show header
		cmd.SilenceUsage = true
		showHeader(cmd, cfg)

		return runMirror(cmd.Context(), cfg, false)
	},
}

func init() {
	rootCmd.PersistentFlags().SortFlags = false
	addConfigFlags(rootCmd.PersistentFlags())
}

func addConfigFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", config.DefaultConfigPath, "SyftMirror config file")
	flags.IntP("interval", "i", config.DefaultIntervalMs, "Sync interval in milliseconds")
	flags.StringP("log-file", "l", config.DefaultLogFilePath, "Log file")
	flags.StringP("source", "s", "", "Source directory")
	flags.StringP("replica", "r", "", "Replica directory")
	flags.StringSlice("ignore", nil, "Ignore pattern in gitignore syntax (repeatable)")
	flags.BoolP("watch", "w", false, "Start a cycle early when the source changes")
}

func main() {
	// optional, SYFTMIRROR_* values may also come from a .env file
	_ = godotenv.Load()

	consoleHandler = tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(consoleHandler))

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

// exitError carries a loop exit code through cobra.
type exitError struct {
	code scheduler.ExitCode
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return int(ee.code)
	}
	return 1
}

// runMirror opens the log sink and runs the daemon until it stops.
func runMirror(ctx context.Context, cfg *config.Config, once bool) error {
	sink, err := logsink.NewFileSink(cfg.LogFile, consoleHandler)
	if err != nil {
		return err
	}
	defer sink.Close()

	slog.SetDefault(slog.New(sink.Handler()))
	slog.Info("syftmirror", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)

	d, err := daemon.NewDaemon(cfg, sink)
	if err != nil {
		return err
	}

	var code scheduler.ExitCode
	if once {
		code, err = d.RunOnce(ctx)
	} else {
		code, err = d.Start(ctx)
	}
	if err != nil {
		slog.Error("syftmirror", "error", err)
		return err
	}

	defer slog.Info("Bye!")
	if code != scheduler.ExitOK {
		return &exitError{code: code}
	}
	return nil
}

// loadConfig merges, highest first: positional args, flags, SYFTMIRROR_*
// env vars, the JSON config file, defaults.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	v := viper.New()

	configPath := resolveConfigPath(cmd)
	v.SetConfigFile(configPath)
	if config.IsYAML(configPath) {
		v.SetConfigType("yaml")
	} else {
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", configPath, err)
		}
	}

	v.SetDefault("interval_ms", config.DefaultIntervalMs)
	v.SetDefault("log_file", config.DefaultLogFilePath)

	// Bind flags to viper
	v.BindPFlag("interval_ms", cmd.Flag("interval"))
	v.BindPFlag("log_file", cmd.Flag("log-file"))
	v.BindPFlag("source", cmd.Flag("source"))
	v.BindPFlag("replica", cmd.Flag("replica"))
	v.BindPFlag("ignore", cmd.Flag("ignore"))
	v.BindPFlag("watch", cmd.Flag("watch"))

	// Set up environment variables
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	keys := []string{"interval_ms", "log_file", "source", "replica"}
	for i, arg := range args {
		v.Set(keys[i], arg)
	}
	if len(args) > 0 {
		if _, err := strconv.Atoi(args[0]); err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", args[0], config.ErrInvalidInterval)
		}
	}

	cfg := &config.Config{
		IntervalMs: v.GetInt("interval_ms"),
		LogFile:    v.GetString("log_file"),
		Source:     v.GetString("source"),
		Replica:    v.GetString("replica"),
		Ignore:     v.GetStringSlice("ignore"),
		Watch:      v.GetBool("watch"),
	}
	if utils.FileExists(configPath) {
		cfg.Path = configPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
