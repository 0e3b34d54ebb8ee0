package devworld

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BRAVO68WEB/devworld/internal/config"
)

// version is set at build time via -ldflags "-X github.com/BRAVO68WEB/devworld/cmd/devworld.version=..."
var version = "0.1.0"

// cfg is loaded once before any command runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "devworld",
	Short: "Route dev hostnames to a local dev server and open files in the right editor session",
	Long: `devworld serves a proxy auto-config policy that sends hosts like https://dev
to a local dev server, accepts routing rules from browser extensions, and
forwards "open this file" events to the editor session that owns the file.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(".env"); err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = config.ConfigPath()
		}
		loaded, err := config.LoadFrom(path)
		if err != nil {
			return err
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			loaded.LogLevel = level
		}
		cfg = loaded
		slog.SetDefault(newLogger(cfg.LogLevel))
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.devworld/config.json)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (or DEVWORLD_LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(entriesCmd)
	rootCmd.AddCommand(pacCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(bridgeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(healthCmd)
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
