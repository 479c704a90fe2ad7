package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tripwatch",
	Short: "Multi-camera motion detection with tripwire alerts",
	Long: `tripwatch watches a set of cameras, detects motion in each frame and
raises an alert when a moving object touches a camera's tripwire line.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (environment variables override it)")

	rootCmd.AddCommand(serveCmd, listCamerasCmd, hashPasswordCmd)
}

// newLogger builds the process logger from the log config section.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
