package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-gazekeys/internal/config"
	"github.com/teslashibe/go-gazekeys/internal/log"
	"github.com/teslashibe/go-gazekeys/pkg/debug"
)

// Version is the application version.
const Version = "0.1.0"

var configPath string

// flagKeys maps command-line flags onto config keys. A flag only overrides
// the file and environment when it is set explicitly.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"debug":        "debug.enabled",
	"debug-frames": "debug.frames",
	"device":       "camera.device",
	"input":        "input.backend",
	"render":       "render.backend",
	"web-port":     "render.web_port",
	"name":         "calibration.name",
}

var rootCmd = &cobra.Command{
	Use:     "gazekeys",
	Short:   "Blink-armed gaze control for arrow keys",
	Version: Version,
	// Usage is noise for runtime failures like a missing camera
	SilenceUsage: true,
}

// Execute runs the CLI with a context cancelled on Ctrl+C or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default: $GAZEKEYS_CONFIG or ~/.gazekeys/config.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.Bool("debug", false, "enable verbose debug output")
	pf.Bool("debug-frames", false, "print per-frame openness, pupil and gaze")
}

// newViper loads defaults, file and environment, then binds the flags of cmd.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v, err := config.New(configPath)
	if err != nil {
		return nil, err
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind --%s: %w", name, err)
			}
		}
	}
	return v, nil
}

// loadConfig resolves the configuration for cmd and sets up logging from it.
// Validation warnings are logged and do not stop the command.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	v, err := newViper(cmd)
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg, warnings, err := config.Parse(v)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	log.Init(cfg.LogLevel)
	debug.Enabled = cfg.Debug
	debug.Frames = cfg.DebugFrames

	logger := log.L()
	if path := v.ConfigFileUsed(); path != "" {
		logger.Info("config loaded", "path", path)
	}
	for _, w := range warnings {
		logger.Warn("config warning", "error", w)
	}
	return cfg, logger, nil
}
