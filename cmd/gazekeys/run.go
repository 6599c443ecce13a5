package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gazekeys/internal/config"
	"github.com/teslashibe/go-gazekeys/pkg/blink"
	"github.com/teslashibe/go-gazekeys/pkg/calibration"
	"github.com/teslashibe/go-gazekeys/pkg/clock"
	"github.com/teslashibe/go-gazekeys/pkg/command"
	"github.com/teslashibe/go-gazekeys/pkg/gaze"
	"github.com/teslashibe/go-gazekeys/pkg/input"
	"github.com/teslashibe/go-gazekeys/pkg/pipeline"
	"github.com/teslashibe/go-gazekeys/pkg/render"
	"github.com/teslashibe/go-gazekeys/pkg/vision"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the camera and turn gaze into arrow keys",
	Long: `Opens the camera and runs the frame loop.

Double blink to arm a command session. The first frame after arming sets
the gaze baseline, so look straight ahead. Glance up, down, left or right
to press the matching arrow key. Double blink again, or wait for the
session timeout, to disarm.`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	f := runCmd.Flags()
	f.String("device", "", "camera device index or path")
	f.String("input", "", "key injector: auto, xdotool, mqtt, log, mock")
	f.String("render", "", "renderers, comma separated: none, log, terminal, window, web")
	f.String("web-port", "", "dashboard port for the web renderer")
	f.String("name", "", "calibration record to load and save")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Println("👁️  gazekeys", Version)
	fmt.Println("==================")

	o, err := buildOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	fmt.Println("👀 Monitoring. Double blink to arm, Ctrl+C to quit")
	if err := o.Run(cmd.Context()); err != nil {
		return err
	}

	s := o.Stats()
	fmt.Printf("\n👋 Goodbye! %d frames, %d sessions, %d commands\n", s.Frames, s.Activations, s.Commands)
	return nil
}

// buildOrchestrator opens every component. On failure whatever was already
// opened is closed again.
func buildOrchestrator(cfg config.Config, logger *slog.Logger) (o *pipeline.Orchestrator, err error) {
	var closers []io.Closer
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}()

	store, err := calibration.NewJSONStore(cfg.CalibrationPath)
	if err != nil {
		return nil, fmt.Errorf("calibration store: %w", err)
	}

	backend, err := vision.NewGoCV(cfg.Camera, logger.With("component", "vision"))
	if err != nil {
		return nil, err
	}
	closers = append(closers, backend)

	injector, err := input.New(cfg.Input, logger.With("component", "input"))
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	closers = append(closers, injector)

	renderer, err := render.New(cfg.Render, logger.With("component", "render"))
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	if renderer != nil {
		closers = append(closers, renderer)
	}

	clk := clock.Real{}
	o, err = pipeline.New(cfg.Pipeline, pipeline.Components{
		Backend:  backend,
		Blink:    blink.NewDetector(cfg.Blink, clk),
		Gaze:     gaze.NewEstimator(cfg.Gaze),
		Commands: command.NewController(cfg.CommandTimeout, injector, clk, logger.With("component", "command")),
		Injector: injector,
		Renderer: renderer,
		Store:    store,
		Clock:    clk,
		Logger:   logger.With("component", "pipeline"),
	})
	if err != nil {
		return nil, err
	}

	logger.Info("pipeline ready",
		"vision", backend.Name(),
		"input", cfg.Input.Backend,
		"render", cfg.Render.Backends,
		"calibration", store.Path(),
	)
	return o, nil
}
