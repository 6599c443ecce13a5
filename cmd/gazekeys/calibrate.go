package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gazekeys/pkg/calibration"
	"github.com/teslashibe/go-gazekeys/pkg/vision"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Record the straight-ahead gaze baseline",
	Long: `Captures frames while you look straight at the screen and saves the
median pupil position as the gaze baseline. "run" loads it at startup, so
the first command session does not need to recalibrate.`,
	Args: cobra.NoArgs,
	RunE: runCalibrate,
}

func init() {
	f := calibrateCmd.Flags()
	f.String("device", "", "camera device index or path")
	f.String("name", "", "calibration record name")
	f.Int("frames", calibration.DefaultCaptureOptions().Frames, "pupil samples to collect")
	f.Duration("settle", 2*time.Second, "time to look straight ahead before sampling starts")
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	frames, _ := cmd.Flags().GetInt("frames")
	settle, _ := cmd.Flags().GetDuration("settle")
	name := cfg.Pipeline.CalibrationName

	store, err := calibration.NewJSONStore(cfg.CalibrationPath)
	if err != nil {
		return fmt.Errorf("calibration store: %w", err)
	}

	backend, err := vision.NewGoCV(cfg.Camera, logger.With("component", "vision"))
	if err != nil {
		return err
	}
	defer backend.Close()

	fmt.Println("🎯 Look straight at the centre of the screen and keep still")
	select {
	case <-time.After(settle):
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}

	fmt.Printf("📷 Sampling %d frames...\n", frames)
	opts := calibration.CaptureOptions{Frames: frames, Logger: logger}
	rec, err := calibration.Capture(cmd.Context(), backend, opts, time.Now)
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}

	if err := store.Save(name, rec); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}

	fmt.Printf("✅ Baseline %q saved: pupil (%.0f, %.0f) in %dx%d frame\n",
		name, rec.BaselineX, rec.BaselineY, rec.FrameWidth, rec.FrameHeight)
	fmt.Printf("   %s\n", store.Path())
	return nil
}
