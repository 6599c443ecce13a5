package render

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-gazekeys/pkg/clock"
	"github.com/teslashibe/go-gazekeys/pkg/pipeline"
)

// New builds the configured renderers. It returns nil when nothing should be
// rendered; the pipeline accepts a nil renderer.
func New(cfg Config, logger *slog.Logger) (pipeline.Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var renderers []pipeline.Renderer
	for _, b := range cfg.Backends {
		var r pipeline.Renderer
		switch b {
		case BackendNone:
			continue
		case BackendLog:
			r = NewLog(logger, cfg.LogInterval, clock.Real{})
		case BackendTerminal:
			r = NewTerminal(nil)
		case BackendWindow:
			r = NewWindow(cfg.WindowName, cfg.ArrowScale)
		case BackendWeb:
			w := NewWeb(cfg, logger)
			w.StartAsync()
			r = w
		}
		logger.Info("renderer enabled", "backend", b)
		renderers = append(renderers, r)
	}

	switch len(renderers) {
	case 0:
		return nil, nil
	case 1:
		return renderers[0], nil
	default:
		return Multi(renderers), nil
	}
}

// Multi fans a state out to several renderers.
type Multi []pipeline.Renderer

// Render calls every renderer. ErrStop from any of them wins; other errors
// (ErrRecalibrate included) are joined.
func (m Multi) Render(s pipeline.State) error {
	var errs []error
	stop := false
	for _, r := range m {
		if err := r.Render(s); err != nil {
			if errors.Is(err, pipeline.ErrStop) {
				stop = true
				continue
			}
			errs = append(errs, err)
		}
	}
	if stop {
		return pipeline.ErrStop
	}
	return errors.Join(errs...)
}

// Close closes every renderer and joins the errors.
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
