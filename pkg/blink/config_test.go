package blink

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.EARThreshold != 0.25 {
		t.Errorf("Expected EARThreshold=0.25, got %v", cfg.EARThreshold)
	}
	if cfg.ConsecutiveFrames != 3 {
		t.Errorf("Expected ConsecutiveFrames=3, got %v", cfg.ConsecutiveFrames)
	}
	if cfg.MinInterval != 100*time.Millisecond || cfg.MaxInterval != 800*time.Millisecond {
		t.Errorf("Expected 100ms..800ms interval, got %v..%v", cfg.MinInterval, cfg.MaxInterval)
	}
	if cfg.HistoryWindow != 5*time.Second {
		t.Errorf("Expected HistoryWindow=5s, got %v", cfg.HistoryWindow)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}
}

func TestLowFrameRateConfig(t *testing.T) {
	cfg := LowFrameRateConfig()
	if cfg.ConsecutiveFrames != 2 {
		t.Errorf("Expected ConsecutiveFrames=2, got %v", cfg.ConsecutiveFrames)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected config to validate, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.EARThreshold = 0 }},
		{"zero frames", func(c *Config) { c.ConsecutiveFrames = 0 }},
		{"inverted interval", func(c *Config) { c.MinInterval = time.Second }},
		{"window too short", func(c *Config) { c.HistoryWindow = 500 * time.Millisecond }},
		{"history too small", func(c *Config) { c.MaxHistory = 1 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
