package vision

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	cfg := DefaultReconnectConfig()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{40, 30 * time.Second},
		{0, 1 * time.Second},
	}
	for _, tt := range tests {
		if got := calculateBackoff(tt.attempt, cfg); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestReconnectConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ReconnectConfig)
		wantErr bool
	}{
		{"default", func(c *ReconnectConfig) {}, false},
		{"no retries", func(c *ReconnectConfig) { c.MaxRetries = 0 }, false},
		{"zero threshold", func(c *ReconnectConfig) { c.EmptyFrames = 0 }, true},
		{"negative retries", func(c *ReconnectConfig) { c.MaxRetries = -1 }, true},
		{"zero delay", func(c *ReconnectConfig) { c.RetryDelay = 0 }, true},
		{"cap below delay", func(c *ReconnectConfig) { c.MaxRetryDelay = 500 * time.Millisecond }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultReconnectConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// testReconnector records requested delays instead of sleeping.
func testReconnector(cfg ReconnectConfig) (*reconnector, *[]time.Duration) {
	r := newReconnector(cfg, nil)
	var delays []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return r, &delays
}

func TestReconnector_ReopensAfterConsecutiveEmpties(t *testing.T) {
	cfg := DefaultReconnectConfig()
	cfg.EmptyFrames = 3
	r, _ := testReconnector(cfg)

	// A good read in between restarts the count
	r.miss()
	r.miss()
	r.hit()
	if r.miss() || r.miss() {
		t.Fatal("reopen requested before three empty reads in a row")
	}
	if !r.miss() {
		t.Fatal("third empty read in a row should request a reopen")
	}
}

func TestReconnector_ReopenBacksOff(t *testing.T) {
	cfg := DefaultReconnectConfig()
	cfg.EmptyFrames = 1
	r, delays := testReconnector(cfg)
	r.miss()

	opens := 0
	err := r.reopen(context.Background(), func() error {
		opens++
		if opens < 3 {
			return errors.New("device busy")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, (*delays)[i], want[i])
		}
	}
	if r.empties != 0 || r.reconnects != 1 {
		t.Errorf("after reopen: empties %d reconnects %d, want 0 and 1", r.empties, r.reconnects)
	}
}

func TestReconnector_GivesUp(t *testing.T) {
	cfg := DefaultReconnectConfig()
	cfg.MaxRetries = 3
	r, delays := testReconnector(cfg)

	opens := 0
	err := r.reopen(context.Background(), func() error {
		opens++
		return errors.New("no such device")
	})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("reopen error = %v, want ErrSourceUnavailable", err)
	}
	if opens != 3 || len(*delays) != 3 {
		t.Errorf("opens %d waits %d, want 3 and 3", opens, len(*delays))
	}
}

func TestReconnector_NoRetriesFailsAtOnce(t *testing.T) {
	cfg := DefaultReconnectConfig()
	cfg.MaxRetries = 0
	r, _ := testReconnector(cfg)

	err := r.reopen(context.Background(), func() error {
		t.Fatal("open should not be called")
		return nil
	})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("reopen error = %v, want ErrSourceUnavailable", err)
	}
}

func TestReconnector_CancelledDuringBackoff(t *testing.T) {
	r := newReconnector(DefaultReconnectConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := r.reopen(ctx, func() error {
		t.Fatal("open should not be called after cancel")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("reopen error = %v, want context.Canceled", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("reopen should not sleep through the backoff once cancelled")
	}
}
