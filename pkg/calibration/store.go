// Package calibration persists gaze baselines between runs.
package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-gazekeys/pkg/gaze"
)

// ErrNotFound is returned by Load when no record exists under the name.
var ErrNotFound = errors.New("calibration not found")

// DefaultName is the record name used by the CLI.
const DefaultName = "default"

// Record is one saved baseline.
type Record struct {
	BaselineX   float64   `json:"baseline_x"`
	BaselineY   float64   `json:"baseline_y"`
	FrameWidth  int       `json:"frame_width"`
	FrameHeight int       `json:"frame_height"`
	Timestamp   time.Time `json:"timestamp"`
}

// FromBaseline converts an estimator baseline into a record stamped at now.
func FromBaseline(b gaze.Baseline, now time.Time) Record {
	return Record{
		BaselineX:   b.Pupil.X,
		BaselineY:   b.Pupil.Y,
		FrameWidth:  b.Frame.Width,
		FrameHeight: b.Frame.Height,
		Timestamp:   now,
	}
}

// Baseline converts the record back into an estimator baseline.
func (r Record) Baseline() gaze.Baseline {
	return gaze.Baseline{
		Pupil: gaze.Point{X: r.BaselineX, Y: r.BaselineY},
		Frame: gaze.Size{Width: r.FrameWidth, Height: r.FrameHeight},
	}
}

// Store defines the interface for calibration storage.
type Store interface {
	// Load returns the record saved under name, or ErrNotFound
	Load(name string) (Record, error)

	// Save creates or replaces the record under name
	Save(name string, r Record) error

	// Names lists saved record names, sorted
	Names() []string
}

// JSONStore implements Store using a JSON file for persistence.
type JSONStore struct {
	path    string
	records map[string]Record
	mu      sync.RWMutex
}

// storeData is the JSON structure for the store file.
type storeData struct {
	Version      int               `json:"version"`
	UpdatedAt    string            `json:"updated_at"`
	Calibrations map[string]Record `json:"calibrations"`
}

const currentVersion = 1

// NewJSONStore creates a store at path.
// If the file doesn't exist, it will be created on first save.
func NewJSONStore(path string) (*JSONStore, error) {
	store := &JSONStore{
		path:    path,
		records: make(map[string]Record),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := store.load(); err != nil {
			return nil, fmt.Errorf("failed to load calibration store: %w", err)
		}
	}

	return store, nil
}

// DefaultPath returns ~/.gazekeys/calibration.json.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".gazekeys", "calibration.json"), nil
}

func (s *JSONStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var stored storeData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	s.records = make(map[string]Record, len(stored.Calibrations))
	for name, r := range stored.Calibrations {
		s.records[name] = r
	}
	return nil
}

// save writes the store to disk. Caller holds the write lock.
func (s *JSONStore) save() error {
	stored := storeData{
		Version:      currentVersion,
		UpdatedAt:    time.Now().Format(time.RFC3339),
		Calibrations: s.records,
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	// Write to temp file first, then rename (atomic write)
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load returns the record saved under name.
func (s *JSONStore) Load(name string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[name]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return r, nil
}

// Save stores r under name and flushes the file.
func (s *JSONStore) Save(name string, r Record) error {
	if name == "" {
		return fmt.Errorf("calibration name must not be empty")
	}
	if r.FrameWidth <= 0 || r.FrameHeight <= 0 {
		return fmt.Errorf("%w: %dx%d", gaze.ErrInvalidFrameSize, r.FrameWidth, r.FrameHeight)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.records[name]
	s.records[name] = r
	if err := s.save(); err != nil {
		if existed {
			s.records[name] = prev
		} else {
			delete(s.records, name)
		}
		return err
	}
	return nil
}

// Names lists saved record names.
func (s *JSONStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Path returns the backing file path.
func (s *JSONStore) Path() string {
	return s.path
}
