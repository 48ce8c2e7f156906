// Package collector holds what the KLM and Schiphol collectors share: the
// raw response store and a rate-limited, cached, retrying JSON fetcher.
package collector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/skylane-labs/hubgraph/engine/domain"
)

// TimestampLayout is the suffix format of raw file names.
const TimestampLayout = "20060102_150405"

// RawStore persists raw API payloads as {name}_{YYYYMMDD_HHMMSS}.json.
type RawStore struct {
	Dir string
	now func() time.Time
}

func NewRawStore(dir string) *RawStore {
	return &RawStore{Dir: dir, now: time.Now}
}

// Save writes v as indented JSON and returns the file path.
func (s *RawStore) Save(name string, v any) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("collector: mkdir %s: %w", s.Dir, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("collector: encode %s: %w", name, err)
	}
	path := filepath.Join(s.Dir, fmt.Sprintf("%s_%s.json", name, s.now().Format(TimestampLayout)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("collector: write %s: %w", path, err)
	}
	return path, nil
}

// Latest returns the newest raw file for name by modification time. Files
// with equal mtimes are ordered by their timestamp suffix.
func (s *RawStore) Latest(name string) (string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("collector: %s: %w", name, domain.ErrNoRawData)
		}
		return "", err
	}
	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(name) + `_\d{8}_\d{6}\.json$`)

	var (
		best     string
		bestTime time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !pattern.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		mt := info.ModTime()
		if best == "" || mt.After(bestTime) || (mt.Equal(bestTime) && e.Name() > best) {
			best, bestTime = e.Name(), mt
		}
	}
	if best == "" {
		return "", fmt.Errorf("collector: %s in %s: %w", name, s.Dir, domain.ErrNoRawData)
	}
	return filepath.Join(s.Dir, best), nil
}

// LoadLatest decodes the newest raw file for name into v.
func (s *RawStore) LoadLatest(name string, v any) (string, error) {
	path, err := s.Latest(name)
	if err != nil {
		return "", err
	}
	return path, Load(path, v)
}

// Load decodes a raw file.
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("collector: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("collector: decode %s: %w", path, err)
	}
	return nil
}
