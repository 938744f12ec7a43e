package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"photobackup/pkg/shared"
)

var ErrConfigAbsent = errors.New("no config found")

const copyDirsKey = "copyDirs"

// ConfigStore persists the user's directory configuration as a JSON object.
// It performs no validation of its own.
type ConfigStore struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func NewConfigStore(fs afero.Fs, path string) *ConfigStore {
	return &ConfigStore{
		fs:   fs,
		path: path,
	}
}

func (s *ConfigStore) Path() string {
	return s.path
}

func (s *ConfigStore) IsPresent() bool {
	exists, err := afero.Exists(s.fs, s.path)
	return err == nil && exists
}

func (s *ConfigStore) Load() (*shared.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readRaw()
	if err != nil {
		return nil, err
	}

	var cfg shared.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", s.path, err)
	}
	return &cfg, nil
}

// Save merges the top-level keys set in partial over the stored object.
// Zero-valued fields are treated as unset and keep their stored value; keys
// the program does not know about are kept as well. CopyDirs is replaced as
// a whole; pass an empty non-nil slice to remove every copy dir.
func (s *ConfigStore) Save(partial shared.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[string]json.RawMessage)

	existing, err := s.readRaw()
	switch {
	case err == nil:
		if err := json.Unmarshal(existing, &merged); err != nil {
			return fmt.Errorf("decode config file %s: %w", s.path, err)
		}
	case errors.Is(err, ErrConfigAbsent):
	default:
		return err
	}

	update, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	var updateFields map[string]json.RawMessage
	if err := json.Unmarshal(update, &updateFields); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	for k, v := range updateFields {
		merged[k] = v
	}
	// A non-nil empty list clears the stored copy dirs.
	if partial.CopyDirs != nil && len(partial.CopyDirs) == 0 {
		merged[copyDirsKey] = json.RawMessage("[]")
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (s *ConfigStore) readRaw() ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrConfigAbsent
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return data, nil
}
