// Package calibration persists the user's calibration and keeps derived
// calibration state current as the underlying store changes.
package calibration

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/menta2k/vision-correct/internal/utils"
)

// Store keys
const (
	KeyCalibrationValue   = "calibration_value"
	KeyCalibrationEnabled = "calibration_enabled"
	KeyPrescriptionValue  = "prescription_value"
)

// Store is a string key-value store. Concurrent writers are not coordinated;
// the last write wins.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Get implements Store
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set implements Store
func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// FileStore keeps values in a JSON object on disk. Every Get rereads the
// file so values written by other processes are seen.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on the
// first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

// Get implements Store. Unreadable files read as empty.
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return "", false
	}
	v, ok := data[key]
	return v, ok
}

// Set implements Store
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	data[key] = value

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal calibration store: %w", err)
	}
	if err := utils.WriteFileAtomic(s.path, encoded, 0644); err != nil {
		return fmt.Errorf("failed to write calibration store: %w", err)
	}
	return nil
}

func (s *FileStore) load() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration store: %w", err)
	}

	data := make(map[string]string)
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse calibration store: %w", err)
	}
	return data, nil
}
