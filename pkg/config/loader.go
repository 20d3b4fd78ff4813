package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/mockserver/pkg/mock"
)

// Common errors for collection loading/saving.
var (
	ErrFileNotFound     = errors.New("configuration file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidJSON      = errors.New("invalid JSON syntax")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrEmptyFile        = errors.New("configuration file is empty")
	ErrDuplicateMock    = errors.New("duplicate mock name")
)

// MockCollection is a set of mock definitions stored in a file.
type MockCollection struct {
	Version string             `json:"version,omitempty" yaml:"version,omitempty"`
	Name    string             `json:"name,omitempty" yaml:"name,omitempty"`
	Mocks   []*mock.Definition `json:"mocks" yaml:"mocks"`
}

// Validate checks every definition and rejects duplicate names.
func (c *MockCollection) Validate() error {
	seen := make(map[string]bool, len(c.Mocks))
	for i, def := range c.Mocks {
		if def == nil {
			return fmt.Errorf("mocks[%d]: mock cannot be nil", i)
		}
		if err := def.Validate(); err != nil {
			return fmt.Errorf("mocks[%d]: %w", i, err)
		}
		if !mock.ValidPort(def.Port) {
			return fmt.Errorf("mocks[%d]: %w", i, &mock.ValidationError{
				Field:   "port",
				Message: fmt.Sprintf("port %d out of range %d-%d", def.Port, mock.MinPort, mock.MaxPort),
			})
		}
		if seen[def.Name] {
			return fmt.Errorf("mocks[%d]: %w: %s", i, ErrDuplicateMock, def.Name)
		}
		seen[def.Name] = true
	}
	return nil
}

// LoadFromFile reads a MockCollection from a JSON or YAML file.
// The format is auto-detected based on file extension (.yaml, .yml for YAML, otherwise JSON).
func LoadFromFile(path string) (*MockCollection, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		return ParseYAML(data)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w in file: %s", ErrInvalidJSON, path)
	}
	return ParseJSON(data)
}

// SaveToFile writes a MockCollection using an atomic rename.
// The format is determined by file extension (.yaml, .yml for YAML, otherwise JSON).
func SaveToFile(path string, collection *MockCollection) error {
	if collection == nil {
		return errors.New("collection cannot be nil")
	}

	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		data, err = yaml.Marshal(collection)
	} else {
		data, err = json.MarshalIndent(collection, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to marshal collection: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// ParseJSON parses and validates a JSON collection.
func ParseJSON(data []byte) (*MockCollection, error) {
	var collection MockCollection
	if err := json.Unmarshal(data, &collection); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if err := collection.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &collection, nil
}

// ParseYAML parses and validates a YAML collection.
func ParseYAML(data []byte) (*MockCollection, error) {
	var collection MockCollection
	if err := yaml.Unmarshal(data, &collection); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	if err := collection.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &collection, nil
}
