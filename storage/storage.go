// Package storage archives analysis reports as JSON documents, either on the
// local filesystem or in S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Backend is the report archive contract shared by the filesystem and S3
// implementations.
type Backend interface {
	SaveReport(ctx context.Context, data []byte, slug string) (string, error)
	ReadReport(ctx context.Context, path string) ([]byte, error)
	DeleteReport(ctx context.Context, path string) error
}

// Config contains storage configuration
type Config struct {
	BasePath string // Base directory for all stored files
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		BasePath: "./storage",
	}
}

// Storage handles filesystem storage operations
type Storage struct {
	config Config
}

// New creates a new Storage instance
func New(config Config) (*Storage, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}

	return &Storage{
		config: config,
	}, nil
}

// SaveReport saves an analysis report to the filesystem.
// Returns the relative file path from the base storage directory.
func (s *Storage) SaveReport(_ context.Context, data []byte, slug string) (string, error) {
	// Directory structure: reports/YYYY/MM/
	now := time.Now()
	dirPath := filepath.Join(s.config.BasePath, "reports",
		fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())))

	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	filename := slug + ".json"
	filePath := filepath.Join(dirPath, filename)

	// Make the name unique if a report with this slug already exists
	counter := 1
	for fileExists(filePath) {
		filename = fmt.Sprintf("%s-%d.json", slug, counter)
		filePath = filepath.Join(dirPath, filename)
		counter++
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	relPath, err := filepath.Rel(s.config.BasePath, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get relative path: %w", err)
	}

	return relPath, nil
}

// ReadReport reads a previously archived report by its relative path.
func (s *Storage) ReadReport(_ context.Context, path string) ([]byte, error) {
	cleaned, err := s.resolvePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}
	return data, nil
}

// DeleteReport removes an archived report by its relative path.
func (s *Storage) DeleteReport(_ context.Context, path string) error {
	cleaned, err := s.resolvePath(path)
	if err != nil {
		return err
	}

	if err := os.Remove(cleaned); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete report file: %w", err)
	}
	return nil
}

// resolvePath joins a relative report path with the base directory and
// rejects traversal outside it.
func (s *Storage) resolvePath(path string) (string, error) {
	cleaned := filepath.Join(s.config.BasePath, filepath.Clean("/"+path))
	if !strings.HasPrefix(cleaned, filepath.Clean(s.config.BasePath)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid report path: %s", path)
	}
	return cleaned, nil
}

// fileExists checks whether a file exists at the given path
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
