// Package vault provides durable client-side storage for the small set of
// values keydesk persists between runs, keyed by fixed string names.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when the requested key has no stored value.
var ErrNotFound = errors.New("vault: key not found")

// Vault stores string values under fixed key names.
type Vault interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// FileVault keeps one file per key inside a state directory.
type FileVault struct {
	dir string
}

// NewFileVault returns a FileVault rooted at dir. The directory is created
// lazily on the first Set.
func NewFileVault(dir string) (*FileVault, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("vault: state directory is required")
	}
	return &FileVault{dir: dir}, nil
}

// Get reads the value stored under key.
func (v *FileVault) Get(_ context.Context, key string) (string, error) {
	path, err := v.path(key)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("vault: read %s: %w", key, err)
	}
	return string(data), nil
}

// Set writes value under key. Files are created with 0600 since they hold
// session material.
func (v *FileVault) Set(_ context.Context, key, value string) error {
	path, err := v.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(v.dir, 0o700); err != nil {
		return fmt.Errorf("vault: create state dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(value), 0o600); err != nil {
		return fmt.Errorf("vault: write %s: %w", key, err)
	}
	return nil
}

// Delete removes the value stored under key. Deleting an absent key is not an
// error.
func (v *FileVault) Delete(_ context.Context, key string) error {
	path, err := v.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vault: delete %s: %w", key, err)
	}
	return nil
}

func (v *FileVault) path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("vault: key is required")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("vault: invalid key %q", key)
	}
	return filepath.Join(v.dir, key), nil
}
