package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmbot/dmbot/internal/core"
)

const driverFile = "file"

// FileStore keeps the snapshot in a single CBOR file.
type FileStore struct {
	Path string
}

// NewFileStore prepares the directory for path.
func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("state path is required")
	}
	if err := ensureStoreDir(path); err != nil {
		return nil, err
	}
	return &FileStore{Path: filepath.Clean(path)}, nil
}

// LoadState reads the snapshot file.
func (f *FileStore) LoadState(ctx context.Context) (*core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return DecodeSnapshot(data)
}

// SaveState writes the snapshot through a temp file and rename so a crash
// never leaves a partial file behind.
func (f *FileStore) SaveState(ctx context.Context, snap *core.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		cleanup()
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// ResetState deletes the snapshot file.
func (f *FileStore) ResetState(ctx context.Context) error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}

// Ping checks that the state directory exists.
func (f *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(filepath.Dir(f.Path))
	if err != nil {
		return fmt.Errorf("state directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("state directory %s is not a directory", filepath.Dir(f.Path))
	}
	return nil
}

// Close is a no-op.
func (f *FileStore) Close() error { return nil }

// Driver returns "file".
func (f *FileStore) Driver() string { return driverFile }
