package benchmark

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LoadFile reads a snapshot file. A missing file yields an empty snapshot.
func LoadFile(path string) (Snapshot, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, 0, nil
		}
		return nil, 0, fmt.Errorf("read benchmark file: %w", err)
	}
	return DecodeSnapshot(data)
}

// SaveFile writes snap to path via a temp file and rename so readers never see a partial file.
func SaveFile(path string, snap Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create benchmark dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".benchmarks-*.json")
	if err != nil {
		return fmt.Errorf("create temp benchmark file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write benchmark file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close benchmark file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace benchmark file: %w", err)
	}
	return nil
}
