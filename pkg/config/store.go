package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// saveState writes st to path atomically: serialize to a temp file in the
// same directory, fsync, then rename over the destination. A crash or
// concurrent reader never observes a partially-written file.
func saveState(path string, st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return &ConfigWriteError{Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return &ConfigWriteError{Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &ConfigWriteError{Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &ConfigWriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &ConfigWriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &ConfigWriteError{Path: path, Err: fmt.Errorf("rename: %w", err)}
	}
	return nil
}
