package memory

import (
	"fmt"
	"os"
	"path/filepath"
)

// atomicWriteFile writes data to path by writing a temporary file in the same
// directory and renaming it over the destination. Readers never observe a
// partial write; on failure the temp file is removed and the previous
// destination is left intact.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".retain-*.tmp")
	if err != nil {
		return fmt.Errorf("memory: create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("memory: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("memory: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("memory: atomic rename %s: %w", path, err)
	}
	return nil
}
