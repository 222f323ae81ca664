// Package fsutil provides small filesystem helpers, used by
// pkg/encoding's MarshalAndSave for atomic file writes. It is a pared-down
// descendant of the teacher's cross-device-aware atomic rename machinery:
// this module never moves files between synchronization roots, so the
// simpler single-directory temp-file-then-rename idiom suffices.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// temporaryNamePrefix is the file name prefix used for intermediate files
// created during an atomic write.
const temporaryNamePrefix = ".dirscansync-temporary-"

// WriteFileAtomic writes data to path using an intermediate temporary file in
// the same directory, swapped into place with a rename so that readers never
// observe a partially written file.
func WriteFileAtomic(path string, data []byte, permissions os.FileMode) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), temporaryNamePrefix)
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}
	defer os.Remove(temporary.Name())

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("unable to write data to temporary file: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("unable to close temporary file: %w", err)
	}
	if err := os.Chmod(temporary.Name(), permissions); err != nil {
		return fmt.Errorf("unable to change file permissions: %w", err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return fmt.Errorf("unable to rename file into place: %w", err)
	}

	return nil
}
