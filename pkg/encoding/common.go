// Package encoding provides the module's file loading/saving primitives: JSON
// file loading and saving (internal/config loads the scan configuration file
// through LoadJSON) and the Base62 encoding used by pkg/identifier.
package encoding

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dirscansync/dirscansync/pkg/fsutil"
)

// LoadAndUnmarshal reads the data at the specified path and invokes the
// specified unmarshaling callback (usually a closure) to decode it.
func LoadAndUnmarshal(path string, unmarshal func([]byte) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return fmt.Errorf("unable to load file: %w", err)
	}
	if err := unmarshal(data); err != nil {
		return fmt.Errorf("unable to unmarshal data: %w", err)
	}
	return nil
}

// MarshalAndSave invokes the specified marshaling callback (usually a
// closure) and writes the result atomically to the specified path, with
// read/write permissions for the user only.
func MarshalAndSave(path string, marshal func() ([]byte, error)) error {
	data, err := marshal()
	if err != nil {
		return fmt.Errorf("unable to marshal message: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0600); err != nil {
		return fmt.Errorf("unable to write message data: %w", err)
	}
	return nil
}

// LoadJSON loads and unmarshals a JSON file at path into target.
func LoadJSON(path string, target interface{}) error {
	return LoadAndUnmarshal(path, func(data []byte) error {
		return json.Unmarshal(data, target)
	})
}

// SaveJSON marshals value as indented JSON and atomically saves it at path.
func SaveJSON(path string, value interface{}) error {
	return MarshalAndSave(path, func() ([]byte, error) {
		return json.MarshalIndent(value, "", "  ")
	})
}
