package storage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// State files (the installed package ledger, the module state list) are
// stored as YAML with snake_case keys.

// MarshalYAML serializes a value to YAML.
func MarshalYAML(v interface{}) ([]byte, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return data, nil
}

// UnmarshalYAML deserializes YAML data into v, which must be a pointer.
func UnmarshalYAML(data []byte, v interface{}) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	return nil
}

// SaveYAMLFile writes v to path as YAML using AtomicWriteFile, so a crash
// mid-write leaves the previous state file intact.
//
// Parameters:
//   - path: target file path (parent directories are created)
//   - v: the value to serialize
func SaveYAMLFile(path string, v interface{}) error {
	data, err := MarshalYAML(v)
	if err != nil {
		return fmt.Errorf("failed to save YAML file %q: %w", path, err)
	}

	if err := AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save YAML file %q: %w", path, err)
	}

	return nil
}

// LoadYAMLFile reads and parses a YAML file into v.
// A missing file is reported with an error wrapping os.ErrNotExist.
func LoadYAMLFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file %q: %w", path, err)
	}

	if err := UnmarshalYAML(data, v); err != nil {
		return fmt.Errorf("failed to parse YAML file %q: %w", path, err)
	}

	return nil
}
