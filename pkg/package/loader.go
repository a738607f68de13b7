package packagetypes

import (
	"fmt"
	"os"
)

// LoadManifestFromFile reads and parses a manifest from disk.
// Read failures are returned wrapped; parse failures are returned unchanged
// so callers can match them with errors.Is.
func LoadManifestFromFile(filePath string) (*Manifest, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	return ParseManifest(data)
}
