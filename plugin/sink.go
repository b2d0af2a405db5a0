package plugin

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultOutputFile is used when no output file is configured.
const DefaultOutputFile = "results.txt"

// WriteReport writes text to filename, creating parent directories and
// replacing any existing file.
func WriteReport(text, filename string) error {
	if filename == "" {
		filename = DefaultOutputFile
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(filename, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}
