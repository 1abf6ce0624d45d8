package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"kube-health-audit/internal/runner"
)

// WriteJSON writes the report snapshot to path, creating parent dirs.
func WriteJSON(path string, rep *runner.Report) error {
	return WriteValue(path, rep)
}

// WriteValue writes v as indented JSON to path.
func WriteValue(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write json: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write json: encode %s: %w", filepath.Base(path), err)
	}
	return nil
}
