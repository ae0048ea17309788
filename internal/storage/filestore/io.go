package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/taskforge/orchestrator/internal/storage"
)

func encode(format storage.Format, v any) ([]byte, error) {
	switch format {
	case storage.FormatYAML:
		return yaml.Marshal(v)
	default:
		return json.MarshalIndent(v, "", "  ")
	}
}

func decode(format storage.Format, data []byte, v any) error {
	switch format {
	case storage.FormatYAML:
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}

// atomicWrite stages data to a sibling temp file in dir, then renames it
// into place so readers never observe a partially-written file (spec
// §4.1's "content is staged to a sibling temporary location and renamed
// into place; on any failure the temporary artifact is removed").
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filestore: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("filestore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: rename: %w", err)
	}
	return nil
}
