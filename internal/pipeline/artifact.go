package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// utf8BOM prefixes every written artifact so Windows editors detect the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteArtifact writes code to path as UTF-8 with a byte-order mark, creating
// parent directories as needed. The content goes to a temporary sibling first
// and is renamed into place, so a failed write leaves any previous file intact.
func WriteArtifact(path, code string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary output file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(append(append([]byte{}, utf8BOM...), code...)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set output file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move output file into place: %w", err)
	}
	return nil
}

// ReadArtifact returns the text of an artifact without its byte-order mark.
func ReadArtifact(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimPrefix(data, utf8BOM)), nil
}
