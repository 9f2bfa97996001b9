package testutil

import (
	"bytes"
	"os"
	"path/filepath"
)

// CreatePartialFile leaves the first downloaded bytes of data at dir/name,
// the way an interrupted single-connection transfer would.
func CreatePartialFile(dir, name string, data []byte, downloaded int64) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data[:downloaded], 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// FileEquals reports whether the file at path holds exactly want.
func FileEquals(path string, want []byte) (bool, error) {
	got, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	return bytes.Equal(got, want), nil
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
