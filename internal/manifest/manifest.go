package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	MetaSuffix   = ".meta.json"
	VerifySuffix = ".verify.json"
)

func MetaPath(dir, archive string) string {
	return filepath.Join(dir, archive+MetaSuffix)
}

func VerifyPath(dir, archive string) string {
	return filepath.Join(dir, archive+VerifySuffix)
}

// writeJSON replaces filename atomically so a reader never observes a
// half-written sidecar.
func writeJSON(filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, filename); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// readJSON returns false when filename does not exist.
func readJSON(filename string, v any) (bool, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", filepath.Base(filename), err)
	}
	return true, nil
}

func WriteMetadata(filename string, m *Metadata) error {
	if m.Tags == nil {
		m.Tags = []string{}
	}
	return writeJSON(filename, m)
}

// ReadMetadata returns nil, nil when the sidecar is absent.
func ReadMetadata(filename string) (*Metadata, error) {
	var m Metadata
	ok, err := readJSON(filename, &m)
	if err != nil || !ok {
		return nil, err
	}
	return &m, nil
}

func WriteVerification(filename string, v *Verification) error {
	return writeJSON(filename, v)
}

// ReadVerification returns nil, nil when the sidecar is absent.
func ReadVerification(filename string) (*Verification, error) {
	var v Verification
	ok, err := readJSON(filename, &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// Remove deletes a sidecar, tolerating its absence.
func Remove(filename string) error {
	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
