package checksum

import (
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// BLAKE3File computes the BLAKE3 hash of a file
func BLAKE3File(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return BLAKE3(f)
}

// BLAKE3 hashes everything read from r.
func BLAKE3(r io.Reader) (string, error) {
	hasher := blake3.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// Verify recomputes the hash of filename and compares it with expected.
func Verify(filename, expected string) error {
	actual, err := BLAKE3File(filename)
	if err != nil {
		return fmt.Errorf("failed to calculate BLAKE3: %w", err)
	}
	if actual != expected {
		return fmt.Errorf("BLAKE3 mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}
