package tarball

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Write streams srcDir recursively into w as a gzip-compressed tar. Entry
// names are relative to srcDir. It returns the number of entries written.
func Write(w io.Writer, srcDir string) (int, error) {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	count := 0
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			slog.Warn("Skipping non-regular file", "path", path, "mode", info.Mode().String())
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		count++

		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("failed to archive %s: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		return count, err
	}

	if err := tw.Close(); err != nil {
		return count, err
	}
	if err := gz.Close(); err != nil {
		return count, err
	}
	return count, nil
}

// Walk calls fn for every entry of the archive at path. The reader passed to
// fn is only valid until fn returns.
func Walk(path string, fn func(hdr *tar.Header, r io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gzip.NewReader failed: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}

	// Drain trailing padding so the gzip checksum is validated.
	if _, err := io.Copy(io.Discard, gz); err != nil {
		return err
	}
	return nil
}

// Count returns the number of entries in the archive at path.
func Count(path string) (int, error) {
	n := 0
	err := Walk(path, func(*tar.Header, io.Reader) error {
		n++
		return nil
	})
	return n, err
}

// Extract unpacks the archive at path into destDir. Entries that would land
// outside destDir are rejected.
func Extract(path, destDir string) (int, error) {
	root := filepath.Clean(destDir)
	n := 0
	err := Walk(path, func(hdr *tar.Header, r io.Reader) error {
		target := filepath.Join(root, filepath.FromSlash(hdr.Name))
		if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
			return fmt.Errorf("invalid file path: '%s'", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, r); err != nil {
				out.Close()
				return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
			if err := os.Chtimes(target, hdr.ModTime, hdr.ModTime); err != nil {
				slog.Warn("Failed to restore file mtime", "path", target, "error", err)
			}
		default:
			slog.Warn("Skipping unsupported archive entry", "name", hdr.Name, "type", string(hdr.Typeflag))
			return nil
		}
		n++
		return nil
	})
	return n, err
}
