package downloader

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// unzip extracts the archive next to itself and removes it on success.
func unzip(archive string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}

	dir := filepath.Dir(archive)

	for _, f := range r.File {
		if err := extractFile(f, dir); err != nil {
			r.Close()

			return err
		}
	}

	if err := r.Close(); err != nil {
		return err
	}

	return os.Remove(archive)
}

func extractFile(f *zip.File, dir string) error {
	dest := filepath.Join(dir, f.Name)

	// zip slip guard
	if !strings.HasPrefix(dest, filepath.Clean(dir)+string(os.PathSeparator)) {
		return fmt.Errorf("illegal path in archive: %q", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(dest, dirPerm)
	}

	if err := os.MkdirAll(filepath.Dir(dest), dirPerm); err != nil {
		return err
	}

	in, err := f.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()

		return err
	}

	return out.Close()
}
