package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/marmos91/docmirror/internal/logger"
	"github.com/nwaples/rardecode/v2"
)

// Unpack extracts the archive at source into targetDir using the codec
// selected by format.
//
// Regular files and directories are extracted with their relative paths,
// creating intermediate directories as needed. Any other entry type
// (symlink, hard link, device, fifo, pax global header) is skipped.
//
// Extraction already performed when an error occurs is not undone; rolling
// back is the caller's job.
//
// Returns:
//   - int: number of extracted regular files; directories are not counted
//   - error: wraps ErrArchive on any failure
func Unpack(ctx context.Context, source, targetDir string, format Format) (int, error) {
	var (
		count int
		err   error
	)

	switch format {
	case FormatTarGz:
		count, err = unpackTarGz(ctx, source, targetDir)
	case FormatZip:
		count, err = unpackZip(ctx, source, targetDir)
	case FormatRar:
		count, err = unpackRar(ctx, source, targetDir)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if err != nil {
		return count, err
	}

	logger.Info("Extracted %d files from %s into %s", count, filepath.Base(source), targetDir)
	return count, nil
}

func unpackTarGz(ctx context.Context, source, targetDir string) (int, error) {
	f, err := os.Open(source)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", ErrArchive, source, err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("%w: gzip header: %v", ErrArchive, err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("%w: read tar entry: %v", ErrArchive, err)
		}

		// FileInfo reports pax global headers and hard links as regular
		// files, so classify by typeflag.
		var mode fs.FileMode
		switch hdr.Typeflag {
		case tar.TypeReg, tar.TypeRegA: //nolint:staticcheck // old archivers still write TypeRegA
			mode = hdr.FileInfo().Mode().Perm()
		case tar.TypeDir:
			mode = fs.ModeDir | hdr.FileInfo().Mode().Perm()
		default:
			logger.Debug("Skipping non-regular entry %s (typeflag %q)", hdr.Name, hdr.Typeflag)
			continue
		}

		extracted, err := extractEntry(targetDir, hdr.Name, mode, tr)
		if err != nil {
			return count, err
		}
		if extracted {
			count++
		}
	}
}

func unpackZip(ctx context.Context, source, targetDir string) (int, error) {
	zr, err := zip.OpenReader(source)
	if err != nil {
		return 0, fmt.Errorf("%w: open zip %s: %v", ErrArchive, source, err)
	}
	defer func() { _ = zr.Close() }()

	count := 0
	for _, file := range zr.File {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		mode := file.Mode()
		if strings.HasSuffix(file.Name, "/") {
			mode |= fs.ModeDir
		}

		if !mode.IsDir() && !mode.IsRegular() {
			logger.Debug("Skipping non-regular zip entry %s (%s)", file.Name, mode.Type())
			continue
		}

		extracted, err := extractZipEntry(targetDir, file, mode)
		if err != nil {
			return count, err
		}
		if extracted {
			count++
		}
	}

	return count, nil
}

func extractZipEntry(targetDir string, file *zip.File, mode fs.FileMode) (bool, error) {
	if mode.IsDir() {
		return extractEntry(targetDir, file.Name, mode, nil)
	}

	rc, err := file.Open()
	if err != nil {
		return false, fmt.Errorf("%w: open zip entry %s: %v", ErrArchive, file.Name, err)
	}
	defer func() { _ = rc.Close() }()

	return extractEntry(targetDir, file.Name, mode, rc)
}

func unpackRar(ctx context.Context, source, targetDir string) (int, error) {
	f, err := os.Open(source)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", ErrArchive, source, err)
	}
	defer func() { _ = f.Close() }()

	rr, err := rardecode.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("%w: rar header: %v", ErrArchive, err)
	}

	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		hdr, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("%w: read rar entry: %v", ErrArchive, err)
		}

		mode := hdr.Mode()
		if hdr.IsDir {
			mode |= fs.ModeDir
		}

		extracted, err := extractEntry(targetDir, hdr.Name, mode, rr)
		if err != nil {
			return count, err
		}
		if extracted {
			count++
		}
	}
}

// extractEntry writes a single archive entry below targetDir. It reports
// true only when a regular file was written; directories are created but
// not counted, and other entry types are skipped.
func extractEntry(targetDir, name string, mode fs.FileMode, body io.Reader) (bool, error) {
	if !mode.IsDir() && !mode.IsRegular() {
		logger.Debug("Skipping non-regular entry %s (%s)", name, mode.Type())
		return false, nil
	}

	path, err := entryPath(targetDir, name)
	if err != nil {
		return false, err
	}
	if path == filepath.Clean(targetDir) {
		return false, nil
	}

	if mode.IsDir() {
		if err := os.MkdirAll(path, 0755); err != nil {
			return false, fmt.Errorf("%w: create directory %s: %v", ErrArchive, name, err)
		}
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("%w: create parent of %s: %v", ErrArchive, name, err)
	}

	perm := mode.Perm()
	if perm == 0 {
		perm = 0644
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return false, fmt.Errorf("%w: create %s: %v", ErrArchive, name, err)
	}

	size, err := io.Copy(out, body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return false, fmt.Errorf("%w: extract %s: %v", ErrArchive, name, err)
	}

	logger.Debug("> Extracted %s (%d bytes)", name, size)
	return true, nil
}

// entryPath resolves an archive entry name below targetDir. Leading slashes
// are stripped; names that climb out of targetDir are rejected.
func entryPath(targetDir, name string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(strings.TrimLeft(name, `/\`)))
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: entry %q escapes target directory", ErrArchive, name)
	}
	return filepath.Join(targetDir, rel), nil
}
