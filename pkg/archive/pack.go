package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// Pack writes sourceDir as a tar+gzip archive to output.
//
// Entry names are relative to sourceDir with no common prefix, so unpacking
// the result into any directory reproduces the same layout. Only regular
// files and directories are archived. A partially written output is removed
// on failure.
//
// Parameters:
//   - ctx: checked between entries
//   - sourceDir: directory to capture (must exist)
//   - output: archive path to create (truncated if present)
//   - level: gzip compression level (see FastCompression)
func Pack(ctx context.Context, sourceDir, output string, level int) (err error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrArchive, sourceDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrArchive, sourceDir)
	}

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrArchive, output, err)
	}
	defer func() {
		if closeErr := out.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("%w: close %s: %v", ErrArchive, output, closeErr)
		}
		if err != nil {
			_ = os.Remove(output)
		}
	}()

	gz, err := gzip.NewWriterLevel(out, level)
	if err != nil {
		return fmt.Errorf("%w: gzip level %d: %v", ErrArchive, level, err)
	}
	tw := tar.NewWriter(gz)

	walkErr := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}

		return addEntry(tw, path, filepath.ToSlash(rel), d)
	})
	if walkErr != nil {
		return fmt.Errorf("%w: pack %s: %v", ErrArchive, sourceDir, walkErr)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("%w: finish tar: %v", ErrArchive, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("%w: finish gzip: %v", ErrArchive, err)
	}

	return nil
}

func addEntry(tw *tar.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if d.IsDir() {
		hdr.Name += "/"
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if d.IsDir() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = io.Copy(tw, f)
	return err
}
