package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	require.NoError(t, err)
	return files
}

type tarEntry struct {
	name     string
	typeflag byte
	body     string
	linkname string
}

func writeTarGz(t *testing.T, path string, entries []tarEntry) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		if e.typeflag == tar.TypeXGlobalHeader {
			// Only PAXRecords may be set on a global header.
			require.NoError(t, tw.WriteHeader(&tar.Header{
				Name:       e.name,
				Typeflag:   e.typeflag,
				PAXRecords: map[string]string{"comment": e.body},
			}))
			continue
		}

		hdr := &tar.Header{
			Name:     e.name,
			Typeflag: e.typeflag,
			Mode:     0644,
			Size:     int64(len(e.body)),
			Linkname: e.linkname,
		}
		if e.typeflag != tar.TypeReg {
			hdr.Size = 0
		}
		if e.typeflag == tar.TypeDir {
			hdr.Mode = 0755
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func writeZip(t *testing.T, path string, files map[string]string, dirs ...string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, dir := range dirs {
		_, err := zw.Create(dir + "/")
		require.NoError(t, err)
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

// ============================================================================
// Format / media type
// ============================================================================

func TestParseMediaType(t *testing.T) {
	tests := []struct {
		contentType string
		want        Format
		wantErr     bool
	}{
		{"application/gzip", FormatTarGz, false},
		{"application/x-gzip", FormatTarGz, false},
		{"application/zip", FormatZip, false},
		{"Application/ZIP; charset=binary", FormatZip, false},
		{"application/vnd.rar", FormatRar, false},
		{"application/x-rar-compressed", FormatRar, false},
		{"text/plain", 0, true},
		{"", 0, true},
		{"application/x-7z-compressed", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			got, err := ParseMediaType(tt.contentType)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedFormat)
				assert.ErrorIs(t, err, ErrArchive)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatExtension(t *testing.T) {
	assert.Equal(t, "tar.gz", FormatTarGz.Extension())
	assert.Equal(t, "zip", FormatZip.Extension())
	assert.Equal(t, "rar", FormatRar.Extension())
	assert.False(t, Format(0).Valid())
	assert.True(t, FormatRar.Valid())
}

func TestUnpack_UnknownFormat(t *testing.T) {
	_, err := Unpack(context.Background(), "missing", t.TempDir(), Format(42))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

// ============================================================================
// Pack / round trip
// ============================================================================

func TestPackUnpack_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	files := map[string]string{
		"index.html":             "<h1>docs</h1>",
		"css/site.css":           "body{}",
		"guide/install/linux.md": "apt install docs",
		"empty.txt":              "",
	}
	writeTree(t, src, files)
	require.NoError(t, os.MkdirAll(filepath.Join(src, "assets", "empty"), 0755))

	backup := filepath.Join(t.TempDir(), "backup.tar.gz")
	require.NoError(t, Pack(ctx, src, backup, FastCompression))

	dst := t.TempDir()
	count, err := Unpack(ctx, backup, dst, FormatTarGz)
	require.NoError(t, err)

	assert.Equal(t, files, readTree(t, dst))
	assert.DirExists(t, filepath.Join(dst, "assets", "empty"))
	assert.Equal(t, 4, count, "directories are created but not counted")
}

func TestPack_NoCommonPrefix(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a/b.html": "hi"})

	out := filepath.Join(t.TempDir(), "backup.tar.gz")
	require.NoError(t, Pack(context.Background(), src, out, gzip.DefaultCompression))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, hdr.Name)
	}
	assert.Equal(t, []string{"a/", "a/b.html"}, names)
}

func TestPack_MissingSource(t *testing.T) {
	out := filepath.Join(t.TempDir(), "backup.tar.gz")
	err := Pack(context.Background(), filepath.Join(t.TempDir(), "nope"), out, FastCompression)
	require.ErrorIs(t, err, ErrArchive)
	assert.NoFileExists(t, out)
}

func TestPack_EmptyDirectory(t *testing.T) {
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "backup.tar.gz")
	require.NoError(t, Pack(ctx, t.TempDir(), out, FastCompression))

	count, err := Unpack(ctx, out, t.TempDir(), FormatTarGz)
	require.NoError(t, err)
	assert.Zero(t, count)
}

// ============================================================================
// tar.gz
// ============================================================================

func TestUnpackTarGz_SkipsNonRegularEntries(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "upload.tar.gz")
	writeTarGz(t, archivePath, []tarEntry{
		{name: "pax_global_header", typeflag: tar.TypeXGlobalHeader, body: "4b825dc642cb6eb9a060e54bf8d69288fbee4904"},
		{name: "docs/", typeflag: tar.TypeDir},
		{name: "docs/index.html", typeflag: tar.TypeReg, body: "hello"},
		{name: "docs/latest", typeflag: tar.TypeSymlink, linkname: "index.html"},
		{name: "docs/hard", typeflag: tar.TypeLink, linkname: "docs/index.html"},
		{name: "docs/pipe", typeflag: tar.TypeFifo},
	})

	dst := t.TempDir()
	count, err := Unpack(context.Background(), archivePath, dst, FormatTarGz)
	require.NoError(t, err)

	assert.Equal(t, 1, count)
	assert.Equal(t, map[string]string{"docs/index.html": "hello"}, readTree(t, dst))
	assert.NoFileExists(t, filepath.Join(dst, "pax_global_header"))
	_, err = os.Lstat(filepath.Join(dst, "docs", "latest"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Lstat(filepath.Join(dst, "docs", "hard"))
	assert.True(t, os.IsNotExist(err))
}

func TestUnpackTarGz_CreatesMissingParents(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "upload.tar.gz")
	writeTarGz(t, archivePath, []tarEntry{
		{name: "a/b/c/d.txt", typeflag: tar.TypeReg, body: "deep"},
	})

	dst := t.TempDir()
	count, err := Unpack(context.Background(), archivePath, dst, FormatTarGz)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, map[string]string{"a/b/c/d.txt": "deep"}, readTree(t, dst))
}

func TestUnpackTarGz_Corrupt(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "upload.tar.gz")
	require.NoError(t, os.WriteFile(archivePath, []byte("definitely not gzip"), 0644))

	_, err := Unpack(context.Background(), archivePath, t.TempDir(), FormatTarGz)
	assert.ErrorIs(t, err, ErrArchive)
}

func TestUnpackTarGz_TruncatedKeepsPartialExtraction(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "full.tar.gz")
	writeTarGz(t, full, []tarEntry{
		{name: "first.txt", typeflag: tar.TypeReg, body: "first"},
		{name: "second.txt", typeflag: tar.TypeReg, body: string(bytes.Repeat([]byte("x"), 64*1024))},
	})

	data, err := os.ReadFile(full)
	require.NoError(t, err)
	truncated := filepath.Join(dir, "truncated.tar.gz")
	require.NoError(t, os.WriteFile(truncated, data[:len(data)/2], 0644))

	dst := t.TempDir()
	_, err = Unpack(context.Background(), truncated, dst, FormatTarGz)
	require.ErrorIs(t, err, ErrArchive)
}

func TestUnpackTarGz_RejectsTraversal(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "evil.tar.gz")
	writeTarGz(t, archivePath, []tarEntry{
		{name: "../../escape.txt", typeflag: tar.TypeReg, body: "pwned"},
	})

	parent := t.TempDir()
	dst := filepath.Join(parent, "www", "public")
	require.NoError(t, os.MkdirAll(dst, 0755))

	_, err := Unpack(context.Background(), archivePath, dst, FormatTarGz)
	require.ErrorIs(t, err, ErrArchive)
	assert.NoFileExists(t, filepath.Join(parent, "escape.txt"))
}

func TestUnpackTarGz_StripsLeadingSlash(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "abs.tar.gz")
	writeTarGz(t, archivePath, []tarEntry{
		{name: "/abs/file.txt", typeflag: tar.TypeReg, body: "ok"},
	})

	dst := t.TempDir()
	_, err := Unpack(context.Background(), archivePath, dst, FormatTarGz)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"abs/file.txt": "ok"}, readTree(t, dst))
}

func TestUnpack_ContextCancelled(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "upload.tar.gz")
	writeTarGz(t, archivePath, []tarEntry{{name: "a.txt", typeflag: tar.TypeReg, body: "a"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Unpack(ctx, archivePath, t.TempDir(), FormatTarGz)
	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================================
// zip
// ============================================================================

func TestUnpackZip(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "upload.zip")
	files := map[string]string{
		"index.html":      "<p>zip</p>",
		"api/v1/ref.html": "ref",
	}
	writeZip(t, archivePath, files, "images")

	dst := t.TempDir()
	count, err := Unpack(context.Background(), archivePath, dst, FormatZip)
	require.NoError(t, err)

	assert.Equal(t, files, readTree(t, dst))
	assert.DirExists(t, filepath.Join(dst, "images"))
	assert.Equal(t, 2, count)
}

func TestUnpackZip_SkipsSymlinks(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("index.html")
	require.NoError(t, err)
	_, err = w.Write([]byte("home"))
	require.NoError(t, err)

	link := &zip.FileHeader{Name: "latest", Method: zip.Store}
	link.SetMode(fs.ModeSymlink | 0777)
	w, err = zw.CreateHeader(link)
	require.NoError(t, err)
	_, err = w.Write([]byte("index.html"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	archivePath := filepath.Join(t.TempDir(), "upload.zip")
	require.NoError(t, os.WriteFile(archivePath, buf.Bytes(), 0644))

	dst := t.TempDir()
	count, err := Unpack(context.Background(), archivePath, dst, FormatZip)
	require.NoError(t, err)

	assert.Equal(t, 1, count)
	assert.Equal(t, map[string]string{"index.html": "home"}, readTree(t, dst))
	_, err = os.Lstat(filepath.Join(dst, "latest"))
	assert.True(t, os.IsNotExist(err))
}

func TestUnpackZip_Corrupt(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "upload.zip")
	require.NoError(t, os.WriteFile(archivePath, []byte("PK\x03\x04garbage"), 0644))

	_, err := Unpack(context.Background(), archivePath, t.TempDir(), FormatZip)
	assert.ErrorIs(t, err, ErrArchive)
}

func TestUnpackZip_RejectsTraversal(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "evil.zip")
	writeZip(t, archivePath, map[string]string{"../evil.txt": "x"})

	parent := t.TempDir()
	dst := filepath.Join(parent, "site")
	require.NoError(t, os.MkdirAll(dst, 0755))

	_, err := Unpack(context.Background(), archivePath, dst, FormatZip)
	require.ErrorIs(t, err, ErrArchive)
	assert.NoFileExists(t, filepath.Join(parent, "evil.txt"))
}

// ============================================================================
// rar
// ============================================================================

// testdata/site.rar is a stored RAR5 archive holding docs/ (directory),
// docs/guide.html, index.html and latest (symlink to index.html).
func TestUnpackRar(t *testing.T) {
	dst := t.TempDir()
	count, err := Unpack(context.Background(), filepath.Join("testdata", "site.rar"), dst, FormatRar)
	require.NoError(t, err)

	assert.Equal(t, 2, count)
	assert.Equal(t, map[string]string{
		"docs/guide.html": "<h1>guide</h1>\n",
		"index.html":      "<h1>home</h1>\n",
	}, readTree(t, dst))
	assert.DirExists(t, filepath.Join(dst, "docs"))
	_, err = os.Lstat(filepath.Join(dst, "latest"))
	assert.True(t, os.IsNotExist(err))
}

func TestUnpackRar_Corrupt(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "upload.rar")
	require.NoError(t, os.WriteFile(archivePath, []byte("not a rar archive at all"), 0644))

	_, err := Unpack(context.Background(), archivePath, t.TempDir(), FormatRar)
	assert.ErrorIs(t, err, ErrArchive)
}

func TestUnpack_MissingSource(t *testing.T) {
	for _, format := range []Format{FormatTarGz, FormatZip, FormatRar} {
		t.Run(format.String(), func(t *testing.T) {
			_, err := Unpack(context.Background(), filepath.Join(t.TempDir(), "missing"), t.TempDir(), format)
			assert.ErrorIs(t, err, ErrArchive)
		})
	}
}
