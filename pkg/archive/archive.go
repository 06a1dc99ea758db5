// Package archive packs and unpacks directory trees to and from archive files.
//
// Unpacking supports tar+gzip, zip and RAR. Packing always produces tar+gzip,
// which is the only format used for backups: a single, well-understood restore
// path regardless of what format the administrator uploaded.
package archive

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var (
	// ErrArchive indicates a malformed, unreadable or unsafe archive, or a
	// failure while extracting one of its entries.
	ErrArchive = errors.New("archive error")

	// ErrUnsupportedFormat indicates a format or media type with no codec.
	// It wraps ErrArchive.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported format", ErrArchive)
)

// Format is the closed set of archive encodings the codec understands.
type Format int

const (
	// FormatTarGz is a gzip-compressed tarball.
	FormatTarGz Format = iota + 1
	// FormatZip is a zip archive.
	FormatZip
	// FormatRar is a RAR archive (read only).
	FormatRar
)

// FastCompression is the gzip level used for backup snapshots.
const FastCompression = gzip.BestSpeed

// String returns the short format tag.
func (f Format) String() string {
	switch f {
	case FormatTarGz:
		return "tar.gz"
	case FormatZip:
		return "zip"
	case FormatRar:
		return "rar"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Extension returns the file extension used for temp files of this format,
// without the leading dot.
func (f Format) Extension() string {
	return f.String()
}

// Valid reports whether f is one of the known formats.
func (f Format) Valid() bool {
	switch f {
	case FormatTarGz, FormatZip, FormatRar:
		return true
	default:
		return false
	}
}

// mediaTypes maps declared request media types to formats. The upload
// endpoint never sniffs bytes: the declared type decides the codec.
var mediaTypes = map[string]Format{
	"application/gzip":             FormatTarGz,
	"application/x-gzip":           FormatTarGz,
	"application/x-tar+gzip":       FormatTarGz,
	"application/zip":              FormatZip,
	"application/x-zip-compressed": FormatZip,
	"application/vnd.rar":          FormatRar,
	"application/x-rar-compressed": FormatRar,
}

// ParseMediaType maps a Content-Type header value to a Format. Parameters
// such as charset are ignored.
func ParseMediaType(contentType string) (Format, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return 0, fmt.Errorf("%w: media type %q: %v", ErrUnsupportedFormat, contentType, err)
	}

	format, ok := mediaTypes[strings.ToLower(mediaType)]
	if !ok {
		return 0, fmt.Errorf("%w: media type %q", ErrUnsupportedFormat, mediaType)
	}
	return format, nil
}
