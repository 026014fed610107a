// Package archive packs named byte payloads into a single zip container and
// reads them back. It knows nothing about what the payloads mean.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// ErrEntryNotFound is returned by ReadEntry for a name the archive does not hold.
var ErrEntryNotFound = errors.New("archive entry not found")

// Method selects how entries are compressed.
type Method string

const (
	// Deflate produces archives any zip tool can open.
	Deflate Method = "deflate"
	// Zstd compresses better; readers need zstd support (method 93).
	Zstd Method = "zstd"
)

// ParseMethod maps a config value to a Method. Empty means Deflate.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "", Deflate:
		return Deflate, nil
	case Zstd:
		return Zstd, nil
	default:
		return "", fmt.Errorf("unknown compression method: %q", s)
	}
}

// Entry is one named payload.
type Entry struct {
	Name string
	Data []byte
}

// Write packs entries into a zip container written to w, in the given order.
func Write(w io.Writer, entries []Entry, method Method) error {
	zw := zip.NewWriter(w)

	zipMethod := zip.Deflate
	if method == Zstd {
		zipMethod = zstd.ZipMethodWinZip
		zw.RegisterCompressor(zipMethod, zstd.ZipCompressor(zstd.WithEncoderConcurrency(1)))
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.Name] {
			zw.Close()
			return fmt.Errorf("duplicate archive entry: %s", e.Name)
		}
		seen[e.Name] = true

		ew, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: zipMethod})
		if err != nil {
			zw.Close()
			return fmt.Errorf("creating entry %s: %w", e.Name, err)
		}
		if _, err := ew.Write(e.Data); err != nil {
			zw.Close()
			return fmt.Errorf("writing entry %s: %w", e.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return nil
}

// Pack is Write into a fresh buffer.
func Pack(entries []Entry, method Method) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, entries, method); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Reader gives access to the entries of an archive held in memory.
type Reader struct {
	names []string
	files map[string]*zip.File
}

// NewReader parses the zip directory of data. Entry bodies are decompressed
// lazily by ReadEntry.
func NewReader(data []byte) (*Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor(zstd.WithDecoderConcurrency(1)))

	r := &Reader{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		if _, dup := r.files[f.Name]; dup {
			continue
		}
		r.names = append(r.names, f.Name)
		r.files[f.Name] = f
	}
	return r, nil
}

// Names returns entry names in archive order.
func (r *Reader) Names() []string {
	return append([]string(nil), r.names...)
}

// Has reports whether the archive holds an entry called name.
func (r *Reader) Has(name string) bool {
	_, ok := r.files[name]
	return ok
}

// ReadEntry returns the decompressed body of the named entry.
func (r *Reader) ReadEntry(name string) ([]byte, error) {
	f, ok := r.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening entry %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading entry %s: %w", name, err)
	}
	return data, nil
}
