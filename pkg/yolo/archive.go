package yolo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Format of an archive container
type Format string

const (
	FormatZip   Format = "zip"
	FormatTar   Format = "tar"
	FormatTarGz Format = "tar.gz"
)

// Entry is a lazily opened file inside an archive
type Entry struct {
	Path string
	Size int64
	open func() (io.ReadCloser, error)
}

// NewEntry creates an entry backed by the given open function
func NewEntry(p string, size int64, open func() (io.ReadCloser, error)) Entry {
	return Entry{Path: p, Size: size, open: open}
}

// Open returns a reader over the entry's bytes. Reading past the data checks
// the byte count against the declared size and reports a TruncatedEntryError
// on mismatch.
func (e Entry) Open() (io.ReadCloser, error) {
	if e.open == nil {
		return nil, fmt.Errorf("entry %s has no content", e.Path)
	}
	rc, err := e.open()
	if err != nil {
		return nil, err
	}
	return &countingReader{rc: rc, path: e.Path, declared: e.Size}, nil
}

// Name returns the last path element
func (e Entry) Name() string {
	return path.Base(e.Path)
}

// Ext returns the lower-cased extension without the dot
func (e Entry) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(e.Path)), ".")
}

// Archive enumerates the regular files of a dataset archive
type Archive interface {
	Format() Format
	Entries() iter.Seq2[Entry, error]
	Close() error
}

// OpenArchive opens the archive at filePath. Tar content is spooled under
// scratchDir; Close removes everything the archive created.
func OpenArchive(filePath, scratchDir string) (Archive, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	header := make([]byte, 512)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, fmt.Errorf("reading archive header: %w", err)
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, []byte("PK\x03\x04")), bytes.HasPrefix(header, []byte("PK\x05\x06")):
		return openZip(f, filePath)
	case bytes.HasPrefix(header, []byte{0x1f, 0x8b}):
		return openTar(f, filePath, scratchDir, true)
	case len(header) >= 262 && string(header[257:262]) == "ustar":
		return openTar(f, filePath, scratchDir, false)
	}

	f.Close()
	return nil, &CorruptArchiveError{Path: path.Base(filePath), Reason: "unrecognized archive format"}
}

// Collect materializes the entry listing. Entry content stays in the archive.
func Collect(a Archive) ([]Entry, error) {
	var entries []Entry
	for entry, err := range a.Entries() {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// normalizeEntryPath cleans an archive member name. ok is false for names
// that should be skipped; err is set for names escaping the archive root.
func normalizeEntryPath(name string) (string, bool, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return "", false, nil
	}
	cleaned := path.Clean(name)
	if cleaned == "." {
		return "", false, nil
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false, &CorruptArchiveError{Reason: fmt.Sprintf("entry %q escapes archive root", name)}
	}
	if cleaned == "__MACOSX" || strings.HasPrefix(cleaned, "__MACOSX/") {
		return "", false, nil
	}
	base := path.Base(cleaned)
	if strings.HasPrefix(base, "._") || base == ".DS_Store" {
		return "", false, nil
	}
	return cleaned, true, nil
}

// countingReader reports truncation when the underlying stream ends early
type countingReader struct {
	rc       io.ReadCloser
	path     string
	declared int64
	read     int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	r.read += int64(n)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF):
		if r.declared >= 0 && r.read != r.declared {
			return n, &TruncatedEntryError{Path: r.path, Declared: r.declared, Read: r.read}
		}
		return n, err
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, zip.ErrChecksum), errors.Is(err, zip.ErrFormat):
		return n, &TruncatedEntryError{Path: r.path, Declared: r.declared, Read: r.read, Err: err}
	}
	return n, err
}

func (r *countingReader) Close() error {
	return r.rc.Close()
}
