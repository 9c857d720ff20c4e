package yolo

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// tarArchive spools members to a scratch directory while enumerating, since
// a tar stream cannot be reopened at an arbitrary member
type tarArchive struct {
	file     *os.File
	filePath string
	gzipped  bool
	spoolDir string
	spooled  []Entry
	complete bool
}

func openTar(f *os.File, filePath, scratchDir string, gzipped bool) (Archive, error) {
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		f.Close()
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	spoolDir, err := os.MkdirTemp(scratchDir, "tar-spool-*")
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}

	return &tarArchive{
		file:     f,
		filePath: filePath,
		gzipped:  gzipped,
		spoolDir: spoolDir,
	}, nil
}

func (a *tarArchive) Format() Format {
	if a.gzipped {
		return FormatTarGz
	}
	return FormatTar
}

func (a *tarArchive) Entries() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if a.complete {
			for _, e := range a.spooled {
				if !yield(e, nil) {
					return
				}
			}
			return
		}

		if err := a.reset(); err != nil {
			yield(Entry{}, err)
			return
		}

		stream, closeStream, err := a.stream()
		if err != nil {
			yield(Entry{}, err)
			return
		}
		defer closeStream()

		tr := tar.NewReader(stream)
		for i := 0; ; i++ {
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				a.complete = true
				return
			}
			if err != nil {
				if errors.Is(err, io.ErrUnexpectedEOF) {
					yield(Entry{}, &TruncatedEntryError{Path: path.Base(a.filePath), Declared: -1, Err: err})
				} else {
					yield(Entry{}, &CorruptArchiveError{Path: path.Base(a.filePath), Reason: "unreadable member header", Err: err})
				}
				return
			}
			if hdr.Typeflag != tar.TypeReg {
				continue
			}
			name, ok, err := normalizeEntryPath(hdr.Name)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if !ok {
				continue
			}

			spoolPath := filepath.Join(a.spoolDir, fmt.Sprintf("%08d", i))
			written, err := spool(spoolPath, tr)
			if err != nil {
				if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, gzip.ErrChecksum) {
					err = &TruncatedEntryError{Path: name, Declared: hdr.Size, Read: written, Err: err}
				}
				yield(Entry{}, err)
				return
			}
			if written != hdr.Size {
				yield(Entry{}, &TruncatedEntryError{Path: name, Declared: hdr.Size, Read: written})
				return
			}

			entry := NewEntry(name, hdr.Size, func() (io.ReadCloser, error) {
				return os.Open(spoolPath)
			})
			a.spooled = append(a.spooled, entry)
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// stream returns the decompressed member stream from the start of the file
func (a *tarArchive) stream() (io.Reader, func(), error) {
	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return nil, nil, fmt.Errorf("rewinding archive: %w", err)
	}
	if !a.gzipped {
		return a.file, func() {}, nil
	}
	gz, err := gzip.NewReader(a.file)
	if err != nil {
		return nil, nil, &CorruptArchiveError{Path: path.Base(a.filePath), Reason: "invalid gzip header", Err: err}
	}
	return gz, func() { gz.Close() }, nil
}

// reset discards a partial spool from an abandoned enumeration
func (a *tarArchive) reset() error {
	if len(a.spooled) == 0 {
		return nil
	}
	a.spooled = nil
	if err := os.RemoveAll(a.spoolDir); err != nil {
		return fmt.Errorf("clearing spool directory: %w", err)
	}
	return os.MkdirAll(a.spoolDir, 0755)
}

func spool(dst string, r io.Reader) (int64, error) {
	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("creating spool file: %w", err)
	}
	n, err := io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

func (a *tarArchive) Close() error {
	err := a.file.Close()
	if rmErr := os.RemoveAll(a.spoolDir); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}
