package yolo

import (
	"io"
	"iter"
	"os"
	"path"

	"github.com/klauspost/compress/zip"
)

type zipArchive struct {
	file   *os.File
	reader *zip.Reader
}

func openZip(f *os.File, filePath string) (Archive, error) {
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &CorruptArchiveError{Path: path.Base(filePath), Reason: "stat failed", Err: err}
	}

	reader, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, &CorruptArchiveError{Path: path.Base(filePath), Reason: "unreadable central directory", Err: err}
	}

	return &zipArchive{file: f, reader: reader}, nil
}

func (a *zipArchive) Format() Format { return FormatZip }

// Entries yields regular files in central directory order. Each entry is
// opened on demand, so entries can be read concurrently.
func (a *zipArchive) Entries() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, f := range a.reader.File {
			if f.FileInfo().IsDir() || !f.Mode().IsRegular() {
				continue
			}
			name, ok, err := normalizeEntryPath(f.Name)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if !ok {
				continue
			}
			file := f
			entry := NewEntry(name, int64(file.UncompressedSize64), func() (io.ReadCloser, error) {
				rc, err := file.Open()
				if err != nil {
					return nil, &TruncatedEntryError{Path: name, Declared: int64(file.UncompressedSize64), Err: err}
				}
				return rc, nil
			})
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func (a *zipArchive) Close() error {
	return a.file.Close()
}
