package yolo

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies fatal pipeline errors for persistence and API output
type ErrorKind string

const (
	KindCorruptArchive  ErrorKind = "corrupt_archive"
	KindTruncatedEntry  ErrorKind = "truncated_entry"
	KindManifestMissing ErrorKind = "manifest_missing"
	KindManifestSyntax  ErrorKind = "manifest_syntax"
	KindEmptyClassTable ErrorKind = "empty_class_table"
	KindEmptySplit      ErrorKind = "empty_split"
)

// CorruptArchiveError is returned when the archive container cannot be read
type CorruptArchiveError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptArchiveError) Error() string {
	msg := "corrupt archive"
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptArchiveError) Unwrap() error { return e.Err }

// TruncatedEntryError is returned when an entry yields fewer bytes than its
// header declares, or its checksum does not match
type TruncatedEntryError struct {
	Path     string
	Declared int64
	Read     int64
	Err      error
}

func (e *TruncatedEntryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("truncated entry %s: read %d of %d bytes: %v", e.Path, e.Read, e.Declared, e.Err)
	}
	return fmt.Sprintf("truncated entry %s: read %d of %d bytes", e.Path, e.Read, e.Declared)
}

func (e *TruncatedEntryError) Unwrap() error { return e.Err }

// ManifestMissingError is returned when no dataset manifest exists in the archive
type ManifestMissingError struct {
	Searched []string
}

func (e *ManifestMissingError) Error() string {
	return fmt.Sprintf("dataset manifest not found (looked for %s)", strings.Join(e.Searched, ", "))
}

// ManifestSyntaxError is returned when the manifest cannot be parsed or is inconsistent
type ManifestSyntaxError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ManifestSyntaxError) Error() string {
	msg := "invalid manifest"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ManifestSyntaxError) Unwrap() error { return e.Err }

// EmptyClassTableError is returned when the manifest declares zero classes
type EmptyClassTableError struct {
	Path string
}

func (e *EmptyClassTableError) Error() string {
	return fmt.Sprintf("manifest %s declares no classes", e.Path)
}

// EmptySplitError is returned for a declared split with no images when the
// empty split policy is fail
type EmptySplitError struct {
	Split  string
	Prefix string
}

func (e *EmptySplitError) Error() string {
	return fmt.Sprintf("split %q (%s) contains no images", e.Split, e.Prefix)
}

// KindOf reports the ErrorKind of a pipeline error anywhere in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var (
		corrupt   *CorruptArchiveError
		truncated *TruncatedEntryError
		missing   *ManifestMissingError
		syntax    *ManifestSyntaxError
		empty     *EmptyClassTableError
		split     *EmptySplitError
	)
	switch {
	case errors.As(err, &truncated):
		return KindTruncatedEntry, true
	case errors.As(err, &corrupt):
		return KindCorruptArchive, true
	case errors.As(err, &missing):
		return KindManifestMissing, true
	case errors.As(err, &syntax):
		return KindManifestSyntax, true
	case errors.As(err, &empty):
		return KindEmptyClassTable, true
	case errors.As(err, &split):
		return KindEmptySplit, true
	}
	return "", false
}

// IsTransport reports whether err is a corrupt or truncated archive error
func IsTransport(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindCorruptArchive || kind == KindTruncatedEntry)
}
