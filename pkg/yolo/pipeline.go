package yolo

import (
	"context"
	"fmt"
	"io"
)

// maxManifestSize bounds how much of a manifest file is read
const maxManifestSize = 1 << 20

// Result is everything extracted from one archive
type Result struct {
	Manifest    *Manifest
	Dataset     *Dataset
	Diagnostics *DiagnosticsReport
}

// LoadManifest reads and parses a manifest entry
func LoadManifest(entry Entry) (*Manifest, []Diagnostic, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxManifestSize+1))
	if err != nil {
		return nil, nil, err
	}
	if len(data) > maxManifestSize {
		return nil, nil, &ManifestSyntaxError{Path: entry.Path, Reason: fmt.Sprintf("manifest exceeds %d bytes", maxManifestSize)}
	}
	return ParseManifest(entry.Path, data)
}

// Parse locates the manifest among entries and normalizes the dataset.
// Manifest warnings are included in the returned diagnostics.
func Parse(ctx context.Context, entries []Entry, opts NormalizeOptions) (*Result, error) {
	manifestEntry, err := FindManifest(entries)
	if err != nil {
		return nil, err
	}
	manifest, manifestDiags, err := LoadManifest(manifestEntry)
	if err != nil {
		return nil, err
	}

	opts = opts.withDefaults()
	collector := NewCollector(opts.DiagnosticSamples)
	collector.Add(manifestDiags...)

	ds, report, err := normalize(ctx, entries, manifest, opts, collector)
	if err != nil {
		return nil, err
	}
	return &Result{Manifest: manifest, Dataset: ds, Diagnostics: report}, nil
}
