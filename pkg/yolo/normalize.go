package yolo

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// InvalidLabelPolicy decides what happens to an image with rejected label lines
type InvalidLabelPolicy string

const (
	// DropAnnotation keeps the image without the bad lines and flags it
	DropAnnotation InvalidLabelPolicy = "drop_annotation"
	// RejectImage excludes the image from the dataset
	RejectImage InvalidLabelPolicy = "reject_image"
)

// EmptySplitPolicy decides what happens to a declared split with no images
type EmptySplitPolicy string

const (
	EmptySplitWarn EmptySplitPolicy = "warn"
	EmptySplitFail EmptySplitPolicy = "fail"
)

// NormalizeOptions tunes the normalizer
type NormalizeOptions struct {
	Workers            int
	InvalidLabelPolicy InvalidLabelPolicy
	EmptySplitPolicy   EmptySplitPolicy
	DiagnosticSamples  int
}

// DefaultNormalizeOptions returns the defaults used when options are zero
func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{
		Workers:            8,
		InvalidLabelPolicy: DropAnnotation,
		EmptySplitPolicy:   EmptySplitWarn,
		DiagnosticSamples:  50,
	}
}

func (o NormalizeOptions) withDefaults() NormalizeOptions {
	defaults := DefaultNormalizeOptions()
	if o.Workers <= 0 {
		o.Workers = defaults.Workers
	}
	if o.InvalidLabelPolicy == "" {
		o.InvalidLabelPolicy = defaults.InvalidLabelPolicy
	}
	if o.EmptySplitPolicy == "" {
		o.EmptySplitPolicy = defaults.EmptySplitPolicy
	}
	if o.DiagnosticSamples <= 0 {
		o.DiagnosticSamples = defaults.DiagnosticSamples
	}
	return o
}

// Split is a resolved dataset partition
type Split struct {
	Name       string
	Prefix     string
	ImageCount int
}

// Image is a validated image with its annotations
type Image struct {
	// Path relative to the dataset root
	Path string
	// ArchivePath is the entry path inside the archive
	ArchivePath string
	Split       string
	Entry       Entry
	Annotations []Annotation
	// NoAnnotations is set when no annotation survived validation: the label
	// file is missing, empty, or every line was dropped
	NoAnnotations bool
	// Flagged is set when some of the image's label lines were dropped
	Flagged bool
}

// Filename returns the image's base name
func (i Image) Filename() string {
	return path.Base(i.Path)
}

// Dataset is the normalized content of an archive
type Dataset struct {
	ClassNames []string
	Splits     []Split
	Images     []Image
}

// LabelPathFor returns the expected label path for an image: the last
// "/images/" segment becomes "/labels/" and the extension becomes ".txt".
// Images outside an images directory use a sibling .txt file.
func LabelPathFor(imagePath string) string {
	stem := strings.TrimSuffix(imagePath, path.Ext(imagePath))

	padded := "/" + stem
	if idx := strings.LastIndex(padded, "/images/"); idx >= 0 {
		swapped := padded[:idx] + "/labels/" + padded[idx+len("/images/"):]
		return strings.TrimPrefix(swapped, "/") + ".txt"
	}
	return stem + ".txt"
}

// labelKey gives label paths the lower-case extension LabelPathFor produces
func labelKey(p string) string {
	return strings.TrimSuffix(p, path.Ext(p)) + ".txt"
}

// Normalize joins images to labels by split, validates annotations against
// the class table and aggregates diagnostics. Record-level problems never
// fail the call; structural ones do.
func Normalize(ctx context.Context, entries []Entry, manifest *Manifest, opts NormalizeOptions) (*Dataset, *DiagnosticsReport, error) {
	opts = opts.withDefaults()
	return normalize(ctx, entries, manifest, opts, NewCollector(opts.DiagnosticSamples))
}

func normalize(ctx context.Context, entries []Entry, manifest *Manifest, opts NormalizeOptions, collector *Collector) (*Dataset, *DiagnosticsReport, error) {
	var (
		images []Entry
		labels = make(map[string]Entry)
		dirs   = map[string]bool{"": true}
	)
	for _, e := range entries {
		switch {
		case IsImage(e):
			images = append(images, e)
			for dir := path.Dir(e.Path); dir != "." && !dirs[dir]; dir = path.Dir(dir) {
				dirs[dir] = true
			}
		case e.Ext() == "txt":
			labels[labelKey(e.Path)] = e
		}
	}
	isDir := func(p string) bool { return dirs[p] }

	splits, err := resolveSplits(manifest, images, isDir, collector)
	if err != nil {
		return nil, nil, err
	}

	var candidates []Image
	matchedLabels := make(map[string]bool)
	for _, img := range images {
		split, ok := splitFor(img.Path, splits)
		if !ok {
			if underRoot(img.Path, manifest.Root) {
				collector.Add(Diagnostic{
					Kind:     DiagUnassigned,
					Severity: SeverityInfo,
					Path:     img.Path,
					Message:  "image is not under any declared split",
				})
			}
			continue
		}
		candidates = append(candidates, Image{
			Path:        relativeTo(img.Path, manifest.Root),
			ArchivePath: img.Path,
			Split:       split.Name,
			Entry:       img,
		})
		matchedLabels[LabelPathFor(img.Path)] = true
	}

	numClasses := manifest.NumClasses()
	keep := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img := &candidates[i]
			labelEntry, ok := labels[LabelPathFor(img.ArchivePath)]
			if !ok {
				img.NoAnnotations = true
				keep[i] = true
				return nil
			}

			anns, diags, err := parseLabelEntry(labelEntry, numClasses)
			if err != nil {
				return err
			}
			anns, dropped := revalidate(anns, numClasses, labelEntry.Path)
			diags = append(diags, dropped...)
			collector.Add(diags...)

			img.Annotations = anns
			img.NoAnnotations = len(anns) == 0
			if len(diags) == 0 {
				keep[i] = true
				return nil
			}
			if opts.InvalidLabelPolicy == RejectImage {
				collector.RejectImage(diags[0].Kind)
				return nil
			}
			img.Flagged = true
			collector.FlagImage()
			keep[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	labelPaths := make([]string, 0, len(labels))
	for p := range labels {
		labelPaths = append(labelPaths, p)
	}
	sort.Strings(labelPaths)
	for _, p := range labelPaths {
		if !matchedLabels[p] && underRoot(p, manifest.Root) && strings.Contains("/"+p, "/labels/") {
			collector.Add(Diagnostic{
				Kind:     DiagOrphanLabel,
				Severity: SeverityInfo,
				Path:     labels[p].Path,
				Message:  "label file has no matching image",
			})
		}
	}

	ds := &Dataset{ClassNames: append([]string(nil), manifest.ClassNames...)}
	counts := make(map[string]int)
	for i, img := range candidates {
		if !keep[i] {
			continue
		}
		ds.Images = append(ds.Images, img)
		counts[img.Split]++
	}

	order := make(map[string]int, len(splits))
	for i, s := range splits {
		order[s.Name] = i
		ds.Splits = append(ds.Splits, Split{Name: s.Name, Prefix: s.Prefix, ImageCount: counts[s.Name]})
	}
	sort.SliceStable(ds.Images, func(i, j int) bool {
		a, b := ds.Images[i], ds.Images[j]
		if order[a.Split] != order[b.Split] {
			return order[a.Split] < order[b.Split]
		}
		return a.Path < b.Path
	})

	for _, s := range ds.Splits {
		if s.ImageCount > 0 {
			continue
		}
		if opts.EmptySplitPolicy == EmptySplitFail {
			return nil, nil, &EmptySplitError{Split: s.Name, Prefix: s.Prefix}
		}
		collector.Add(Diagnostic{
			Kind:     DiagEmptySplit,
			Severity: SeverityWarning,
			Path:     s.Prefix,
			Message:  fmt.Sprintf("split %s contains no images", s.Name),
		})
	}

	collector.setTotals(len(candidates), len(ds.Images))
	return ds, collector.Report(), nil
}

type resolvedSplit struct {
	Name     string
	Prefix   string
	prefixes []string
}

func resolveSplits(manifest *Manifest, images []Entry, isDir func(string) bool, collector *Collector) ([]resolvedSplit, error) {
	if len(manifest.Splits) == 0 {
		splits := inferSplits(images, manifest.Root)
		collector.Add(Diagnostic{
			Kind:     DiagInferredSplits,
			Severity: SeverityWarning,
			Path:     manifest.Path,
			Message:  fmt.Sprintf("manifest declares no splits, inferred %d from directory names", len(splits)),
		})
		return splits, nil
	}

	var splits []resolvedSplit
	for _, decl := range manifest.Splits {
		rs := resolvedSplit{Name: decl.Name}
		for _, declared := range decl.Prefixes {
			if strings.HasSuffix(strings.ToLower(declared), ".txt") {
				collector.Add(Diagnostic{
					Kind:     DiagUnsupported,
					Severity: SeverityWarning,
					Path:     manifest.Path,
					Message:  fmt.Sprintf("split %s uses an image list file %q, which is not supported", decl.Name, declared),
				})
				continue
			}
			prefix, _ := ResolvePrefix(declared, manifest.Root, isDir)
			rs.prefixes = append(rs.prefixes, prefix)
		}
		if len(rs.prefixes) > 0 {
			rs.Prefix = rs.prefixes[0]
		}
		splits = append(splits, rs)
	}
	return splits, nil
}

var conventionalSplits = map[string]string{"train": "train", "val": "val", "valid": "val", "test": "test"}

// inferSplits groups images by the first conventional split directory within
// the first two path segments below the root
func inferSplits(images []Entry, root string) []resolvedSplit {
	byName := make(map[string]*resolvedSplit)
	var names []string
	for _, img := range images {
		if !underRoot(img.Path, root) {
			continue
		}
		rel := relativeTo(img.Path, root)
		segments := strings.Split(rel, "/")
		for i := 0; i < len(segments)-1 && i < 2; i++ {
			name, ok := conventionalSplits[strings.ToLower(segments[i])]
			if !ok {
				continue
			}
			prefix := cleanJoin(root, strings.Join(segments[:i+1], "/"))
			rs, exists := byName[name]
			if !exists {
				rs = &resolvedSplit{Name: name, Prefix: prefix}
				byName[name] = rs
				names = append(names, name)
			}
			if !containsString(rs.prefixes, prefix) {
				rs.prefixes = append(rs.prefixes, prefix)
			}
			break
		}
	}

	if len(names) == 0 {
		return []resolvedSplit{{Name: "all", Prefix: root, prefixes: []string{root}}}
	}

	var out []resolvedSplit
	for _, name := range []string{"train", "val", "test"} {
		if rs, ok := byName[name]; ok {
			out = append(out, *rs)
		}
	}
	return out
}

func splitFor(p string, splits []resolvedSplit) (resolvedSplit, bool) {
	for _, s := range splits {
		for _, prefix := range s.prefixes {
			if underRoot(p, prefix) {
				return s, true
			}
		}
	}
	return resolvedSplit{}, false
}

func parseLabelEntry(entry Entry, numClasses int) ([]Annotation, []Diagnostic, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()
	return ParseLabels(rc, entry.Path, numClasses)
}

// revalidate drops annotations whose class id falls outside the class table
func revalidate(anns []Annotation, numClasses int, labelPath string) ([]Annotation, []Diagnostic) {
	var diags []Diagnostic
	kept := anns[:0]
	for _, a := range anns {
		if a.ClassID < 0 || a.ClassID >= numClasses {
			diags = append(diags, Diagnostic{
				Kind:     DiagUnknownClass,
				Severity: SeverityError,
				Path:     labelPath,
				Message:  fmt.Sprintf("class id %d is not in the class table", a.ClassID),
			})
			continue
		}
		kept = append(kept, a)
	}
	return kept, diags
}

func underRoot(p, root string) bool {
	return root == "" || p == root || strings.HasPrefix(p, root+"/")
}

func relativeTo(p, root string) string {
	if root == "" {
		return p
	}
	return strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
