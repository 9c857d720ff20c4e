package yolo

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestNames are the file names recognized as a dataset manifest
var ManifestNames = []string{"data.yaml", "data.yml", "dataset.yaml"}

// knownSplits are the split keys read from a manifest, in output order
var knownSplits = []string{"train", "val", "valid", "test"}

// SplitDecl is a split as declared by the manifest
type SplitDecl struct {
	Name     string
	Prefixes []string
}

// Manifest is the parsed dataset configuration
type Manifest struct {
	// Path of the manifest inside the archive
	Path string
	// Root is the directory the manifest lives in; split prefixes are relative to it
	Root       string
	ClassNames []string
	Splits     []SplitDecl
}

// NumClasses returns the size of the class table
func (m *Manifest) NumClasses() int {
	return len(m.ClassNames)
}

type rawManifest struct {
	Path  string    `yaml:"path"`
	NC    *int      `yaml:"nc"`
	Names yaml.Node `yaml:"names"`
	Train yaml.Node `yaml:"train"`
	Val   yaml.Node `yaml:"val"`
	Valid yaml.Node `yaml:"valid"`
	Test  yaml.Node `yaml:"test"`
}

// FindManifest picks the shallowest manifest entry, ties broken by path
func FindManifest(entries []Entry) (Entry, error) {
	var candidates []Entry
	for _, e := range entries {
		for _, name := range ManifestNames {
			if e.Name() == name {
				candidates = append(candidates, e)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return Entry{}, &ManifestMissingError{Searched: ManifestNames}
	}

	sort.Slice(candidates, func(i, j int) bool {
		di, dj := depth(candidates[i].Path), depth(candidates[j].Path)
		if di != dj {
			return di < dj
		}
		return candidates[i].Path < candidates[j].Path
	})
	return candidates[0], nil
}

func depth(p string) int {
	return strings.Count(p, "/")
}

// ParseManifest parses manifest bytes found at manifestPath inside the archive
func ParseManifest(manifestPath string, data []byte) (*Manifest, []Diagnostic, error) {
	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, &ManifestSyntaxError{Path: manifestPath, Reason: "unparsable YAML", Err: err}
	}

	names, err := decodeNames(&raw.Names)
	if err != nil {
		return nil, nil, &ManifestSyntaxError{Path: manifestPath, Reason: err.Error()}
	}
	if raw.NC != nil && *raw.NC != len(names) {
		return nil, nil, &ManifestSyntaxError{
			Path:   manifestPath,
			Reason: fmt.Sprintf("nc is %d but %d class names are listed", *raw.NC, len(names)),
		}
	}
	if len(names) == 0 {
		return nil, nil, &EmptyClassTableError{Path: manifestPath}
	}

	var diags []Diagnostic
	seen := make(map[string]int, len(names))
	for id, name := range names {
		if first, ok := seen[name]; ok {
			diags = append(diags, Diagnostic{
				Kind:     DiagDuplicateClass,
				Severity: SeverityWarning,
				Path:     manifestPath,
				Message:  fmt.Sprintf("class %d reuses the name %q of class %d", id, name, first),
			})
			continue
		}
		seen[name] = id
	}

	root := path.Dir(manifestPath)
	if root == "." {
		root = ""
	}
	if raw.Path != "" && !path.IsAbs(raw.Path) {
		root = cleanJoin(root, raw.Path)
	}

	m := &Manifest{Path: manifestPath, Root: root, ClassNames: names}

	nodes := map[string]*yaml.Node{"train": &raw.Train, "val": &raw.Val, "valid": &raw.Valid, "test": &raw.Test}
	for _, split := range knownSplits {
		prefixes, err := decodePrefixes(nodes[split])
		if err != nil {
			return nil, nil, &ManifestSyntaxError{Path: manifestPath, Reason: fmt.Sprintf("split %s: %v", split, err)}
		}
		if len(prefixes) == 0 {
			continue
		}
		m.Splits = append(m.Splits, SplitDecl{Name: split, Prefixes: prefixes})
	}

	return m, diags, nil
}

// decodeNames accepts a sequence or an integer-keyed mapping contiguous from 0
func decodeNames(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil, nil
		}
		return nil, fmt.Errorf("names must be a list or a mapping")
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return nil, fmt.Errorf("names list: %v", err)
		}
		return names, nil
	case yaml.MappingNode:
		var byID map[int]string
		if err := node.Decode(&byID); err != nil {
			return nil, fmt.Errorf("names mapping: %v", err)
		}
		names := make([]string, len(byID))
		for id, name := range byID {
			if id < 0 || id >= len(byID) {
				return nil, fmt.Errorf("names mapping keys must be contiguous from 0, found %d", id)
			}
			names[id] = name
		}
		return names, nil
	}
	return nil, fmt.Errorf("names must be a list or a mapping")
}

func decodePrefixes(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" || strings.TrimSpace(node.Value) == "" {
			return nil, nil
		}
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		var prefixes []string
		if err := node.Decode(&prefixes); err != nil {
			return nil, err
		}
		return prefixes, nil
	}
	return nil, fmt.Errorf("expected a path or a list of paths")
}

// ResolvePrefix maps a declared split path onto a directory inside the
// archive. Relative paths resolve against root; paths escaping the root drop
// their leading "../" segments; absolute paths match the longest suffix
// that names a known directory. ok is false when nothing matches.
func ResolvePrefix(declared, root string, isDir func(string) bool) (string, bool) {
	declared = strings.ReplaceAll(strings.TrimSpace(declared), "\\", "/")
	declared = strings.TrimSuffix(declared, "/")

	if path.IsAbs(declared) {
		parts := strings.Split(strings.TrimPrefix(path.Clean(declared), "/"), "/")
		for i := range parts {
			candidate := strings.Join(parts[i:], "/")
			if isDir(cleanJoin(root, candidate)) {
				return cleanJoin(root, candidate), true
			}
			if isDir(candidate) {
				return candidate, true
			}
		}
		return "", false
	}

	joined := cleanJoin(root, declared)
	if joined == ".." || strings.HasPrefix(joined, "../") {
		stripped := declared
		for strings.HasPrefix(stripped, "../") {
			stripped = strings.TrimPrefix(stripped, "../")
		}
		joined = cleanJoin(root, stripped)
	}
	if isDir(joined) {
		return joined, true
	}

	// data.yaml one level below the content, e.g. yolo/data.yaml with yolo/../train
	if root != "" {
		if alt := path.Clean(strings.TrimPrefix(declared, "../")); isDir(alt) {
			return alt, true
		}
	}
	return joined, false
}

func cleanJoin(elem ...string) string {
	p := path.Join(elem...)
	if p == "." {
		return ""
	}
	return p
}
