package yolo

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		yaml       string
		wantNames  []string
		wantSplits []SplitDecl
		wantRoot   string
		wantDiags  int
	}{
		{
			name:      "names as list",
			path:      "data.yaml",
			yaml:      "nc: 2\nnames: [person, car]\ntrain: train/images\nval: valid/images\n",
			wantNames: []string{"person", "car"},
			wantSplits: []SplitDecl{
				{Name: "train", Prefixes: []string{"train/images"}},
				{Name: "val", Prefixes: []string{"valid/images"}},
			},
		},
		{
			name:      "names as mapping",
			path:      "ds/data.yaml",
			yaml:      "names:\n  1: car\n  0: person\n  2: bus\ntrain: [images/train, images/extra]\ntest: images/test\n",
			wantNames: []string{"person", "car", "bus"},
			wantSplits: []SplitDecl{
				{Name: "train", Prefixes: []string{"images/train", "images/extra"}},
				{Name: "test", Prefixes: []string{"images/test"}},
			},
			wantRoot: "ds",
		},
		{
			name:      "relative path key moves the root",
			path:      "export/data.yaml",
			yaml:      "path: coco\nnames: [a]\ntrain: images/train\n",
			wantNames: []string{"a"},
			wantSplits: []SplitDecl{
				{Name: "train", Prefixes: []string{"images/train"}},
			},
			wantRoot: "export/coco",
		},
		{
			name:      "absolute path key is ignored",
			path:      "data.yaml",
			yaml:      "path: /content/datasets/coco\nnames: [a]\n",
			wantNames: []string{"a"},
		},
		{
			name:      "duplicate names keep distinct ids",
			path:      "data.yaml",
			yaml:      "names: [cat, dog, cat]\n",
			wantNames: []string{"cat", "dog", "cat"},
			wantDiags: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, diags, err := ParseManifest(tt.path, []byte(tt.yaml))
			require.NoError(t, err)

			if diff := cmp.Diff(tt.wantNames, m.ClassNames); diff != "" {
				t.Errorf("class names mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantSplits, m.Splits); diff != "" {
				t.Errorf("splits mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.wantRoot, m.Root)
			assert.Len(t, diags, tt.wantDiags)
			for _, d := range diags {
				assert.Equal(t, DiagDuplicateClass, d.Kind)
				assert.Equal(t, SeverityWarning, d.Severity)
			}
		})
	}
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantKind ErrorKind
	}{
		{name: "unparsable yaml", yaml: "names: [a, b\ntrain: x", wantKind: KindManifestSyntax},
		{name: "nc mismatch", yaml: "nc: 3\nnames: [a, b]\n", wantKind: KindManifestSyntax},
		{name: "non-contiguous mapping", yaml: "names:\n  0: a\n  2: c\n", wantKind: KindManifestSyntax},
		{name: "names is a scalar", yaml: "names: person\n", wantKind: KindManifestSyntax},
		{name: "split is a mapping", yaml: "names: [a]\ntrain: {dir: x}\n", wantKind: KindManifestSyntax},
		{name: "no names", yaml: "train: images/train\n", wantKind: KindEmptyClassTable},
		{name: "empty names", yaml: "nc: 0\nnames: []\n", wantKind: KindEmptyClassTable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseManifest("data.yaml", []byte(tt.yaml))
			require.Error(t, err)
			kind, ok := KindOf(err)
			require.True(t, ok, "unexpected error type %T: %v", err, err)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestFindManifest(t *testing.T) {
	t.Run("shallowest wins", func(t *testing.T) {
		entries := memEntries(map[string]string{
			"a/b/data.yaml":        "",
			"z/data.yaml":          "",
			"a/dataset.yaml":       "",
			"a/images/x.jpg":       "",
			"notdata.yaml":         "",
			"deep/nested/data.yml": "",
		})
		m, err := FindManifest(entries)
		require.NoError(t, err)
		assert.Equal(t, "a/dataset.yaml", m.Path)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := FindManifest(memEntries(map[string]string{"train/images/a.jpg": ""}))
		var missing *ManifestMissingError
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, ManifestNames, missing.Searched)
	})
}

func TestResolvePrefix(t *testing.T) {
	dirs := map[string]bool{
		"":                true,
		"train":           true,
		"train/images":    true,
		"ds":              true,
		"ds/images":       true,
		"ds/images/train": true,
		"valid":           true,
		"valid/images":    true,
	}
	isDir := func(p string) bool { return dirs[p] }

	tests := []struct {
		name     string
		declared string
		root     string
		want     string
		ok       bool
	}{
		{name: "plain relative", declared: "train/images", want: "train/images", ok: true},
		{name: "trailing slash", declared: "train/images/", want: "train/images", ok: true},
		{name: "dot slash", declared: "./valid/images", want: "valid/images", ok: true},
		{name: "escaping root", declared: "../train/images", want: "train/images", ok: true},
		{name: "under manifest root", declared: "images/train", root: "ds", want: "ds/images/train", ok: true},
		{name: "absolute path suffix", declared: "/content/datasets/ds/images/train", want: "ds/images/train", ok: true},
		{name: "absolute path suffix under root", declared: "/home/u/images/train", root: "ds", want: "ds/images/train", ok: true},
		{name: "missing directory", declared: "test/images", want: "test/images", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolvePrefix(tt.declared, tt.root, isDir)
			assert.Equal(t, tt.ok, ok)
			if tt.ok || tt.want != "" {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
