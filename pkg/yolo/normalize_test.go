package yolo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFixture(t *testing.T, files map[string]string, opts NormalizeOptions) (*Result, error) {
	t.Helper()
	return Parse(context.Background(), memEntries(files), opts)
}

func TestParse_EndToEnd(t *testing.T) {
	files := map[string]string{
		"data.yaml":             "names: [person, car]\ntrain: train/images\nval: valid/images\n",
		"train/images/img1.jpg": "jpeg",
		"train/labels/img1.txt": "0 0.5 0.5 0.2 0.3\n",
		"valid/images/img2.png": "png",
		"valid/labels/img2.txt": "1 0.1 0.1 0.1 0.1\n",
	}

	res, err := parseFixture(t, files, NormalizeOptions{})
	require.NoError(t, err)

	ds := res.Dataset
	assert.Equal(t, []string{"person", "car"}, ds.ClassNames)
	assert.Equal(t, []Split{
		{Name: "train", Prefix: "train/images", ImageCount: 1},
		{Name: "val", Prefix: "valid/images", ImageCount: 1},
	}, ds.Splits)

	require.Len(t, ds.Images, 2)
	first := ds.Images[0]
	assert.Equal(t, "train/images/img1.jpg", first.Path)
	assert.Equal(t, "img1.jpg", first.Filename())
	assert.Equal(t, "train", first.Split)
	assert.Equal(t, []Annotation{{ClassID: 0, BBox: [4]float64{0.5, 0.5, 0.2, 0.3}}}, first.Annotations)
	assert.False(t, first.Flagged)
	assert.Equal(t, "val", ds.Images[1].Split)

	assert.Equal(t, 2, res.Diagnostics.ImagesTotal)
	assert.Equal(t, 2, res.Diagnostics.ImagesAccepted)
	assert.Equal(t, "2/2 images parsed", res.Diagnostics.Summary())
}

func TestParse_SiblingLabels(t *testing.T) {
	files := map[string]string{
		"data.yaml":      "names: [\"person\", \"car\"]\n",
		"train/img1.jpg": "jpeg",
		"train/img1.txt": "0 0.5 0.5 0.2 0.3",
	}

	res, err := parseFixture(t, files, NormalizeOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"person", "car"}, res.Dataset.ClassNames)
	require.Len(t, res.Dataset.Images, 1)
	img := res.Dataset.Images[0]
	assert.Equal(t, "img1.jpg", img.Filename())
	assert.Equal(t, "train", img.Split)
	assert.Equal(t, []Annotation{{ClassID: 0, BBox: [4]float64{0.5, 0.5, 0.2, 0.3}}}, img.Annotations)
}

func TestParse_NestedRoot(t *testing.T) {
	files := map[string]string{
		"export/ds/data.yaml":              "names: [a, b, a]\ntrain: images/train\n",
		"export/ds/images/train/x.jpg":     "",
		"export/ds/labels/train/x.txt":     "1 0.5 0.5 0.5 0.5\n",
		"export/ds/images/train/sub/y.jpg": "",
	}

	res, err := parseFixture(t, files, NormalizeOptions{})
	require.NoError(t, err)

	assert.Equal(t, "export/ds", res.Manifest.Root)
	require.Len(t, res.Dataset.Images, 2)
	assert.Equal(t, "images/train/sub/y.jpg", res.Dataset.Images[0].Path)
	assert.True(t, res.Dataset.Images[0].NoAnnotations)
	assert.Equal(t, "images/train/x.jpg", res.Dataset.Images[1].Path)
	assert.Equal(t, "export/ds/images/train/x.jpg", res.Dataset.Images[1].ArchivePath)
	assert.Len(t, res.Dataset.Images[1].Annotations, 1)

	// duplicate class name warning from the manifest is carried through
	assert.Equal(t, 1, res.Diagnostics.Counts[DiagDuplicateClass])
}

func TestParse_ManyImages(t *testing.T) {
	const numImages = 40
	files := map[string]string{
		"data.yaml": "nc: 3\nnames: [a, b, c]\ntrain: train/images\nval: val/images\n",
	}
	wantAnnotations := 0
	for i := 0; i < numImages; i++ {
		split := "train"
		if i%4 == 0 {
			split = "val"
		}
		files[fmt.Sprintf("%s/images/%03d.jpg", split, i)] = ""
		var label string
		for j := 0; j <= i%3; j++ {
			label += fmt.Sprintf("%d 0.5 0.5 0.1 0.1\n", (i+j)%3)
			wantAnnotations++
		}
		files[fmt.Sprintf("%s/labels/%03d.txt", split, i)] = label
	}

	res, err := parseFixture(t, files, NormalizeOptions{Workers: 4})
	require.NoError(t, err)

	assert.Len(t, res.Dataset.ClassNames, 3)
	assert.Len(t, res.Dataset.Images, numImages)
	assert.Equal(t, 30, res.Dataset.Splits[0].ImageCount)
	assert.Equal(t, 10, res.Dataset.Splits[1].ImageCount)

	gotAnnotations := 0
	for i, img := range res.Dataset.Images {
		gotAnnotations += len(img.Annotations)
		if i > 0 && img.Split == res.Dataset.Images[i-1].Split {
			assert.Less(t, res.Dataset.Images[i-1].Path, img.Path, "images are ordered by path within a split")
		}
	}
	assert.Equal(t, wantAnnotations, gotAnnotations)
	assert.Zero(t, res.Diagnostics.LinesRejected)
}

func TestParse_InvalidLabelPolicy(t *testing.T) {
	files := map[string]string{
		"data.yaml":             "names: [person, car]\ntrain: train/images\n",
		"train/images/good.jpg": "",
		"train/labels/good.txt": "0 0.5 0.5 0.2 0.2\n",
		"train/images/bad.jpg":  "",
		"train/labels/bad.txt":  "0 0.5 0.5 0.2 0.2\n7 0.5 0.5 0.1 0.1\n",
	}

	t.Run("drop annotation", func(t *testing.T) {
		res, err := parseFixture(t, files, NormalizeOptions{InvalidLabelPolicy: DropAnnotation})
		require.NoError(t, err)

		require.Len(t, res.Dataset.Images, 2)
		bad := res.Dataset.Images[0]
		assert.Equal(t, "train/images/bad.jpg", bad.Path)
		assert.True(t, bad.Flagged)
		assert.Len(t, bad.Annotations, 1)

		r := res.Diagnostics
		assert.Equal(t, 1, r.ImagesFlagged)
		assert.Equal(t, 1, r.LinesRejected)
		assert.Equal(t, "2/2 images parsed, 1 flagged: unknown class id", r.Summary())
		require.NotEmpty(t, r.Samples)
		assert.Equal(t, "train/labels/bad.txt", r.Samples[0].Path)
		assert.Equal(t, 2, r.Samples[0].Line)
	})

	t.Run("reject image", func(t *testing.T) {
		res, err := parseFixture(t, files, NormalizeOptions{InvalidLabelPolicy: RejectImage})
		require.NoError(t, err)

		require.Len(t, res.Dataset.Images, 1)
		assert.Equal(t, "train/images/good.jpg", res.Dataset.Images[0].Path)
		assert.Equal(t, 1, res.Dataset.Splits[0].ImageCount)

		r := res.Diagnostics
		assert.Equal(t, 1, r.ImagesRejected)
		assert.Equal(t, "1/2 images parsed, 1 rejected: unknown class id", r.Summary())
	})
}

func TestParse_EmptySplit(t *testing.T) {
	files := map[string]string{
		"data.yaml":          "names: [a]\ntrain: train/images\nval: valid/images\n",
		"train/images/1.jpg": "",
	}

	t.Run("warn", func(t *testing.T) {
		res, err := parseFixture(t, files, NormalizeOptions{EmptySplitPolicy: EmptySplitWarn})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Diagnostics.Counts[DiagEmptySplit])
		assert.Equal(t, 0, res.Dataset.Splits[1].ImageCount)
	})

	t.Run("fail", func(t *testing.T) {
		_, err := parseFixture(t, files, NormalizeOptions{EmptySplitPolicy: EmptySplitFail})
		var empty *EmptySplitError
		require.True(t, errors.As(err, &empty), "got %v", err)
		assert.Equal(t, "val", empty.Split)
		kind, _ := KindOf(err)
		assert.Equal(t, KindEmptySplit, kind)
	})
}

func TestParse_InferredSplits(t *testing.T) {
	t.Run("conventional directories", func(t *testing.T) {
		files := map[string]string{
			"data.yaml":          "names: [a]\n",
			"test/images/3.jpg":  "",
			"train/images/1.jpg": "",
			"valid/images/2.jpg": "",
		}
		res, err := parseFixture(t, files, NormalizeOptions{})
		require.NoError(t, err)

		var names []string
		for _, s := range res.Dataset.Splits {
			names = append(names, s.Name)
		}
		assert.Equal(t, []string{"train", "val", "test"}, names)
		assert.Equal(t, 1, res.Diagnostics.Counts[DiagInferredSplits])
	})

	t.Run("single split fallback", func(t *testing.T) {
		files := map[string]string{
			"data.yaml":    "names: [a]\n",
			"images/1.jpg": "",
			"labels/1.txt": "0 0.5 0.5 0.1 0.1\n",
		}
		res, err := parseFixture(t, files, NormalizeOptions{})
		require.NoError(t, err)
		require.Len(t, res.Dataset.Splits, 1)
		assert.Equal(t, "all", res.Dataset.Splits[0].Name)
		require.Len(t, res.Dataset.Images, 1)
		assert.Len(t, res.Dataset.Images[0].Annotations, 1)
	})
}

func TestParse_UnassignedAndOrphans(t *testing.T) {
	files := map[string]string{
		"data.yaml":              "names: [a]\ntrain: train/images\n",
		"train/images/1.jpg":     "",
		"extra/images/stray.jpg": "",
		"train/labels/ghost.txt": "0 0.5 0.5 0.1 0.1\n",
		"README.txt":             "not a label",
	}

	res, err := parseFixture(t, files, NormalizeOptions{})
	require.NoError(t, err)

	assert.Len(t, res.Dataset.Images, 1)
	assert.Equal(t, 1, res.Diagnostics.ImagesTotal)
	assert.Equal(t, 1, res.Diagnostics.Counts[DiagUnassigned])
	assert.Equal(t, 1, res.Diagnostics.Counts[DiagOrphanLabel])
}

func TestParse_MissingManifest(t *testing.T) {
	_, err := parseFixture(t, map[string]string{"train/images/1.jpg": ""}, NormalizeOptions{})
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindManifestMissing, kind)
}

func TestNormalize_Cancelled(t *testing.T) {
	files := map[string]string{
		"train/images/1.jpg": "",
		"train/labels/1.txt": "0 0.5 0.5 0.1 0.1\n",
	}
	manifest := &Manifest{Path: "data.yaml", ClassNames: []string{"a"}, Splits: []SplitDecl{{Name: "train", Prefixes: []string{"train/images"}}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Normalize(ctx, memEntries(files), manifest, NormalizeOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLabelPathFor(t *testing.T) {
	tests := map[string]string{
		"train/images/a.jpg":         "train/labels/a.txt",
		"images/train/a.PNG":         "labels/train/a.txt",
		"ds/images/x/images/b.jpeg":  "ds/images/x/labels/b.txt",
		"flat/c.bmp":                 "flat/c.txt",
		"d.jpg":                      "d.txt",
		"train/my.images/e.jpg":      "train/my.images/e.txt",
		"a.b/images/f.with.dots.jpg": "a.b/labels/f.with.dots.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, LabelPathFor(in), in)
	}
}

func TestParse_ImagesWithoutSurvivingAnnotations(t *testing.T) {
	files := map[string]string{
		"data.yaml":          "names: [person, car]\ntrain: train/images\n",
		"train/images/e.jpg": "jpeg",
		"train/labels/e.txt": "",
		"train/images/m.jpg": "jpeg",
		"train/images/r.jpg": "jpeg",
		"train/labels/r.txt": "0 1.5 0.5 0.1 0.1\n",
		"train/images/k.jpg": "jpeg",
		"train/labels/k.txt": "1 0.5 0.5 0.1 0.1\n0 1.5 0.5 0.1 0.1\n",
	}

	tests := []struct {
		filename      string
		annotations   int
		noAnnotations bool
		flagged       bool
	}{
		{filename: "e.jpg", annotations: 0, noAnnotations: true, flagged: false},
		{filename: "m.jpg", annotations: 0, noAnnotations: true, flagged: false},
		{filename: "r.jpg", annotations: 0, noAnnotations: true, flagged: true},
		{filename: "k.jpg", annotations: 1, noAnnotations: false, flagged: true},
	}

	res, err := parseFixture(t, files, NormalizeOptions{})
	require.NoError(t, err)
	require.Len(t, res.Dataset.Images, len(tests))

	byName := make(map[string]Image)
	for _, img := range res.Dataset.Images {
		byName[img.Filename()] = img
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			img, ok := byName[tt.filename]
			require.True(t, ok, "image is retained")
			assert.Len(t, img.Annotations, tt.annotations)
			assert.Equal(t, tt.noAnnotations, img.NoAnnotations)
			assert.Equal(t, tt.flagged, img.Flagged)
		})
	}
}

func TestParse_UpperCaseLabelExtension(t *testing.T) {
	files := map[string]string{
		"data.yaml":             "names: [person]\ntrain: train/images\n",
		"train/images/IMG1.JPG": "jpeg",
		"train/labels/IMG1.TXT": "0 0.5 0.5 0.2 0.2\n",
	}

	res, err := parseFixture(t, files, NormalizeOptions{})
	require.NoError(t, err)
	require.Len(t, res.Dataset.Images, 1)
	img := res.Dataset.Images[0]
	assert.Len(t, img.Annotations, 1)
	assert.False(t, img.NoAnnotations)
	assert.Zero(t, res.Diagnostics.Counts[DiagOrphanLabel])
}
