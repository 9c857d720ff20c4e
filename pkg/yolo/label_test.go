package yolo

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabels(t *testing.T) {
	content := strings.Join([]string{
		"0 0.5 0.5 0.2 0.3",
		"1 0.1 0.2 0.3",
		"",
		"1 1.5 0.5 0.2 0.2",
		"1 1.0 0.5 0.2 0.2",
		"-1 0.5 0.5 0.1 0.1",
		"a 0.5 0.5 0.1 0.1",
		"0 x 0.5 0.1 0.1",
		"0 NaN 0.5 0.1 0.1",
		"5 0.5 0.5 0.1 0.1",
		"1 5e-1 0 1 1",
	}, "\n")

	anns, diags, err := ParseLabels(strings.NewReader(content), "train/labels/a.txt", 2)
	require.NoError(t, err)

	assert.Equal(t, []Annotation{
		{ClassID: 0, BBox: [4]float64{0.5, 0.5, 0.2, 0.3}},
		{ClassID: 1, BBox: [4]float64{1.0, 0.5, 0.2, 0.2}},
		{ClassID: 1, BBox: [4]float64{0.5, 0, 1, 1}},
	}, anns)

	type rejected struct {
		line int
		kind DiagnosticKind
	}
	var got []rejected
	for _, d := range diags {
		assert.Equal(t, "train/labels/a.txt", d.Path)
		assert.Equal(t, SeverityError, d.Severity)
		got = append(got, rejected{d.Line, d.Kind})
	}
	assert.Equal(t, []rejected{
		{2, DiagFieldCount},
		{4, DiagOutOfRange},
		{6, DiagBadClassID},
		{7, DiagBadClassID},
		{8, DiagBadNumber},
		{9, DiagOutOfRange},
		{10, DiagUnknownClass},
	}, got)
}

func TestParseLabels_Cases(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		numClasses int
		wantAnns   int
		wantKind   DiagnosticKind
	}{
		{name: "empty file", content: "", numClasses: 2},
		{name: "blank lines only", content: "\n\n  \n", numClasses: 2},
		{name: "crlf line endings", content: "0 0.5 0.5 0.1 0.1\r\n1 0.5 0.5 0.1 0.1\r\n", numClasses: 2, wantAnns: 2},
		{name: "boundaries are inclusive", content: "0 0 0 1 1\n", numClasses: 1, wantAnns: 1},
		{name: "six fields", content: "0 0.5 0.5 0.1 0.1 0.9\n", numClasses: 1, wantKind: DiagFieldCount},
		{name: "float class id", content: "1.0 0.5 0.5 0.1 0.1\n", numClasses: 2, wantKind: DiagBadClassID},
		{name: "negative coordinate", content: "0 0.5 -0.1 0.1 0.1\n", numClasses: 1, wantKind: DiagOutOfRange},
		{name: "class bound disabled", content: "42 0.5 0.5 0.1 0.1\n", numClasses: 0, wantAnns: 1},
		{name: "class id equal to table size", content: "2 0.5 0.5 0.1 0.1\n", numClasses: 2, wantKind: DiagUnknownClass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anns, diags, err := ParseLabels(strings.NewReader(tt.content), "l.txt", tt.numClasses)
			require.NoError(t, err)
			assert.Len(t, anns, tt.wantAnns)
			if tt.wantKind == "" {
				assert.Empty(t, diags)
				return
			}
			require.Len(t, diags, 1)
			assert.Equal(t, tt.wantKind, diags[0].Kind)
			assert.Equal(t, 1, diags[0].Line)
		})
	}
}

func TestParseLabels_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("0 0.5 0.5 0.1 0.1\n"), iotest.ErrReader(boom))

	anns, _, err := ParseLabels(r, "l.txt", 1)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, anns)
}
