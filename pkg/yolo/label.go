package yolo

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Annotation is one bounding box in normalized YOLO coordinates
type Annotation struct {
	ClassID int
	// BBox is x_center, y_center, width, height, each in [0, 1]
	BBox [4]float64
}

var bboxFields = [4]string{"x_center", "y_center", "width", "height"}

// ParseLabels reads a YOLO label file. Malformed lines are skipped and
// reported as diagnostics; read failures are returned as errors. A
// numClasses <= 0 disables the class bound check.
func ParseLabels(r io.Reader, labelPath string, numClasses int) ([]Annotation, []Diagnostic, error) {
	var (
		annotations []Annotation
		diags       []Diagnostic
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		ann, diag := parseLabelLine(line, numClasses)
		if diag != nil {
			diag.Path = labelPath
			diag.Line = lineNo
			diags = append(diags, *diag)
			continue
		}
		annotations = append(annotations, ann)
	}
	if err := scanner.Err(); err != nil {
		return nil, diags, err
	}

	return annotations, diags, nil
}

func parseLabelLine(line string, numClasses int) (Annotation, *Diagnostic) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return Annotation{}, lineError(DiagFieldCount, "expected 5 fields, got %d", len(fields))
	}

	classID, err := strconv.Atoi(fields[0])
	if err != nil || classID < 0 {
		return Annotation{}, lineError(DiagBadClassID, "class id %q is not a non-negative integer", fields[0])
	}

	var ann Annotation
	ann.ClassID = classID
	for i, raw := range fields[1:] {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Annotation{}, lineError(DiagBadNumber, "%s %q is not a number", bboxFields[i], raw)
		}
		if math.IsNaN(v) || v < 0 || v > 1 {
			return Annotation{}, lineError(DiagOutOfRange, "%s %s is outside [0, 1]", bboxFields[i], raw)
		}
		ann.BBox[i] = v
	}

	if numClasses > 0 && classID >= numClasses {
		return Annotation{}, lineError(DiagUnknownClass, "class id %d is not in the class table (%d classes)", classID, numClasses)
	}

	return ann, nil
}

func lineError(kind DiagnosticKind, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Kind:     kind,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
	}
}
