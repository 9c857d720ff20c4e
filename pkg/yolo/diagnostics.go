package yolo

import (
	"fmt"
	"sort"
	"sync"
)

// Severity of a diagnostic record
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// DiagnosticKind identifies what a diagnostic is about
type DiagnosticKind string

const (
	DiagFieldCount     DiagnosticKind = "field_count"
	DiagBadClassID     DiagnosticKind = "bad_class_id"
	DiagBadNumber      DiagnosticKind = "bad_number"
	DiagOutOfRange     DiagnosticKind = "out_of_range"
	DiagUnknownClass   DiagnosticKind = "unknown_class"
	DiagDuplicateClass DiagnosticKind = "duplicate_class_name"
	DiagInferredSplits DiagnosticKind = "inferred_splits"
	DiagEmptySplit     DiagnosticKind = "empty_split"
	DiagUnassigned     DiagnosticKind = "unassigned_image"
	DiagUnsupported    DiagnosticKind = "unsupported_split_source"
	DiagOrphanLabel    DiagnosticKind = "orphan_label"
)

var diagnosticDescriptions = map[DiagnosticKind]string{
	DiagFieldCount:     "wrong field count",
	DiagBadClassID:     "invalid class id",
	DiagBadNumber:      "non-numeric coordinate",
	DiagOutOfRange:     "coordinate out of range",
	DiagUnknownClass:   "unknown class id",
	DiagDuplicateClass: "duplicate class name",
	DiagInferredSplits: "splits inferred from directory names",
	DiagEmptySplit:     "empty split",
	DiagUnassigned:     "image outside every split",
	DiagUnsupported:    "unsupported split source",
	DiagOrphanLabel:    "label without image",
}

// Describe returns a short human-readable description of the kind
func (k DiagnosticKind) Describe() string {
	if d, ok := diagnosticDescriptions[k]; ok {
		return d
	}
	return string(k)
}

// Diagnostic is one structured record about a rejected or suspicious input
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind"`
	Severity Severity       `json:"severity"`
	Path     string         `json:"path,omitempty"`
	Line     int            `json:"line,omitempty"`
	Message  string         `json:"message"`
}

// DiagnosticsReport aggregates counts and the first N diagnostics of an ingestion
type DiagnosticsReport struct {
	ImagesTotal    int                    `json:"images_total"`
	ImagesAccepted int                    `json:"images_accepted"`
	ImagesRejected int                    `json:"images_rejected"`
	ImagesFlagged  int                    `json:"images_flagged"`
	LinesRejected  int                    `json:"lines_rejected"`
	Counts         map[DiagnosticKind]int `json:"counts"`
	RejectReasons  map[DiagnosticKind]int `json:"reject_reasons,omitempty"`
	Samples        []Diagnostic           `json:"samples"`
	SamplesDropped int                    `json:"samples_dropped,omitempty"`
}

// Summary renders a one-line description, e.g.
// "142/150 images parsed, 8 rejected: unknown class id"
func (r *DiagnosticsReport) Summary() string {
	if r == nil {
		return ""
	}
	s := fmt.Sprintf("%d/%d images parsed", r.ImagesAccepted, r.ImagesTotal)
	if r.ImagesRejected > 0 {
		s += fmt.Sprintf(", %d rejected", r.ImagesRejected)
		if reason, ok := topKind(r.RejectReasons); ok {
			s += ": " + reason.Describe()
		}
	}
	if r.ImagesFlagged > 0 {
		s += fmt.Sprintf(", %d flagged", r.ImagesFlagged)
		if r.ImagesRejected == 0 {
			if reason, ok := topKind(lineKinds(r.Counts)); ok {
				s += ": " + reason.Describe()
			}
		}
	}
	return s
}

func lineKinds(counts map[DiagnosticKind]int) map[DiagnosticKind]int {
	out := make(map[DiagnosticKind]int)
	for k, n := range counts {
		switch k {
		case DiagFieldCount, DiagBadClassID, DiagBadNumber, DiagOutOfRange, DiagUnknownClass:
			out[k] = n
		}
	}
	return out
}

// topKind returns the most frequent kind, ties broken by name
func topKind(counts map[DiagnosticKind]int) (DiagnosticKind, bool) {
	if len(counts) == 0 {
		return "", false
	}
	kinds := make([]DiagnosticKind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if counts[kinds[i]] != counts[kinds[j]] {
			return counts[kinds[i]] > counts[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	return kinds[0], true
}

// Collector accumulates diagnostics from concurrent parsers
type Collector struct {
	mu     sync.Mutex
	limit  int
	report DiagnosticsReport
}

// NewCollector creates a collector keeping at most limit sample diagnostics
func NewCollector(limit int) *Collector {
	if limit < 0 {
		limit = 0
	}
	return &Collector{
		limit: limit,
		report: DiagnosticsReport{
			Counts:        make(map[DiagnosticKind]int),
			RejectReasons: make(map[DiagnosticKind]int),
			Samples:       make([]Diagnostic, 0),
		},
	}
}

// Add records diagnostics
func (c *Collector) Add(diags ...Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, d := range diags {
		c.report.Counts[d.Kind]++
		if d.Severity == SeverityError && d.Line > 0 {
			c.report.LinesRejected++
		}
		if len(c.report.Samples) < c.limit {
			c.report.Samples = append(c.report.Samples, d)
		} else {
			c.report.SamplesDropped++
		}
	}
}

// RejectImage counts an image excluded from the dataset for the given reason
func (c *Collector) RejectImage(reason DiagnosticKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.ImagesRejected++
	c.report.RejectReasons[reason]++
}

// FlagImage counts an image kept with some annotations dropped
func (c *Collector) FlagImage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.ImagesFlagged++
}

// Report returns a snapshot of the collected diagnostics
func (c *Collector) Report() *DiagnosticsReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.report
	r.Counts = make(map[DiagnosticKind]int, len(c.report.Counts))
	for k, v := range c.report.Counts {
		r.Counts[k] = v
	}
	r.RejectReasons = make(map[DiagnosticKind]int, len(c.report.RejectReasons))
	for k, v := range c.report.RejectReasons {
		r.RejectReasons[k] = v
	}
	r.Samples = append([]Diagnostic(nil), c.report.Samples...)
	return &r
}

func (c *Collector) setTotals(total, accepted int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.ImagesTotal = total
	c.report.ImagesAccepted = accepted
}
