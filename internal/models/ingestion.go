package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/killallgit/dataset-importer/pkg/yolo"
)

// IngestionStage is a step of the ingestion state machine
type IngestionStage string

const (
	StageReceived   IngestionStage = "received"
	StageExtracting IngestionStage = "extracting"
	StageParsing    IngestionStage = "parsing"
	StagePersisting IngestionStage = "persisting"
	StageReady      IngestionStage = "ready"
	StageFailed     IngestionStage = "failed"
)

// Error kinds recorded for failures that are not pipeline errors
const (
	ErrorKindStore             = "store"
	ErrorKindSourceMissing     = "source_missing"
	ErrorKindInsufficientSpace = "insufficient_space"
	ErrorKindConflict          = "conflict"
	ErrorKindInterrupted       = "interrupted"
	ErrorKindTimeout           = "timeout"
	ErrorKindInternal          = "internal"
)

var stageSuccessor = map[IngestionStage]IngestionStage{
	StageReceived:   StageExtracting,
	StageExtracting: StageParsing,
	StageParsing:    StagePersisting,
	StagePersisting: StageReady,
}

// stageProgress is the coarse percentage reported on entering a stage
var stageProgress = map[IngestionStage]int{
	StageReceived:   0,
	StageExtracting: 5,
	StageParsing:    40,
	StagePersisting: 60,
	StageReady:      100,
}

// IsTerminal reports whether no further transition is allowed
func (s IngestionStage) IsTerminal() bool {
	return s == StageReady || s == StageFailed
}

// Progress returns the percentage reported when a stage starts
func (s IngestionStage) Progress() int {
	return stageProgress[s]
}

// CanTransition reports whether an ingestion may move from one stage to another.
// Stages advance one at a time; any non-terminal stage may fail or be reset
// to received for a resumed run.
func CanTransition(from, to IngestionStage) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case StageFailed:
		return true
	case StageReceived:
		return from != StageReceived
	}
	return stageSuccessor[from] == to
}

// IngestionJob records one attempt to import an archive
type IngestionJob struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DatasetID string         `gorm:"not null;size:36;index" json:"dataset_id"`
	ObjectKey string         `gorm:"not null;size:1024" json:"object_key"`
	Filename  string         `gorm:"size:255" json:"filename"`
	Stage     IngestionStage `gorm:"not null;size:20;index" json:"stage"`
	Progress  int            `json:"progress"`

	ErrorKind string `gorm:"size:50" json:"error_kind,omitempty"`
	Error     string `gorm:"type:text" json:"error,omitempty"`
	Retryable bool   `json:"retryable"`

	ImagesAccepted int `json:"images_accepted"`
	ImagesRejected int `json:"images_rejected"`
	ImagesFlagged  int `json:"images_flagged"`
	LinesRejected  int `json:"lines_rejected"`

	Diagnostics datatypes.JSONType[yolo.DiagnosticsReport] `json:"diagnostics"`

	QueueJobID *uint      `json:"queue_job_id,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TableName returns the table name for the IngestionJob model
func (IngestionJob) TableName() string {
	return "ingestion_jobs"
}

// BeforeCreate generates the ID and initial stage
func (j *IngestionJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Stage == "" {
		j.Stage = StageReceived
	}
	return nil
}

// IsTerminal reports whether the ingestion has finished
func (j *IngestionJob) IsTerminal() bool {
	return j.Stage.IsTerminal()
}

// ApplyReport copies diagnostic counts onto the job
func (j *IngestionJob) ApplyReport(r *yolo.DiagnosticsReport) {
	if r == nil {
		return
	}
	j.ImagesAccepted = r.ImagesAccepted
	j.ImagesRejected = r.ImagesRejected
	j.ImagesFlagged = r.ImagesFlagged
	j.LinesRejected = r.LinesRejected
	j.Diagnostics = datatypes.NewJSONType(*r)
}

// AllModels lists every model managed by migrations
func AllModels() []any {
	return []any{&Dataset{}, &ImageRecord{}, &IngestionJob{}, &Job{}}
}
