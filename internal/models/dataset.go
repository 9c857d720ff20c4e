package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatasetStatus is the lifecycle state of a dataset
type DatasetStatus string

const (
	DatasetStatusPending    DatasetStatus = "pending"
	DatasetStatusProcessing DatasetStatus = "processing"
	DatasetStatusReady      DatasetStatus = "ready"
	DatasetStatusFailed     DatasetStatus = "failed"
)

// SplitInfo describes one dataset partition
type SplitInfo struct {
	Name       string `json:"name"`
	Prefix     string `json:"prefix"`
	ImageCount int    `json:"image_count"`
}

// Dataset is an imported YOLO dataset
type Dataset struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name   string        `gorm:"not null;size:255" json:"name"`
	Status DatasetStatus `gorm:"not null;size:20;index" json:"status"`

	// ClassNames is indexed by class id
	ClassNames datatypes.JSONSlice[string]    `json:"class_names"`
	Splits     datatypes.JSONSlice[SplitInfo] `json:"splits"`

	// Statistics
	ImageCount     int `json:"image_count"`
	ImagesRejected int `json:"images_rejected"`
	ImagesFlagged  int `json:"images_flagged"`

	// Source archive
	SourceKey string `gorm:"size:1024" json:"source_key"`
	Filename  string `gorm:"size:255" json:"filename"`

	// Failure summary, set while Status is failed
	Error     string `gorm:"type:text" json:"error,omitempty"`
	ErrorKind string `gorm:"size:50" json:"error_kind,omitempty"`

	// ActiveIngestionID holds the ingestion currently writing this dataset
	ActiveIngestionID *string    `gorm:"size:36;index" json:"-"`
	LastIngestionID   string     `gorm:"size:36" json:"last_ingestion_id,omitempty"`
	ReadyAt           *time.Time `json:"ready_at,omitempty"`
}

// TableName returns the table name for the Dataset model
func (Dataset) TableName() string {
	return "datasets"
}

// BeforeCreate hook to generate the ID
func (d *Dataset) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DatasetStatusPending
	}
	return nil
}

// IsReady reports whether the dataset can be queried
func (d *Dataset) IsReady() bool {
	return d.Status == DatasetStatusReady
}

// ClassName returns the name for a class id, or "Class <id>" when the id is
// outside the class table
func (d *Dataset) ClassName(id int) string {
	if id >= 0 && id < len(d.ClassNames) {
		return d.ClassNames[id]
	}
	return fmt.Sprintf("Class %d", id)
}
