package models

import (
	"path"
	"time"

	"gorm.io/datatypes"
)

// ImageRecord is one image of a ready dataset
type ImageRecord struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	CreatedAt time.Time `json:"created_at"`

	DatasetID string `gorm:"not null;size:36;uniqueIndex:idx_dataset_images_path,priority:1" json:"dataset_id"`
	// Path relative to the dataset root
	Path      string `gorm:"not null;size:1024;uniqueIndex:idx_dataset_images_path,priority:2" json:"path"`
	Filename  string `gorm:"not null;size:255" json:"filename"`
	Split     string `gorm:"size:50;index" json:"split"`
	ObjectKey string `gorm:"size:1024" json:"object_key"`
	Size      int64  `json:"size"`

	// Dimensions are filled lazily when not known at ingestion time
	Width  *int `json:"width,omitempty"`
	Height *int `json:"height,omitempty"`

	Annotations   datatypes.JSONSlice[Annotation] `json:"annotations"`
	NoAnnotations bool                            `json:"no_annotations"`
	Flagged       bool                            `json:"flagged"`
}

// TableName returns the table name for the ImageRecord model
func (ImageRecord) TableName() string {
	return "dataset_images"
}

// ImageObjectKey returns the object key an image is stored under
func ImageObjectKey(datasetID, imagePath string) string {
	return path.Join("datasets", datasetID, "images", imagePath)
}

// HasDimensions reports whether width and height are known
func (r *ImageRecord) HasDimensions() bool {
	return r.Width != nil && r.Height != nil
}
