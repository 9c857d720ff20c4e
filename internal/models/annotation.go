package models

// Annotation is one bounding box in normalized YOLO coordinates
type Annotation struct {
	ClassID int `json:"class_id"`
	// BBox is x_center, y_center, width, height
	BBox [4]float64 `json:"bbox"`
}
