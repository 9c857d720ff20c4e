package types

// CredentialsRequest asks for a new upload target
type CredentialsRequest struct {
	Filename string `json:"filename" binding:"required" example:"coco128.zip"`
	Size     int64  `json:"size" example:"7340032"`
}

// RefreshCredentialsRequest names the upload target to re-issue credentials for
type RefreshCredentialsRequest struct {
	ObjectKey string `json:"objectKey" binding:"required" example:"uploads/0b4cbd2e-5d1c-4b8f-9a53-8e1f6d2a7c10/coco128.zip"`
	Filename  string `json:"filename,omitempty" example:"coco128.zip"`
	Size      int64  `json:"size,omitempty" example:"7340032"`
}

// CompleteUploadRequest signals that an archive finished uploading
type CompleteUploadRequest struct {
	ObjectKey string `json:"objectKey" binding:"required" example:"uploads/0b4cbd2e-5d1c-4b8f-9a53-8e1f6d2a7c10/coco128.zip"`
	Filename  string `json:"filename,omitempty" example:"coco128.zip"`
}
