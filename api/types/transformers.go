package types

import (
	"github.com/killallgit/dataset-importer/internal/models"
	"github.com/killallgit/dataset-importer/internal/services/datasets"
)

// Every response identifies a dataset by "id". Older clients read "_id" from
// the document store; that field is never emitted.

// FromDatasetSummaries transforms service summaries to the listing shape
func FromDatasetSummaries(summaries []datasets.DatasetSummary) []DatasetSummary {
	result := make([]DatasetSummary, 0, len(summaries))
	for _, s := range summaries {
		result = append(result, DatasetSummary{
			ID:         s.ID,
			Name:       s.Name,
			Status:     string(s.Status),
			ImageCount: s.ImageCount,
		})
	}
	return result
}

// FromDataset transforms a dataset model to its detail view
func FromDataset(d *models.Dataset) *DatasetDetail {
	if d == nil {
		return nil
	}

	splits := make([]SplitSummary, 0, len(d.Splits))
	for _, s := range d.Splits {
		splits = append(splits, SplitSummary{
			Name:       s.Name,
			Prefix:     s.Prefix,
			ImageCount: s.ImageCount,
		})
	}

	classNames := []string(d.ClassNames)
	if classNames == nil {
		classNames = []string{}
	}

	return &DatasetDetail{
		ID:              d.ID,
		Name:            d.Name,
		Status:          string(d.Status),
		ClassNames:      classNames,
		Splits:          splits,
		ImageCount:      d.ImageCount,
		ImagesRejected:  d.ImagesRejected,
		ImagesFlagged:   d.ImagesFlagged,
		Filename:        d.Filename,
		Error:           d.Error,
		ErrorKind:       d.ErrorKind,
		Ingesting:       d.ActiveIngestionID != nil,
		LastIngestionID: d.LastIngestionID,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		ReadyAt:         d.ReadyAt,
	}
}

// FromImagePage transforms a page of image records
func FromImagePage(page *datasets.ImagePage) *ImagePageResponse {
	images := make([]ImageSummary, 0, len(page.Images))
	for _, img := range page.Images {
		annotations := make([]ImageAnnotation, 0, len(img.Annotations))
		for _, a := range img.Annotations {
			annotations = append(annotations, ImageAnnotation{ClassID: a.ClassID, BBox: a.BBox})
		}
		images = append(images, ImageSummary{
			Filename:      img.Filename,
			Path:          img.Path,
			Split:         img.Split,
			ObjectKey:     img.ObjectKey,
			Width:         img.Width,
			Height:        img.Height,
			Annotations:   annotations,
			NoAnnotations: img.NoAnnotations,
			Flagged:       img.Flagged,
		})
	}
	return &ImagePageResponse{
		Images: images,
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
}

// FromSignedImages transforms the signed listing
func FromSignedImages(images []datasets.SignedImage) []SignedImage {
	result := make([]SignedImage, 0, len(images))
	for _, img := range images {
		annotations := make([]ImageAnnotation, 0, len(img.Annotations))
		for _, a := range img.Annotations {
			annotations = append(annotations, ImageAnnotation{
				ClassID:   a.ClassID,
				ClassName: a.ClassName,
				BBox:      a.BBox,
			})
		}
		result = append(result, SignedImage{
			Filename:      img.Filename,
			Path:          img.Path,
			Split:         img.Split,
			Annotations:   annotations,
			SignedURL:     img.SignedURL,
			Width:         img.Width,
			Height:        img.Height,
			NoAnnotations: img.NoAnnotations,
		})
	}
	return result
}

// FromIngestion transforms an ingestion model to its detail view
func FromIngestion(ing *models.IngestionJob) *IngestionDetail {
	if ing == nil {
		return nil
	}

	detail := &IngestionDetail{
		ID:             ing.ID,
		DatasetID:      ing.DatasetID,
		ObjectKey:      ing.ObjectKey,
		Filename:       ing.Filename,
		Stage:          string(ing.Stage),
		Progress:       ing.Progress,
		ErrorKind:      ing.ErrorKind,
		Error:          ing.Error,
		Retryable:      ing.Retryable,
		ImagesAccepted: ing.ImagesAccepted,
		ImagesRejected: ing.ImagesRejected,
		ImagesFlagged:  ing.ImagesFlagged,
		LinesRejected:  ing.LinesRejected,
		CreatedAt:      ing.CreatedAt,
		StartedAt:      ing.StartedAt,
		FinishedAt:     ing.FinishedAt,
	}

	report := ing.Diagnostics.Data()
	if report.ImagesTotal > 0 || len(report.Samples) > 0 || len(report.Counts) > 0 {
		detail.Diagnostics = &report
	}
	return detail
}

// FromIngestions transforms an ingestion history
func FromIngestions(ings []*models.IngestionJob) *IngestionListResponse {
	result := make([]IngestionDetail, 0, len(ings))
	for _, ing := range ings {
		result = append(result, *FromIngestion(ing))
	}
	return &IngestionListResponse{Ingestions: result, Count: len(result)}
}
