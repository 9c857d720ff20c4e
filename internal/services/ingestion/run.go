package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/killallgit/dataset-importer/internal/database"
	"github.com/killallgit/dataset-importer/internal/models"
	"github.com/killallgit/dataset-importer/internal/storage"
	"github.com/killallgit/dataset-importer/pkg/retry"
	"github.com/killallgit/dataset-importer/pkg/yolo"
)

// ScratchPrefix starts the name of every ingestion scratch directory
const ScratchPrefix = "ingest-"

// run is one execution of an ingestion
type run struct {
	svc      *service
	ing      *models.IngestionJob
	progress ProgressFunc
	report   *yolo.DiagnosticsReport

	started    time.Time
	stageStart time.Time

	mu           sync.Mutex
	lastProgress int
}

func (r *run) fail(ctx context.Context, err error) error {
	return r.svc.failIngestion(ctx, r.ing, err, r.report, r.started)
}

// advance moves the ingestion to the next stage
func (r *run) advance(ctx context.Context, to models.IngestionStage) error {
	from := r.ing.Stage
	if !models.CanTransition(from, to) {
		return fmt.Errorf("invalid stage transition %s -> %s", from, to)
	}

	updates := map[string]interface{}{
		"stage":    to,
		"progress": to.Progress(),
	}
	now := time.Now()
	if to == models.StageExtracting {
		updates["started_at"] = &now
		r.ing.StartedAt = &now
	}
	if err := r.svc.repo.UpdateIngestion(ctx, r.ing.ID, updates); err != nil {
		return err
	}

	if from != models.StageReceived {
		r.svc.metrics.StageCompleted(string(from), now.Sub(r.stageStart))
	}
	r.stageStart = now
	r.ing.Stage = to
	r.setProgress(to.Progress())

	log.Printf("[DEBUG] Ingestion %s: %s -> %s", r.ing.ID, from, to)
	return nil
}

// setProgress forwards increasing percentages to the progress callback
func (r *run) setProgress(percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if percent <= r.lastProgress && percent != 0 {
		return
	}
	r.lastProgress = percent
	r.ing.Progress = percent
	r.progress(percent)
}

func (r *run) execute(ctx context.Context) error {
	if err := r.advance(ctx, models.StageExtracting); err != nil {
		return err
	}

	workDir, err := r.svc.scratchDir(r.ing.ID)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Printf("[WARN] Failed to remove scratch directory %s: %v", workDir, err)
		}
	}()

	archive, entries, err := r.extract(ctx, workDir)
	if err != nil {
		return err
	}
	defer archive.Close()

	if err := r.advance(ctx, models.StageParsing); err != nil {
		return err
	}
	result, err := yolo.Parse(ctx, entries, r.svc.opts.Normalize)
	if err != nil {
		return err
	}
	r.report = result.Diagnostics
	r.ing.ApplyReport(result.Diagnostics)

	if err := r.advance(ctx, models.StagePersisting); err != nil {
		return err
	}
	records, err := r.buildRecords(ctx, result.Dataset)
	if err != nil {
		return err
	}

	splits := make([]models.SplitInfo, len(result.Dataset.Splits))
	for i, split := range result.Dataset.Splits {
		splits[i] = models.SplitInfo{Name: split.Name, Prefix: split.Prefix, ImageCount: split.ImageCount}
	}
	commit := &Commit{
		Ingestion:  r.ing,
		ClassNames: result.Dataset.ClassNames,
		Splits:     splits,
		Images:     records,
	}
	if err := r.commit(ctx, commit); err != nil {
		return err
	}

	r.svc.metrics.StageCompleted(string(models.StagePersisting), time.Since(r.stageStart))
	r.setProgress(100)
	return nil
}

func (s *service) scratchDir(ingestionID string) (string, error) {
	base := s.opts.TempDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("creating scratch root: %w", err)
	}
	prefix := ingestionID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	dir, err := os.MkdirTemp(base, ScratchPrefix+prefix+"-")
	if err != nil {
		return "", fmt.Errorf("creating scratch directory: %w", err)
	}
	return dir, nil
}

// storePolicy retries transient object store failures only
func (s *service) storePolicy(name string) retry.Policy {
	p := s.opts.StoreRetry
	p.Name = name
	p.Retryable = func(err error) bool {
		return retry.IsRetryable(err) && storage.IsTransient(err)
	}
	return p
}

// metadataPolicy retries transient metadata store failures only. A lost
// dataset lock is final.
func (s *service) metadataPolicy(name string) retry.Policy {
	p := s.opts.StoreRetry
	p.Name = name
	p.Retryable = func(err error) bool {
		return !errors.Is(err, errLockLost) && retry.IsRetryable(err) && database.IsTransient(err)
	}
	return p
}

// commit writes the dataset in one transaction, retrying lock contention
func (r *run) commit(ctx context.Context, c *Commit) error {
	err := retry.Do(ctx, r.svc.metadataPolicy("commit dataset "+r.ing.DatasetID), func(ctx context.Context) error {
		// ids assigned by a rolled back insert must not leak into the next attempt
		for i := range c.Images {
			c.Images[i].ID = 0
		}
		return r.svc.repo.CommitDataset(ctx, c)
	})
	if err != nil && database.IsTransient(err) {
		return &metadataError{op: "commit", err: err}
	}
	return err
}

// extract downloads the source archive into workDir and lists its entries
func (r *run) extract(ctx context.Context, workDir string) (yolo.Archive, []yolo.Entry, error) {
	key := r.ing.ObjectKey

	var info storage.ObjectInfo
	err := retry.Do(ctx, r.svc.storePolicy("stat "+key), func(ctx context.Context) error {
		start := time.Now()
		var err error
		info, err = r.svc.store.Stat(ctx, key)
		r.svc.metrics.RecordStoreOperation("stat", err, time.Since(start))
		return err
	})
	if err != nil {
		return nil, nil, &storeError{op: "stat", key: key, err: err}
	}

	if err := r.svc.checkFreeSpace(workDir, info.Size); err != nil {
		return nil, nil, err
	}

	archivePath := filepath.Join(workDir, "source"+archiveSuffix(key))
	err = retry.Do(ctx, r.svc.storePolicy("download "+key), func(ctx context.Context) error {
		return r.svc.download(ctx, key, archivePath)
	})
	if err != nil {
		return nil, nil, &storeError{op: "get", key: key, err: err}
	}
	r.setProgress(20)

	archive, err := yolo.OpenArchive(archivePath, workDir)
	if err != nil {
		return nil, nil, err
	}
	entries, err := yolo.Collect(archive)
	if err != nil {
		archive.Close()
		return nil, nil, err
	}
	log.Printf("[DEBUG] Ingestion %s: %s archive with %d entries", r.ing.ID, archive.Format(), len(entries))
	return archive, entries, nil
}

func archiveSuffix(key string) string {
	lower := strings.ToLower(key)
	for _, suffix := range []string{".tar.gz", ".tgz", ".tar", ".zip"} {
		if strings.HasSuffix(lower, suffix) {
			return suffix
		}
	}
	return ""
}

func (s *service) checkFreeSpace(dir string, size int64) error {
	if s.opts.MinFreeRatio <= 0 || size <= 0 || s.freeSpace == nil {
		return nil
	}
	free, err := s.freeSpace(dir)
	if err != nil {
		log.Printf("[WARN] Could not read free space of %s: %v", dir, err)
		return nil
	}
	required := uint64(float64(size) * s.opts.MinFreeRatio)
	if free < required {
		return &InsufficientSpaceError{Path: dir, Required: required, Available: free}
	}
	return nil
}

// download copies one object into dest, replacing any partial attempt
func (s *service) download(ctx context.Context, key, dest string) error {
	start := time.Now()
	err := func() error {
		rc, size, err := s.store.Get(ctx, key)
		if err != nil {
			return err
		}
		defer rc.Close()

		f, err := os.Create(dest)
		if err != nil {
			return retry.Permanent(err)
		}
		n, err := io.Copy(f, rc)
		if closeErr := f.Close(); err == nil && closeErr != nil {
			return retry.Permanent(closeErr)
		}
		if err != nil {
			return err
		}
		if size >= 0 && n != size {
			return fmt.Errorf("read %d of %d bytes: %w", n, size, io.ErrUnexpectedEOF)
		}
		return nil
	}()
	s.metrics.RecordStoreOperation("get", err, time.Since(start))
	return err
}

// buildRecords converts normalized images into rows, uploading each image
// under the dataset's prefix when enabled
func (r *run) buildRecords(ctx context.Context, dataset *yolo.Dataset) ([]models.ImageRecord, error) {
	records := make([]models.ImageRecord, len(dataset.Images))
	total := len(dataset.Images)
	var (
		doneMu sync.Mutex
		done   int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.svc.opts.UploadWorkers)
	for i := range dataset.Images {
		img := &dataset.Images[i]
		rec := &records[i]
		*rec = newImageRecord(r.ing.DatasetID, img)

		g.Go(func() error {
			if err := r.storeImage(gctx, rec, img); err != nil {
				return err
			}
			doneMu.Lock()
			done++
			percent := models.StagePersisting.Progress() + (99-models.StagePersisting.Progress())*done/total
			doneMu.Unlock()
			r.setProgress(percent)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func newImageRecord(datasetID string, img *yolo.Image) models.ImageRecord {
	annotations := make(datatypes.JSONSlice[models.Annotation], len(img.Annotations))
	for i, a := range img.Annotations {
		annotations[i] = models.Annotation{ClassID: a.ClassID, BBox: a.BBox}
	}
	return models.ImageRecord{
		DatasetID:     datasetID,
		Path:          img.Path,
		Filename:      img.Filename(),
		Split:         img.Split,
		ObjectKey:     models.ImageObjectKey(datasetID, img.Path),
		Size:          img.Entry.Size,
		Annotations:   annotations,
		NoAnnotations: img.NoAnnotations,
		Flagged:       img.Flagged,
	}
}

// storeImage fills the record's dimensions and uploads the image bytes
func (r *run) storeImage(ctx context.Context, rec *models.ImageRecord, img *yolo.Image) error {
	if !r.svc.opts.UploadImages {
		return readDimensions(rec, img.Entry)
	}

	contentType := yolo.ContentType(img.Entry.Ext())
	err := retry.Do(ctx, r.svc.storePolicy("upload "+rec.ObjectKey), func(ctx context.Context) error {
		rc, err := img.Entry.Open()
		if err != nil {
			return retry.Permanent(err)
		}
		defer rc.Close()

		width, height, ok, replay, err := yolo.PeekDimensions(rc)
		if err != nil {
			return retry.Permanent(err)
		}
		if ok {
			rec.Width, rec.Height = &width, &height
		}

		start := time.Now()
		err = r.svc.store.Put(ctx, rec.ObjectKey, replay, img.Entry.Size, contentType)
		r.svc.metrics.RecordStoreOperation("put", err, time.Since(start))
		return err
	})
	if err != nil {
		if _, ok := yolo.KindOf(err); ok {
			return err
		}
		return &storeError{op: "put", key: rec.ObjectKey, err: err}
	}
	return nil
}

func readDimensions(rec *models.ImageRecord, entry yolo.Entry) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	width, height, ok, _, err := yolo.PeekDimensions(rc)
	if err != nil {
		return err
	}
	if ok {
		rec.Width, rec.Height = &width, &height
	}
	return nil
}
