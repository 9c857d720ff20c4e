package cleanup

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/killallgit/dataset-importer/internal/services/ingestion"
)

// JobPruner deletes finished queue jobs older than a retention period
type JobPruner interface {
	CleanupOldJobs(ctx context.Context, retention time.Duration) (int64, error)
}

// Option configures the cleanup service
type Option func(*Service)

// WithJobPruning also prunes finished queue jobs on every sweep. A zero
// retention keeps them forever.
func WithJobPruning(jobs JobPruner, retention time.Duration) Option {
	return func(s *Service) {
		s.jobs = jobs
		s.jobRetention = retention
	}
}

// Report counts what one sweep removed
type Report struct {
	ScratchDirs int
	Jobs        int64
}

// Service removes ingestion scratch directories left behind by crashed runs
// and, when configured, finished queue jobs past their retention
type Service struct {
	tempDir         string
	maxAge          time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	jobs            JobPruner
	jobRetention    time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a new cleanup service
func NewService(tempDir string, maxAge, cleanupInterval time.Duration, opts ...Option) *Service {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}
	s := &Service{
		tempDir:         tempDir,
		maxAge:          maxAge,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs an initial sweep and then sweeps periodically until Stop
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.Sweep(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				log.Println("[INFO] Cleanup service stopped")
				return
			}
		}
	}()

	log.Printf("[INFO] Cleanup service started (interval: %v, max age: %v)", s.cleanupInterval, s.maxAge)
}

// Stop stops the cleanup service and waits for a running sweep
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Sweep runs one cleanup pass: stale scratch directories first, then
// finished queue jobs when pruning is configured
func (s *Service) Sweep(ctx context.Context) Report {
	report := Report{ScratchDirs: s.sweepScratch()}

	if s.jobs != nil && s.jobRetention > 0 {
		deleted, err := s.jobs.CleanupOldJobs(ctx, s.jobRetention)
		if err != nil {
			log.Printf("[ERROR] Cleanup failed to prune finished jobs: %v", err)
		}
		report.Jobs = deleted
	}
	return report
}

// sweepScratch removes scratch directories older than the max age. Only
// direct children of the temp dir named with the ingestion scratch prefix
// are considered.
func (s *Service) sweepScratch() int {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[ERROR] Cleanup failed to read %s: %v", s.tempDir, err)
		}
		return 0
	}

	removed := 0
	cutoff := s.now().Add(-s.maxAge)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), ingestion.ScratchPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue // removed concurrently
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.tempDir, entry.Name())
		log.Printf("[DEBUG] Removing stale scratch directory: %s", path)
		if err := os.RemoveAll(path); err != nil {
			log.Printf("[WARN] Failed to remove scratch directory %s: %v", path, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Printf("[INFO] Cleanup removed %d stale scratch directories", removed)
	}
	return removed
}
