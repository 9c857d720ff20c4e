package uploads

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/killallgit/dataset-importer/internal/models"
	"github.com/killallgit/dataset-importer/internal/services/ingestion"
	"github.com/killallgit/dataset-importer/internal/storage"
	"github.com/killallgit/dataset-importer/pkg/config"
)

const maxFilenameLength = 200

// Options controls upload handoff
type Options struct {
	// Prefix is the key prefix all uploads are placed under
	Prefix string
	// MaxSize bounds the declared upload size, 0 disables the check
	MaxSize int64
}

// OptionsFromConfig builds Options from the STS configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Prefix:  cfg.STS.UploadPrefix,
		MaxSize: cfg.STS.MaxUploadSize,
	}
}

type service struct {
	issuer    storage.CredentialIssuer
	ingestion ingestion.Service
	prefix    string
	maxSize   int64
	newID     func() string
}

// NewService creates the upload handoff service
func NewService(issuer storage.CredentialIssuer, ingestionService ingestion.Service, opts Options) Service {
	prefix := strings.Trim(opts.Prefix, "/")
	if prefix == "" {
		prefix = "uploads"
	}
	return &service{
		issuer:    issuer,
		ingestion: ingestionService,
		prefix:    prefix,
		maxSize:   opts.MaxSize,
		newID:     uuid.NewString,
	}
}

// SanitizeFilename keeps the last path element of name and replaces
// characters that are unsafe in object keys
func SanitizeFilename(name string) (string, error) {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	clean := strings.TrimLeft(b.String(), ".")
	if clean == "" || strings.Trim(clean, "_") == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	if len(clean) > maxFilenameLength {
		clean = clean[len(clean)-maxFilenameLength:]
	}
	return clean, nil
}

// IsArchiveName reports whether name has an extension the importer accepts
func IsArchiveName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range []string{".zip", ".tar", ".tar.gz", ".tgz"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func (s *service) checkSize(size int64) error {
	if size < 0 || (s.maxSize > 0 && size > s.maxSize) {
		return fmt.Errorf("%w: %d bytes", ErrInvalidSize, size)
	}
	return nil
}

// underPrefix cleans key and checks it names an object below the upload prefix
func (s *service) underPrefix(key string) (string, error) {
	cleaned, err := storage.CleanKey(key)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(cleaned, s.prefix+"/") {
		return "", fmt.Errorf("%w: %q", ErrOutsidePrefix, key)
	}
	return cleaned, nil
}

// RequestCredentials allocates uploads/<uuid>/<filename> and issues credentials for it
func (s *service) RequestCredentials(ctx context.Context, req CredentialRequest) (*storage.UploadGrant, error) {
	filename, err := SanitizeFilename(req.Filename)
	if err != nil {
		return nil, err
	}
	if err := s.checkSize(req.Size); err != nil {
		return nil, err
	}

	key := path.Join(s.prefix, s.newID(), filename)
	grant, err := s.issuer.Issue(ctx, storage.UploadTarget{
		ObjectKey: key,
		Filename:  filename,
		Size:      req.Size,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue upload credentials: %w", err)
	}

	log.Printf("[INFO] Issued upload credentials for %s (%d bytes)", key, req.Size)
	return grant, nil
}

// RefreshCredentials re-issues credentials for the upload target in req
func (s *service) RefreshCredentials(ctx context.Context, req RefreshRequest) (*storage.UploadGrant, error) {
	key, err := s.underPrefix(req.ObjectKey)
	if err != nil {
		return nil, err
	}
	if err := s.checkSize(req.Size); err != nil {
		return nil, err
	}

	filename := req.Filename
	if filename == "" {
		filename = path.Base(key)
	}

	grant, err := s.issuer.Issue(ctx, storage.UploadTarget{
		ObjectKey: key,
		Filename:  filename,
		Size:      req.Size,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to refresh upload credentials: %w", err)
	}

	log.Printf("[DEBUG] Refreshed upload credentials for %s", key)
	return grant, nil
}

// Complete triggers ingestion of an uploaded archive
func (s *service) Complete(ctx context.Context, req CompleteRequest) (*models.IngestionJob, error) {
	key, err := s.underPrefix(req.ObjectKey)
	if err != nil {
		return nil, err
	}
	return s.ingestion.Trigger(ctx, ingestion.UploadCompletion{
		ObjectKey: key,
		Filename:  req.Filename,
		Source:    "api",
	})
}

// HandleObjectCreated triggers ingestion for every archive in an event notification
func (s *service) HandleObjectCreated(ctx context.Context, payload []byte) ([]EventResult, error) {
	events, err := ParseObjectEvents(payload)
	if err != nil {
		return nil, err
	}

	results := make([]EventResult, 0, len(events))
	for _, ev := range events {
		result := EventResult{ObjectKey: ev.Key}

		key, err := s.underPrefix(ev.Key)
		switch {
		case err != nil:
			result.Skipped = "outside upload prefix"
		case !ev.Created():
			result.Skipped = "not an object-created event"
		case !IsArchiveName(key):
			result.Skipped = "not an archive"
		}
		if result.Skipped != "" {
			results = append(results, result)
			continue
		}

		ing, err := s.ingestion.Trigger(ctx, ingestion.UploadCompletion{
			ObjectKey: key,
			Filename:  path.Base(key),
			Source:    ev.Source + "-event",
		})
		if err != nil {
			log.Printf("[ERROR] Failed to trigger ingestion for %s: %v", key, err)
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		result.Triggered = true
		result.DatasetID = ing.DatasetID
		result.IngestionID = ing.ID
		results = append(results, result)
	}
	return results, nil
}
