package storage

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ObjectRoutePrefix is the API path serving local signed links
const ObjectRoutePrefix = "/api/v1/objects/"

var (
	// ErrSignatureInvalid is returned for tampered or foreign signed links
	ErrSignatureInvalid = errors.New("invalid signature")
	// ErrSignatureExpired is returned for signed links past their expiry
	ErrSignatureExpired = errors.New("signature expired")
)

// LocalStore implements ObjectStore on the local filesystem
type LocalStore struct {
	basePath   string
	publicURL  string
	signingKey []byte
	now        func() time.Time
}

// NewLocalStore creates a filesystem store rooted at basePath. Signed links
// point at publicURL. An empty signingKey gets a random per-process key, so
// links do not survive a restart.
func NewLocalStore(basePath, signingKey, publicURL string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	key := []byte(signingKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		log.Printf("[WARN] storage.local.signing_key is empty, using an ephemeral key")
	}

	return &LocalStore{
		basePath:   absPath,
		publicURL:  strings.TrimRight(publicURL, "/"),
		signingKey: key,
		now:        time.Now,
	}, nil
}

// Path returns the filesystem path for a key
func (s *LocalStore) Path(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleaned)), nil
}

// Get opens an object for reading
func (s *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	p, err := s.Path(key)
	if err != nil {
		return nil, 0, err
	}

	file, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, 0, fmt.Errorf("failed to open object: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("failed to stat object: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return file, info.Size(), nil
}

// Put writes an object through a temporary file, so readers never observe a
// partial object
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	p, err := s.Path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create object file: %w", err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, readerWithContext(ctx, r))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("short write: wrote %d of %d bytes", written, size)
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}

	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit object %s: %w", key, err)
	}
	return nil
}

// Stat returns object metadata
func (s *LocalStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	p, err := s.Path(key)
	if err != nil {
		return ObjectInfo{}, err
	}

	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		if err == nil || os.IsNotExist(err) {
			return ObjectInfo{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return ObjectInfo{}, fmt.Errorf("failed to stat object: %w", err)
	}

	return ObjectInfo{
		Key:          key,
		Size:         info.Size(),
		ContentType:  mime.TypeByExtension(path.Ext(key)),
		LastModified: info.ModTime(),
	}, nil
}

// Delete removes an object and prunes empty parent directories
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.Path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	for dir := filepath.Dir(p); dir != s.basePath && strings.HasPrefix(dir, s.basePath); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// PresignGet returns a signed download link
func (s *LocalStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return s.presign("GET", key, ttl)
}

// PresignPut returns a signed upload link
func (s *LocalStore) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return s.presign("PUT", key, ttl)
}

func (s *LocalStore) presign(method, key string, ttl time.Duration) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}

	expires := strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	q := url.Values{}
	q.Set("expires", expires)
	q.Set("signature", s.sign(method, cleaned, expires))

	return s.publicURL + ObjectRoutePrefix + escapeKey(cleaned) + "?" + q.Encode(), nil
}

// Verify checks a signed link's method, key, expiry and signature
func (s *LocalStore) Verify(method, key, expires, signature string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}

	expected := s.sign(method, cleaned, expires)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}

	unix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	if s.now().Unix() > unix {
		return ErrSignatureExpired
	}
	return nil
}

func (s *LocalStore) sign(method, key, expires string) string {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write([]byte(method + "\n" + key + "\n" + expires))
	return hex.EncodeToString(mac.Sum(nil))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
