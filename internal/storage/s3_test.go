package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/killallgit/dataset-importer/pkg/config"
)

func newTestS3Store(t *testing.T) (*S3Store, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	store, err := NewS3Store(config.S3Storage{
		Endpoint:        "s3.example.test",
		Region:          "us-east-1",
		Bucket:          "datasets",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	}, WithTransport(transport))
	require.NoError(t, err)
	return store, transport
}

func TestS3Store_Stat(t *testing.T) {
	store, transport := newTestS3Store(t)
	transport.RegisterResponder(http.MethodHead, `=~/datasets/images/a\.jpg$`,
		func(req *http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(http.StatusOK, "")
			resp.Header.Set("Content-Length", "42")
			resp.Header.Set("Content-Type", "image/jpeg")
			resp.Header.Set("ETag", `"abc123"`)
			resp.Header.Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
			return resp, nil
		})

	info, err := store.Stat(context.Background(), "images/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(42), info.Size)
	assert.Equal(t, "image/jpeg", info.ContentType)
	assert.Equal(t, 2006, info.LastModified.Year())
}

func TestS3Store_StatNotFound(t *testing.T) {
	store, transport := newTestS3Store(t)
	transport.RegisterResponder(http.MethodHead, `=~/datasets/images/missing\.jpg$`,
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	_, err := store.Stat(context.Background(), "images/missing.jpg")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsTransient(err))
}

func TestS3Store_Presign(t *testing.T) {
	store, transport := newTestS3Store(t)

	link, err := store.PresignGet(context.Background(), "datasets/ds1/images/a.jpg", time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "s3.example.test", u.Host)
	assert.Equal(t, "/datasets/datasets/ds1/images/a.jpg", u.Path)
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))

	put, err := store.PresignPut(context.Background(), "uploads/x/ds.zip", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, put, "X-Amz-Expires=900")

	assert.Zero(t, transport.GetTotalCallCount(), "presigning is offline")
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(config.S3Storage{Endpoint: "s3.example.test"})
	assert.Error(t, err)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "not found", err: fmt.Errorf("%w: k", ErrNotFound), want: false},
		{name: "invalid key", err: ErrInvalidKey, want: false},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "network timeout", err: fmt.Errorf("get: %w", timeoutErr{}), want: true},
		{name: "server error", err: minio.ErrorResponse{StatusCode: 503, Code: "ServiceUnavailable"}, want: true},
		{name: "slow down", err: fmt.Errorf("put: %w", minio.ErrorResponse{StatusCode: 400, Code: "SlowDown"}), want: true},
		{name: "access denied", err: minio.ErrorResponse{StatusCode: 403, Code: "AccessDenied"}, want: false},
		{name: "connection reset", err: errors.New("read tcp: connection reset by peer"), want: true},
		{name: "other", err: errors.New("bad input"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
