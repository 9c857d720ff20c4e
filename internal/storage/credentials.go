package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/killallgit/dataset-importer/pkg/config"
)

// UploadTarget identifies the object a client is allowed to upload
type UploadTarget struct {
	ObjectKey string
	Filename  string
	Size      int64
}

// TemporaryCredentials are scoped, short-lived upload credentials. The JSON
// field names follow the STS response shape browser SDKs expect.
type TemporaryCredentials struct {
	AccessKeyID     string    `json:"AccessKeyId"`
	AccessKeySecret string    `json:"AccessKeySecret"`
	SecurityToken   string    `json:"SecurityToken"`
	Expiration      time.Time `json:"Expiration"`
}

// UploadGrant is everything a client needs to upload one archive
type UploadGrant struct {
	Credentials *TemporaryCredentials `json:"credentials,omitempty"`
	ObjectKey   string                `json:"objectKey"`
	Bucket      string                `json:"bucket,omitempty"`
	Region      string                `json:"region,omitempty"`
	Endpoint    string                `json:"endpoint,omitempty"`
	UploadURL   string                `json:"uploadUrl,omitempty"`
	ExpiresAt   time.Time             `json:"expiresAt"`
}

// CredentialIssuer issues upload grants for an explicit target
type CredentialIssuer interface {
	Issue(ctx context.Context, target UploadTarget) (*UploadGrant, error)
}

// STSIssuer obtains role credentials restricted to the target object through
// an STS AssumeRole call
type STSIssuer struct {
	cfg      config.STSConfig
	bucket   string
	region   string
	endpoint string
	client   *http.Client
	now      func() time.Time
}

// NewSTSIssuer creates an issuer for uploads into store's bucket. A nil
// client uses a default client with a 30s timeout.
func NewSTSIssuer(cfg config.STSConfig, store *S3Store, client *http.Client) (*STSIssuer, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("sts.endpoint is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("sts.access_key_id and sts.secret_access_key are required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Duration <= 0 {
		cfg.Duration = time.Hour
	}

	return &STSIssuer{
		cfg:      cfg,
		bucket:   store.Bucket(),
		region:   store.Region(),
		endpoint: store.Endpoint(),
		client:   client,
		now:      time.Now,
	}, nil
}

// Issue assumes the configured role with a session policy allowing only a
// put of target.ObjectKey
func (i *STSIssuer) Issue(ctx context.Context, target UploadTarget) (*UploadGrant, error) {
	policy, err := uploadPolicy(i.bucket, target.ObjectKey)
	if err != nil {
		return nil, err
	}

	provider := &credentials.STSAssumeRole{
		Client:      i.client,
		STSEndpoint: i.cfg.Endpoint,
		Options: credentials.STSAssumeRoleOptions{
			AccessKey:       i.cfg.AccessKeyID,
			SecretKey:       i.cfg.SecretAccessKey,
			Policy:          policy,
			Location:        i.region,
			RoleARN:         i.cfg.RoleARN,
			RoleSessionName: "upload-" + uuid.NewString()[:8],
			DurationSeconds: int(i.cfg.Duration.Seconds()),
		},
	}

	issuedAt := i.now()
	value, err := provider.Retrieve()
	if err != nil {
		return nil, fmt.Errorf("STS error: %w", err)
	}

	expires := issuedAt.Add(i.cfg.Duration).UTC()
	return &UploadGrant{
		Credentials: &TemporaryCredentials{
			AccessKeyID:     value.AccessKeyID,
			AccessKeySecret: value.SecretAccessKey,
			SecurityToken:   value.SessionToken,
			Expiration:      expires,
		},
		ObjectKey: target.ObjectKey,
		Bucket:    i.bucket,
		Region:    i.region,
		Endpoint:  i.endpoint,
		ExpiresAt: expires,
	}, nil
}

// PresignIssuer grants uploads through a presigned PUT URL, without
// credentials
type PresignIssuer struct {
	store ObjectStore
	ttl   time.Duration
	now   func() time.Time
}

// NewPresignIssuer creates an issuer backed by store.PresignPut
func NewPresignIssuer(store ObjectStore, ttl time.Duration) *PresignIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PresignIssuer{store: store, ttl: ttl, now: time.Now}
}

// Issue returns a signed upload URL for target.ObjectKey
func (p *PresignIssuer) Issue(ctx context.Context, target UploadTarget) (*UploadGrant, error) {
	expires := p.now().Add(p.ttl).UTC()
	u, err := p.store.PresignPut(ctx, target.ObjectKey, p.ttl)
	if err != nil {
		return nil, err
	}
	return &UploadGrant{
		ObjectKey: target.ObjectKey,
		UploadURL: u,
		ExpiresAt: expires,
	}, nil
}

// NewIssuer picks the STS issuer when STS is configured for an s3 store and
// falls back to presigned uploads otherwise
func NewIssuer(cfg config.STSConfig, store ObjectStore) (CredentialIssuer, error) {
	if s3, ok := store.(*S3Store); ok && cfg.Endpoint != "" && cfg.RoleARN != "" {
		return NewSTSIssuer(cfg, s3, nil)
	}
	return NewPresignIssuer(store, cfg.Duration), nil
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource []string `json:"Resource"`
}

func uploadPolicy(bucket, key string) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Effect: "Allow",
			Action: []string{
				"s3:PutObject",
				"s3:AbortMultipartUpload",
				"s3:ListMultipartUploadParts",
			},
			Resource: []string{fmt.Sprintf("arn:aws:s3:::%s/%s", bucket, key)},
		}},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode upload policy: %w", err)
	}
	return string(data), nil
}
