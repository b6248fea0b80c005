// ABOUTME: Publishes a project's current document to S3-compatible object storage via minio-go.
// ABOUTME: Each project lands at sites/<id>/index.html; the bucket is created on first use.

package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	// ErrNotConfigured is returned when no storage endpoint is set.
	ErrNotConfigured = errors.New("publishing is not configured")
	// ErrEmptyDocument is returned when there is nothing to publish.
	ErrEmptyDocument = errors.New("nothing to publish")
	// ErrInvalidProject is returned for project IDs unsafe as object keys.
	ErrInvalidProject = errors.New("invalid project id")
)

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Config selects the storage endpoint and bucket.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// PublicURL overrides the base of returned URLs, e.g. a CDN in front
	// of the bucket.
	PublicURL string
}

// ObjectStore is the subset of *minio.Client the publisher uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Result describes a published site.
type Result struct {
	URL  string `json:"url"`
	Key  string `json:"key"`
	Size int64  `json:"size"`
	ETag string `json:"etag,omitempty"`
}

// Publisher uploads documents to one bucket.
type Publisher struct {
	store   ObjectStore
	bucket  string
	region  string
	baseURL string

	mu    sync.Mutex
	ready bool
}

// New builds a minio-backed publisher. An empty endpoint yields
// ErrNotConfigured so callers can leave publishing off.
func New(cfg Config) (*Publisher, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, ErrNotConfigured
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("publish access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("publish bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage client: %w", err)
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + endpoint + "/" + bucket
	}
	return NewWithStore(client, bucket, region, base), nil
}

// NewWithStore builds a publisher over any ObjectStore.
func NewWithStore(store ObjectStore, bucket, region, baseURL string) *Publisher {
	return &Publisher{store: store, bucket: bucket, region: region, baseURL: strings.TrimRight(baseURL, "/")}
}

// ensureBucket creates the bucket once. A failure is retried on the next call.
func (p *Publisher) ensureBucket(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		return nil
	}
	exists, err := p.store.BucketExists(ctx, p.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := p.store.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region}); err != nil {
			return err
		}
	}
	p.ready = true
	return nil
}

// Publish uploads doc as the project's index page and returns its URL.
func (p *Publisher) Publish(ctx context.Context, projectID, doc string) (Result, error) {
	if !projectIDPattern.MatchString(projectID) {
		return Result{}, ErrInvalidProject
	}
	if strings.TrimSpace(doc) == "" {
		return Result{}, ErrEmptyDocument
	}
	if err := p.ensureBucket(ctx); err != nil {
		return Result{}, fmt.Errorf("ensure bucket: %w", err)
	}

	key := ObjectKey(projectID)
	info, err := p.store.PutObject(ctx, p.bucket, key, strings.NewReader(doc), int64(len(doc)), minio.PutObjectOptions{
		ContentType:  "text/html; charset=utf-8",
		CacheControl: "no-cache",
	})
	if err != nil {
		return Result{}, fmt.Errorf("upload %s: %w", key, err)
	}
	return Result{URL: p.baseURL + "/" + key, Key: key, Size: int64(len(doc)), ETag: info.ETag}, nil
}

// ObjectKey is where a project's page is stored.
func ObjectKey(projectID string) string {
	return "sites/" + projectID + "/index.html"
}
