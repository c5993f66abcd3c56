// Package archive keeps a copy of every run report, and the log files it
// references, in an S3-compatible object store.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nnww-gis/gisops/internal/config"
	"github.com/nnww-gis/gisops/internal/run"
)

// Store is the object store surface the archiver needs.
type Store interface {
	EnsureBucket(ctx context.Context, bucket, region string) error
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

// MinioStore implements Store with minio-go.
type MinioStore struct {
	client *minio.Client
}

// NewMinioStore connects to the configured endpoint.
func NewMinioStore(cfg config.ArchiveConfig) (*MinioStore, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("archive endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioStore{client: client}, nil
}

func (s *MinioStore) EnsureBucket(ctx context.Context, bucket, region string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func (s *MinioStore) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          4,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Archiver uploads reports under a date-partitioned key layout.
type Archiver struct {
	store  Store
	bucket string
	region string
	prefix string
}

// New returns an Archiver writing to the configured bucket.
func New(store Store, cfg config.ArchiveConfig) *Archiver {
	return &Archiver{store: store, bucket: cfg.Bucket, region: cfg.Region, prefix: strings.Trim(cfg.Prefix, "/")}
}

// ReportKey returns the object key for a report:
// [prefix/]reports/<task>/<yyyy>/<mm>/<dd>/<run id>.txt.
func (a *Archiver) ReportKey(r *run.Report) string {
	return a.base(r) + ".txt"
}

func (a *Archiver) base(r *run.Report) string {
	key := fmt.Sprintf("reports/%s/%s/%s", Slug(r.Task), r.Started.Format("2006/01/02"), r.RunID)
	if a.prefix != "" {
		key = a.prefix + "/" + key
	}
	return key
}

// Upload stores the rendered report and each readable log file next to
// it. It returns the keys written.
func (a *Archiver) Upload(ctx context.Context, r *run.Report, logFiles []string) ([]string, error) {
	if err := a.store.EnsureBucket(ctx, a.bucket, a.region); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", a.bucket, err)
	}

	var keys []string
	key := a.ReportKey(r)
	if err := a.store.Put(ctx, a.bucket, key, []byte(r.Render()), "text/plain; charset=utf-8"); err != nil {
		return keys, fmt.Errorf("put %s: %w", key, err)
	}
	keys = append(keys, key)

	for _, path := range logFiles {
		data, err := os.ReadFile(path) //nolint:gosec // G304: log paths come from config
		if err != nil {
			continue
		}
		logKey := a.base(r) + "/" + filepath.Base(path)
		if err := a.store.Put(ctx, a.bucket, logKey, data, "text/plain; charset=utf-8"); err != nil {
			return keys, fmt.Errorf("put %s: %w", logKey, err)
		}
		keys = append(keys, logKey)
	}
	return keys, nil
}

// Slug turns a task name such as "gisops maintenance --versions" into a
// key segment like "gisops-maintenance-versions".
func Slug(task string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(task) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
