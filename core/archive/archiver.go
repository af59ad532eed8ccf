package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// Archiver stores produced change documents for audit purposes.
type Archiver struct {
	client Client
	cfg    Config
	log    *zap.Logger
}

// NewArchiver creates an Archiver writing to the configured bucket.
func NewArchiver(client Client, cfg Config, log *zap.Logger) *Archiver {
	return &Archiver{client: client, cfg: cfg, log: log}
}

// Store uploads a change document under the given object name, creating
// the bucket on first use.
func (a *Archiver) Store(ctx context.Context, name string, payload []byte) error {
	exists, err := a.client.BucketExists(ctx, a.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %q: %w", a.cfg.Bucket, err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.cfg.Bucket, minio.MakeBucketOptions{Region: a.cfg.Region}); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", a.cfg.Bucket, err)
		}
	}

	_, err = a.client.PutObject(ctx, a.cfg.Bucket, name,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/xml"},
	)
	if err != nil {
		return fmt.Errorf("failed to archive %q: %w", name, err)
	}

	a.log.Info("change document archived",
		zap.String("bucket", a.cfg.Bucket),
		zap.String("object", name),
	)
	return nil
}
