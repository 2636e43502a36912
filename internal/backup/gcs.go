// Package backup ships state snapshots to a Google Cloud Storage bucket.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

type Uploader struct {
	bucket string
}

// NewUploader returns an uploader bound to the given bucket. An empty bucket
// name yields a disabled uploader; callers check Enabled before use.
func NewUploader(bucket string) *Uploader {
	return &Uploader{bucket: bucket}
}

func (u *Uploader) Enabled() bool {
	return u != nil && u.bucket != ""
}

// Upload writes the payload to the named object. Credentials come from the
// environment (GOOGLE_APPLICATION_CREDENTIALS or the metadata server).
func (u *Uploader) Upload(ctx context.Context, objectName string, payload []byte) error {
	if !u.Enabled() {
		return fmt.Errorf("backup uploader is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	writer := client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := io.Copy(writer, bytes.NewReader(payload)); err != nil {
		writer.Close()
		return fmt.Errorf("write object %s: %w", objectName, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize object %s: %w", objectName, err)
	}
	return nil
}
