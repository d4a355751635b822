package rawstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCS archives payloads to a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS wraps an existing storage client. Credentials come from
// Application Default Credentials.
func NewGCS(client *storage.Client, bucket string) (*GCS, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// Archive uploads the payload and returns its gs:// URI.
func (s *GCS) Archive(ctx context.Context, runID, opportunityID string, payload []byte) (string, error) {
	path := objectPath(runID, opportunityID)
	writer := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := io.Copy(writer, bytes.NewReader(payload)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("write raw payload: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write raw payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}
