// Package recordings archives provider-hosted call recordings into object
// storage. Provider URLs expire; archived copies do not.
package recordings

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

const downloadTimeout = 60 * time.Second

// Storage copies recordings into a MinIO bucket.
type Storage struct {
	client *minio.Client
	bucket string
	http   *http.Client
}

// NewStorage creates the archive over an existing MinIO client.
func NewStorage(client *minio.Client, bucket string) *Storage {
	return &Storage{
		client: client,
		bucket: bucket,
		http:   &http.Client{Timeout: downloadTimeout},
	}
}

// EnsureBucket creates the recordings bucket if it does not exist.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check recordings bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create recordings bucket: %w", err)
	}
	return nil
}

// Archive downloads the provider recording and stores it under the call
// record id. Returns the object path for persistence on the CallRecord.
func (s *Storage) Archive(ctx context.Context, callRecordID uuid.UUID, recordingURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return "", fmt.Errorf("build recording request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download recording: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/wav"
	}

	objectName := fmt.Sprintf("calls/%s/recording.wav", callRecordID)
	_, err = s.client.PutObject(ctx, s.bucket, objectName, resp.Body, resp.ContentLength,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("store recording: %w", err)
	}

	return objectName, nil
}
