// Package storage keeps generated images in the object store.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
)

// ImageStore writes objects to one bucket and builds their public URLs.
type ImageStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewImageStore serves objects from publicBaseURL (e.g. a CDN in front of the bucket).
func NewImageStore(client *minio.Client, bucket, publicBaseURL string) *ImageStore {
	return &ImageStore{client: client, bucket: bucket, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (s *ImageStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return s.URL(key), nil
}

func (s *ImageStore) URL(key string) string {
	return s.baseURL + "/" + s.bucket + "/" + key
}
