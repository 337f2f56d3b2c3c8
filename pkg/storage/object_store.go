package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioImageStore implements ImageStore for MinIO/S3 compatible storage.
type MinioImageStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinioImageStore connects to MinIO and ensures the bucket exists.
// publicURL is the externally reachable prefix under which the bucket is
// served (e.g. https://cdn.example.com/bookshop).
func NewMinioImageStore(endpoint, accessKey, secretKey, bucket, publicURL string, useSSL bool) (*MinioImageStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	if publicURL == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, endpoint, bucket)
	}
	return &MinioImageStore{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// SaveImage validates and uploads the image, returning its public URL.
func (m *MinioImageStore) SaveImage(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	if err := ValidateImage(filename, contentType, size); err != nil {
		return "", err
	}
	key := "thumbnails/upload-" + uuid.NewString() + imageExt(filename, contentType)
	if _, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", &UploadError{Reason: "put object", Err: err}
	}
	return m.publicURL + "/" + key, nil
}
