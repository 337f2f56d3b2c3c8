package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DiskImageStore saves thumbnails under a base directory and serves them
// from a public URL prefix (e.g. /uploads).
type DiskImageStore struct {
	basePath  string
	publicURL string
}

// NewDiskImageStore creates the base directory if missing.
func NewDiskImageStore(basePath, publicURL string) (*DiskImageStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("uploads base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	if publicURL == "" {
		publicURL = "/uploads"
	}
	return &DiskImageStore{basePath: basePath, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// SaveImage validates and writes the image under a unique name.
func (d *DiskImageStore) SaveImage(_ context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	if err := ValidateImage(filename, contentType, size); err != nil {
		return "", err
	}
	name := "upload-" + uuid.NewString() + imageExt(filename, contentType)
	target := filepath.Join(d.basePath, name)

	out, err := os.Create(target)
	if err != nil {
		return "", &UploadError{Reason: "create file", Err: err}
	}
	defer out.Close()
	if _, err := io.Copy(out, io.LimitReader(r, MaxImageBytes)); err != nil {
		os.Remove(target)
		return "", &UploadError{Reason: "write file", Err: err}
	}
	return path.Join(d.publicURL, name), nil
}
