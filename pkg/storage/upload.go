// Package storage stores uploaded book thumbnails and hands back public
// URLs. Validation happens before any byte is written, so a rejected
// upload never leaves partial state behind.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
)

// MaxImageBytes caps thumbnail uploads at 5MB.
const MaxImageBytes = 5 * 1024 * 1024

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// UploadError reports a rejected or failed image upload. It always aborts
// the enclosing create/update before any record write.
type UploadError struct {
	Reason string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload: %s: %v", e.Reason, e.Err)
	}
	return "upload: " + e.Reason
}

func (e *UploadError) Unwrap() error { return e.Err }

// ImageStore saves a validated image and returns its public URL.
type ImageStore interface {
	SaveImage(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error)
}

// ValidateImage checks size and type limits. The declared content type is
// authoritative; when it is missing or unknown, the MIME derived from the
// file extension is accepted as fallback.
func ValidateImage(filename, contentType string, size int64) error {
	if size <= 0 {
		return &UploadError{Reason: "empty file"}
	}
	if size > MaxImageBytes {
		return &UploadError{Reason: "file size exceeds the 5MB limit"}
	}
	declared := normalizeMime(contentType)
	if _, ok := allowedImageTypes[declared]; ok {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(filename))
	derived := normalizeMime(mime.TypeByExtension(ext))
	if _, ok := allowedImageTypes[derived]; ok {
		return nil
	}
	return &UploadError{Reason: fmt.Sprintf("unsupported file type %q, only JPEG, PNG and WebP are allowed", contentType)}
}

func normalizeMime(raw string) string {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return mediaType
}

// imageExt picks a canonical extension for the stored object.
func imageExt(filename, contentType string) string {
	if ext, ok := allowedImageTypes[normalizeMime(contentType)]; ok {
		return ext
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" {
		return ext
	}
	return ".img"
}
