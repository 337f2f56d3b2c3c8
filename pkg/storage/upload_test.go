package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateImage(t *testing.T) {
	cases := []struct {
		name        string
		filename    string
		contentType string
		size        int64
		ok          bool
	}{
		{"jpeg by content type", "cover.jpg", "image/jpeg", 1024, true},
		{"png by content type", "cover", "image/png", 1024, true},
		{"webp by content type", "cover", "image/webp", 1024, true},
		{"content type with params", "cover", "image/png; charset=binary", 1024, true},
		{"fallback to extension", "cover.png", "application/octet-stream", 1024, true},
		{"extension fallback webp", "photo.webp", "", 1024, true},
		{"gif rejected", "anim.gif", "image/gif", 1024, false},
		{"pdf rejected", "doc.pdf", "application/pdf", 1024, false},
		{"no type at all", "mystery", "", 1024, false},
		{"empty file", "cover.jpg", "image/jpeg", 0, false},
		{"over 5MB", "cover.jpg", "image/jpeg", MaxImageBytes + 1, false},
		{"exactly 5MB", "cover.jpg", "image/jpeg", MaxImageBytes, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateImage(tc.filename, tc.contentType, tc.size)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				var ue *UploadError
				if !errors.As(err, &ue) {
					t.Fatalf("want UploadError, got %v", err)
				}
			}
		})
	}
}

func TestDiskImageStoreSave(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskImageStore(dir, "/uploads")
	if err != nil {
		t.Fatalf("NewDiskImageStore: %v", err)
	}
	content := "fake jpeg bytes"
	url, err := s.SaveImage(context.Background(), "cover.jpg", "image/jpeg",
		strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	if !strings.HasPrefix(url, "/uploads/upload-") || !strings.HasSuffix(url, ".jpg") {
		t.Fatalf("url %q", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, filepath.Base(url)))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != content {
		t.Fatalf("stored %q", data)
	}
}

func TestDiskImageStoreRejectsBeforeWriting(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskImageStore(dir, "")
	if err != nil {
		t.Fatalf("NewDiskImageStore: %v", err)
	}
	if _, err := s.SaveImage(context.Background(), "doc.pdf", "application/pdf",
		strings.NewReader("%PDF"), 4); err == nil {
		t.Fatal("pdf accepted")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected upload left files behind: %v", entries)
	}
}

func TestDiskImageStoreUniqueNames(t *testing.T) {
	s, err := NewDiskImageStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("NewDiskImageStore: %v", err)
	}
	first, err := s.SaveImage(context.Background(), "same.png", "image/png", strings.NewReader("a"), 1)
	if err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	second, err := s.SaveImage(context.Background(), "same.png", "image/png", strings.NewReader("b"), 1)
	if err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	if first == second {
		t.Fatalf("same url for two uploads: %q", first)
	}
}
