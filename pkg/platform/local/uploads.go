package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chatterly/pkg/logger"
)

// UploadFile writes data under UploadDir/path and returns its public URL.
// Paths are caller-generated and collision-resistant; a path escaping the
// bucket is rejected.
func (l *Local) UploadFile(ctx context.Context, path string, data []byte) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("upload: invalid path %q", path)
	}
	dst := filepath.Join(l.opts.UploadDir, clean)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("upload: %w", err)
	}
	if err := os.Rename(name, dst); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("upload: %w", err)
	}
	logger.Info("file_uploaded", "path", clean, "bytes", len(data))
	return l.opts.PublicBaseURL + "/files/" + filepath.ToSlash(clean), nil
}

// UploadDir returns the disk bucket root, for the API's file server and
// the retention sweep.
func (l *Local) UploadDir() string {
	return l.opts.UploadDir
}
