package storage

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/streamtube/user-api/pkg/config"
)

// MediaStorage persists uploaded images on disk under a base directory and
// maps stored files to public URLs.
type MediaStorage struct {
	baseDir       string
	tempDir       string
	publicBaseURL string
	maxFileSize   int64
	allowedMIMEs  map[string]struct{}
}

// NewMediaStorage ensures the storage directories exist and returns a handle.
func NewMediaStorage(cfg config.MediaConfig) (*MediaStorage, error) {
	baseDir := cfg.StorageDir
	if baseDir == "" {
		baseDir = "./media"
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(baseDir, "tmp")
	}
	for _, dir := range []string{baseDir, tempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create media directory: %w", err)
		}
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mime := range cfg.AllowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(mime))] = struct{}{}
	}

	return &MediaStorage{
		baseDir:       baseDir,
		tempDir:       tempDir,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxFileSize:   cfg.MaxFileSizeBytes,
		allowedMIMEs:  allowed,
	}, nil
}

// TempPath returns a unique destination inside the temp directory preserving
// the original file extension. Handlers park multipart uploads here before
// calling Upload.
func (s *MediaStorage) TempPath(originalName string) string {
	return filepath.Join(s.tempDir, uuid.NewString()+strings.ToLower(filepath.Ext(originalName)))
}

// Upload validates the parked local file, moves it into the destination
// folder under the base directory and returns its public URL.
func (s *MediaStorage) Upload(localPath string, destDir string) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("stat upload: %w", err)
	}
	if s.maxFileSize > 0 && info.Size() > s.maxFileSize {
		return "", fmt.Errorf("upload exceeds %d bytes", s.maxFileSize)
	}

	if err := s.checkMIME(localPath); err != nil {
		return "", err
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(localPath))
	relPath := filepath.Join(destDir, name)
	target := filepath.Join(s.baseDir, relPath)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("prepare media directory: %w", err)
	}

	if err := os.Rename(localPath, target); err != nil {
		// Rename fails across filesystems, fall back to copy.
		if err := copyFile(localPath, target); err != nil {
			return "", fmt.Errorf("store upload: %w", err)
		}
		_ = os.Remove(localPath)
	}

	return s.publicBaseURL + "/" + path.Join(filepath.ToSlash(destDir), name), nil
}

// Delete removes a stored file referenced by its public URL if present.
func (s *MediaStorage) Delete(publicURL string) error {
	if !strings.HasPrefix(publicURL, s.publicBaseURL+"/") {
		return nil
	}
	rel := strings.TrimPrefix(publicURL, s.publicBaseURL+"/")
	target := filepath.Join(s.baseDir, filepath.FromSlash(rel))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete media file: %w", err)
	}
	return nil
}

// RemoveTemp discards a parked temp file. Missing files are not an error.
func (s *MediaStorage) RemoveTemp(localPath string) error {
	if localPath == "" {
		return nil
	}
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp upload: %w", err)
	}
	return nil
}

// CleanupTempOlderThan removes parked temp files older than the provided TTL
// and returns the deleted names.
func (s *MediaStorage) CleanupTempOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	deleted := make([]string, 0)
	err := filepath.WalkDir(s.tempDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
		rel, err := filepath.Rel(s.tempDir, p)
		if err != nil {
			rel = p
		}
		deleted = append(deleted, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup temp uploads: %w", err)
	}
	return deleted, nil
}

// BaseDir exposes the storage root (used to mount the static file route).
func (s *MediaStorage) BaseDir() string {
	return s.baseDir
}

func (s *MediaStorage) checkMIME(localPath string) error {
	if len(s.allowedMIMEs) == 0 {
		return nil
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer file.Close() //nolint:errcheck

	head := make([]byte, 512)
	n, err := file.Read(head)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read upload: %w", err)
	}

	mime := strings.ToLower(http.DetectContentType(head[:n]))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	if _, ok := s.allowedMIMEs[mime]; !ok {
		return fmt.Errorf("unsupported media type %s", mime)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close() //nolint:errcheck

	_, err = io.Copy(out, in)
	return err
}
