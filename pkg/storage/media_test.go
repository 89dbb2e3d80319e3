package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamtube/user-api/pkg/config"
)

var pngHeader = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 16)...)

func newTestStorage(t *testing.T, cfg config.MediaConfig) *MediaStorage {
	t.Helper()
	if cfg.StorageDir == "" {
		cfg.StorageDir = t.TempDir()
	}
	if cfg.TempDir == "" {
		cfg.TempDir = t.TempDir()
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "/media"
	}
	s, err := NewMediaStorage(cfg)
	require.NoError(t, err)
	return s
}

func parkFile(t *testing.T, s *MediaStorage, name string, content []byte) string {
	t.Helper()
	path := s.TempPath(name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestTempPathKeepsExtension(t *testing.T) {
	s := newTestStorage(t, config.MediaConfig{})

	path := s.TempPath("Photo.JPG")
	assert.True(t, strings.HasSuffix(path, ".jpg"))

	other := s.TempPath("Photo.JPG")
	assert.NotEqual(t, path, other)
}

func TestUploadMovesFileAndMapsURL(t *testing.T) {
	s := newTestStorage(t, config.MediaConfig{})
	parked := parkFile(t, s, "avatar.png", pngHeader)

	url, err := s.Upload(parked, "avatars")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/media/avatars/"))

	// The parked file is gone, the stored file exists.
	_, err = os.Stat(parked)
	assert.True(t, os.IsNotExist(err))

	rel := strings.TrimPrefix(url, "/media/")
	_, err = os.Stat(filepath.Join(s.BaseDir(), filepath.FromSlash(rel)))
	assert.NoError(t, err)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	s := newTestStorage(t, config.MediaConfig{MaxFileSizeBytes: 4})
	parked := parkFile(t, s, "avatar.png", pngHeader)

	_, err := s.Upload(parked, "avatars")
	require.Error(t, err)
}

func TestUploadEnforcesAllowedMIMEs(t *testing.T) {
	s := newTestStorage(t, config.MediaConfig{AllowedMIMEs: []string{"image/png"}})

	parked := parkFile(t, s, "avatar.png", pngHeader)
	_, err := s.Upload(parked, "avatars")
	require.NoError(t, err)

	// Content sniffing, not the extension, decides the type.
	fake := parkFile(t, s, "fake.png", []byte("just plain text pretending"))
	_, err = s.Upload(fake, "avatars")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported media type")
}

func TestDeleteByPublicURL(t *testing.T) {
	s := newTestStorage(t, config.MediaConfig{})
	parked := parkFile(t, s, "avatar.png", pngHeader)

	url, err := s.Upload(parked, "avatars")
	require.NoError(t, err)

	require.NoError(t, s.Delete(url))
	rel := strings.TrimPrefix(url, "/media/")
	_, err = os.Stat(filepath.Join(s.BaseDir(), filepath.FromSlash(rel)))
	assert.True(t, os.IsNotExist(err))

	// Deleting again or deleting a foreign URL is a no-op.
	assert.NoError(t, s.Delete(url))
	assert.NoError(t, s.Delete("https://elsewhere.example.com/file.png"))
}

func TestRemoveTemp(t *testing.T) {
	s := newTestStorage(t, config.MediaConfig{})
	parked := parkFile(t, s, "avatar.png", pngHeader)

	require.NoError(t, s.RemoveTemp(parked))
	require.NoError(t, s.RemoveTemp(parked))
	require.NoError(t, s.RemoveTemp(""))
}

func TestCleanupTempOlderThan(t *testing.T) {
	s := newTestStorage(t, config.MediaConfig{})

	stale := parkFile(t, s, "stale.png", pngHeader)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := parkFile(t, s, "fresh.png", pngHeader)

	deleted, err := s.CleanupTempOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Len(t, deleted, 1)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}
