package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/streamtube/user-api/pkg/errors"
)

func (m *memUserRepo) UpdateAvatarURL(_ context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.AvatarURL = url
	return nil
}

func (m *memUserRepo) UpdateCoverImageURL(_ context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.CoverImageURL = url
	return nil
}

type fakeMediaStore struct {
	fakeMedia
	n         int
	deleted   []string
	deleteErr error
}

func (f *fakeMediaStore) Upload(localPath, destDir string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.n++
	return fmt.Sprintf("/media/%s/stored-%d.png", destDir, f.n), nil
}

func (f *fakeMediaStore) Delete(publicURL string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, publicURL)
	return nil
}

func seedUser(t *testing.T, repo *memUserRepo) string {
	t.Helper()
	auth := newAuthService(t, repo, &fakeMedia{}, nil)
	info := registerAlice(t, auth)
	return info.ID
}

func TestProfile(t *testing.T) {
	repo := newMemUserRepo()
	userID := seedUser(t, repo)

	svc := NewUserService(repo, &fakeMediaStore{}, nil)

	info, err := svc.Profile(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Username)
	assert.Equal(t, "alice@example.com", info.Email)
}

func TestProfileUnknownUser(t *testing.T) {
	svc := NewUserService(newMemUserRepo(), &fakeMediaStore{}, nil)

	_, err := svc.Profile(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUpdateAvatarReplacesPrevious(t *testing.T) {
	repo := newMemUserRepo()
	userID := seedUser(t, repo)
	media := &fakeMediaStore{}

	svc := NewUserService(repo, media, nil)

	info, err := svc.UpdateAvatar(context.Background(), userID, "/tmp/new-avatar.png")
	require.NoError(t, err)
	assert.Equal(t, "/media/avatars/stored-1.png", info.AvatarURL)

	// The previous avatar file is removed.
	require.Len(t, media.deleted, 1)
	assert.Equal(t, "/media/avatars/stored.png", media.deleted[0])

	stored, err := repo.FindByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, info.AvatarURL, stored.AvatarURL)
}

func TestUpdateCoverImageFirstUpload(t *testing.T) {
	repo := newMemUserRepo()
	userID := seedUser(t, repo)
	media := &fakeMediaStore{}

	svc := NewUserService(repo, media, nil)

	info, err := svc.UpdateCoverImage(context.Background(), userID, "/tmp/cover.png")
	require.NoError(t, err)
	assert.Equal(t, "/media/covers/stored-1.png", info.CoverImageURL)

	// No previous cover, so nothing to delete.
	assert.Empty(t, media.deleted)
}

func TestUpdateImageRequiresFile(t *testing.T) {
	repo := newMemUserRepo()
	userID := seedUser(t, repo)

	svc := NewUserService(repo, &fakeMediaStore{}, nil)

	_, err := svc.UpdateAvatar(context.Background(), userID, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateImageUploadFailure(t *testing.T) {
	repo := newMemUserRepo()
	userID := seedUser(t, repo)
	media := &fakeMediaStore{fakeMedia: fakeMedia{uploadErr: errors.New("disk full")}}

	svc := NewUserService(repo, media, nil)

	_, err := svc.UpdateAvatar(context.Background(), userID, "/tmp/new-avatar.png")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	// The stored avatar is untouched on failure.
	stored, err := repo.FindByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "/media/avatars/stored.png", stored.AvatarURL)
}

func TestUpdateImageDeleteFailureIsNonFatal(t *testing.T) {
	repo := newMemUserRepo()
	userID := seedUser(t, repo)
	media := &fakeMediaStore{deleteErr: errors.New("file locked")}

	svc := NewUserService(repo, media, nil)

	info, err := svc.UpdateAvatar(context.Background(), userID, "/tmp/new-avatar.png")
	require.NoError(t, err)
	assert.NotEmpty(t, info.AvatarURL)
}
