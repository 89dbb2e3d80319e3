package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/streamtube/user-api/internal/models"
	appErrors "github.com/streamtube/user-api/pkg/errors"
)

type userProfileRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateAvatarURL(ctx context.Context, id, url string) error
	UpdateCoverImageURL(ctx context.Context, id, url string) error
}

type profileMediaStore interface {
	Upload(localPath, destDir string) (string, error)
	Delete(publicURL string) error
}

// UserService serves profile reads and image updates for authenticated users.
type UserService struct {
	repo   userProfileRepository
	media  profileMediaStore
	logger *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(repo userProfileRepository, media profileMediaStore, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, media: media, logger: logger}
}

// Profile returns the public projection of the user.
func (s *UserService) Profile(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	info := user.Info()
	return &info, nil
}

// UpdateAvatar stores a new avatar and removes the previous file.
func (s *UserService) UpdateAvatar(ctx context.Context, userID, localPath string) (*models.UserInfo, error) {
	return s.updateImage(ctx, userID, localPath, "avatars")
}

// UpdateCoverImage stores a new cover image and removes the previous file.
func (s *UserService) UpdateCoverImage(ctx context.Context, userID, localPath string) (*models.UserInfo, error) {
	return s.updateImage(ctx, userID, localPath, "covers")
}

func (s *UserService) updateImage(ctx context.Context, userID, localPath, destDir string) (*models.UserInfo, error) {
	if localPath == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "image file is required")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	url, err := s.media.Upload(localPath, destDir)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "image upload failed")
	}

	var previous string
	switch destDir {
	case "avatars":
		previous = user.AvatarURL
		err = s.repo.UpdateAvatarURL(ctx, userID, url)
		user.AvatarURL = url
	default:
		previous = user.CoverImageURL
		err = s.repo.UpdateCoverImageURL(ctx, userID, url)
		user.CoverImageURL = url
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update image")
	}

	if previous != "" {
		if err := s.media.Delete(previous); err != nil {
			s.logger.Warn("failed to delete previous image", zap.String("url", previous), zap.Error(err))
		}
	}

	info := user.Info()
	return &info, nil
}
