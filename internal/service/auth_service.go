package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/streamtube/user-api/internal/models"
	appErrors "github.com/streamtube/user-api/pkg/errors"
)

type authUserRepository interface {
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	SetRefreshToken(ctx context.Context, id, token string) error
	SwapRefreshToken(ctx context.Context, id, expectedOld, newToken string) (bool, error)
	ClearRefreshToken(ctx context.Context, id string) error
}

type mediaUploader interface {
	Upload(localPath, destDir string) (string, error)
}

type loginLimiter interface {
	Allow(ctx context.Context, identifier string) (bool, error)
	Reset(ctx context.Context, identifier string) error
}

// AuthService owns the session lifecycle: registration, login, refresh
// rotation and revocation.
type AuthService struct {
	repo      authUserRepository
	tokens    *TokenService
	hasher    PasswordHasher
	media     mediaUploader
	limiter   loginLimiter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAuthService constructs an AuthService. limiter and metrics may be nil;
// hasher defaults to bcrypt.
func NewAuthService(repo authUserRepository, tokens *TokenService, hasher PasswordHasher, media mediaUploader, limiter loginLimiter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AuthService {
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		repo:      repo,
		tokens:    tokens,
		hasher:    hasher,
		media:     media,
		limiter:   limiter,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Register creates an account after checking username/email uniqueness and
// storing the uploaded images. A failed avatar upload aborts registration;
// no partial record is written.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	if req.AvatarPath == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "avatar is required")
	}

	exists, err := s.repo.ExistsByUsernameOrEmail(ctx, req.Username, req.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing users")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user with this username or email already exists")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	avatarURL, err := s.media.Upload(req.AvatarPath, "avatars")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "avatar upload failed")
	}

	var coverURL string
	if req.CoverImagePath != "" {
		coverURL, err = s.media.Upload(req.CoverImagePath, "covers")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "cover image upload failed")
		}
	}

	user := &models.User{
		Username:      req.Username,
		Email:         req.Email,
		FullName:      req.FullName,
		PasswordHash:  hash,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.metrics.RecordRegistration()
	s.logger.Info("user registered", zap.String("user_id", user.ID))

	info := user.Info()
	return &info, nil
}

// Login authenticates by username or email and issues a fresh token pair,
// persisting the refresh value as the account's active session.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, req.Identifier)
		if err != nil {
			// Fail open: a broken limiter must not lock everyone out.
			s.logger.Warn("login limiter unavailable", zap.Error(err))
		} else if !allowed {
			return nil, appErrors.ErrRateLimited
		}
	}

	user, err := s.repo.FindByIdentifier(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordLogin("failure")
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		s.metrics.RecordLogin("failure")
		return nil, appErrors.ErrInvalidCredentials
	}

	access, _, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	refresh, _, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	// The stored value becomes the single valid refresh credential for this
	// account before the pair leaves the server.
	if err := s.repo.SetRefreshToken(ctx, user.ID, refresh); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, req.Identifier); err != nil {
			s.logger.Warn("failed to reset login attempts", zap.Error(err))
		}
	}

	s.metrics.RecordLogin("success")

	return &models.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		IssuedAt:     time.Now().UTC(),
		User:         user.Info(),
	}, nil
}

// Refresh validates the presented refresh credential against the stored
// value and, if it is still the active one, rotates it for a new pair. The
// conditional swap makes a replayed or raced token fail even inside its
// validity window.
func (s *AuthService) Refresh(ctx context.Context, presented string) (*models.RefreshResponse, error) {
	if presented == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing refresh credential")
	}

	claims, err := s.tokens.Verify(presented, models.TokenTypeRefresh)
	if err != nil {
		s.metrics.RecordRefresh("rejected")
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired refresh credential")
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordRefresh("rejected")
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown session")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if user.RefreshToken == "" || user.RefreshToken != presented {
		s.metrics.RecordRefresh("stale")
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "stale or reused refresh credential")
	}

	access, _, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	refresh, _, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	// Write-then-respond: the swap must land before the new pair is returned
	// so a concurrent refresh with the same old token loses here.
	swapped, err := s.repo.SwapRefreshToken(ctx, user.ID, presented, refresh)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate refresh token")
	}
	if !swapped {
		s.metrics.RecordRefresh("stale")
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "stale or reused refresh credential")
	}

	s.metrics.RecordRefresh("success")

	return &models.RefreshResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		IssuedAt:     time.Now().UTC(),
	}, nil
}

// Logout clears the stored refresh credential. Revoking an already revoked
// session is a no-op success.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.repo.ClearRefreshToken(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke session")
	}
	s.logger.Info("session revoked", zap.String("user_id", userID))
	return nil
}

// VerifyAccess validates an access token for the request guard.
func (s *AuthService) VerifyAccess(tokenString string) (*models.SessionClaims, error) {
	return s.tokens.Verify(tokenString, models.TokenTypeAccess)
}
