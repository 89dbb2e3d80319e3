package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streamtube/user-api/internal/models"
	"github.com/streamtube/user-api/internal/service"
	appErrors "github.com/streamtube/user-api/pkg/errors"
	"github.com/streamtube/user-api/pkg/response"
	"github.com/streamtube/user-api/pkg/storage"
)

// UserHandler serves the authenticated user's profile and image updates.
type UserHandler struct {
	service *service.UserService
	media   *storage.MediaStorage
}

// NewUserHandler creates a new handler.
func NewUserHandler(svc *service.UserService, media *storage.MediaStorage) *UserHandler {
	return &UserHandler{service: svc, media: media}
}

// Me godoc
// @Summary Get current user
// @Description Returns the authenticated user's profile
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /users/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	info, err := h.service.Profile(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, info, nil)
}

// UpdateAvatar godoc
// @Summary Update avatar
// @Description Replace the authenticated user's avatar image
// @Tags Users
// @Accept mpfd
// @Produce json
// @Param avatar formData file true "Avatar image"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /users/me/avatar [patch]
func (h *UserHandler) UpdateAvatar(c *gin.Context) {
	h.updateImage(c, "avatar", h.service.UpdateAvatar)
}

// UpdateCoverImage godoc
// @Summary Update cover image
// @Description Replace the authenticated user's cover image
// @Tags Users
// @Accept mpfd
// @Produce json
// @Param cover_image formData file true "Cover image"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /users/me/cover-image [patch]
func (h *UserHandler) UpdateCoverImage(c *gin.Context) {
	h.updateImage(c, "cover_image", h.service.UpdateCoverImage)
}

func (h *UserHandler) updateImage(c *gin.Context, field string, update func(ctx context.Context, userID, localPath string) (*models.UserInfo, error)) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	file, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "image file is required"))
			return
		}
		if errors.Is(err, multipart.ErrMessageTooLarge) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "uploaded file is too large"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart form"))
		return
	}

	dest := h.media.TempPath(file.Filename)
	if err := c.SaveUploadedFile(file, dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload"))
		return
	}
	defer func() { _ = h.media.RemoveTemp(dest) }()

	info, err := update(c.Request.Context(), claims.UserID, dest)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, info, nil)
}
