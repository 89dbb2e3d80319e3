package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamtube/user-api/internal/middleware"
	"github.com/streamtube/user-api/internal/models"
	"github.com/streamtube/user-api/internal/service"
	"github.com/streamtube/user-api/pkg/config"
	appErrors "github.com/streamtube/user-api/pkg/errors"
	"github.com/streamtube/user-api/pkg/response"
	"github.com/streamtube/user-api/pkg/storage"
)

// Cookie names for the issued token pair.
const (
	accessTokenCookie  = middleware.AccessTokenCookie
	refreshTokenCookie = "refresh_token"
)

// AuthHandler wires the session lifecycle endpoints to the auth service.
type AuthHandler struct {
	service    *service.AuthService
	media      *storage.MediaStorage
	cookies    config.CookieConfig
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthHandler creates a new handler. Cookie lifetimes follow the token
// lifetimes.
func NewAuthHandler(svc *service.AuthService, media *storage.MediaStorage, cookies config.CookieConfig, accessTTL, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		service:    svc,
		media:      media,
		cookies:    cookies,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Register godoc
// @Summary Register a new account
// @Description Create an account from a multipart form with avatar and optional cover image
// @Tags Authentication
// @Accept mpfd
// @Produce json
// @Param username formData string true "Username"
// @Param email formData string true "Email"
// @Param full_name formData string true "Full name"
// @Param password formData string true "Password"
// @Param avatar formData file true "Avatar image"
// @Param cover_image formData file false "Cover image"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	req := models.RegisterRequest{
		Username: c.PostForm("username"),
		Email:    c.PostForm("email"),
		FullName: c.PostForm("full_name"),
		Password: c.PostForm("password"),
	}

	avatarPath, err := h.parkUpload(c, "avatar")
	if err != nil {
		response.Error(c, err)
		return
	}
	defer h.discardTemp(avatarPath)
	req.AvatarPath = avatarPath

	coverPath, err := h.parkUpload(c, "cover_image")
	if err != nil {
		response.Error(c, err)
		return
	}
	defer h.discardTemp(coverPath)
	req.CoverImagePath = coverPath

	info, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, info)
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate by username or email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setTokenCookies(c, res.AccessToken, res.RefreshToken)
	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh godoc
// @Summary Rotate the refresh token
// @Description Exchange the active refresh token for a new token pair. The token is read from the refresh_token cookie, falling back to the request body.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshRequest false "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	presented, _ := c.Cookie(refreshTokenCookie)
	if presented == "" {
		var req models.RefreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			presented = req.RefreshToken
		}
	}

	res, err := h.service.Refresh(c.Request.Context(), presented)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setTokenCookies(c, res.AccessToken, res.RefreshToken)
	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Logout current session
// @Description Revoke the active refresh token and clear the token cookies
// @Tags Authentication
// @Produce json
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Logout(c.Request.Context(), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}

	h.clearTokenCookies(c)
	response.NoContent(c)
}

// parkUpload saves the named multipart file into the media temp directory and
// returns the parked path. A missing file yields an empty path and no error;
// required-ness is decided by the service.
func (h *AuthHandler) parkUpload(c *gin.Context, field string) (string, error) {
	file, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		if errors.Is(err, multipart.ErrMessageTooLarge) {
			return "", appErrors.Clone(appErrors.ErrValidation, "uploaded file is too large")
		}
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart form")
	}

	dest := h.media.TempPath(file.Filename)
	if err := c.SaveUploadedFile(file, dest); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}
	return dest, nil
}

// discardTemp removes a parked file that was not consumed by the service.
// Files already moved into permanent storage are gone by now, which is fine.
func (h *AuthHandler) discardTemp(path string) {
	if path == "" {
		return
	}
	_ = h.media.RemoveTemp(path)
}

func (h *AuthHandler) setTokenCookies(c *gin.Context, access, refresh string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessTokenCookie, access, int(h.accessTTL.Seconds()), "/", h.cookies.Domain, h.cookies.Secure, true)
	c.SetCookie(refreshTokenCookie, refresh, int(h.refreshTTL.Seconds()), "/", h.cookies.Domain, h.cookies.Secure, true)
}

func (h *AuthHandler) clearTokenCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessTokenCookie, "", -1, "/", h.cookies.Domain, h.cookies.Secure, true)
	c.SetCookie(refreshTokenCookie, "", -1, "/", h.cookies.Domain, h.cookies.Secure, true)
}
