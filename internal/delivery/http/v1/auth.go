package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adanyl0v/go-todo-live/internal/services"
)

const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
)

type loginRequest struct {
	Email    string `json:"email" form:"email" binding:"required,email,max=255"`
	Password string `json:"password" form:"password" binding:"required,min=6,max=255"`
}

func (h *handlerImpl) HandleLogin(c *gin.Context) {
	var req loginRequest
	err := c.ShouldBind(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind request body")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	fingerprint, err := GenerateFingerprint(c)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to generate fingerprint")
		abort(c, newStatusTextError(http.StatusInternalServerError))
		return
	}

	result, err := h.auth.Login(c, services.LoginParams{
		Email:       req.Email,
		Password:    req.Password,
		Fingerprint: fingerprint,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to login")
		switch {
		case errors.Is(err, services.ErrUserNotFound),
			errors.Is(err, services.ErrUserPasswordMismatch):
			abort(c, newUnauthorizedError("invalid email or password"))
		default:
			abort(c, newStatusTextError(http.StatusInternalServerError))
		}
		return
	}

	setTokenCookies(c, result)
	c.Status(http.StatusOK)
}

func (h *handlerImpl) HandleRefresh(c *gin.Context) {
	fingerprint, err := GenerateFingerprint(c)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to generate fingerprint")
		abort(c, newStatusTextError(http.StatusInternalServerError))
		return
	}

	if _, ok := h.refresh(c, fingerprint); !ok {
		return
	}
	c.Status(http.StatusOK)
}

// refresh rotates the session named by the refresh token cookie and sets
// the new token cookies. On failure it aborts c and reports false.
func (h *handlerImpl) refresh(c *gin.Context, fingerprint string) (*services.LoginResult, bool) {
	refreshToken, err := c.Cookie(refreshTokenCookie)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to get refresh token cookie")
		abort(c, newUnauthorizedError(errMandatoryCookieNotFound.Error()))
		return nil, false
	}

	result, err := h.auth.Refresh(c, services.RefreshParams{
		RefreshToken: refreshToken,
		Fingerprint:  fingerprint,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to refresh session")
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			abort(c, newUnauthorizedError(services.ErrSessionNotFound.Error()))
		case errors.Is(err, services.ErrSessionExpired):
			abort(c, newUnauthorizedError(services.ErrSessionExpired.Error()))
		default:
			abort(c, newStatusTextError(http.StatusInternalServerError))
		}
		return nil, false
	}

	setTokenCookies(c, result)
	return result, true
}

func (h *handlerImpl) HandleRegister(c *gin.Context) {
	var req loginRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}
	h.logger.Info().
		Str("email", req.Email).
		Msg("register request")

	fingerprint, err := GenerateFingerprint(c)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to generate fingerprint")
		abort(c, newStatusTextError(http.StatusInternalServerError))
		return
	}

	result, err := h.auth.Register(c, services.LoginParams{
		Email:       req.Email,
		Password:    req.Password,
		Fingerprint: fingerprint,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to register user")
		switch {
		case errors.Is(err, services.ErrUserAlreadyExists):
			abort(c, newConflictError(services.ErrUserAlreadyExists.Error()))
		default:
			abort(c, newStatusTextError(http.StatusInternalServerError))
		}
		return
	}

	setTokenCookies(c, result)
	c.Status(http.StatusCreated)
}

func (h *handlerImpl) HandleLogout(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	err := h.auth.Logout(c, userID)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to logout")
		abort(c, newStatusTextError(http.StatusInternalServerError))
		return
	}

	clearCookie(c, accessTokenCookie)
	clearCookie(c, refreshTokenCookie)

	c.Status(http.StatusNoContent)
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *handlerImpl) HandleMe(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	user, err := h.auth.GetUser(c, userID)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to get user")
		if errors.Is(err, services.ErrUserNotFound) {
			abort(c, newNotFoundError(services.ErrUserNotFound.Error()))
			return
		}
		abort(c, newStatusTextError(http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, userResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	})
}

// GenerateFingerprint identifies the client a session was opened from.
func GenerateFingerprint(c *gin.Context) (string, error) {
	fingerprintBytes, err := json.Marshal(map[string]string{
		"client_ip":  c.ClientIP(),
		"user_agent": c.Request.UserAgent(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal json: %w", err)
	}
	return string(fingerprintBytes), nil
}

func getStringFromContext(c *gin.Context, key string) (string, bool) {
	value, exists := c.Get(key)
	if !exists {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}

func setTokenCookies(c *gin.Context, result *services.LoginResult) {
	now := time.Now()
	setAccessTokenCookie(c, result.AccessToken, result.AccessTokenExpiresAt.Sub(now))
	setRefreshTokenCookie(c, result.RefreshToken, result.RefreshTokenExpiresAt.Sub(now))
}

func setAccessTokenCookie(c *gin.Context, token string, maxAge time.Duration) {
	// httpOnly must be false to allow client-side JavaScript
	// to read the cookie and send it in the Authorization header.
	const secure, httpOnly = false, false
	c.SetCookie(accessTokenCookie, token, int(maxAge.Seconds()),
		"/", "", secure, httpOnly)
}

func setRefreshTokenCookie(c *gin.Context, token string, maxAge time.Duration) {
	const secure, httpOnly = false, true
	c.SetCookie(refreshTokenCookie, token, int(maxAge.Seconds()),
		"/", "", secure, httpOnly)
}

func clearCookie(c *gin.Context, name string) {
	c.SetCookie(name, "", -1,
		"/", "", false, false)
}
