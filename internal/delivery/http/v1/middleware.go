package v1

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/adanyl0v/go-todo-live/internal/services"
)

const (
	userIDCtxKey    = "user_id"
	sessionIDCtxKey = "session_id"
)

func (h *handlerImpl) HandleAuthMiddleware(c *gin.Context) {
	accessToken, ok := BearerToken(c.GetHeader("Authorization"))
	if !ok {
		h.logger.Error().Msg("invalid authorization header")
		abort(c, newUnauthorizedError(errAuthorizationRequired.Error()))
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

	params := services.AuthenticateParams{
		AccessToken: accessToken,
		Fingerprint: fingerprint,
	}
	session, err := h.auth.Authenticate(c, params)
	if errors.Is(err, jwt.ErrTokenExpired) {
		result, ok := h.refresh(c, fingerprint)
		if !ok {
			return
		}
		params.AccessToken = result.AccessToken
		session, err = h.auth.Authenticate(c, params)
	}
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to authenticate")
		switch {
		case errors.Is(err, services.ErrInvalidToken),
			errors.Is(err, services.ErrSessionNotFound),
			errors.Is(err, services.ErrFingerprintMismatch):
			abort(c, newUnauthorizedError(errAuthorizationRequired.Error()))
		default:
			abort(c, newStatusTextError(http.StatusInternalServerError))
		}
		return
	}

	c.Set(userIDCtxKey, session.UserID)
	c.Set(sessionIDCtxKey, session.ID)
	c.Next()
}

// BearerToken extracts the token from an "Authorization: Bearer" header value.
func BearerToken(header string) (string, bool) {
	const bearerPrefix = "Bearer"
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != bearerPrefix || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func (h *handlerImpl) userID(c *gin.Context) (string, bool) {
	userID, ok := getStringFromContext(c, userIDCtxKey)
	if !ok || userID == "" {
		h.logger.Error().Msg("no user id found in context")
		abort(c, newUnauthorizedError(errAuthorizationRequired.Error()))
		return "", false
	}
	return userID, true
}
