package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adanyl0v/go-todo-live/internal/services"
)

var (
	errInvalidRequestBody      = errors.New("invalid request body")
	errInvalidQuery            = errors.New("invalid query")
	errMandatoryCookieNotFound = errors.New("mandatory cookie not found")
	errAuthorizationRequired   = errors.New("authorization required")
)

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newAPIError(code int, message string) apiError {
	return apiError{
		Code:    code,
		Message: message,
	}
}

func (e apiError) Error() string {
	return e.Message
}

func abort(c *gin.Context, err apiError) {
	c.AbortWithStatusJSON(err.Code, gin.H{"error": err.Message})
}

func newStatusTextError(status int) apiError {
	return newAPIError(status, http.StatusText(status))
}

func newBadRequestError(message string) apiError {
	return newAPIError(http.StatusBadRequest, message)
}

func newUnauthorizedError(message string) apiError {
	return newAPIError(http.StatusUnauthorized, message)
}

func newNotFoundError(message string) apiError {
	return newAPIError(http.StatusNotFound, message)
}

func newConflictError(message string) apiError {
	return newAPIError(http.StatusConflict, message)
}

// newTaskError maps a task service failure to its response.
func newTaskError(err error) apiError {
	switch {
	case errors.Is(err, services.ErrInvalidTaskContent),
		errors.Is(err, services.ErrEmptyTaskUpdate),
		errors.Is(err, services.ErrInvalidTaskOrder):
		return newBadRequestError(err.Error())
	case errors.Is(err, services.ErrTaskNotFound):
		return newNotFoundError("task not found")
	case errors.Is(err, services.ErrTaskConflict):
		return newConflictError("task was modified concurrently, retry")
	case errors.Is(err, services.ErrStoreUnavailable):
		return newStatusTextError(http.StatusServiceUnavailable)
	default:
		return newStatusTextError(http.StatusInternalServerError)
	}
}
