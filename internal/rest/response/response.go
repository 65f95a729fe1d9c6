package response

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robalyx/reactor/internal/database/types"
	"github.com/robalyx/reactor/internal/database/types/enum"
	"github.com/robalyx/reactor/internal/reaction"
)

// Error codes returned in the error envelope.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeEmojiNotAllowed = "emoji_not_allowed"
	CodeRateLimit       = "rate_limit"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeInternal        = "internal"
)

// APIError is the body of a failed response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope wraps an APIError.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// DataEnvelope wraps a successful payload.
type DataEnvelope struct {
	Data any `json:"data"`
}

// OK writes payload as {"data": payload} with status 200.
func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, DataEnvelope{Data: payload})
}

// Abort writes an error envelope and stops the handler chain.
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{Code: code, Message: message},
	})
}

// InvalidRequest aborts with 400 invalid_request.
func InvalidRequest(c *gin.Context, message string) {
	Abort(c, http.StatusBadRequest, CodeInvalidRequest, message)
}

// Forbidden aborts with 403 forbidden.
func Forbidden(c *gin.Context) {
	Abort(c, http.StatusForbidden, CodeForbidden, "forbidden")
}

// RateLimited aborts with 429 and a Retry-After header in whole seconds.
func RateLimited(c *gin.Context, retryAfter time.Duration) {
	if retryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}

	Abort(c, http.StatusTooManyRequests, CodeRateLimit, "rate limit exceeded")
}

// FromError maps a domain error to its status and code. Errors without a
// mapping are internal and their message is not exposed.
func FromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, reaction.ErrEmojiNotAllowed):
		Abort(c, http.StatusBadRequest, CodeEmojiNotAllowed, err.Error())
	case errors.Is(err, reaction.ErrEmojiRequired),
		errors.Is(err, enum.ErrInvalidTargetKind),
		errors.Is(err, enum.ErrInvalidAction),
		errors.Is(err, types.ErrInvalidTargetID):
		Abort(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	default:
		_ = c.Error(err)
		Abort(c, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
