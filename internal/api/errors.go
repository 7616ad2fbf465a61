package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chathub/pkg/types"
)

// Request validation errors.
var (
	ErrInvalidBody   = types.Invalid("The request body is invalid.")
	ErrInvalidUserID = types.Invalid("Invalid user id.")
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind types.ErrorKind) int {
	switch kind {
	case types.KindDenied:
		return http.StatusForbidden
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindRateLimited:
		return http.StatusTooManyRequests
	case types.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// abort writes err as the response. Persistence failures are logged with the
// real cause; the client only sees the generic sentence.
func (s *Server) abort(c *gin.Context, err error) {
	kind := types.KindOf(err)
	code := statusFor(kind)
	if kind == types.KindPersistence {
		s.logger.Error("request failed",
			zap.String(requestIDKey, c.GetString(requestIDKey)),
			zap.String("uri", c.Request.URL.Path),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Kind:    kind.String(),
		Message: types.UserMessage(err),
	})
}

// bind decodes the JSON body into dst.
func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.logger.Debug("invalid request body", zap.String(requestIDKey, c.GetString(requestIDKey)), zap.Error(err))
		s.abort(c, ErrInvalidBody)
		return false
	}
	return true
}

// userParam parses a positive user id path parameter.
func (s *Server) userParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		s.abort(c, ErrInvalidUserID)
		return 0, false
	}
	return id, true
}
