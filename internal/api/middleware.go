package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
	"go.uber.org/zap"

	"chathub/pkg/types"
)

const (
	requestIDKey = "request_id"
	identityKey  = "identity"
)

var errMissingBearer = &types.ChatError{Kind: types.KindUnauthenticated, Message: "Please sign in."}

// requestLogger stamps every request with an xid and logs it once it completes.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := xid.New().String()
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		start := time.Now()

		c.Next()

		s.logger.Info("http request",
			zap.String(requestIDKey, id),
			zap.String("method", c.Request.Method),
			zap.String("uri", c.Request.URL.RequestURI()),
			zap.String("ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// recovery turns a handler panic into a logged 500.
func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error("handler panic", zap.String(requestIDKey, c.GetString(requestIDKey)), zap.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error:   http.StatusText(http.StatusInternalServerError),
			Code:    http.StatusInternalServerError,
			Kind:    types.KindPersistence.String(),
			Message: types.PersistenceMessage,
		})
	})
}

// cors echoes allowed origins. An empty allow-list allows any origin.
func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && s.originAllowed(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.origins) == 0 {
		return true
	}
	for _, allowed := range s.origins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// requireAuth resolves the bearer token to an identity. Globally banned users
// are turned away from every authenticated route.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			s.abort(c, errMissingBearer)
			return
		}
		identity, err := s.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			s.abort(c, err)
			return
		}
		if err := s.checker.RequireNotGloballyBanned(identity.UserID); err != nil {
			s.abort(c, err)
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// bearerToken reads the Authorization header, falling back to a token query
// parameter for clients that cannot set headers (image tags, downloads).
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

func currentIdentity(c *gin.Context) types.Identity {
	identity, _ := c.MustGet(identityKey).(types.Identity)
	return identity
}
