package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chathub/internal/attachments"
	"chathub/internal/auth"
	"chathub/internal/authz"
	"chathub/internal/groups"
	"chathub/internal/hub"
	"chathub/internal/receipts"
	"chathub/internal/router"
	"chathub/pkg/interfaces"
)

// Deps groups the components the HTTP layer exposes.
type Deps struct {
	Auth     *auth.Service
	Groups   *groups.Manager
	Router   *router.Router
	Receipts *receipts.Engine
	Files    *attachments.Store
	Checker  *authz.Checker
	Identity interfaces.IdentityStore
	Messages interfaces.MessageStore
	Hub      *hub.Hub
	Socket   http.Handler
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	auth     *auth.Service
	groups   *groups.Manager
	router   *router.Router
	receipts *receipts.Engine
	files    *attachments.Store
	checker  *authz.Checker
	identity interfaces.IdentityStore
	messages interfaces.MessageStore
	hub      *hub.Hub
	socket   http.Handler
	engine   *gin.Engine
	origins  []string
	started  time.Time
	logger   *zap.Logger
}

// NewServer builds the gin engine with every route registered.
func NewServer(deps Deps, allowedOrigins []string, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		auth:     deps.Auth,
		groups:   deps.Groups,
		router:   deps.Router,
		receipts: deps.Receipts,
		files:    deps.Files,
		checker:  deps.Checker,
		identity: deps.Identity,
		messages: deps.Messages,
		hub:      deps.Hub,
		socket:   deps.Socket,
		engine:   gin.New(),
		origins:  allowedOrigins,
		started:  time.Now(),
		logger:   logger.With(zap.String("component", "api")),
	}
	s.setupRoutes()
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware
// CORS and request logging apply to every route; bearer auth to everything under /api but accounts
func (s *Server) setupRoutes() {
	s.engine.Use(s.recovery(), s.requestLogger(), s.cors())

	s.engine.GET("/health", s.healthCheck)
	if s.socket != nil {
		s.engine.GET("/ws", gin.WrapH(s.socket))
	}

	accounts := s.engine.Group("/api/auth")
	{
		accounts.POST("/register", s.register)
		accounts.POST("/login", s.login)
		accounts.POST("/refresh", s.refresh)
	}

	api := s.engine.Group("/api")
	api.Use(s.requireAuth())
	{
		api.GET("/me", s.me)
		api.PATCH("/me", s.updateProfile)
		api.POST("/me/password", s.changePassword)

		api.GET("/history", s.history)
		api.POST("/read", s.markRead)
		api.GET("/unread", s.unread)
		api.DELETE("/messages/:scope/:id", s.deleteMessage)
		api.GET("/files/:id", s.download)

		api.POST("/bans/:userId", s.banGlobally)
		api.DELETE("/bans/:userId", s.unbanGlobally)
	}

	g := api.Group("/groups")
	{
		g.POST("", s.createGroup)
		g.GET("", s.listGroups)
		g.GET("/:id", s.groupDetails)
		g.PATCH("/:id", s.updateGroup)
		g.DELETE("/:id", s.deleteGroup)
		g.POST("/:id/join", s.joinGroup)
		g.POST("/:id/leave", s.leaveGroup)
		g.DELETE("/:id/members/:userId", s.onTarget((*groups.Manager).RemoveMember))
		g.POST("/:id/admins/:userId", s.onTarget((*groups.Manager).AddAdmin))
		g.DELETE("/:id/admins/:userId", s.onTarget((*groups.Manager).RemoveAdmin))
		g.POST("/:id/bans/:userId", s.onTarget((*groups.Manager).Ban))
		g.DELETE("/:id/bans/:userId", s.onTarget((*groups.Manager).Unban))
	}
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// HealthResponse reports both stores and the live connection counts.
type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Identity    string         `json:"identity_store"`
	Messages    string         `json:"message_store"`
	Connections map[string]int `json:"connections"`
	Uptime      string         `json:"uptime"`
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now(),
		Identity:    "healthy",
		Messages:    "healthy",
		Connections: s.hub.Stats(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
	}
	if err := s.identity.HealthCheck(ctx); err != nil {
		resp.Status, resp.Identity = "unhealthy", err.Error()
	}
	if err := s.messages.HealthCheck(ctx); err != nil {
		resp.Status, resp.Messages = "unhealthy", err.Error()
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}
