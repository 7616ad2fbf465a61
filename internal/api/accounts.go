package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chathub/internal/auth"
	"chathub/pkg/types"
)

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User   *types.User `json:"user"`
	Tokens *auth.Pair  `json:"tokens"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type passwordRequest struct {
	Current string `json:"currentPassword" binding:"required"`
	Next    string `json:"newPassword" binding:"required"`
}

// POST /api/auth/register
func (s *Server) register(c *gin.Context) {
	var req auth.RegisterInput
	if !s.bind(c, &req) {
		return
	}
	user, pair, err := s.auth.Register(c.Request.Context(), req)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, AuthResponse{User: user, Tokens: pair})
}

// POST /api/auth/login
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if !s.bind(c, &req) {
		return
	}
	user, pair, err := s.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, AuthResponse{User: user, Tokens: pair})
}

// POST /api/auth/refresh
func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	if !s.bind(c, &req) {
		return
	}
	pair, err := s.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// GET /api/me
func (s *Server) me(c *gin.Context) {
	user, err := s.identity.GetUser(c.Request.Context(), currentIdentity(c).UserID)
	if err != nil {
		s.abort(c, auth.ErrUnknownUser)
		return
	}
	c.JSON(http.StatusOK, user)
}

// PATCH /api/me
func (s *Server) updateProfile(c *gin.Context) {
	var req types.ProfileUpdate
	if !s.bind(c, &req) {
		return
	}
	user, err := s.auth.UpdateProfile(c.Request.Context(), currentIdentity(c).UserID, req)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// POST /api/me/password
func (s *Server) changePassword(c *gin.Context) {
	var req passwordRequest
	if !s.bind(c, &req) {
		return
	}
	if err := s.auth.ChangePassword(c.Request.Context(), currentIdentity(c).UserID, req.Current, req.Next); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
