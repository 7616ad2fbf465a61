package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chathub/internal/groups"
	"chathub/pkg/types"
)

// POST /api/groups
func (s *Server) createGroup(c *gin.Context) {
	var req groups.CreateInput
	if !s.bind(c, &req) {
		return
	}
	group, err := s.groups.CreateGroup(c.Request.Context(), currentIdentity(c).UserID, req)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

// GET /api/groups
func (s *Server) listGroups(c *gin.Context) {
	list, err := s.groups.ListGroups(c.Request.Context(), currentIdentity(c).UserID)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": list})
}

// GET /api/groups/:id
func (s *Server) groupDetails(c *gin.Context) {
	details, err := s.groups.Details(c.Request.Context(), currentIdentity(c).UserID, c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// PATCH /api/groups/:id
func (s *Server) updateGroup(c *gin.Context) {
	var req types.GroupUpdate
	if !s.bind(c, &req) {
		return
	}
	group, err := s.groups.UpdateProfile(c.Request.Context(), currentIdentity(c).UserID, c.Param("id"), req)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// DELETE /api/groups/:id
func (s *Server) deleteGroup(c *gin.Context) {
	s.respond(c, s.groups.DeleteGroup(c.Request.Context(), currentIdentity(c).UserID, c.Param("id")))
}

// POST /api/groups/:id/join
func (s *Server) joinGroup(c *gin.Context) {
	s.respond(c, s.groups.Join(c.Request.Context(), currentIdentity(c).UserID, c.Param("id")))
}

// POST /api/groups/:id/leave
func (s *Server) leaveGroup(c *gin.Context) {
	s.respond(c, s.groups.Leave(c.Request.Context(), currentIdentity(c).UserID, c.Param("id")))
}

// targetAction is a group operation applied by an actor to another user.
type targetAction func(m *groups.Manager, ctx context.Context, actorID int64, groupID string, targetID int64) error

// onTarget adapts a targetAction to a route carrying :id and :userId.
func (s *Server) onTarget(action targetAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		target, ok := s.userParam(c, "userId")
		if !ok {
			return
		}
		s.respond(c, action(s.groups, c.Request.Context(), currentIdentity(c).UserID, c.Param("id"), target))
	}
}

// POST /api/bans/:userId
func (s *Server) banGlobally(c *gin.Context) {
	target, ok := s.userParam(c, "userId")
	if !ok {
		return
	}
	s.respond(c, s.groups.BanGlobally(c.Request.Context(), currentIdentity(c).UserID, target))
}

// DELETE /api/bans/:userId
func (s *Server) unbanGlobally(c *gin.Context) {
	target, ok := s.userParam(c, "userId")
	if !ok {
		return
	}
	s.respond(c, s.groups.UnbanGlobally(c.Request.Context(), currentIdentity(c).UserID, target))
}

// respond writes 204 on success.
func (s *Server) respond(c *gin.Context, err error) {
	if err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
