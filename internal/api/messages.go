package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chathub/internal/attachments"
	"chathub/internal/router"
	"chathub/pkg/types"
)

type historyQuery struct {
	Scope   types.Scope `form:"scope" binding:"required"`
	GroupID string      `form:"groupId"`
	With    string      `form:"with"`
	Before  int64       `form:"before" binding:"gte=0"`
	Limit   int         `form:"limit" binding:"gte=0,lte=200"`
}

type readRequest struct {
	Scope     types.Scope `json:"scope" binding:"required"`
	MessageID int64       `json:"messageId"`
	GroupID   string      `json:"groupId"`
	With      string      `json:"with"`
}

// GET /api/history?scope=&groupId=&with=&before=&limit=
func (s *Server) history(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.abort(c, ErrInvalidBody)
		return
	}
	page, err := s.router.History(c.Request.Context(), currentIdentity(c), router.HistoryRequest{
		Scope:   q.Scope,
		GroupID: q.GroupID,
		With:    q.With,
		Before:  q.Before,
		Limit:   q.Limit,
	})
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// POST /api/read
// FUNCTIONAL DISCOVERY: the body is checked with the same rules as a mark_read frame
func (s *Server) markRead(c *gin.Context) {
	var req readRequest
	if !s.bind(c, &req) {
		return
	}
	env := types.Envelope{Type: types.InboundMarkRead, Scope: req.Scope, MessageID: req.MessageID, GroupID: req.GroupID, To: req.With}
	if err := env.Validate(); err != nil {
		s.abort(c, err)
		return
	}
	err := s.router.MarkRead(c.Request.Context(), currentIdentity(c), router.ReadRequest{
		Scope:     req.Scope,
		MessageID: req.MessageID,
		GroupID:   req.GroupID,
		With:      req.With,
	})
	s.respond(c, err)
}

// GET /api/unread
func (s *Server) unread(c *gin.Context) {
	counts, err := s.receipts.UnreadCounts(c.Request.Context(), currentIdentity(c).UserID)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// DELETE /api/messages/:scope/:id
func (s *Server) deleteMessage(c *gin.Context) {
	scope := types.Scope(c.Param("scope"))
	if !scope.Valid() {
		s.abort(c, types.ErrInvalidScope)
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.abort(c, types.ErrInvalidMessageID)
		return
	}
	s.respond(c, s.router.DeleteMessage(c.Request.Context(), currentIdentity(c), scope, id))
}

// GET /api/files/:id
func (s *Server) download(c *gin.Context) {
	blob, ref, err := s.files.Open(c.Param("id"))
	if err != nil {
		if !errors.Is(err, attachments.ErrFileNotFound) {
			s.logger.Error("attachment unreadable", zap.String("file_id", c.Param("id")), zap.Error(err))
		}
		s.abort(c, err)
		return
	}
	defer blob.Close()

	c.Header("Content-Type", ref.FileType)
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", ref.FileName))
	c.Header("X-Content-Type-Options", "nosniff")
	http.ServeContent(c.Writer, c.Request, ref.FileName, time.Time{}, blob)
}
