package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

// Session is the business side of a socket: bind the identity, route each
// frame, and clean up when the socket goes away.
type Session interface {
	Join(ctx context.Context, conn interfaces.Connection, token string) error
	Route(ctx context.Context, conn interfaces.Connection, frame []byte)
	Leave(conn interfaces.Connection)
}

// HandlerConfig holds socket timing and size limits.
type HandlerConfig struct {
	JoinTimeout     time.Duration
	PingInterval    time.Duration
	PongWait        time.Duration
	EventTimeout    time.Duration
	MaxMessageBytes int64
	AllowedOrigins  []string
}

// DefaultHandlerConfig mirrors the production defaults.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		JoinTimeout:     10 * time.Second,
		PingInterval:    30 * time.Second,
		PongWait:        60 * time.Second,
		EventTimeout:    15 * time.Second,
		MaxMessageBytes: 16 << 20,
	}
}

// Handler upgrades HTTP requests and runs the read pump of each socket.
// ARCHITECTURAL DISCOVERY: Multi-stage setup (upgrade -> join -> register -> pump)
// keeps unauthenticated sockets out of the registry entirely
type Handler struct {
	session  Session
	config   HandlerConfig
	upgrader websocket.Upgrader
	parsers  fastjson.ParserPool
	logger   *zap.Logger
}

// NewHandler creates a handler that drives session for every socket.
func NewHandler(session Session, config HandlerConfig, logger *zap.Logger) *Handler {
	h := &Handler{
		session: session,
		config:  config,
		logger:  logger.With(zap.String("component", "websocket")),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// FUNCTIONAL DISCOVERY: an empty allow-list accepts every origin, matching local development
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and hands the socket to its own goroutine.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	ws.SetReadLimit(h.config.MaxMessageBytes)

	conn := NewConnection(ws, h.logger)
	go h.handleConnection(conn)
}

// handleConnection waits for the join frame, then pumps frames into the session.
func (h *Handler) handleConnection(conn *Connection) {
	if err := h.join(conn); err != nil {
		h.logger.Debug("join failed", zap.String("conn_id", conn.ID()), zap.Error(err))
		_ = conn.WriteJSON(types.NewErrorEvent(joinFailure(err)))
		_ = conn.CloseWithReason(websocket.ClosePolicyViolation, "join failed")
		return
	}

	defer func() {
		h.session.Leave(conn)
		_ = conn.Close()
	}()

	// TECHNICAL DISCOVERY: 60-second read deadline with 30-second ping interval
	// keeps idle connections alive through proxies
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.config.PongWait)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})
	go h.ping(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Info("websocket closed unexpectedly", zap.String("conn_id", conn.ID()), zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		// FUNCTIONAL DISCOVERY: frames of one connection are routed synchronously
		// in this goroutine, so they are handled in receipt order without overlap
		ctx, cancel := context.WithTimeout(context.Background(), h.config.EventTimeout)
		h.session.Route(ctx, conn, data)
		cancel()
	}
}

func (h *Handler) join(conn *Connection) error {
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.config.JoinTimeout)); err != nil {
		return err
	}
	_, data, err := conn.conn.ReadMessage()
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrJoinTimeout
		}
		return err
	}

	token, err := h.peekJoin(data)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.EventTimeout)
	defer cancel()
	return h.session.Join(ctx, conn, token)
}

// peekJoin reads type and token without decoding the whole frame.
func (h *Handler) peekJoin(data []byte) (string, error) {
	p := h.parsers.Get()
	defer h.parsers.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return "", types.ErrMalformedFrame
	}
	if string(v.GetStringBytes("type")) != types.InboundJoin {
		return "", ErrJoinExpected
	}
	token := string(v.GetStringBytes("token"))
	if token == "" {
		return "", types.ErrMissingToken
	}
	return token, nil
}

func (h *Handler) ping(conn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// joinFailure makes every join failure render as auth_error on the wire.
func joinFailure(err error) error {
	var ce *types.ChatError
	if errors.As(err, &ce) && (ce.Kind == types.KindUnauthenticated || ce.Kind == types.KindDenied) {
		return &types.ChatError{Kind: types.KindUnauthenticated, Message: ce.Message}
	}
	return &types.ChatError{Kind: types.KindUnauthenticated, Message: types.ErrMissingToken.Message}
}
