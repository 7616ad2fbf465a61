package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"chathub/internal/attachments"
	"chathub/internal/authz"
	"chathub/internal/hub"
	"chathub/internal/receipts"
	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

// Authenticator resolves a join token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (types.Identity, error)
}

// Config tunes history pages and the per-connection event ceiling.
type Config struct {
	HistoryLimit    int
	EventsPerSecond int
}

// Router is the message distribution engine: validate, authorize, persist,
// compute recipients, push.
// ARCHITECTURAL DISCOVERY: Persist-then-route ordering means a failed write never
// reaches any recipient; only the originating connection hears about it
type Router struct {
	hub      *hub.Hub
	identity interfaces.IdentityStore
	messages interfaces.MessageStore
	checker  *authz.Checker
	receipts *receipts.Engine
	files    *attachments.Store
	auth     Authenticator
	limiter  *RateLimiter
	parsers  fastjson.ParserPool
	config   Config
	logger   *zap.Logger
}

// Deps groups the collaborators of a Router.
type Deps struct {
	Hub      *hub.Hub
	Identity interfaces.IdentityStore
	Messages interfaces.MessageStore
	Checker  *authz.Checker
	Receipts *receipts.Engine
	Files    *attachments.Store
	Auth     Authenticator
}

// NewRouter creates a router.
func NewRouter(deps Deps, config Config, logger *zap.Logger) *Router {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 50
	}
	return &Router{
		hub:      deps.Hub,
		identity: deps.Identity,
		messages: deps.Messages,
		checker:  deps.Checker,
		receipts: deps.Receipts,
		files:    deps.Files,
		auth:     deps.Auth,
		limiter:  NewRateLimiter(config.EventsPerSecond, time.Second),
		config:   config,
		logger:   logger.With(zap.String("component", "router")),
	}
}

// Join authenticates conn, registers it and pushes the global history.
func (r *Router) Join(ctx context.Context, conn interfaces.Connection, token string) error {
	identity, err := r.auth.Authenticate(ctx, token)
	if err != nil {
		return err
	}
	if err := r.checker.RequireNotGloballyBanned(identity.UserID); err != nil {
		return err
	}
	if err := conn.SetIdentity(identity); err != nil {
		return err
	}
	if err := r.hub.Register(ctx, conn); err != nil {
		return err
	}

	// FUNCTIONAL DISCOVERY: a history read failure degrades to an empty page
	// rather than failing the join
	page, err := r.History(ctx, identity, HistoryRequest{Scope: types.ScopeGlobal})
	if err != nil {
		r.logger.Warn("join history unavailable", zap.Int64("user_id", identity.UserID), zap.Error(err))
		page = &types.HistoryEvent{Type: types.EventHistory, Messages: []*types.Message{}}
	}
	r.reply(conn, page)
	return nil
}

// Leave unregisters conn and forgets its rate-limit state.
func (r *Router) Leave(conn interfaces.Connection) {
	r.limiter.Forget(conn.ID())
	if err := r.hub.Unregister(conn); err != nil {
		r.logger.Debug("unregister skipped", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
}

// Route handles one inbound frame of an already joined connection.
func (r *Router) Route(ctx context.Context, conn interfaces.Connection, frame []byte) {
	if !conn.IsAuthenticated() {
		r.reply(conn, types.NewErrorEvent(ErrNotJoined))
		return
	}
	if !r.limiter.Allow(conn.ID()) {
		r.reply(conn, types.NewErrorEvent(ErrRateLimitExceeded))
		return
	}

	env, err := r.decode(frame)
	if err != nil {
		r.fail(conn, "", err)
		return
	}
	if env == nil {
		return
	}

	identity := conn.Identity()
	if err := r.dispatch(ctx, conn, identity, env); err != nil {
		r.fail(conn, env.Type, err)
	}
}

// decode peeks the frame with fastjson, then decodes and validates the envelope.
// A repeated join returns a nil envelope and is ignored.
func (r *Router) decode(frame []byte) (*types.Envelope, error) {
	p := r.parsers.Get()
	v, err := p.ParseBytes(frame)
	if err != nil || v.Type() != fastjson.TypeObject {
		r.parsers.Put(p)
		return nil, types.ErrMalformedFrame
	}
	frameType := string(v.GetStringBytes("type"))
	r.parsers.Put(p)

	if frameType == types.InboundJoin {
		return nil, nil
	}

	var env types.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, types.ErrMalformedFrame
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (r *Router) dispatch(ctx context.Context, conn interfaces.Connection, identity types.Identity, env *types.Envelope) error {
	switch env.Type {
	case types.InboundMessage, types.InboundGroupMessage, types.InboundPrivateMessage:
		return r.sendText(ctx, identity, env)
	case types.InboundFileMessage:
		return r.sendFile(ctx, identity, env)
	case types.InboundEditMessage:
		return r.EditMessage(ctx, identity, env.Scope, env.MessageID, env.Text)
	case types.InboundDelete:
		return r.DeleteMessage(ctx, identity, env.Scope, env.MessageID)
	case types.InboundAddReaction, types.InboundRemoveReaction:
		return r.react(ctx, identity, env)
	case types.InboundLoadPrivateHistory:
		return r.replyHistory(ctx, conn, identity, HistoryRequest{Scope: types.ScopePrivate, With: env.To, Before: env.Before, Limit: env.Limit})
	case types.InboundLoadGroupHistory:
		return r.replyHistory(ctx, conn, identity, HistoryRequest{Scope: types.ScopeGroup, GroupID: env.GroupID, Before: env.Before, Limit: env.Limit})
	case types.InboundMarkRead:
		return r.MarkRead(ctx, identity, ReadRequest{Scope: env.Scope, MessageID: env.MessageID, GroupID: env.GroupID, With: env.To})
	default:
		return types.ErrUnknownType
	}
}

func (r *Router) replyHistory(ctx context.Context, conn interfaces.Connection, identity types.Identity, req HistoryRequest) error {
	page, err := r.History(ctx, identity, req)
	if err != nil {
		return err
	}
	r.reply(conn, page)
	return nil
}

// fail sends one error event to the originating connection only.
func (r *Router) fail(conn interfaces.Connection, frameType string, err error) {
	fields := []zap.Field{
		zap.String("conn_id", conn.ID()),
		zap.Int64("user_id", conn.Identity().UserID),
		zap.String("type", frameType),
		zap.Error(err),
	}
	if types.KindOf(err) == types.KindPersistence {
		r.logger.Error("event failed", fields...)
	} else {
		r.logger.Debug("event rejected", fields...)
	}
	r.reply(conn, types.NewErrorEvent(err))
}

func (r *Router) reply(conn interfaces.Connection, event any) {
	if err := conn.WriteJSON(event); err != nil {
		r.logger.Debug("reply failed", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
}

// RunJanitor periodically drops idle rate-limit state until ctx ends.
func (r *Router) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.limiter.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}
