package hub

import (
	"context"
	"sync"
	"sync/atomic"

	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chathub/internal/roster"
	"chathub/internal/websocket"
	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

// BanChecker answers the global ban question from the in-memory ban set.
type BanChecker interface {
	IsGloballyBanned(userID int64) bool
}

type registration struct {
	conn      interfaces.Connection
	done      chan error
	abandoned atomic.Bool
}

// Hub serializes connection lifecycle and presence, and delivers events to live connections.
// ARCHITECTURAL DISCOVERY: every registry mutation that can change the online set goes
// through one goroutine, so a presence snapshot never observes a half-applied change
type Hub struct {
	registerChannel   chan *registration         // FUNCTIONAL DISCOVERY: callers wait, history must follow registration
	unregisterChannel chan interfaces.Connection // TECHNICAL DISCOVERY: 100 buffer absorbs disconnect storms
	presenceChannel   chan struct{}              // coalesced refresh requests
	shutdownChannel   chan struct{}

	registry *websocket.Registry
	roster   *roster.Roster
	bans     BanChecker
	logger   *zap.Logger

	running bool
	mu      sync.RWMutex
}

// NewHub wires the hub to the registry, roster and ban set.
func NewHub(registry *websocket.Registry, r *roster.Roster, bans BanChecker, logger *zap.Logger) *Hub {
	return &Hub{
		registerChannel:   make(chan *registration, 100),
		unregisterChannel: make(chan interfaces.Connection, 100),
		presenceChannel:   make(chan struct{}, 1),
		shutdownChannel:   make(chan struct{}),
		registry:          registry,
		roster:            r,
		bans:              bans,
		logger:            logger.With(zap.String("component", "hub")),
	}
}

// Start begins the lifecycle loop.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdownChannel = make(chan struct{})
	h.mu.Unlock()

	h.logger.Info("starting hub")
	go h.run(ctx, h.shutdownChannel)
	return nil
}

// Stop ends the lifecycle loop.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.logger.Info("hub stopped")
	return nil
}

func (h *Hub) state() (bool, chan struct{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running, h.shutdownChannel
}

// Register adds an authenticated connection and waits until it is registered,
// so the caller may push history right after. A caller that gives up early leaves
// no registration behind.
func (h *Hub) Register(ctx context.Context, conn interfaces.Connection) error {
	running, shutdown := h.state()
	if !running {
		return ErrHubNotRunning
	}

	req := &registration{conn: conn, done: make(chan error, 1)}
	select {
	case h.registerChannel <- req:
	default:
		return ErrRegisterChannelFull
	}

	select {
	case err := <-req.done:
		return err
	case <-shutdown:
		req.abandoned.Store(true)
		return ErrHubNotRunning
	case <-ctx.Done():
		req.abandoned.Store(true)
		go h.undoLateRegistration(req, shutdown)
		return ctx.Err()
	}
}

// undoLateRegistration unregisters conn if the loop registered it before it
// saw the abandoned flag.
func (h *Hub) undoLateRegistration(req *registration, shutdown chan struct{}) {
	select {
	case err := <-req.done:
		if err == nil {
			h.logger.Debug("undoing abandoned registration", zap.String("conn_id", req.conn.ID()))
			_ = h.Unregister(req.conn)
		}
	case <-shutdown:
	}
}

// Unregister queues removal of conn. When the queue is full the removal waits in
// its own goroutine; it is never dropped.
func (h *Hub) Unregister(conn interfaces.Connection) error {
	running, shutdown := h.state()
	if !running {
		h.registry.Unregister(conn)
		return ErrHubNotRunning
	}
	select {
	case h.unregisterChannel <- conn:
		return nil
	default:
	}

	h.logger.Warn("unregister queue full, deferring", zap.String("conn_id", conn.ID()))
	go func() {
		select {
		case h.unregisterChannel <- conn:
		case <-shutdown:
			h.registry.Unregister(conn)
		}
	}()
	return nil
}

// RefreshPresence asks for a fresh roster broadcast. Bursts collapse into one.
func (h *Hub) RefreshPresence() {
	select {
	case h.presenceChannel <- struct{}{}:
	default:
	}
}

// ProfileChanged refreshes the roster entry and live identities of user.
func (h *Hub) ProfileChanged(user *types.User) {
	h.roster.Upsert(user)
	for _, conn := range h.registry.ConnectionsForUser(user.ID) {
		identity := conn.Identity()
		identity.Username = user.Username
		identity.Handle = user.Handle
		identity.ProfilePicture = user.ProfilePicture
		if err := conn.SetIdentity(identity); err != nil {
			h.logger.Warn("failed to refresh identity", zap.String("conn_id", conn.ID()), zap.Error(err))
		}
	}
	h.RefreshPresence()
}

// DisconnectUser tells every connection of userID why and closes them.
// The read pumps then unregister each connection through the normal path.
func (h *Hub) DisconnectUser(userID int64, reason error) int {
	conns := h.registry.ConnectionsForUser(userID)
	for _, conn := range conns {
		_ = conn.WriteJSON(types.NewErrorEvent(reason))
		closeConn(conn, gorilla.ClosePolicyViolation, types.UserMessage(reason))
	}
	return len(conns)
}

// CloseAll sends a going-away close to every live connection. The HTTP server
// does not track hijacked sockets, so shutdown has to end them here.
func (h *Hub) CloseAll() int {
	conns := h.registry.All()
	for _, conn := range conns {
		closeConn(conn, gorilla.CloseGoingAway, "server shutting down")
	}
	if len(conns) > 0 {
		h.logger.Info("closed live connections", zap.Int("count", len(conns)))
	}
	return len(conns)
}

func closeConn(conn interfaces.Connection, code int, reason string) {
	if closer, ok := conn.(interface{ CloseWithReason(int, string) error }); ok {
		if err := closer.CloseWithReason(code, reason); err == nil {
			return
		}
	}
	_ = conn.Close()
}

// run is the main hub processing loop
// TECHNICAL DISCOVERY: Single select loop handles all lifecycle coordination
func (h *Hub) run(ctx context.Context, shutdown chan struct{}) {
	defer h.logger.Debug("hub loop exited")

	for {
		select {
		case req := <-h.registerChannel:
			if req.abandoned.Load() {
				req.done <- ErrRegistrationAbandoned
				continue
			}
			req.done <- h.handleRegistration(req.conn)

		case conn := <-h.unregisterChannel:
			h.handleDeregistration(conn)

		case <-h.presenceChannel:
			h.broadcastPresence()

		case <-shutdown:
			return

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handleRegistration(conn interfaces.Connection) error {
	first, err := h.registry.Register(conn)
	if err != nil {
		h.logger.Warn("connection registration failed", zap.String("conn_id", conn.ID()), zap.Error(err))
		return err
	}

	identity := conn.Identity()
	h.logger.Info("connection registered",
		zap.String("conn_id", conn.ID()),
		zap.Int64("user_id", identity.UserID),
		zap.String("username", identity.Username))

	if _, known := h.roster.Lookup(identity.UserID); !known {
		h.roster.Upsert(&types.User{ID: identity.UserID, Username: identity.Username, Handle: identity.Handle, ProfilePicture: identity.ProfilePicture})
	}
	if first {
		h.roster.SetOnline(identity.UserID, true)
	}
	// FUNCTIONAL DISCOVERY: the joining connection always needs a snapshot even when
	// the online set did not change, so registration always broadcasts
	h.broadcastPresence()
	return nil
}

func (h *Hub) handleDeregistration(conn interfaces.Connection) {
	if !h.registry.Unregister(conn) {
		h.logger.Debug("connection deregistered", zap.String("conn_id", conn.ID()))
		return
	}
	userID := conn.Identity().UserID
	h.roster.SetOnline(userID, false)
	h.logger.Info("user offline", zap.Int64("user_id", userID))
	h.broadcastPresence()
}

// broadcastPresence sends the full roster, minus globally banned users, to every
// connection of a non-banned user.
func (h *Hub) broadcastPresence() {
	event := types.RosterEvent{
		Type:  types.EventUsersWithIDs,
		Users: h.roster.Snapshot(h.bans.IsGloballyBanned),
	}
	h.Broadcast(event, nil)
}

// Broadcast writes event to every live connection whose user passes include
// and is not globally banned. include may be nil.
func (h *Hub) Broadcast(event any, include func(userID int64) bool) int {
	delivered := 0
	for _, conn := range h.registry.All() {
		userID := conn.Identity().UserID
		if h.bans.IsGloballyBanned(userID) {
			continue
		}
		if include != nil && !include(userID) {
			continue
		}
		if h.write(conn, event) {
			delivered++
		}
	}
	return delivered
}

// SendToUsers writes event to every connection of each listed user.
func (h *Hub) SendToUsers(userIDs []int64, event any) int {
	delivered := 0
	seen := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		delivered += h.SendToUser(id, event)
	}
	return delivered
}

// SendToUser writes event to every connection of userID. Offline users are skipped.
func (h *Hub) SendToUser(userID int64, event any) int {
	delivered := 0
	for _, conn := range h.registry.ConnectionsForUser(userID) {
		if h.write(conn, event) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) write(conn interfaces.Connection, event any) bool {
	if err := conn.WriteJSON(event); err != nil {
		h.logger.Debug("delivery failed", zap.String("conn_id", conn.ID()), zap.Error(err))
		return false
	}
	return true
}

// Stats reports registry figures for the health endpoint.
func (h *Hub) Stats() map[string]int {
	stats := h.registry.Stats()
	stats["known_users"] = h.roster.Len()
	return stats
}
