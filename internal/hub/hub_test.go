package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chathub/internal/roster"
	"chathub/internal/websocket"
	"chathub/pkg/types"
)

type recordingConn struct {
	id       string
	mu       sync.Mutex
	identity types.Identity
	events   []any
	closed   bool
}

func newConn(id string, userID int64, username string) *recordingConn {
	return &recordingConn{id: id, identity: types.Identity{UserID: userID, Username: username}}
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.events = append(c.events, v)
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) Identity() types.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *recordingConn) IsAuthenticated() bool { return c.Identity().UserID != 0 }

func (c *recordingConn) SetIdentity(identity types.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity
	return nil
}

func (c *recordingConn) rosters() []types.RosterEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.RosterEvent
	for _, e := range c.events {
		if r, ok := e.(types.RosterEvent); ok {
			out = append(out, r)
		}
	}
	return out
}

func (c *recordingConn) latest() types.RosterEvent {
	r := c.rosters()
	if len(r) == 0 {
		return types.RosterEvent{}
	}
	return r[len(r)-1]
}

type staticUsers []*types.User

func (s staticUsers) ListUsers(context.Context) ([]*types.User, error) { return s, nil }

type banSet struct {
	mu     sync.Mutex
	banned map[int64]bool
}

func (b *banSet) IsGloballyBanned(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.banned[userID]
}

func (b *banSet) ban(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.banned[userID] = true
}

func setupHub(t *testing.T) (*Hub, *websocket.Registry, *banSet) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	r := roster.New(staticUsers{
		{ID: 1, Username: "alice"},
		{ID: 2, Username: "bob"},
		{ID: 3, Username: "carol"},
	}, logger)
	require.NoError(t, r.Load(context.Background()))

	registry := websocket.NewRegistry()
	bans := &banSet{banned: map[int64]bool{}}
	h := NewHub(registry, r, bans, logger)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Stop() })
	return h, registry, bans
}

func online(event types.RosterEvent) map[string]bool {
	out := map[string]bool{}
	for _, u := range event.Users {
		out[u.Username] = u.Online
	}
	return out
}

func TestHub_StartStop(t *testing.T) {
	h := NewHub(websocket.NewRegistry(), roster.New(staticUsers{}, zaptest.NewLogger(t)), &banSet{banned: map[int64]bool{}}, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, h.Start(ctx))
	assert.ErrorIs(t, h.Start(ctx), ErrHubAlreadyRunning)
	require.NoError(t, h.Stop())
	assert.ErrorIs(t, h.Stop(), ErrHubNotRunning)

	assert.ErrorIs(t, h.Register(ctx, newConn("c", 1, "alice")), ErrHubNotRunning)

	// restartable
	require.NoError(t, h.Start(ctx))
	require.NoError(t, h.Stop())
}

func TestHub_RegisterBroadcastsFullRoster(t *testing.T) {
	h, registry, _ := setupHub(t)
	ctx := context.Background()

	alice := newConn("a1", 1, "alice")
	require.NoError(t, h.Register(ctx, alice))
	assert.True(t, registry.IsOnline(1), "registration must be complete when Register returns")

	snap := alice.latest()
	assert.Equal(t, types.EventUsersWithIDs, snap.Type)
	assert.Equal(t, map[string]bool{"alice": true, "bob": false, "carol": false}, online(snap))

	bob := newConn("b1", 2, "bob")
	require.NoError(t, h.Register(ctx, bob))
	require.Eventually(t, func() bool {
		return online(alice.latest())["bob"]
	}, time.Second, 5*time.Millisecond)
}

func TestHub_RegisterRejectsUnauthenticated(t *testing.T) {
	h, _, _ := setupHub(t)
	err := h.Register(context.Background(), &recordingConn{id: "anon"})
	assert.ErrorIs(t, err, websocket.ErrConnectionNotAuthenticated)
}

func TestHub_LastConnectionFlipsOffline(t *testing.T) {
	h, registry, _ := setupHub(t)
	ctx := context.Background()

	alice := newConn("a1", 1, "alice")
	phone := newConn("b1", 2, "bob")
	laptop := newConn("b2", 2, "bob")
	for _, c := range []*recordingConn{alice, phone, laptop} {
		require.NoError(t, h.Register(ctx, c))
	}

	require.NoError(t, h.Unregister(phone))
	require.Eventually(t, func() bool { return len(registry.ConnectionsForUser(2)) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, online(alice.latest())["bob"], "one device left keeps bob online")

	require.NoError(t, h.Unregister(laptop))
	require.Eventually(t, func() bool {
		snap := alice.latest()
		isOnline, listed := online(snap)["bob"]
		return listed && !isOnline
	}, time.Second, 5*time.Millisecond)
}

func TestHub_BannedUsersExcludedFromPresence(t *testing.T) {
	h, _, bans := setupHub(t)
	ctx := context.Background()

	alice := newConn("a1", 1, "alice")
	carol := newConn("c1", 3, "carol")
	bans.ban(3)

	require.NoError(t, h.Register(ctx, alice))
	require.NoError(t, h.Register(ctx, carol))

	snap := alice.latest()
	_, listed := online(snap)["carol"]
	assert.False(t, listed)
	assert.Empty(t, carol.rosters(), "banned connections receive no broadcasts")
}

func TestHub_DeliveryHelpers(t *testing.T) {
	h, _, bans := setupHub(t)
	ctx := context.Background()

	alice := newConn("a1", 1, "alice")
	alice2 := newConn("a2", 1, "alice")
	bob := newConn("b1", 2, "bob")
	carol := newConn("c1", 3, "carol")
	for _, c := range []*recordingConn{alice, alice2, bob, carol} {
		require.NoError(t, h.Register(ctx, c))
	}
	bans.ban(3)

	event := types.MessageEvent{Type: types.EventMessage, Message: &types.Message{ID: 1}}
	assert.Equal(t, 3, h.Broadcast(event, nil))
	assert.Equal(t, 2, h.Broadcast(event, func(id int64) bool { return id == 1 }))
	assert.Equal(t, 2, h.SendToUser(1, event))
	assert.Equal(t, 3, h.SendToUsers([]int64{1, 2, 2, 99}, event))
	assert.Equal(t, 0, h.SendToUser(99, event))
}

func TestHub_ProfileChangedRefreshesIdentity(t *testing.T) {
	h, _, _ := setupHub(t)
	ctx := context.Background()

	alice := newConn("a1", 1, "alice")
	require.NoError(t, h.Register(ctx, alice))

	h.ProfileChanged(&types.User{ID: 1, Username: "alicia", Handle: "alicia"})
	assert.Equal(t, "alicia", alice.Identity().Username)
	require.Eventually(t, func() bool {
		_, renamed := online(alice.latest())["alicia"]
		return renamed
	}, time.Second, 5*time.Millisecond)
}

func TestHub_DisconnectUser(t *testing.T) {
	h, _, _ := setupHub(t)
	ctx := context.Background()

	bob := newConn("b1", 2, "bob")
	bob2 := newConn("b2", 2, "bob")
	require.NoError(t, h.Register(ctx, bob))
	require.NoError(t, h.Register(ctx, bob2))

	n := h.DisconnectUser(2, types.Denied("You are banned from the chat."))
	assert.Equal(t, 2, n)
	for _, c := range []*recordingConn{bob, bob2} {
		c.mu.Lock()
		assert.True(t, c.closed)
		last := c.events[len(c.events)-1]
		c.mu.Unlock()
		assert.Equal(t, types.NewErrorEvent(types.Denied("You are banned from the chat.")), last)
	}
}

// pausedHub is marked running but its loop only starts when resume is called.
func pausedHub(t *testing.T) (*Hub, *websocket.Registry, func()) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	r := roster.New(staticUsers{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}}, logger)
	require.NoError(t, r.Load(context.Background()))
	registry := websocket.NewRegistry()
	h := NewHub(registry, r, &banSet{banned: map[int64]bool{}}, logger)

	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	t.Cleanup(func() { _ = h.Stop() })
	return h, registry, func() { go h.run(context.Background(), h.shutdownChannel) }
}

func TestHub_AbandonedRegistrationIsSkipped(t *testing.T) {
	h, registry, resume := pausedHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	alice := newConn("a1", 1, "alice")
	assert.ErrorIs(t, h.Register(ctx, alice), context.Canceled)

	resume()
	// a later registration proves the abandoned one was already drained
	bob := newConn("b1", 2, "bob")
	require.NoError(t, h.Register(context.Background(), bob))
	assert.False(t, registry.IsOnline(1), "a caller that gave up must not stay registered")
	assert.Empty(t, alice.rosters())
}

func TestHub_LateRegistrationIsUndone(t *testing.T) {
	h, registry, _ := setupHub(t)
	_, shutdown := h.state()

	// the loop registered the connection just before the caller gave up
	alice := newConn("a1", 1, "alice")
	req := &registration{conn: alice, done: make(chan error, 1)}
	req.done <- h.handleRegistration(alice)
	require.True(t, registry.IsOnline(1))

	h.undoLateRegistration(req, shutdown)
	require.Eventually(t, func() bool { return !registry.IsOnline(1) }, time.Second, 5*time.Millisecond)
}

func TestHub_UnregisterOverflowIsNotDropped(t *testing.T) {
	h, registry, resume := pausedHub(t)

	alice := newConn("a1", 1, "alice")
	_, err := registry.Register(alice)
	require.NoError(t, err)

	for i := 0; i < cap(h.unregisterChannel); i++ {
		h.unregisterChannel <- newConn("filler", 2, "bob")
	}
	require.NoError(t, h.Unregister(alice))
	assert.True(t, registry.IsOnline(1), "nothing is processed while the loop is paused")

	resume()
	require.Eventually(t, func() bool { return !registry.IsOnline(1) }, time.Second, 5*time.Millisecond)
}

func TestHub_CloseAll(t *testing.T) {
	h, _, _ := setupHub(t)
	ctx := context.Background()

	conns := []*recordingConn{newConn("a1", 1, "alice"), newConn("b1", 2, "bob"), newConn("b2", 2, "bob")}
	for _, c := range conns {
		require.NoError(t, h.Register(ctx, c))
	}

	assert.Equal(t, 3, h.CloseAll())
	for _, c := range conns {
		c.mu.Lock()
		assert.True(t, c.closed, c.id)
		c.mu.Unlock()
	}
}
