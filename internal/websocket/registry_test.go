package websocket

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chathub/pkg/types"
)

// stubConn is a minimal interfaces.Connection for registry tests.
type stubConn struct {
	id       string
	identity types.Identity
}

func (s *stubConn) ID() string { return s.id }
func (s *stubConn) WriteJSON(interface{}) error { return nil }
func (s *stubConn) Close() error { return nil }
func (s *stubConn) Identity() types.Identity { return s.identity }
func (s *stubConn) IsAuthenticated() bool { return s.identity.UserID != 0 }
func (s *stubConn) SetIdentity(id types.Identity) error {
	s.identity = id
	return nil
}

func stub(id string, userID int64, username string) *stubConn {
	return &stubConn{id: id, identity: types.Identity{UserID: userID, Username: username}}
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(nil)
	assert.ErrorIs(t, err, ErrNilConnection)

	_, err = r.Register(&stubConn{id: "anon"})
	assert.ErrorIs(t, err, ErrConnectionNotAuthenticated)
	assert.Empty(t, r.All())
}

func TestRegistry_MultiDevice(t *testing.T) {
	r := NewRegistry()
	phone := stub("c1", 1, "alice")
	laptop := stub("c2", 1, "alice")

	first, err := r.Register(phone)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = r.Register(laptop)
	require.NoError(t, err)
	assert.False(t, first, "second device does not change the online set")

	assert.True(t, r.IsOnline(1))
	assert.Len(t, r.ConnectionsForUser(1), 2)
	assert.Equal(t, map[string]int{"total_connections": 2, "online_users": 1}, r.Stats())

	assert.False(t, r.Unregister(phone))
	assert.True(t, r.IsOnline(1))

	assert.True(t, r.Unregister(laptop))
	assert.False(t, r.IsOnline(1))
	assert.Empty(t, r.ConnectionsForUser(1))

	// idempotent
	assert.False(t, r.Unregister(laptop))
}

func TestRegistry_Lookups(t *testing.T) {
	r := NewRegistry()
	for _, c := range []*stubConn{stub("a", 1, "alice"), stub("b", 2, "bob"), stub("c", 3, "carol")} {
		_, err := r.Register(c)
		require.NoError(t, err)
	}

	conn, ok := r.FindByUsername("bob")
	require.True(t, ok)
	assert.Equal(t, "b", conn.ID())

	conn, ok = r.FindByUserID(3)
	require.True(t, ok)
	assert.Equal(t, "c", conn.ID())

	_, ok = r.FindByUsername("dave")
	assert.False(t, ok)
	_, ok = r.FindByUserID(99)
	assert.False(t, ok)

	assert.Len(t, r.All(), 3)
	assert.Equal(t, []int64{1, 2, 3}, r.OnlineUserIDs())
}

func TestRegistry_ConcurrentRegistrationAndUnregistration(t *testing.T) {
	r := NewRegistry()
	const n = 50

	conns := make([]*stubConn, n)
	for i := range conns {
		conns[i] = stub(fmt.Sprintf("c%d", i), int64(i%10+1), fmt.Sprintf("user%d", i%10))
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *stubConn) {
			defer wg.Done()
			_, err := r.Register(c)
			assert.NoError(t, err)
			_ = r.IsOnline(c.identity.UserID)
			_ = r.All()
		}(c)
	}
	wg.Wait()
	assert.Len(t, r.All(), n)
	assert.Len(t, r.OnlineUserIDs(), 10)

	lasts := make(chan bool, n)
	for _, c := range conns {
		wg.Add(1)
		go func(c *stubConn) {
			defer wg.Done()
			lasts <- r.Unregister(c)
		}(c)
	}
	wg.Wait()
	close(lasts)

	count := 0
	for last := range lasts {
		if last {
			count++
		}
	}
	assert.Equal(t, 10, count, "exactly one unregister per user reports the last connection")
	assert.Empty(t, r.All())
}
