package websocket

import (
	"sort"
	"sync"

	"chathub/pkg/interfaces"
)

// Registry maps live connections to the users they are bound to.
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic;
// one user may hold several connections (multi-device) and each is tracked by its own id
type Registry struct {
	mu          sync.RWMutex                               // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy fan-out lookups
	connections map[string]interfaces.Connection           // connID -> Connection
	byUser      map[int64]map[string]interfaces.Connection // userID -> connID -> Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
		byUser:      make(map[int64]map[string]interfaces.Connection),
	}
}

// Register adds an authenticated connection. first reports whether this is the
// user's only live connection, i.e. the online set changed.
func (r *Registry) Register(conn interfaces.Connection) (first bool, err error) {
	if conn == nil {
		return false, ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return false, ErrConnectionNotAuthenticated
	}
	userID := conn.Identity().UserID

	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[conn.ID()] = conn
	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[string]interfaces.Connection)
		r.byUser[userID] = conns
	}
	conns[conn.ID()] = conn
	return len(conns) == 1, nil
}

// Unregister removes conn. last reports whether the user has no live connection left.
// FUNCTIONAL DISCOVERY: Idempotent, so the read pump and a forced disconnect can both call it
func (r *Registry) Unregister(conn interfaces.Connection) (last bool) {
	if conn == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[conn.ID()]; !ok {
		return false
	}
	delete(r.connections, conn.ID())

	userID := conn.Identity().UserID
	conns := r.byUser[userID]
	delete(conns, conn.ID())
	if len(conns) == 0 {
		delete(r.byUser, userID)
		return true
	}
	return false
}

// ConnectionsForUser returns every live connection of userID.
func (r *Registry) ConnectionsForUser(userID int64) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]interfaces.Connection, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	return conns
}

// FindByUserID returns one live connection of userID.
func (r *Registry) FindByUserID(userID int64) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.byUser[userID] {
		return c, true
	}
	return nil, false
}

// FindByUsername returns one live connection whose identity carries username.
func (r *Registry) FindByUsername(username string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.connections {
		if c.Identity().Username == username {
			return c, true
		}
	}
	return nil, false
}

// All returns a snapshot of every live connection.
func (r *Registry) All() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]interfaces.Connection, 0, len(r.connections))
	for _, c := range r.connections {
		conns = append(conns, c)
	}
	return conns
}

// IsOnline reports whether userID has at least one live connection.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// OnlineUserIDs returns the online set in ascending order.
func (r *Registry) OnlineUserIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Stats returns registry statistics for monitoring.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"online_users":      len(r.byUser),
	}
}
