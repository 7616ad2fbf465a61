package roster

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"chathub/pkg/types"
)

// UserLister is the slice of the identity store the roster needs.
type UserLister interface {
	ListUsers(ctx context.Context) ([]*types.User, error)
}

// Roster is the in-memory list of every known identity with its presence flag.
// ARCHITECTURAL DISCOVERY: entries outlive connections; going offline only flips
// the flag so the roster snapshot always lists everyone
type Roster struct {
	users   UserLister
	logger  *zap.Logger
	entries map[int64]*types.RosterEntry
	byName  map[string]int64
	mu      sync.RWMutex
}

// New creates an empty roster.
func New(users UserLister, logger *zap.Logger) *Roster {
	return &Roster{
		users:   users,
		logger:  logger.With(zap.String("component", "roster")),
		entries: make(map[int64]*types.RosterEntry),
		byName:  make(map[string]int64),
	}
}

// Load rebuilds the roster from the identity store. Presence flags of users
// already known are kept.
func (r *Roster) Load(ctx context.Context) error {
	users, err := r.users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load roster: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range users {
		r.upsertLocked(u)
	}

	r.logger.Info("roster loaded", zap.Int("users", len(users)))
	return nil
}

// Upsert adds user or refreshes its profile fields.
func (r *Roster) Upsert(user *types.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertLocked(user)
}

func (r *Roster) upsertLocked(user *types.User) {
	entry, exists := r.entries[user.ID]
	if !exists {
		entry = &types.RosterEntry{UserID: user.ID}
		r.entries[user.ID] = entry
	} else if entry.Username != user.Username {
		delete(r.byName, entry.Username)
	}
	entry.Username = user.Username
	entry.Handle = user.Handle
	entry.ProfilePicture = user.ProfilePicture
	r.byName[user.Username] = user.ID
}

// SetOnline flips the presence flag. Unknown users are ignored.
func (r *Roster) SetOnline(userID int64, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[userID]; ok {
		entry.Online = online
	}
}

// Lookup returns a copy of the entry for userID.
func (r *Roster) Lookup(userID int64) (types.RosterEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[userID]
	if !ok {
		return types.RosterEntry{}, false
	}
	return *entry, true
}

// LookupByUsername resolves an exact username.
func (r *Roster) LookupByUsername(username string) (types.RosterEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[username]
	if !ok {
		return types.RosterEntry{}, false
	}
	return *r.entries[id], true
}

// Snapshot returns every entry not rejected by exclude, ordered by username.
func (r *Roster) Snapshot(exclude func(userID int64) bool) []types.RosterEntry {
	r.mu.RLock()
	out := make([]types.RosterEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if exclude != nil && exclude(entry.UserID) {
			continue
		}
		out = append(out, *entry)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Len returns the number of known identities.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
