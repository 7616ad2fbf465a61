// Package authz answers who may do what. Every predicate re-reads the identity
// store except global bans, which are served from a cache the ban operations
// keep current.
package authz

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

// Checker evaluates membership, ban and admin predicates.
// FUNCTIONAL DISCOVERY: any store error is treated as a denial so a flaky
// identity store can never widen access
type Checker struct {
	store  interfaces.IdentityStore
	logger *zap.Logger

	mu         sync.RWMutex
	globalBans map[int64]struct{}
}

// NewChecker creates a checker with an empty ban cache. Call LoadGlobalBans before use.
func NewChecker(store interfaces.IdentityStore, logger *zap.Logger) *Checker {
	return &Checker{
		store:      store,
		logger:     logger.With(zap.String("component", "authz")),
		globalBans: make(map[int64]struct{}),
	}
}

// LoadGlobalBans replaces the cached ban set with the store's.
func (c *Checker) LoadGlobalBans(ctx context.Context) error {
	ids, err := c.store.ListGlobalBans(ctx)
	if err != nil {
		return err
	}
	bans := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		bans[id] = struct{}{}
	}

	c.mu.Lock()
	c.globalBans = bans
	c.mu.Unlock()
	return nil
}

// IsGloballyBanned consults the cache only.
func (c *Checker) IsGloballyBanned(userID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, banned := c.globalBans[userID]
	return banned
}

// BanGlobally persists the ban, then updates the cache.
func (c *Checker) BanGlobally(ctx context.Context, userID, bannedBy int64) error {
	if err := c.store.BanGlobally(ctx, userID, bannedBy); err != nil {
		return err
	}
	c.mu.Lock()
	c.globalBans[userID] = struct{}{}
	c.mu.Unlock()
	return nil
}

// UnbanGlobally removes the ban from the store and the cache.
func (c *Checker) UnbanGlobally(ctx context.Context, userID int64) (bool, error) {
	removed, err := c.store.UnbanGlobally(ctx, userID)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	delete(c.globalBans, userID)
	c.mu.Unlock()
	return removed, nil
}

// IsBanned answers for the global room when groupID is the global id.
func (c *Checker) IsBanned(ctx context.Context, groupID string, userID int64) (bool, error) {
	if groupID == types.GlobalGroupID {
		return c.IsGloballyBanned(userID), nil
	}
	return c.store.IsBannedFromGroup(ctx, groupID, userID)
}

// IsMember treats the global room as containing everyone not banned from it.
func (c *Checker) IsMember(ctx context.Context, groupID string, userID int64) (bool, error) {
	if groupID == types.GlobalGroupID {
		return !c.IsGloballyBanned(userID), nil
	}
	return c.store.IsMember(ctx, groupID, userID)
}

// ResolveOwner returns the group owner: the explicit owner column first, then
// the legacy admin-email linkage.
func (c *Checker) ResolveOwner(ctx context.Context, group *types.Group) (int64, bool, error) {
	if group.OwnerID != nil {
		return *group.OwnerID, true, nil
	}
	if group.AdminEmail == "" {
		return 0, false, nil
	}
	user, err := c.store.GetUserByEmail(ctx, group.AdminEmail)
	if errors.Is(err, interfaces.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return user.ID, true, nil
}

// IsOwner reports whether userID owns group.
func (c *Checker) IsOwner(ctx context.Context, group *types.Group, userID int64) (bool, error) {
	owner, ok, err := c.ResolveOwner(ctx, group)
	if err != nil || !ok {
		return false, err
	}
	return owner == userID, nil
}

// IsAdmin is true for explicit admins and for the legacy admin-email owner.
// A user banned from group is never its admin, whatever the linkage says.
func (c *Checker) IsAdmin(ctx context.Context, group *types.Group, userID int64) (bool, error) {
	banned, err := c.IsBanned(ctx, group.ID, userID)
	if err != nil {
		return false, err
	}
	if banned {
		return false, nil
	}

	explicit, err := c.store.IsExplicitAdmin(ctx, group.ID, userID)
	if err != nil {
		return false, err
	}
	if explicit {
		return true, nil
	}
	if group.AdminEmail == "" {
		return false, nil
	}
	user, err := c.store.GetUser(ctx, userID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.Email != "" && user.Email == group.AdminEmail, nil
}

// IsGlobalAdmin checks explicit admin rows on the global group.
func (c *Checker) IsGlobalAdmin(ctx context.Context, userID int64) (bool, error) {
	global, err := c.store.GetGroup(ctx, types.GlobalGroupID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.IsAdmin(ctx, global, userID)
}

// denyOnError logs a failed lookup and converts it to a denial.
func (c *Checker) denyOnError(err error, msg string, fields ...zap.Field) error {
	c.logger.Warn(msg, append(fields, zap.Error(err))...)
	return ErrCheckFailed
}
