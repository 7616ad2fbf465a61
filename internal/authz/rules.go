package authz

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

// RequireNotGloballyBanned guards every global-room action.
func (c *Checker) RequireNotGloballyBanned(userID int64) error {
	if c.IsGloballyBanned(userID) {
		return ErrBannedGlobally
	}
	return nil
}

// LoadGroup fetches groupID, mapping a missing row to ErrGroupNotFound.
func (c *Checker) LoadGroup(ctx context.Context, groupID string) (*types.Group, error) {
	group, err := c.store.GetGroup(ctx, groupID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, c.denyOnError(err, "group lookup failed", zap.String("group_id", groupID))
	}
	return group, nil
}

// RequireGroupAccess checks that userID is a non-banned member of groupID and
// returns the group.
func (c *Checker) RequireGroupAccess(ctx context.Context, groupID string, userID int64) (*types.Group, error) {
	group, err := c.LoadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	banned, err := c.store.IsBannedFromGroup(ctx, groupID, userID)
	if err != nil {
		return nil, c.denyOnError(err, "ban lookup failed", zap.String("group_id", groupID), zap.Int64("user_id", userID))
	}
	if banned {
		return nil, ErrBannedFromGroup
	}

	member, err := c.store.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, c.denyOnError(err, "membership lookup failed", zap.String("group_id", groupID), zap.Int64("user_id", userID))
	}
	if !member {
		return nil, ErrNotMember
	}
	return group, nil
}

// RequireCanPost adds the channel rule on top of RequireGroupAccess.
func (c *Checker) RequireCanPost(ctx context.Context, groupID string, userID int64) (*types.Group, error) {
	group, err := c.RequireGroupAccess(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !group.IsChannel() {
		return group, nil
	}
	if err := c.RequireAdmin(ctx, group, userID); err != nil {
		if errors.Is(err, ErrNotAdmin) {
			return nil, ErrChannelAdminsOnly
		}
		return nil, err
	}
	return group, nil
}

// RequireAdmin denies non-admins of group.
func (c *Checker) RequireAdmin(ctx context.Context, group *types.Group, userID int64) error {
	admin, err := c.IsAdmin(ctx, group, userID)
	if err != nil {
		return c.denyOnError(err, "admin lookup failed", zap.String("group_id", group.ID), zap.Int64("user_id", userID))
	}
	if !admin {
		return ErrNotAdmin
	}
	return nil
}

// RequireOwner denies everyone but the resolved owner of group.
func (c *Checker) RequireOwner(ctx context.Context, group *types.Group, userID int64) error {
	owner, err := c.IsOwner(ctx, group, userID)
	if err != nil {
		return c.denyOnError(err, "owner lookup failed", zap.String("group_id", group.ID))
	}
	if !owner {
		return ErrNotOwner
	}
	return nil
}

// RequireCanSee checks that userID may observe message: global needs no ban,
// group needs non-banned membership, private needs to be one of the two parties.
func (c *Checker) RequireCanSee(ctx context.Context, message *types.Message, userID int64) error {
	switch message.Scope {
	case types.ScopeGlobal:
		return c.RequireNotGloballyBanned(userID)
	case types.ScopeGroup:
		_, err := c.RequireGroupAccess(ctx, message.GroupID, userID)
		return err
	case types.ScopePrivate:
		if message.SenderID == userID || message.ReceiverID == userID {
			return nil
		}
		return ErrCannotSee
	default:
		return types.ErrInvalidScope
	}
}

// RequireCanEdit allows the author only.
func (c *Checker) RequireCanEdit(message *types.Message, userID int64) error {
	if message.SenderID != userID {
		return ErrNotAuthor
	}
	return nil
}

// RequireCanDelete allows the author, or an admin of the message's room.
// Private messages have no admin, so only their author may delete them.
func (c *Checker) RequireCanDelete(ctx context.Context, message *types.Message, userID int64) error {
	if message.SenderID == userID {
		return nil
	}

	var groupID string
	switch message.Scope {
	case types.ScopeGlobal:
		groupID = types.GlobalGroupID
	case types.ScopeGroup:
		groupID = message.GroupID
	default:
		return ErrCannotDelete
	}

	group, err := c.store.GetGroup(ctx, groupID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return ErrCannotDelete
	}
	if err != nil {
		return c.denyOnError(err, "group lookup failed", zap.String("group_id", groupID))
	}
	if err := c.RequireAdmin(ctx, group, userID); err != nil {
		if errors.Is(err, ErrNotAdmin) {
			return ErrCannotDelete
		}
		return err
	}
	return nil
}
