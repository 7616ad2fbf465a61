package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"chathub/internal/authz"
	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 1000
)

// Notifier pushes group events to live connections.
type Notifier interface {
	DeliverToGroup(ctx context.Context, groupID string, originator int64, event any) int
	SendToUsers(userIDs []int64, event any) int
}

// Presence drops the connections of banned users and refreshes the roster.
type Presence interface {
	DisconnectUser(userID int64, reason error) int
	RefreshPresence()
}

// CreateInput describes a new group or channel.
type CreateInput struct {
	Name           string          `json:"name" binding:"required,max=100"`
	Handle         string          `json:"handle,omitempty" binding:"max=32"`
	Type           types.GroupType `json:"type,omitempty"`
	Description    string          `json:"description,omitempty" binding:"max=1000"`
	ProfilePicture string          `json:"profilePicture,omitempty" binding:"max=1024"`
}

// Details is a group with its current member and admin ids.
type Details struct {
	*types.Group
	MemberIDs []int64 `json:"memberIds"`
	AdminIDs  []int64 `json:"adminIds"`
}

// Manager implements the group lifecycle: profile, membership, admins and bans.
// ARCHITECTURAL DISCOVERY: every mutation is authorized through the shared
// Checker and persisted before any event is pushed
type Manager struct {
	store    interfaces.IdentityStore
	messages interfaces.MessageStore
	checker  *authz.Checker
	notifier Notifier
	presence Presence
	logger   *zap.Logger
}

// NewManager creates a group manager.
func NewManager(store interfaces.IdentityStore, messages interfaces.MessageStore, checker *authz.Checker,
	notifier Notifier, presence Presence, logger *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		messages: messages,
		checker:  checker,
		notifier: notifier,
		presence: presence,
		logger:   logger.With(zap.String("component", "groups")),
	}
}

// CreateGroup creates a group owned by creatorID, who is seeded as member and admin.
func (m *Manager) CreateGroup(ctx context.Context, creatorID int64, in CreateInput) (*types.Group, error) {
	if err := m.checker.RequireNotGloballyBanned(creatorID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, ErrInvalidGroupName
	}
	if in.Type == "" {
		in.Type = types.GroupTypeGroup
	}
	if in.Type != types.GroupTypeGroup && in.Type != types.GroupTypeChannel {
		return nil, ErrInvalidGroupType
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionLength {
		return nil, ErrDescriptionTooLong
	}

	group := &types.Group{
		Name:           name,
		Type:           in.Type,
		Description:    in.Description,
		ProfilePicture: in.ProfilePicture,
	}
	if in.Handle != "" {
		if !types.IsValidHandle(in.Handle) {
			return nil, ErrInvalidHandle
		}
		handle := in.Handle
		group.Handle = &handle
	}

	if err := m.store.CreateGroup(ctx, group, creatorID); err != nil {
		if errors.Is(err, interfaces.ErrAlreadyExists) {
			return nil, ErrHandleTaken
		}
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	m.logger.Info("group created",
		zap.String("group_id", group.ID),
		zap.String("type", string(group.Type)),
		zap.Int64("user_id", creatorID))
	return group, nil
}

// Details returns a group with its members and admins. Only members may look.
func (m *Manager) Details(ctx context.Context, userID int64, groupID string) (*Details, error) {
	group, err := m.checker.RequireGroupAccess(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	members, err := m.store.ListMemberIDs(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	admins, err := m.store.ListAdminIDs(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	return &Details{Group: group, MemberIDs: members, AdminIDs: admins}, nil
}

// ListGroups returns the groups userID belongs to.
func (m *Manager) ListGroups(ctx context.Context, userID int64) ([]*types.Group, error) {
	groups, err := m.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

// UpdateProfile lets an admin change the name, handle, picture or description.
func (m *Manager) UpdateProfile(ctx context.Context, actorID int64, groupID string, update types.GroupUpdate) (*types.Group, error) {
	group, err := m.loadCustom(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := m.checker.RequireAdmin(ctx, group, actorID); err != nil {
		return nil, err
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" || utf8.RuneCountInString(name) > maxNameLength {
			return nil, ErrInvalidGroupName
		}
		update.Name = &name
	}
	if update.Handle != nil && *update.Handle != "" && !types.IsValidHandle(*update.Handle) {
		return nil, ErrInvalidHandle
	}
	if update.Description != nil && utf8.RuneCountInString(*update.Description) > maxDescriptionLength {
		return nil, ErrDescriptionTooLong
	}

	updated, err := m.store.UpdateGroup(ctx, groupID, update)
	if errors.Is(err, interfaces.ErrAlreadyExists) {
		return nil, ErrHandleTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}

	m.notifier.DeliverToGroup(ctx, groupID, actorID, types.GroupEvent{
		Type:    types.EventGroupProfileUpdated,
		GroupID: groupID,
		Group:   updated,
	})
	return updated, nil
}

// DeleteGroup removes a group and its messages. Only the owner may do this.
func (m *Manager) DeleteGroup(ctx context.Context, actorID int64, groupID string) error {
	group, err := m.loadCustom(ctx, groupID)
	if err != nil {
		return err
	}
	if err := m.checker.RequireOwner(ctx, group, actorID); err != nil {
		return err
	}

	// members are captured first; afterwards there is nobody left to look up
	members, err := m.store.ListMemberIDs(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to list members: %w", err)
	}
	if err := m.store.DeleteGroup(ctx, groupID); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if err := m.messages.DeleteGroupMessages(ctx, groupID); err != nil {
		m.logger.Error("failed to delete group messages", zap.String("group_id", groupID), zap.Error(err))
	}

	m.logger.Info("group deleted", zap.String("group_id", groupID), zap.Int64("user_id", actorID))
	m.notifier.SendToUsers(members, types.GroupEvent{Type: types.EventGroupDeleted, GroupID: groupID})
	return nil
}

// Join adds userID to a group. Joining twice is a no-op.
func (m *Manager) Join(ctx context.Context, userID int64, groupID string) error {
	group, err := m.loadCustom(ctx, groupID)
	if err != nil {
		return err
	}
	if err := m.checker.RequireNotGloballyBanned(userID); err != nil {
		return err
	}
	banned, err := m.checker.IsBanned(ctx, group.ID, userID)
	if err != nil {
		return authz.ErrCheckFailed
	}
	if banned {
		return authz.ErrBannedFromGroup
	}

	member, err := m.store.IsMember(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if member {
		return nil
	}
	user, err := m.user(ctx, userID)
	if err != nil {
		return err
	}
	if err := m.store.AddMember(ctx, groupID, userID); err != nil {
		return fmt.Errorf("failed to join group: %w", err)
	}

	m.notifier.DeliverToGroup(ctx, groupID, userID, types.MemberEvent{
		Type:     types.EventMemberJoined,
		GroupID:  groupID,
		UserID:   userID,
		Username: user.Username,
	})
	return nil
}

// Leave removes userID from a group. The owner has to delete the group instead.
func (m *Manager) Leave(ctx context.Context, userID int64, groupID string) error {
	group, err := m.loadCustom(ctx, groupID)
	if err != nil {
		return err
	}
	owner, err := m.checker.IsOwner(ctx, group, userID)
	if err != nil {
		return authz.ErrCheckFailed
	}
	if owner {
		return ErrOwnerCannotLeave
	}

	user, err := m.user(ctx, userID)
	if err != nil {
		return err
	}
	removed, err := m.dropMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return authz.ErrNotMember
	}

	m.announceDeparture(ctx, types.MemberEvent{
		Type:     types.EventMemberLeft,
		GroupID:  groupID,
		UserID:   userID,
		Username: user.Username,
	})
	return nil
}

// RemoveMember lets an admin remove a member. The owner cannot be removed.
func (m *Manager) RemoveMember(ctx context.Context, actorID int64, groupID string, targetID int64) error {
	if actorID == targetID {
		return ErrSelfTarget
	}
	group, target, err := m.authorizeTarget(ctx, actorID, groupID, targetID)
	if err != nil {
		return err
	}

	removed, err := m.dropMember(ctx, group.ID, targetID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrTargetNotMember
	}

	m.logger.Info("member removed", zap.String("group_id", group.ID), zap.Int64("user_id", targetID), zap.Int64("actor_id", actorID))
	m.announceDeparture(ctx, types.MemberEvent{
		Type:     types.EventMemberRemoved,
		GroupID:  group.ID,
		UserID:   targetID,
		Username: target.Username,
		ActorID:  actorID,
	})
	return nil
}

// AddAdmin promotes a member of the group.
func (m *Manager) AddAdmin(ctx context.Context, actorID int64, groupID string, targetID int64) error {
	group, err := m.loadCustom(ctx, groupID)
	if err != nil {
		return err
	}
	if err := m.checker.RequireAdmin(ctx, group, actorID); err != nil {
		return err
	}
	member, err := m.store.IsMember(ctx, groupID, targetID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !member {
		return ErrTargetNotMember
	}
	if err := m.store.AddAdmin(ctx, groupID, targetID); err != nil {
		return fmt.Errorf("failed to add admin: %w", err)
	}
	m.logger.Info("admin added", zap.String("group_id", groupID), zap.Int64("user_id", targetID), zap.Int64("actor_id", actorID))
	return nil
}

// RemoveAdmin demotes an admin. The owner cannot be demoted.
func (m *Manager) RemoveAdmin(ctx context.Context, actorID int64, groupID string, targetID int64) error {
	group, _, err := m.authorizeTarget(ctx, actorID, groupID, targetID)
	if err != nil {
		return err
	}
	removed, err := m.store.RemoveAdmin(ctx, group.ID, targetID)
	if err != nil {
		return fmt.Errorf("failed to remove admin: %w", err)
	}
	if removed {
		m.logger.Info("admin removed", zap.String("group_id", groupID), zap.Int64("user_id", targetID), zap.Int64("actor_id", actorID))
	}
	return nil
}

// Ban bans a user from a group, stripping membership and admin rights.
func (m *Manager) Ban(ctx context.Context, actorID int64, groupID string, targetID int64) error {
	if actorID == targetID {
		return ErrSelfTarget
	}
	group, target, err := m.authorizeTarget(ctx, actorID, groupID, targetID)
	if err != nil {
		return err
	}

	// recipients are read before the ban removes the target's membership
	members, err := m.store.ListMemberIDs(ctx, group.ID)
	if err != nil {
		return fmt.Errorf("failed to list members: %w", err)
	}
	if err := m.store.BanFromGroup(ctx, group.ID, targetID, actorID); err != nil {
		return fmt.Errorf("failed to ban user: %w", err)
	}
	m.forgetCursor(ctx, group.ID, targetID)

	m.logger.Info("user banned from group", zap.String("group_id", group.ID), zap.Int64("user_id", targetID), zap.Int64("actor_id", actorID))
	m.notifier.SendToUsers(append(members, targetID), types.MemberEvent{
		Type:     types.EventUserBannedFromGroup,
		GroupID:  group.ID,
		UserID:   targetID,
		Username: target.Username,
		ActorID:  actorID,
	})
	return nil
}

// Unban lifts a group ban. The user has to join again.
func (m *Manager) Unban(ctx context.Context, actorID int64, groupID string, targetID int64) error {
	group, err := m.loadCustom(ctx, groupID)
	if err != nil {
		return err
	}
	if err := m.checker.RequireAdmin(ctx, group, actorID); err != nil {
		return err
	}
	removed, err := m.store.UnbanFromGroup(ctx, groupID, targetID)
	if err != nil {
		return fmt.Errorf("failed to unban user: %w", err)
	}
	if !removed {
		return ErrNotBanned
	}
	m.logger.Info("user unbanned from group", zap.String("group_id", groupID), zap.Int64("user_id", targetID), zap.Int64("actor_id", actorID))
	return nil
}

// BanGlobally bans targetID from the whole chat and closes their live connections.
func (m *Manager) BanGlobally(ctx context.Context, actorID, targetID int64) error {
	if err := m.requireGlobalAdmin(ctx, actorID); err != nil {
		return err
	}
	if actorID == targetID {
		return ErrSelfTarget
	}
	if _, err := m.user(ctx, targetID); err != nil {
		return err
	}
	if err := m.checker.BanGlobally(ctx, targetID, actorID); err != nil {
		return fmt.Errorf("failed to ban user: %w", err)
	}

	closed := m.presence.DisconnectUser(targetID, authz.ErrBannedGlobally)
	m.presence.RefreshPresence()
	m.logger.Info("user banned globally",
		zap.Int64("user_id", targetID),
		zap.Int64("actor_id", actorID),
		zap.Int("connections_closed", closed))
	return nil
}

// UnbanGlobally lifts a global ban.
func (m *Manager) UnbanGlobally(ctx context.Context, actorID, targetID int64) error {
	if err := m.requireGlobalAdmin(ctx, actorID); err != nil {
		return err
	}
	removed, err := m.checker.UnbanGlobally(ctx, targetID)
	if err != nil {
		return fmt.Errorf("failed to unban user: %w", err)
	}
	if !removed {
		return ErrNotBanned
	}
	m.presence.RefreshPresence()
	m.logger.Info("user unbanned globally", zap.Int64("user_id", targetID), zap.Int64("actor_id", actorID))
	return nil
}

// loadCustom loads a user-created group. The global room has implicit
// membership and is never managed through these operations.
func (m *Manager) loadCustom(ctx context.Context, groupID string) (*types.Group, error) {
	if groupID == types.GlobalGroupID {
		return nil, ErrGlobalGroup
	}
	return m.checker.LoadGroup(ctx, groupID)
}

// authorizeTarget checks that actorID administers groupID and that targetID is
// an existing user other than the owner.
func (m *Manager) authorizeTarget(ctx context.Context, actorID int64, groupID string, targetID int64) (*types.Group, *types.User, error) {
	group, err := m.loadCustom(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	if err := m.checker.RequireAdmin(ctx, group, actorID); err != nil {
		return nil, nil, err
	}
	target, err := m.user(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}
	owner, err := m.checker.IsOwner(ctx, group, targetID)
	if err != nil {
		return nil, nil, authz.ErrCheckFailed
	}
	if owner {
		return nil, nil, authz.ErrOwnerProtected
	}
	return group, target, nil
}

func (m *Manager) requireGlobalAdmin(ctx context.Context, userID int64) error {
	admin, err := m.checker.IsGlobalAdmin(ctx, userID)
	if err != nil {
		m.logger.Warn("global admin lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return authz.ErrCheckFailed
	}
	if !admin {
		return ErrNotGlobalAdmin
	}
	return nil
}

func (m *Manager) user(ctx context.Context, userID int64) (*types.User, error) {
	user, err := m.store.GetUser(ctx, userID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// dropMember removes both the membership and any admin row.
func (m *Manager) dropMember(ctx context.Context, groupID string, userID int64) (bool, error) {
	removed, err := m.store.RemoveMember(ctx, groupID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove member: %w", err)
	}
	if _, err := m.store.RemoveAdmin(ctx, groupID, userID); err != nil {
		return false, fmt.Errorf("failed to remove admin: %w", err)
	}
	if removed {
		m.forgetCursor(ctx, groupID, userID)
	}
	return removed, nil
}

// forgetCursor drops a departed user's read position so it stops counting
// toward read receipts. Failures are only logged.
func (m *Manager) forgetCursor(ctx context.Context, groupID string, userID int64) {
	if err := m.messages.DeleteGroupCursor(ctx, userID, groupID); err != nil {
		m.logger.Error("failed to delete read cursor",
			zap.String("group_id", groupID), zap.Int64("user_id", userID), zap.Error(err))
	}
}

// announceDeparture tells the remaining members and the departed user.
func (m *Manager) announceDeparture(ctx context.Context, event types.MemberEvent) {
	m.notifier.DeliverToGroup(ctx, event.GroupID, event.UserID, event)
	m.notifier.SendToUsers([]int64{event.UserID}, event)
}
