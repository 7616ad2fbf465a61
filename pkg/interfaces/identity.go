package interfaces

import (
	"context"

	"chathub/pkg/types"
)

// IdentityStore persists users, groups, memberships, admins and bans.
type IdentityStore interface {
	CreateUser(ctx context.Context, user *types.User) error
	GetUser(ctx context.Context, userID int64) (*types.User, error)
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	ListUsers(ctx context.Context) ([]*types.User, error)
	UpdateProfile(ctx context.Context, userID int64, update types.ProfileUpdate) (*types.User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error

	// EnsureGlobalGroup creates the distinguished global group if missing.
	EnsureGlobalGroup(ctx context.Context) error
	// CreateGroup persists the group and seeds creator as member and admin atomically.
	CreateGroup(ctx context.Context, group *types.Group, creatorID int64) error
	GetGroup(ctx context.Context, groupID string) (*types.Group, error)
	UpdateGroup(ctx context.Context, groupID string, update types.GroupUpdate) (*types.Group, error)
	DeleteGroup(ctx context.Context, groupID string) error
	ListGroupsForUser(ctx context.Context, userID int64) ([]*types.Group, error)

	// ClaimLegacyOwners fills the owner column from the legacy admin-email linkage.
	ClaimLegacyOwners(ctx context.Context) (int64, error)
	IsLegacyAdminEmail(ctx context.Context, email string) (bool, error)

	AddMember(ctx context.Context, groupID string, userID int64) error
	RemoveMember(ctx context.Context, groupID string, userID int64) (bool, error)
	IsMember(ctx context.Context, groupID string, userID int64) (bool, error)
	ListMemberIDs(ctx context.Context, groupID string) ([]int64, error)

	AddAdmin(ctx context.Context, groupID string, userID int64) error
	RemoveAdmin(ctx context.Context, groupID string, userID int64) (bool, error)
	IsExplicitAdmin(ctx context.Context, groupID string, userID int64) (bool, error)
	ListAdminIDs(ctx context.Context, groupID string) ([]int64, error)

	// BanFromGroup inserts the ban and removes membership and admin rows in one transaction.
	BanFromGroup(ctx context.Context, groupID string, userID, bannedBy int64) error
	UnbanFromGroup(ctx context.Context, groupID string, userID int64) (bool, error)
	IsBannedFromGroup(ctx context.Context, groupID string, userID int64) (bool, error)

	BanGlobally(ctx context.Context, userID, bannedBy int64) error
	UnbanGlobally(ctx context.Context, userID int64) (bool, error)
	ListGlobalBans(ctx context.Context) ([]int64, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
