package identity

import (
	"time"

	"chathub/pkg/types"
)

type userRecord struct {
	ID             int64   `gorm:"primaryKey;autoIncrement"`
	Username       string  `gorm:"uniqueIndex;not null"`
	PasswordHash   string  `gorm:"not null"`
	Handle         *string `gorm:"uniqueIndex"`
	Email          *string `gorm:"uniqueIndex"`
	ProfilePicture string
	Bio            string
	CreatedAt      time.Time
}

func (userRecord) TableName() string { return "users" }

type groupRecord struct {
	ID             string  `gorm:"primaryKey"`
	Name           string  `gorm:"not null"`
	Handle         *string `gorm:"uniqueIndex"`
	Type           string  `gorm:"not null;default:group"`
	OwnerID        *int64  `gorm:"index"`
	AdminEmail     string
	ProfilePicture string
	Description    string
	CreatedAt      time.Time
}

func (groupRecord) TableName() string { return "chat_groups" }

type groupMember struct {
	GroupID  string `gorm:"primaryKey"`
	UserID   int64  `gorm:"primaryKey;index"`
	JoinedAt time.Time
}

func (groupMember) TableName() string { return "group_members" }

type groupAdmin struct {
	GroupID   string `gorm:"primaryKey"`
	UserID    int64  `gorm:"primaryKey"`
	CreatedAt time.Time
}

func (groupAdmin) TableName() string { return "group_admins" }

type groupBan struct {
	GroupID   string `gorm:"primaryKey"`
	UserID    int64  `gorm:"primaryKey"`
	BannedBy  int64
	CreatedAt time.Time
}

func (groupBan) TableName() string { return "group_bans" }

type globalBan struct {
	UserID    int64 `gorm:"primaryKey"`
	BannedBy  int64
	CreatedAt time.Time
}

func (globalBan) TableName() string { return "global_bans" }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *userRecord) toUser() *types.User {
	return &types.User{
		ID:             r.ID,
		Username:       r.Username,
		PasswordHash:   r.PasswordHash,
		Handle:         deref(r.Handle),
		Email:          deref(r.Email),
		ProfilePicture: r.ProfilePicture,
		Bio:            r.Bio,
		CreatedAt:      r.CreatedAt,
	}
}

func (r *groupRecord) toGroup() *types.Group {
	return &types.Group{
		ID:             r.ID,
		Name:           r.Name,
		Handle:         r.Handle,
		Type:           types.GroupType(r.Type),
		OwnerID:        r.OwnerID,
		AdminEmail:     r.AdminEmail,
		ProfilePicture: r.ProfilePicture,
		Description:    r.Description,
		CreatedAt:      r.CreatedAt,
	}
}
