package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chathub/pkg/types"
)

var gormNotFound = gorm.ErrRecordNotFound

// EnsureGlobalGroup creates the distinguished global group when missing.
func (s *Store) EnsureGlobalGroup(ctx context.Context) error {
	record := groupRecord{ID: types.GlobalGroupID, Name: "Global", Type: string(types.GroupTypeGroup)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
}

// CreateGroup persists group and seeds creatorID as owner, member and admin in one transaction.
func (s *Store) CreateGroup(ctx context.Context, group *types.Group, creatorID int64) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.Type == "" {
		group.Type = types.GroupTypeGroup
	}
	if group.OwnerID == nil {
		group.OwnerID = &creatorID
	}

	record := groupRecord{
		ID:             group.ID,
		Name:           group.Name,
		Handle:         group.Handle,
		Type:           string(group.Type),
		OwnerID:        group.OwnerID,
		AdminEmail:     group.AdminEmail,
		ProfilePicture: group.ProfilePicture,
		Description:    group.Description,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.Create(&groupMember{GroupID: group.ID, UserID: creatorID, JoinedAt: now}).Error; err != nil {
			return err
		}
		return tx.Create(&groupAdmin{GroupID: group.ID, UserID: creatorID, CreatedAt: now}).Error
	})
	if err != nil {
		return translate(err)
	}
	group.CreatedAt = record.CreatedAt
	return nil
}

func (s *Store) GetGroup(ctx context.Context, groupID string) (*types.Group, error) {
	var record groupRecord
	if err := s.db.WithContext(ctx).Where("id = ?", groupID).First(&record).Error; err != nil {
		return nil, translate(err)
	}
	return record.toGroup(), nil
}

// UpdateGroup writes the non-nil fields of update and returns the stored group.
func (s *Store) UpdateGroup(ctx context.Context, groupID string, update types.GroupUpdate) (*types.Group, error) {
	changes := map[string]any{}
	if update.Name != nil {
		changes["name"] = *update.Name
	}
	if update.Handle != nil {
		changes["handle"] = optional(*update.Handle)
	}
	if update.ProfilePicture != nil {
		changes["profile_picture"] = *update.ProfilePicture
	}
	if update.Description != nil {
		changes["description"] = *update.Description
	}

	if len(changes) > 0 {
		result := s.db.WithContext(ctx).Model(&groupRecord{}).Where("id = ?", groupID).Updates(changes)
		if result.Error != nil {
			return nil, translate(result.Error)
		}
	}
	return s.GetGroup(ctx, groupID)
}

// DeleteGroup removes the group with its memberships, admins and bans.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&groupMember{}, &groupAdmin{}, &groupBan{}} {
			if err := tx.Where("group_id = ?", groupID).Delete(model).Error; err != nil {
				return err
			}
		}
		result := tx.Where("id = ?", groupID).Delete(&groupRecord{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gormNotFound
		}
		return nil
	}))
}

// ClaimLegacyOwners copies the user matched by admin_email into the owner
// column of every group that has no explicit owner yet. It returns how many
// groups were claimed.
func (s *Store) ClaimLegacyOwners(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Exec(`
		UPDATE chat_groups
		SET owner_id = (SELECT users.id FROM users WHERE users.email = chat_groups.admin_email)
		WHERE owner_id IS NULL AND admin_email != ''
		AND EXISTS (SELECT 1 FROM users WHERE users.email = chat_groups.admin_email)`)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to claim legacy owners: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// IsLegacyAdminEmail reports whether any group still names email as its admin linkage.
func (s *Store) IsLegacyAdminEmail(ctx context.Context, email string) (bool, error) {
	if email == "" {
		return false, nil
	}
	return s.exists(ctx, &groupRecord{}, "admin_email = ?", email)
}

// ListGroupsForUser returns the groups userID is a member of, oldest first.
func (s *Store) ListGroupsForUser(ctx context.Context, userID int64) ([]*types.Group, error) {
	var records []groupRecord
	err := s.db.WithContext(ctx).
		Joins("JOIN group_members ON group_members.group_id = chat_groups.id").
		Where("group_members.user_id = ?", userID).
		Order("chat_groups.created_at").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	groups := make([]*types.Group, 0, len(records))
	for i := range records {
		groups = append(groups, records[i].toGroup())
	}
	return groups, nil
}

// AddMember is idempotent.
func (s *Store) AddMember(ctx context.Context, groupID string, userID int64) error {
	row := groupMember{GroupID: groupID, UserID: userID, JoinedAt: time.Now().UTC()}
	return translate(s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error)
}

func (s *Store) RemoveMember(ctx context.Context, groupID string, userID int64) (bool, error) {
	return s.deleteRow(ctx, &groupMember{}, "group_id = ? AND user_id = ?", groupID, userID)
}

func (s *Store) IsMember(ctx context.Context, groupID string, userID int64) (bool, error) {
	return s.exists(ctx, &groupMember{}, "group_id = ? AND user_id = ?", groupID, userID)
}

func (s *Store) ListMemberIDs(ctx context.Context, groupID string) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&groupMember{}).Where("group_id = ?", groupID).Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

// AddAdmin is idempotent.
func (s *Store) AddAdmin(ctx context.Context, groupID string, userID int64) error {
	row := groupAdmin{GroupID: groupID, UserID: userID, CreatedAt: time.Now().UTC()}
	return translate(s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error)
}

func (s *Store) RemoveAdmin(ctx context.Context, groupID string, userID int64) (bool, error) {
	return s.deleteRow(ctx, &groupAdmin{}, "group_id = ? AND user_id = ?", groupID, userID)
}

func (s *Store) IsExplicitAdmin(ctx context.Context, groupID string, userID int64) (bool, error) {
	return s.exists(ctx, &groupAdmin{}, "group_id = ? AND user_id = ?", groupID, userID)
}

func (s *Store) ListAdminIDs(ctx context.Context, groupID string) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&groupAdmin{}).Where("group_id = ?", groupID).Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

func (s *Store) exists(ctx context.Context, model any, query string, args ...any) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(model).Where(query, args...).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) deleteRow(ctx context.Context, model any, query string, args ...any) (bool, error) {
	result := s.db.WithContext(ctx).Where(query, args...).Delete(model)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
