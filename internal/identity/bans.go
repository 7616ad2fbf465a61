package identity

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chathub/pkg/types"
)

// BanFromGroup records the ban and strips membership and admin rows in one
// transaction, so a banned user is never left a member or an admin.
func (s *Store) BanFromGroup(ctx context.Context, groupID string, userID, bannedBy int64) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ban := groupBan{GroupID: groupID, UserID: userID, BannedBy: bannedBy, CreatedAt: time.Now().UTC()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ban).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&groupMember{}).Error; err != nil {
			return err
		}
		return tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&groupAdmin{}).Error
	}))
}

func (s *Store) UnbanFromGroup(ctx context.Context, groupID string, userID int64) (bool, error) {
	return s.deleteRow(ctx, &groupBan{}, "group_id = ? AND user_id = ?", groupID, userID)
}

func (s *Store) IsBannedFromGroup(ctx context.Context, groupID string, userID int64) (bool, error) {
	return s.exists(ctx, &groupBan{}, "group_id = ? AND user_id = ?", groupID, userID)
}

// BanGlobally records a global ban and drops any global admin row for userID.
func (s *Store) BanGlobally(ctx context.Context, userID, bannedBy int64) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ban := globalBan{UserID: userID, BannedBy: bannedBy, CreatedAt: time.Now().UTC()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ban).Error; err != nil {
			return err
		}
		return tx.Where("group_id = ? AND user_id = ?", types.GlobalGroupID, userID).Delete(&groupAdmin{}).Error
	}))
}

func (s *Store) UnbanGlobally(ctx context.Context, userID int64) (bool, error) {
	return s.deleteRow(ctx, &globalBan{}, "user_id = ?", userID)
}

// ListGlobalBans returns every globally banned user id.
func (s *Store) ListGlobalBans(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&globalBan{}).Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}
