package identity

import (
	"context"
	"fmt"

	"chathub/pkg/types"
)

// CreateUser inserts user and assigns its ID and CreatedAt.
func (s *Store) CreateUser(ctx context.Context, user *types.User) error {
	record := userRecord{
		Username:       user.Username,
		PasswordHash:   user.PasswordHash,
		Handle:         optional(user.Handle),
		Email:          optional(user.Email),
		ProfilePicture: user.ProfilePicture,
		Bio:            user.Bio,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return translate(err)
	}
	user.ID = record.ID
	user.CreatedAt = record.CreatedAt
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	return s.findUser(ctx, "id = ?", userID)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	return s.findUser(ctx, "username = ?", username)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return s.findUser(ctx, "email = ?", email)
}

func (s *Store) findUser(ctx context.Context, query string, arg any) (*types.User, error) {
	var record userRecord
	if err := s.db.WithContext(ctx).Where(query, arg).First(&record).Error; err != nil {
		return nil, translate(err)
	}
	return record.toUser(), nil
}

// ListUsers returns every user ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]*types.User, error) {
	var records []userRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users := make([]*types.User, 0, len(records))
	for i := range records {
		users = append(users, records[i].toUser())
	}
	return users, nil
}

// UpdateProfile writes the non-nil fields of update and returns the stored user.
func (s *Store) UpdateProfile(ctx context.Context, userID int64, update types.ProfileUpdate) (*types.User, error) {
	changes := map[string]any{}
	if update.Username != nil {
		changes["username"] = *update.Username
	}
	if update.Handle != nil {
		changes["handle"] = optional(*update.Handle)
	}
	if update.Email != nil {
		changes["email"] = optional(*update.Email)
	}
	if update.ProfilePicture != nil {
		changes["profile_picture"] = *update.ProfilePicture
	}
	if update.Bio != nil {
		changes["bio"] = *update.Bio
	}

	if len(changes) > 0 {
		result := s.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", userID).Updates(changes)
		if result.Error != nil {
			return nil, translate(result.Error)
		}
	}
	return s.GetUser(ctx, userID)
}

// UpdatePassword replaces the stored hash.
func (s *Store) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	result := s.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", userID).Update("password_hash", passwordHash)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return translate(gormNotFound)
	}
	return nil
}
