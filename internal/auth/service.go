package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

// ProfileObserver is told about every identity change so presence stays current.
type ProfileObserver interface {
	ProfileChanged(user *types.User)
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Username string `json:"username" binding:"required,max=32"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Email    string `json:"email" binding:"omitempty,email"`
}

// Service owns accounts: sign up, sign in, token refresh and profile changes.
type Service struct {
	store      interfaces.IdentityStore
	tokens     *Tokens
	bcryptCost int
	observer   ProfileObserver
	logger     *zap.Logger
}

// NewService wires the account service. observer may be nil.
func NewService(store interfaces.IdentityStore, tokens *Tokens, bcryptCost int, observer ProfileObserver, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		observer:   observer,
		logger:     logger.With(zap.String("component", "auth")),
	}
}

// Register creates the account and signs the user in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*types.User, *Pair, error) {
	username := strings.TrimSpace(in.Username)
	if !types.IsValidUsername(username) {
		return nil, nil, ErrInvalidUsername
	}

	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, nil, err
	}

	if in.Email != "" {
		if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
			return nil, nil, ErrEmailTaken
		} else if !errors.Is(err, interfaces.ErrNotFound) {
			return nil, nil, err
		}
		if err := s.requireUnreservedEmail(ctx, in.Email); err != nil {
			return nil, nil, err
		}
	}

	user := &types.User{Username: username, PasswordHash: hash, Email: in.Email}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, interfaces.ErrAlreadyExists) {
			return nil, nil, ErrUsernameTaken
		}
		return nil, nil, err
	}

	pair, err := s.tokens.GeneratePair(user.ID, user.Username)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	s.notify(user)
	return user, pair, nil
}

// Login checks the password and issues a token pair.
func (s *Service) Login(ctx context.Context, username, password string) (*types.User, *Pair, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, nil, ErrBadCredentials
	}
	if err != nil {
		return nil, nil, err
	}

	ok, err := CheckPassword(user.PasswordHash, password)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrBadCredentials
	}

	pair, err := s.tokens.GeneratePair(user.ID, user.Username)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh exchanges a refresh token for a new pair if the user still exists.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Pair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, claims.UserID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, err
	}
	return s.tokens.GeneratePair(user.ID, user.Username)
}

// Authenticate resolves an access token to the identity a connection binds to.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (types.Identity, error) {
	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		return types.Identity{}, err
	}
	user, err := s.store.GetUser(ctx, claims.UserID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return types.Identity{}, ErrUnknownUser
	}
	if err != nil {
		return types.Identity{}, err
	}
	return types.Identity{
		UserID:         user.ID,
		Username:       user.Username,
		Handle:         user.Handle,
		ProfilePicture: user.ProfilePicture,
	}, nil
}

// ChangePassword requires the current password.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return ErrUnknownUser
	}
	if err != nil {
		return err
	}

	ok, err := CheckPassword(user.PasswordHash, current)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWrongPassword
	}

	hash, err := HashPassword(next, s.bcryptCost)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, userID, hash)
}

// UpdateProfile validates and applies a partial profile change.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, update types.ProfileUpdate) (*types.User, error) {
	if update.Username != nil {
		trimmed := strings.TrimSpace(*update.Username)
		if !types.IsValidUsername(trimmed) {
			return nil, ErrInvalidUsername
		}
		update.Username = &trimmed
	}
	if update.Handle != nil && *update.Handle != "" && !types.IsValidHandle(*update.Handle) {
		return nil, ErrInvalidHandle
	}
	if update.Email != nil && *update.Email != "" {
		current, err := s.store.GetUser(ctx, userID)
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		if err != nil {
			return nil, err
		}
		if current.Email != *update.Email {
			if err := s.requireUnreservedEmail(ctx, *update.Email); err != nil {
				return nil, err
			}
		}
	}

	user, err := s.store.UpdateProfile(ctx, userID, update)
	switch {
	case errors.Is(err, interfaces.ErrAlreadyExists):
		return nil, ErrProfileConflict
	case errors.Is(err, interfaces.ErrNotFound):
		return nil, ErrUnknownUser
	case err != nil:
		return nil, err
	}

	s.notify(user)
	return user, nil
}

// requireUnreservedEmail refuses addresses that a legacy group still links to
// its admin, since holding that address would grant admin and ownership.
func (s *Service) requireUnreservedEmail(ctx context.Context, email string) error {
	reserved, err := s.store.IsLegacyAdminEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to check email reservation: %w", err)
	}
	if reserved {
		return ErrEmailReserved
	}
	return nil
}

func (s *Service) notify(user *types.User) {
	if s.observer != nil {
		s.observer.ProfileChanged(user)
	}
}
