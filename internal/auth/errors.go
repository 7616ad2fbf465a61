package auth

import "chathub/pkg/types"

func unauthenticated(msg string) *types.ChatError {
	return &types.ChatError{Kind: types.KindUnauthenticated, Message: msg}
}

var (
	ErrTokenExpired    = unauthenticated("Your session has expired. Please sign in again.")
	ErrTokenInvalid    = unauthenticated("Please sign in again.")
	ErrRefreshExpired  = unauthenticated("Your session has expired. Please sign in again.")
	ErrRefreshInvalid  = unauthenticated("Please sign in again.")
	ErrBadCredentials  = unauthenticated("Incorrect username or password.")
	ErrUnknownUser     = unauthenticated("This account no longer exists.")
	ErrUsernameTaken   = types.Invalid("That username is already taken.")
	ErrEmailTaken      = types.Invalid("That email is already registered.")
	ErrEmailReserved   = types.Invalid("That email is reserved by an existing group.")
	ErrHandleTaken     = types.Invalid("That handle is already taken.")
	ErrInvalidUsername = types.Invalid("Usernames may contain letters, digits, dot, dash and underscore (max 32).")
	ErrInvalidHandle   = types.Invalid("Handles are 3-32 lowercase letters, digits or underscores.")
	ErrWeakPassword    = types.Invalid("Passwords must be at least 8 characters.")
	ErrWrongPassword   = types.Denied("The current password is incorrect.")
	ErrProfileConflict = types.Invalid("That username, email or handle is already in use.")
)
