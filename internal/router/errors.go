package router

import "chathub/pkg/types"

var (
	ErrRateLimitExceeded = &types.ChatError{Kind: types.KindRateLimited, Message: "You are sending messages too quickly. Please slow down."}
	ErrNotJoined         = &types.ChatError{Kind: types.KindUnauthenticated, Message: "Please sign in again."}
	ErrRecipientUnknown  = types.NotFound("That user does not exist.")
	ErrReservedBody      = types.Invalid("Messages cannot start with \"[file]\". Use the upload button to share files.")
	ErrFileNotEditable   = types.Invalid("File messages cannot be edited.")
)
