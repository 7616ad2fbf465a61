package groups

import "chathub/pkg/types"

// Group management errors.
var (
	ErrInvalidGroupName   = types.Invalid("Group name must be 1-100 characters.")
	ErrInvalidGroupType   = types.Invalid("Group type must be 'group' or 'channel'.")
	ErrInvalidHandle      = types.Invalid("Handles use 3-32 lowercase letters, digits or underscores.")
	ErrDescriptionTooLong = types.Invalid("Description is too long.")
	ErrHandleTaken        = types.Invalid("That handle is already in use.")
	ErrGlobalGroup        = types.Invalid("The global chat cannot be changed this way.")
	ErrOwnerCannotLeave   = types.Invalid("The group owner cannot leave. Delete the group instead.")
	ErrSelfTarget         = types.Invalid("You cannot do that to yourself.")
	ErrUserNotFound       = types.NotFound("That user does not exist.")
	ErrTargetNotMember    = types.NotFound("That user is not a member of this group.")
	ErrNotBanned          = types.NotFound("That user is not banned.")
	ErrNotGlobalAdmin     = types.Denied("Only chat administrators can do that.")
)
