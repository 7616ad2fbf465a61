package authz

import "chathub/pkg/types"

var (
	ErrBannedGlobally    = types.Denied("You are banned from the chat.")
	ErrBannedFromGroup   = types.Denied("You are banned from this group.")
	ErrNotMember         = types.Denied("You are not a member of this group.")
	ErrChannelAdminsOnly = types.Denied("Only admins can post in this channel.")
	ErrNotAuthor         = types.Denied("You can only edit your own messages.")
	ErrCannotDelete      = types.Denied("You can only delete your own messages.")
	ErrNotAdmin          = types.Denied("Only group admins can do that.")
	ErrNotOwner          = types.Denied("Only the group owner can do that.")
	ErrOwnerProtected    = types.Denied("The group owner cannot be removed, demoted or banned.")
	ErrCannotSee         = types.Denied("You cannot access this message.")
	ErrCheckFailed       = types.Denied("We could not verify your permissions. Please try again.")
	ErrGroupNotFound     = types.NotFound("Group not found.")
	ErrMessageNotFound   = types.NotFound("Message not found.")
)
