package types

import (
	"time"
)

// GlobalGroupID is the distinguished group every non-banned user belongs to.
const GlobalGroupID = "global"

// Scope tags which table a message, reaction or cursor lives in.
// ARCHITECTURAL DISCOVERY: the wire values are the historical reaction scope tags,
// so "group" means the global room and "custom_group" a user-created group or channel
type Scope string

const (
	ScopeGlobal  Scope = "group"
	ScopeGroup   Scope = "custom_group"
	ScopePrivate Scope = "private"
)

// Valid reports whether s is one of the three known scopes.
func (s Scope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeGroup, ScopePrivate:
		return true
	default:
		return false
	}
}

// GroupType distinguishes open groups from admin-only-authorship channels.
type GroupType string

const (
	GroupTypeGroup   GroupType = "group"
	GroupTypeChannel GroupType = "channel"
)

// MessageKind is stored alongside each message body.
type MessageKind string

const (
	MessageKindGroup  MessageKind = "group"
	MessageKindSystem MessageKind = "system"
)

// Inbound frame types accepted over a socket.
const (
	InboundJoin               = "join"
	InboundMessage            = "message"
	InboundPrivateMessage     = "private_message"
	InboundGroupMessage       = "group_message"
	InboundFileMessage        = "file_message"
	InboundEditMessage        = "edit_message"
	InboundDelete             = "delete"
	InboundAddReaction        = "add_reaction"
	InboundRemoveReaction     = "remove_reaction"
	InboundLoadPrivateHistory = "load_private_history"
	InboundLoadGroupHistory   = "load_group_history"
	InboundMarkRead           = "mark_read"
)

// Outbound event types pushed to connections.
const (
	EventHistory             = "history"
	EventPrivateHistory      = "private_history"
	EventGroupHistory        = "group_history"
	EventMessage             = "message"
	EventPrivateMessage      = "private_message"
	EventGroupMessage        = "group_message"
	EventUsersWithIDs        = "users_with_ids"
	EventMessageDeleted      = "message_deleted"
	EventEditMessage         = "edit_message"
	EventReactionUpdated     = "reaction_updated"
	EventMessagesRead        = "messages_read"
	EventMemberJoined        = "member_joined"
	EventMemberLeft          = "member_left"
	EventMemberRemoved       = "member_removed"
	EventUserBannedFromGroup = "user_banned_from_group"
	EventGroupDeleted        = "group_deleted"
	EventGroupProfileUpdated = "group_profile_updated"
	EventAuthError           = "auth_error"
	EventError               = "error"
)

// User is an identity record. PasswordHash never leaves the server.
type User struct {
	ID             int64     `json:"userId"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	Handle         string    `json:"handle"`
	Email          string    `json:"email,omitempty"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Group covers both groups and channels.
// FUNCTIONAL DISCOVERY: AdminEmail is the pre-migration owner linkage and is only
// consulted through authz.ResolveOwner and the isAdmin fallback
type Group struct {
	ID             string    `json:"groupId"`
	Name           string    `json:"name"`
	Handle         *string   `json:"handle,omitempty"`
	Type           GroupType `json:"type"`
	OwnerID        *int64    `json:"ownerId,omitempty"`
	AdminEmail     string    `json:"-"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// IsChannel reports whether only admins may author messages.
func (g *Group) IsChannel() bool {
	return g.Type == GroupTypeChannel
}

// ReplyRef is a shallow snapshot of the message being replied to. It is not a
// foreign key: the referenced message may since have been edited or deleted.
type ReplyRef struct {
	MessageID int64  `json:"messageId"`
	Username  string `json:"username"`
	Preview   string `json:"text"`
}

// ReadFlag renders as 0/1 on the wire.
type ReadFlag bool

func (f ReadFlag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

func (f *ReadFlag) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "1", "true":
		*f = true
	default:
		*f = false
	}
	return nil
}

// Message unifies the global, group and private variants. Scope says which one.
type Message struct {
	ID               int64       `json:"messageId"`
	Scope            Scope       `json:"scope"`
	GroupID          string      `json:"groupId,omitempty"`
	SenderID         int64       `json:"userId"`
	SenderUsername   string      `json:"username"`
	ReceiverID       int64       `json:"receiverId,omitempty"`
	ReceiverUsername string      `json:"receiverUsername,omitempty"`
	Body             string      `json:"text"`
	ReplyTo          *ReplyRef   `json:"replyTo,omitempty"`
	Kind             MessageKind `json:"messageType"`
	IsRead           ReadFlag    `json:"is_read"`
	Reactions        []Reaction  `json:"reactions,omitempty"`
	CreatedAt        time.Time   `json:"timestamp"`

	// FileID is set only on messages created by a file upload; it owns the blob.
	FileID string `json:"-"`
}

// Reaction is unique on the full (message, scope, user, kind) tuple.
type Reaction struct {
	MessageID int64  `json:"messageId"`
	Scope     Scope  `json:"scope"`
	UserID    int64  `json:"userId"`
	Username  string `json:"username,omitempty"`
	Kind      string `json:"reaction"`
}

// FileRef is embedded in a file message body as a self-describing marker.
type FileRef struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	FileType string `json:"fileType"`
	FileID   string `json:"fileId"`
}

// RosterEntry is one known identity with its current presence.
type RosterEntry struct {
	UserID         int64  `json:"userId"`
	Username       string `json:"username"`
	Handle         string `json:"handle,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	Online         bool   `json:"online"`
}

// Identity is what a live connection is bound to after a successful join.
type Identity struct {
	UserID         int64  `json:"userId"`
	Username       string `json:"username"`
	Handle         string `json:"handle,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// UnreadCounts is derived on demand, never stored.
type UnreadCounts struct {
	Global  int64            `json:"global"`
	Groups  map[string]int64 `json:"groups"`
	Private map[int64]int64  `json:"private"`
}

// ProfileUpdate changes only the non-nil fields of a user.
type ProfileUpdate struct {
	Username       *string `json:"username,omitempty"`
	Handle         *string `json:"handle,omitempty"`
	Email          *string `json:"email,omitempty"`
	ProfilePicture *string `json:"profilePicture,omitempty"`
	Bio            *string `json:"bio,omitempty"`
}

// GroupUpdate changes only the non-nil fields of a group.
type GroupUpdate struct {
	Name           *string `json:"name,omitempty"`
	Handle         *string `json:"handle,omitempty"`
	ProfilePicture *string `json:"profilePicture,omitempty"`
	Description    *string `json:"description,omitempty"`
}

// HistoryQuery pages backwards from Before (exclusive). Zero Before means newest.
type HistoryQuery struct {
	Before int64
	Limit  int
}
