package interfaces

import (
	"context"
	"errors"

	"chathub/pkg/types"
)

// Store lookup errors shared by both stores.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// MessageStore persists messages, reactions and read state.
// ARCHITECTURAL DISCOVERY: the message store never joins against identity data;
// sender and receiver usernames are denormalized at send time
type MessageStore interface {
	// InsertMessage assigns ID and CreatedAt. The store id is the ordering key.
	InsertMessage(ctx context.Context, message *types.Message) error
	GetMessage(ctx context.Context, scope types.Scope, messageID int64) (*types.Message, error)
	UpdateMessageBody(ctx context.Context, scope types.Scope, messageID int64, body string) error

	// DeleteMessage hard deletes the row and cascades its reactions and read facts.
	DeleteMessage(ctx context.Context, scope types.Scope, messageID int64) error
	DeleteGroupMessages(ctx context.Context, groupID string) error

	// History queries return oldest-first pages ending just before q.Before.
	GlobalHistory(ctx context.Context, q types.HistoryQuery) ([]*types.Message, error)
	GroupHistory(ctx context.Context, groupID string, q types.HistoryQuery) ([]*types.Message, error)
	PrivateHistory(ctx context.Context, userA, userB int64, q types.HistoryQuery) ([]*types.Message, error)

	// AddReaction is insert-or-ignore; RemoveReaction is delete-if-exists.
	// Both report whether a row changed.
	AddReaction(ctx context.Context, reaction types.Reaction) (bool, error)
	RemoveReaction(ctx context.Context, reaction types.Reaction) (bool, error)
	ListReactions(ctx context.Context, scope types.Scope, messageID int64) ([]types.Reaction, error)

	// Cursor advances never regress; they return the effective cursor.
	// AdvanceGlobalCursor also records a read fact for every earlier message by someone else.
	AdvanceGlobalCursor(ctx context.Context, userID, messageID int64) (int64, error)
	AdvanceGroupCursor(ctx context.Context, userID int64, groupID string, messageID int64) (int64, error)
	GlobalCursor(ctx context.Context, userID int64) (int64, error)
	GroupCursor(ctx context.Context, userID int64, groupID string) (int64, error)
	// DeleteGroupCursor drops a departed member's cursor so it stops counting as a reader.
	DeleteGroupCursor(ctx context.Context, userID int64, groupID string) error

	GlobalReadersExcluding(ctx context.Context, messageID, authorID int64) (int64, error)
	GroupReadersExcluding(ctx context.Context, groupID string, messageID, authorID int64) (int64, error)

	// MarkPrivateRead flips is_read for every message from counterpart to reader.
	MarkPrivateRead(ctx context.Context, readerID, counterpartID int64) (int64, error)

	UnreadGlobal(ctx context.Context, userID int64) (int64, error)
	UnreadGroup(ctx context.Context, userID int64, groupID string) (int64, error)
	UnreadPrivate(ctx context.Context, readerID int64) (map[int64]int64, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
