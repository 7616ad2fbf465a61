package receipts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"chathub/internal/authz"
	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

// Engine keeps read cursors monotonic and reaction sets consistent.
// ARCHITECTURAL DISCOVERY: every operation is a single idempotent store call
// (clamped upsert, insert-or-ignore, delete-if-exists), so concurrent callers
// converge on the same state without locking here
type Engine struct {
	messages interfaces.MessageStore
	identity interfaces.IdentityStore
	checker  *authz.Checker
	logger   *zap.Logger
}

// NewEngine wires the engine to both stores.
func NewEngine(messages interfaces.MessageStore, identity interfaces.IdentityStore, checker *authz.Checker, logger *zap.Logger) *Engine {
	return &Engine{
		messages: messages,
		identity: identity,
		checker:  checker,
		logger:   logger.With(zap.String("component", "receipts")),
	}
}

// LoadMessage fetches a message by scope and id.
func (e *Engine) LoadMessage(ctx context.Context, scope types.Scope, messageID int64) (*types.Message, error) {
	if !scope.Valid() {
		return nil, types.ErrInvalidScope
	}
	message, err := e.messages.GetMessage(ctx, scope, messageID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, authz.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return message, nil
}

// MarkGlobalRead advances userID's global cursor to an existing message and
// returns the effective cursor.
func (e *Engine) MarkGlobalRead(ctx context.Context, userID, messageID int64) (int64, error) {
	if err := e.checker.RequireNotGloballyBanned(userID); err != nil {
		return 0, err
	}
	if messageID <= 0 {
		return 0, types.ErrInvalidMessageID
	}
	if _, err := e.LoadMessage(ctx, types.ScopeGlobal, messageID); err != nil {
		return 0, err
	}
	cursor, err := e.messages.AdvanceGlobalCursor(ctx, userID, messageID)
	if err != nil {
		return 0, fmt.Errorf("failed to advance global cursor: %w", err)
	}
	return cursor, nil
}

// MarkGroupRead advances userID's cursor in groupID. Only members may mark.
func (e *Engine) MarkGroupRead(ctx context.Context, userID int64, groupID string, messageID int64) (int64, error) {
	if messageID <= 0 {
		return 0, types.ErrInvalidMessageID
	}
	if _, err := e.checker.RequireGroupAccess(ctx, groupID, userID); err != nil {
		return 0, err
	}
	// TECHNICAL DISCOVERY: ids are shared across groups, so the message must
	// belong to groupID or the cursor would skip past that group's real messages
	message, err := e.LoadMessage(ctx, types.ScopeGroup, messageID)
	if err != nil {
		return 0, err
	}
	if message.GroupID != groupID {
		return 0, authz.ErrMessageNotFound
	}
	cursor, err := e.messages.AdvanceGroupCursor(ctx, userID, groupID, messageID)
	if err != nil {
		return 0, fmt.Errorf("failed to advance group cursor: %w", err)
	}
	return cursor, nil
}

// MarkPrivateRead flags every message from counterpartID to readerID as read
// and returns how many changed.
func (e *Engine) MarkPrivateRead(ctx context.Context, readerID, counterpartID int64) (int64, error) {
	n, err := e.messages.MarkPrivateRead(ctx, readerID, counterpartID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark private messages read: %w", err)
	}
	return n, nil
}

// IsReadByAnyone reports whether someone other than the author has read message.
func (e *Engine) IsReadByAnyone(ctx context.Context, message *types.Message) (bool, error) {
	switch message.Scope {
	case types.ScopeGlobal:
		n, err := e.messages.GlobalReadersExcluding(ctx, message.ID, message.SenderID)
		return n > 0, err
	case types.ScopeGroup:
		n, err := e.messages.GroupReadersExcluding(ctx, message.GroupID, message.ID, message.SenderID)
		return n > 0, err
	case types.ScopePrivate:
		return bool(message.IsRead), nil
	default:
		return false, types.ErrInvalidScope
	}
}

// ReactionChange names one reaction toggle.
type ReactionChange struct {
	Scope     types.Scope
	MessageID int64
	Kind      string
}

// ReactionResult is the reacted message and its full reaction set after the toggle.
type ReactionResult struct {
	Message   *types.Message
	Reactions []types.Reaction
	Changed   bool
}

// AddReaction adds kind for the identity unless it is already present.
func (e *Engine) AddReaction(ctx context.Context, identity types.Identity, change ReactionChange) (*ReactionResult, error) {
	return e.toggle(ctx, identity, change, e.messages.AddReaction)
}

// RemoveReaction removes kind for the identity if present.
func (e *Engine) RemoveReaction(ctx context.Context, identity types.Identity, change ReactionChange) (*ReactionResult, error) {
	return e.toggle(ctx, identity, change, e.messages.RemoveReaction)
}

func (e *Engine) toggle(ctx context.Context, identity types.Identity, change ReactionChange,
	apply func(context.Context, types.Reaction) (bool, error)) (*ReactionResult, error) {
	kind := strings.TrimSpace(change.Kind)
	if kind == "" {
		return nil, types.ErrMissingReaction
	}

	message, err := e.LoadMessage(ctx, change.Scope, change.MessageID)
	if err != nil {
		return nil, err
	}
	if err := e.checker.RequireCanSee(ctx, message, identity.UserID); err != nil {
		return nil, err
	}

	changed, err := apply(ctx, types.Reaction{
		MessageID: message.ID,
		Scope:     message.Scope,
		UserID:    identity.UserID,
		Username:  identity.Username,
		Kind:      kind,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to toggle reaction: %w", err)
	}

	reactions, err := e.messages.ListReactions(ctx, message.Scope, message.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reactions: %w", err)
	}
	message.Reactions = reactions
	return &ReactionResult{Message: message, Reactions: reactions, Changed: changed}, nil
}

// UnreadCounts derives the global, per-group and per-counterpart unread totals.
// A failing group is logged and left out rather than failing the whole answer.
func (e *Engine) UnreadCounts(ctx context.Context, userID int64) (*types.UnreadCounts, error) {
	counts := &types.UnreadCounts{Groups: map[string]int64{}, Private: map[int64]int64{}}

	if !e.checker.IsGloballyBanned(userID) {
		global, err := e.messages.UnreadGlobal(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to count global unread: %w", err)
		}
		counts.Global = global
	}

	groups, err := e.identity.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	for _, group := range groups {
		if group.ID == types.GlobalGroupID {
			continue
		}
		n, err := e.messages.UnreadGroup(ctx, userID, group.ID)
		if err != nil {
			e.logger.Warn("unread count failed", zap.String("group_id", group.ID), zap.Error(err))
			continue
		}
		counts.Groups[group.ID] = n
	}

	private, err := e.messages.UnreadPrivate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count private unread: %w", err)
	}
	counts.Private = private
	return counts, nil
}
