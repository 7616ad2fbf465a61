package router

import (
	"context"
	"fmt"

	"chathub/pkg/types"
)

// HistoryRequest names one page of one conversation.
type HistoryRequest struct {
	Scope   types.Scope
	GroupID string
	With    string
	Before  int64
	Limit   int
}

// History returns one oldest-first page ending just before req.Before.
func (r *Router) History(ctx context.Context, identity types.Identity, req HistoryRequest) (*types.HistoryEvent, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = r.config.HistoryLimit
	}
	query := types.HistoryQuery{Before: req.Before, Limit: limit}

	var (
		event    *types.HistoryEvent
		messages []*types.Message
		err      error
	)
	switch req.Scope {
	case types.ScopeGlobal:
		if err := r.checker.RequireNotGloballyBanned(identity.UserID); err != nil {
			return nil, err
		}
		event = &types.HistoryEvent{Type: types.EventHistory}
		messages, err = r.messages.GlobalHistory(ctx, query)

	case types.ScopeGroup:
		if _, err := r.checker.RequireGroupAccess(ctx, req.GroupID, identity.UserID); err != nil {
			return nil, err
		}
		event = &types.HistoryEvent{Type: types.EventGroupHistory, GroupID: req.GroupID}
		messages, err = r.messages.GroupHistory(ctx, req.GroupID, query)

	case types.ScopePrivate:
		var counterpart *types.User
		if counterpart, err = r.resolveUser(ctx, req.With); err != nil {
			return nil, err
		}
		event = &types.HistoryEvent{Type: types.EventPrivateHistory, With: counterpart.Username}
		messages, err = r.messages.PrivateHistory(ctx, identity.UserID, counterpart.ID, query)

	default:
		return nil, types.ErrInvalidScope
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	if messages == nil {
		messages = []*types.Message{}
	}
	event.Messages = messages
	event.HasMore = len(messages) >= limit
	return event, nil
}

// ReadRequest names how far the caller has read in one conversation.
type ReadRequest struct {
	Scope     types.Scope
	MessageID int64
	GroupID   string
	With      string
}

// MarkRead advances the caller's read state and tells the other side.
func (r *Router) MarkRead(ctx context.Context, identity types.Identity, req ReadRequest) error {
	switch req.Scope {
	case types.ScopeGlobal:
		cursor, err := r.receipts.MarkGlobalRead(ctx, identity.UserID, req.MessageID)
		if err != nil {
			return err
		}
		r.hub.Broadcast(types.ReadEvent{
			Type:      types.EventMessagesRead,
			Scope:     types.ScopeGlobal,
			ReaderID:  identity.UserID,
			MessageID: cursor,
		}, nil)
		return nil

	case types.ScopeGroup:
		cursor, err := r.receipts.MarkGroupRead(ctx, identity.UserID, req.GroupID, req.MessageID)
		if err != nil {
			return err
		}
		r.DeliverToGroup(ctx, req.GroupID, identity.UserID, types.ReadEvent{
			Type:      types.EventMessagesRead,
			Scope:     types.ScopeGroup,
			GroupID:   req.GroupID,
			ReaderID:  identity.UserID,
			MessageID: cursor,
		})
		return nil

	case types.ScopePrivate:
		counterpart, err := r.resolveUser(ctx, req.With)
		if err != nil {
			return err
		}
		changed, err := r.receipts.MarkPrivateRead(ctx, identity.UserID, counterpart.ID)
		if err != nil {
			return err
		}
		if changed > 0 {
			r.hub.SendToUsers([]int64{counterpart.ID, identity.UserID}, types.ReadEvent{
				Type:     types.EventMessagesRead,
				Scope:    types.ScopePrivate,
				ReaderID: identity.UserID,
			})
		}
		return nil

	default:
		return types.ErrInvalidScope
	}
}
