package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"chathub/internal/attachments"
	"chathub/internal/receipts"
	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

const maxReplyPreview = 200

// outgoing is an authorized, not yet persisted message plus its event type.
type outgoing struct {
	message   *types.Message
	eventType string
}

// prepare authorizes sending to target and returns the message skeleton.
func (r *Router) prepare(ctx context.Context, identity types.Identity, target string, env *types.Envelope) (*outgoing, error) {
	message := &types.Message{
		SenderID:       identity.UserID,
		SenderUsername: identity.Username,
		Kind:           types.MessageKindGroup,
	}

	switch target {
	case types.InboundMessage:
		if err := r.checker.RequireNotGloballyBanned(identity.UserID); err != nil {
			return nil, err
		}
		message.Scope = types.ScopeGlobal
		return &outgoing{message: message, eventType: types.EventMessage}, nil

	case types.InboundGroupMessage:
		if _, err := r.checker.RequireCanPost(ctx, env.GroupID, identity.UserID); err != nil {
			return nil, err
		}
		message.Scope = types.ScopeGroup
		message.GroupID = env.GroupID
		return &outgoing{message: message, eventType: types.EventGroupMessage}, nil

	case types.InboundPrivateMessage:
		receiver, err := r.resolveUser(ctx, env.To)
		if err != nil {
			return nil, err
		}
		message.Scope = types.ScopePrivate
		message.ReceiverID = receiver.ID
		message.ReceiverUsername = receiver.Username
		return &outgoing{message: message, eventType: types.EventPrivateMessage}, nil

	default:
		return nil, types.ErrInvalidFileTarget
	}
}

// resolveUser maps a username to a user. An unknown name is not a failure of the
// store, so the caller only notifies the sender and persists nothing.
func (r *Router) resolveUser(ctx context.Context, username string) (*types.User, error) {
	user, err := r.identity.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, ErrRecipientUnknown
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipient: %w", err)
	}
	return user, nil
}

func (r *Router) sendText(ctx context.Context, identity types.Identity, env *types.Envelope) error {
	if isMarkerBody(env.Text) {
		return ErrReservedBody
	}
	out, err := r.prepare(ctx, identity, env.Type, env)
	if err != nil {
		return err
	}
	out.message.Body = env.Text
	out.message.ReplyTo = cleanReply(env.ReplyTo)
	return r.publish(ctx, out)
}

// sendFile stores the attachment and sends a marker message to the target.
// A failed insert removes the stored blob again.
func (r *Router) sendFile(ctx context.Context, identity types.Identity, env *types.Envelope) error {
	out, err := r.prepare(ctx, identity, env.Target, env)
	if err != nil {
		return err
	}

	ref, err := r.files.Save(env.File)
	if err != nil {
		return err
	}
	out.message.Body = attachments.EncodeMarker(ref)
	out.message.FileID = ref.FileID
	out.message.ReplyTo = cleanReply(env.ReplyTo)

	if err := r.publish(ctx, out); err != nil {
		if rmErr := r.files.Remove(ref.FileID); rmErr != nil {
			r.logger.Warn("failed to remove orphaned attachment", zap.String("file_id", ref.FileID), zap.Error(rmErr))
		}
		return err
	}
	return nil
}

// publish persists the message and pushes it to the recipients of its scope.
func (r *Router) publish(ctx context.Context, out *outgoing) error {
	if err := r.messages.InsertMessage(ctx, out.message); err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}

	r.logger.Debug("message stored",
		zap.Int64("message_id", out.message.ID),
		zap.String("scope", string(out.message.Scope)),
		zap.Int64("user_id", out.message.SenderID))

	r.deliver(ctx, out.message, out.message.SenderID, types.MessageEvent{Type: out.eventType, Message: out.message})
	return nil
}

// EditMessage replaces the body of one of the caller's own messages.
func (r *Router) EditMessage(ctx context.Context, identity types.Identity, scope types.Scope, messageID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return types.ErrEmptyText
	}
	if isMarkerBody(text) {
		return ErrReservedBody
	}
	message, err := r.receipts.LoadMessage(ctx, scope, messageID)
	if err != nil {
		return err
	}
	if err := r.checker.RequireCanEdit(message, identity.UserID); err != nil {
		return err
	}
	if message.FileID != "" {
		return ErrFileNotEditable
	}

	if err := r.messages.UpdateMessageBody(ctx, scope, messageID, text); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	message.Body = text

	r.deliver(ctx, message, identity.UserID, types.MessageEvent{Type: types.EventEditMessage, Message: message})
	return nil
}

// DeleteMessage hard deletes a message the caller authored, or any non-private
// message of a room the caller administers, and announces only its coordinates.
func (r *Router) DeleteMessage(ctx context.Context, identity types.Identity, scope types.Scope, messageID int64) error {
	message, err := r.receipts.LoadMessage(ctx, scope, messageID)
	if err != nil {
		return err
	}
	if err := r.checker.RequireCanDelete(ctx, message, identity.UserID); err != nil {
		return err
	}

	if err := r.messages.DeleteMessage(ctx, scope, messageID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	// FUNCTIONAL DISCOVERY: only the row written by the upload owns the blob;
	// a marker typed as text never reaches the attachment store
	if message.FileID != "" {
		if err := r.files.Remove(message.FileID); err != nil {
			r.logger.Warn("failed to remove attachment", zap.String("file_id", message.FileID), zap.Error(err))
		}
	}

	r.logger.Info("message deleted",
		zap.Int64("message_id", messageID),
		zap.String("scope", string(scope)),
		zap.Int64("user_id", identity.UserID))

	r.deliver(ctx, message, identity.UserID, types.MessageDeletedEvent{
		Type:      types.EventMessageDeleted,
		MessageID: message.ID,
		Scope:     message.Scope,
		GroupID:   message.GroupID,
	})
	return nil
}

func (r *Router) react(ctx context.Context, identity types.Identity, env *types.Envelope) error {
	change := receipts.ReactionChange{Scope: env.Scope, MessageID: env.MessageID, Kind: env.Reaction}

	var result *receipts.ReactionResult
	var err error
	if env.Type == types.InboundAddReaction {
		result, err = r.receipts.AddReaction(ctx, identity, change)
	} else {
		result, err = r.receipts.RemoveReaction(ctx, identity, change)
	}
	if err != nil {
		return err
	}

	// FUNCTIONAL DISCOVERY: the whole set is pushed even when nothing changed, so
	// racing identical toggles leave every client with the same final state
	r.deliver(ctx, result.Message, identity.UserID, types.ReactionEvent{
		Type:      types.EventReactionUpdated,
		MessageID: result.Message.ID,
		Scope:     result.Message.Scope,
		GroupID:   result.Message.GroupID,
		Reactions: result.Reactions,
	})
	return nil
}

// isMarkerBody reports whether text would be read back as a file marker.
func isMarkerBody(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), attachments.MarkerPrefix)
}

// cleanReply keeps only a well-formed reply snapshot with a bounded preview.
func cleanReply(ref *types.ReplyRef) *types.ReplyRef {
	if ref == nil || ref.MessageID <= 0 {
		return nil
	}
	out := *ref
	if preview := []rune(out.Preview); len(preview) > maxReplyPreview {
		out.Preview = string(preview[:maxReplyPreview])
	}
	return &out
}
