package router

import (
	"context"

	"go.uber.org/zap"

	"chathub/pkg/types"
)

// deliver pushes event to everyone who can see message.
// ARCHITECTURAL DISCOVERY: group recipients are re-read from the membership table on
// every delivery, never cached, so removed members stop receiving immediately
func (r *Router) deliver(ctx context.Context, message *types.Message, originator int64, event any) {
	switch message.Scope {
	case types.ScopeGlobal:
		r.hub.Broadcast(event, nil)
	case types.ScopeGroup:
		r.DeliverToGroup(ctx, message.GroupID, originator, event)
	case types.ScopePrivate:
		r.hub.SendToUsers([]int64{message.SenderID, message.ReceiverID}, event)
	}
}

// DeliverToGroup sends event to the live connections of the current members of
// groupID. If membership cannot be read the event degrades to the originator only.
func (r *Router) DeliverToGroup(ctx context.Context, groupID string, originator int64, event any) int {
	if groupID == types.GlobalGroupID {
		return r.hub.Broadcast(event, nil)
	}

	members, err := r.identity.ListMemberIDs(ctx, groupID)
	if err != nil {
		r.logger.Error("membership lookup failed, delivering to originator only",
			zap.String("group_id", groupID), zap.Error(err))
		return r.hub.SendToUser(originator, event)
	}
	return r.hub.SendToUsers(members, event)
}

// SendToUsers exposes direct delivery for HTTP-originated events.
func (r *Router) SendToUsers(userIDs []int64, event any) int {
	return r.hub.SendToUsers(userIDs, event)
}

// Broadcast exposes global delivery for HTTP-originated events.
func (r *Router) Broadcast(event any) int {
	return r.hub.Broadcast(event, nil)
}
