package types

// Envelope is the single inbound JSON frame shape. Which fields matter depends on Type.
// FUNCTIONAL DISCOVERY: To names the counterpart username for every private
// operation (send, history, mark_read) so clients never need numeric ids for DMs
type Envelope struct {
	Type           string       `json:"type" validate:"required,max=32"`
	Token          string       `json:"token,omitempty" validate:"max=4096"`
	Text           string       `json:"text,omitempty" validate:"max=4000"`
	To             string       `json:"to,omitempty" validate:"max=64"`
	GroupID        string       `json:"groupId,omitempty" validate:"max=64"`
	MessageID      int64        `json:"messageId,omitempty" validate:"gte=0"`
	Scope          Scope        `json:"scope,omitempty" validate:"omitempty,scope"`
	Reaction       string       `json:"reaction,omitempty" validate:"max=32"`
	ReplyTo        *ReplyRef    `json:"replyTo,omitempty"`
	File           *FilePayload `json:"file,omitempty"`
	Target         string       `json:"target,omitempty" validate:"omitempty,oneof=message group_message private_message"`
	Before         int64        `json:"before,omitempty" validate:"gte=0"`
	Limit          int          `json:"limit,omitempty" validate:"gte=0,lte=200"`
	ProfilePicture string       `json:"profilePicture,omitempty" validate:"max=1024"`
}

// FilePayload is a base64 attachment carried inside a file_message frame.
type FilePayload struct {
	Name string `json:"name" validate:"required,max=255"`
	Type string `json:"type,omitempty" validate:"max=127"`
	Data string `json:"data" validate:"required"`
}

// MessageEvent flattens a message into the outbound frame.
type MessageEvent struct {
	Type string `json:"type"`
	*Message
}

// HistoryEvent answers history, private_history and group_history.
type HistoryEvent struct {
	Type     string     `json:"type"`
	GroupID  string     `json:"groupId,omitempty"`
	With     string     `json:"with,omitempty"`
	Messages []*Message `json:"messages"`
	HasMore  bool       `json:"hasMore"`
}

// RosterEvent is the full presence snapshot, never a delta.
type RosterEvent struct {
	Type  string        `json:"type"`
	Users []RosterEntry `json:"users"`
}

// MessageDeletedEvent carries only the coordinates, never the deleted content.
type MessageDeletedEvent struct {
	Type      string `json:"type"`
	MessageID int64  `json:"messageId"`
	Scope     Scope  `json:"scope"`
	GroupID   string `json:"groupId,omitempty"`
}

// ReactionEvent always carries the whole reaction set of a message.
type ReactionEvent struct {
	Type      string     `json:"type"`
	MessageID int64      `json:"messageId"`
	Scope     Scope      `json:"scope"`
	GroupID   string     `json:"groupId,omitempty"`
	Reactions []Reaction `json:"reactions"`
}

// ReadEvent tells authors how far a reader has progressed.
type ReadEvent struct {
	Type      string `json:"type"`
	Scope     Scope  `json:"scope"`
	GroupID   string `json:"groupId,omitempty"`
	ReaderID  int64  `json:"readerId"`
	MessageID int64  `json:"messageId,omitempty"`
}

// MemberEvent covers joined, left, removed and banned notifications.
type MemberEvent struct {
	Type     string `json:"type"`
	GroupID  string `json:"groupId"`
	UserID   int64  `json:"userId"`
	Username string `json:"username,omitempty"`
	ActorID  int64  `json:"actorId,omitempty"`
}

// GroupEvent covers group_deleted and group_profile_updated.
type GroupEvent struct {
	Type    string `json:"type"`
	GroupID string `json:"groupId"`
	Group   *Group `json:"group,omitempty"`
}

// ErrorEvent is sent to the originating connection only.
type ErrorEvent struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewErrorEvent renders err for the wire.
func NewErrorEvent(err error) ErrorEvent {
	kind := KindOf(err)
	eventType := EventError
	if kind == KindUnauthenticated {
		eventType = EventAuthError
	}
	return ErrorEvent{Type: eventType, Kind: kind.String(), Message: UserMessage(err)}
}
