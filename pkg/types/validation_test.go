package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_Validate(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		wantErr error
	}{
		{"join with token", Envelope{Type: InboundJoin, Token: "abc"}, nil},
		{"join without token", Envelope{Type: InboundJoin}, ErrMissingToken},
		{"global message", Envelope{Type: InboundMessage, Text: "hi"}, nil},
		{"blank global message", Envelope{Type: InboundMessage, Text: "   "}, ErrEmptyText},
		{"text too long", Envelope{Type: InboundMessage, Text: strings.Repeat("a", 4001)}, ErrTextTooLong},
		{"private without recipient", Envelope{Type: InboundPrivateMessage, Text: "hi"}, ErrMissingRecipient},
		{"private message", Envelope{Type: InboundPrivateMessage, To: "bob", Text: "hi"}, nil},
		{"group without id", Envelope{Type: InboundGroupMessage, Text: "hi"}, ErrMissingGroup},
		{"edit bad scope", Envelope{Type: InboundEditMessage, Scope: "room", MessageID: 3, Text: "x"}, ErrInvalidScope},
		{"edit zero id", Envelope{Type: InboundEditMessage, Scope: ScopeGlobal, Text: "x"}, ErrInvalidMessageID},
		{"delete", Envelope{Type: InboundDelete, Scope: ScopePrivate, MessageID: 9}, nil},
		{"reaction without kind", Envelope{Type: InboundAddReaction, Scope: ScopeGlobal, MessageID: 1}, ErrMissingReaction},
		{"reaction", Envelope{Type: InboundRemoveReaction, Scope: ScopeGroup, MessageID: 1, Reaction: "👍"}, nil},
		{"file without payload", Envelope{Type: InboundFileMessage, Target: InboundMessage}, ErrMissingFile},
		{"file bad target", Envelope{Type: InboundFileMessage, File: &FilePayload{Name: "a", Data: "AA=="}}, ErrInvalidFileTarget},
		{"file to group", Envelope{Type: InboundFileMessage, Target: InboundGroupMessage, GroupID: "g", File: &FilePayload{Name: "a", Data: "AA=="}}, nil},
		{"mark read private", Envelope{Type: InboundMarkRead, Scope: ScopePrivate, To: "bob"}, nil},
		{"mark read group without id", Envelope{Type: InboundMarkRead, Scope: ScopeGroup, GroupID: "g"}, ErrInvalidMessageID},
		{"unknown type", Envelope{Type: "shout"}, ErrUnknownType},
		{"missing type", Envelope{}, ErrUnknownType},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tc.wantErr), "got %v, want %v", err, tc.wantErr)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestKindOf_UnknownErrorIsPersistence(t *testing.T) {
	err := errors.New("disk I/O error")
	assert.Equal(t, KindPersistence, KindOf(err))
	assert.Equal(t, PersistenceMessage, UserMessage(err))

	denied := Denied("nope")
	wrapped := errors.Join(errors.New("ctx"), denied)
	assert.Equal(t, KindDenied, KindOf(wrapped))
	assert.Equal(t, "nope", UserMessage(wrapped))
}

func TestNewErrorEvent_Unauthenticated(t *testing.T) {
	ev := NewErrorEvent(&ChatError{Kind: KindUnauthenticated, Message: "Please sign in again."})
	assert.Equal(t, EventAuthError, ev.Type)
	assert.Equal(t, "unauthenticated", ev.Kind)

	ev = NewErrorEvent(ErrEmptyText)
	assert.Equal(t, EventError, ev.Type)
}

func TestMessageEvent_FlattensMessage(t *testing.T) {
	ev := MessageEvent{Type: EventMessage, Message: &Message{ID: 501, SenderID: 1, Body: "hi", Scope: ScopeGlobal}}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "message", decoded["type"])
	assert.EqualValues(t, 1, decoded["userId"])
	assert.Equal(t, "hi", decoded["text"])
	assert.EqualValues(t, 501, decoded["messageId"])
	assert.EqualValues(t, 0, decoded["is_read"])
}

func TestIsValidUsernameAndHandle(t *testing.T) {
	assert.True(t, IsValidUsername("alice"))
	assert.True(t, IsValidUsername("José.M"))
	assert.False(t, IsValidUsername(""))
	assert.False(t, IsValidUsername("has space"))
	assert.False(t, IsValidUsername(strings.Repeat("a", 33)))

	assert.True(t, IsValidHandle("alice_01"))
	assert.False(t, IsValidHandle("Al"))
	assert.False(t, IsValidHandle("UPPER"))
}
