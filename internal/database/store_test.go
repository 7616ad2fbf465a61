package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	dbconfig "chathub/pkg/database"
	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

var _ interfaces.MessageStore = (*Store)(nil)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := dbconfig.DefaultConfig(filepath.Join(t.TempDir(), "messages.db"))
	store, err := NewStore(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	store.retryDelay = 10 * time.Millisecond
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func insertGlobal(t *testing.T, s *Store, sender int64, body string) *types.Message {
	t.Helper()
	m := &types.Message{Scope: types.ScopeGlobal, SenderID: sender, SenderUsername: "u", Body: body}
	require.NoError(t, s.InsertMessage(context.Background(), m))
	return m
}

func insertGroup(t *testing.T, s *Store, groupID string, sender int64, body string) *types.Message {
	t.Helper()
	m := &types.Message{Scope: types.ScopeGroup, GroupID: groupID, SenderID: sender, SenderUsername: "u", Body: body}
	require.NoError(t, s.InsertMessage(context.Background(), m))
	return m
}

func TestStore_InsertAssignsMonotonicIDs(t *testing.T) {
	s := setupTestStore(t)

	first := insertGlobal(t, s, 1, "one")
	second := insertGlobal(t, s, 2, "two")

	assert.Greater(t, second.ID, first.ID)
	assert.False(t, first.CreatedAt.IsZero())
	assert.Equal(t, types.MessageKindGroup, first.Kind)
}

func TestStore_GetMessageRoundTripsReplyRef(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	parent := insertGroup(t, s, "g1", 1, "parent")
	reply := &types.Message{
		Scope:          types.ScopeGroup,
		GroupID:        "g1",
		SenderID:       2,
		SenderUsername: "bob",
		Body:           "child",
		ReplyTo:        &types.ReplyRef{MessageID: parent.ID, Username: "u", Preview: "parent"},
	}
	require.NoError(t, s.InsertMessage(ctx, reply))

	got, err := s.GetMessage(ctx, types.ScopeGroup, reply.ID)
	require.NoError(t, err)

	want := &types.Message{
		ID:             reply.ID,
		Scope:          types.ScopeGroup,
		GroupID:        "g1",
		SenderID:       2,
		SenderUsername: "bob",
		Body:           "child",
		ReplyTo:        &types.ReplyRef{MessageID: parent.ID, Username: "u", Preview: "parent"},
		Kind:           types.MessageKindGroup,
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(types.Message{}, "CreatedAt")); diff != "" {
		t.Errorf("GetMessage mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_GetMessageWrongScopeIsNotFound(t *testing.T) {
	s := setupTestStore(t)
	m := insertGlobal(t, s, 1, "hi")

	_, err := s.GetMessage(context.Background(), types.ScopeGroup, m.ID+100)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = s.GetMessage(context.Background(), types.Scope("room"), m.ID)
	assert.ErrorIs(t, err, types.ErrInvalidScope)
}

func TestStore_HistoryPagesOldestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, insertGlobal(t, s, 1, "m").ID)
	}

	page, err := s.GlobalHistory(ctx, types.HistoryQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, []int64{ids[3], ids[4]}, messageIDs(page))

	older, err := s.GlobalHistory(ctx, types.HistoryQuery{Before: ids[3], Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1], ids[2]}, messageIDs(older))
}

func TestStore_GroupHistoryIsScopedToGroup(t *testing.T) {
	s := setupTestStore(t)
	a := insertGroup(t, s, "a", 1, "in a")
	insertGroup(t, s, "b", 1, "in b")

	page, err := s.GroupHistory(context.Background(), "a", types.HistoryQuery{})
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, messageIDs(page))
}

func TestStore_PrivateHistoryAndReadFlag(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	toB := &types.Message{Scope: types.ScopePrivate, SenderID: 1, SenderUsername: "a", ReceiverID: 2, ReceiverUsername: "b", Body: "hi b"}
	toA := &types.Message{Scope: types.ScopePrivate, SenderID: 2, SenderUsername: "b", ReceiverID: 1, ReceiverUsername: "a", Body: "hi a"}
	other := &types.Message{Scope: types.ScopePrivate, SenderID: 3, SenderUsername: "c", ReceiverID: 2, ReceiverUsername: "b", Body: "hi b from c"}
	for _, m := range []*types.Message{toB, toA, other} {
		require.NoError(t, s.InsertMessage(ctx, m))
	}

	history, err := s.PrivateHistory(ctx, 2, 1, types.HistoryQuery{})
	require.NoError(t, err)
	require.Equal(t, []int64{toB.ID, toA.ID}, messageIDs(history))
	assert.False(t, bool(history[0].IsRead))

	unread, err := s.UnreadPrivate(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 1, 3: 1}, unread)

	changed, err := s.MarkPrivateRead(ctx, 2, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, changed)

	got, err := s.GetMessage(ctx, types.ScopePrivate, toB.ID)
	require.NoError(t, err)
	assert.True(t, bool(got.IsRead))

	changed, err = s.MarkPrivateRead(ctx, 2, 1)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestStore_ReactionsAreSetSemantics(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	m := insertGlobal(t, s, 1, "react to me")
	r := types.Reaction{MessageID: m.ID, Scope: types.ScopeGlobal, UserID: 2, Username: "bob", Kind: "👍"}

	added, err := s.AddReaction(ctx, r)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddReaction(ctx, r)
	require.NoError(t, err)
	assert.False(t, added)

	list, err := s.ListReactions(ctx, types.ScopeGlobal, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []types.Reaction{r}, list)

	// same id under another scope is a different message
	list, err = s.ListReactions(ctx, types.ScopeGroup, m.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	removed, err := s.RemoveReaction(ctx, r)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveReaction(ctx, r)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_ConcurrentIdenticalReactionsProduceOneRow(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	m := insertGlobal(t, s, 1, "race")
	r := types.Reaction{MessageID: m.ID, Scope: types.ScopeGlobal, UserID: 2, Username: "bob", Kind: "❤️"}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AddReaction(ctx, r)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := s.ListReactions(ctx, types.ScopeGlobal, m.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_DeleteMessageCascades(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	m := insertGlobal(t, s, 1, "bye")

	_, err := s.AddReaction(ctx, types.Reaction{MessageID: m.ID, Scope: types.ScopeGlobal, UserID: 2, Username: "bob", Kind: "x"})
	require.NoError(t, err)
	_, err = s.AdvanceGlobalCursor(ctx, 2, m.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteMessage(ctx, types.ScopeGlobal, m.ID))

	_, err = s.GetMessage(ctx, types.ScopeGlobal, m.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	list, err := s.ListReactions(ctx, types.ScopeGlobal, m.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	readers, err := s.GlobalReadersExcluding(ctx, m.ID, 1)
	require.NoError(t, err)
	assert.Zero(t, readers)

	assert.ErrorIs(t, s.DeleteMessage(ctx, types.ScopeGlobal, m.ID), interfaces.ErrNotFound)
}

func TestStore_UpdateMessageBody(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	m := insertGroup(t, s, "g", 1, "typo")

	require.NoError(t, s.UpdateMessageBody(ctx, types.ScopeGroup, m.ID, "fixed"))
	got, err := s.GetMessage(ctx, types.ScopeGroup, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "fixed", got.Body)
	assert.Equal(t, m.SenderID, got.SenderID)

	assert.ErrorIs(t, s.UpdateMessageBody(ctx, types.ScopeGroup, m.ID+1, "x"), interfaces.ErrNotFound)
}

func TestStore_GlobalCursorClampsAndBackfills(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	m1 := insertGlobal(t, s, 1, "a")
	own := insertGlobal(t, s, 2, "mine")
	m3 := insertGlobal(t, s, 1, "c")

	effective, err := s.AdvanceGlobalCursor(ctx, 2, m3.ID)
	require.NoError(t, err)
	assert.Equal(t, m3.ID, effective)

	effective, err = s.AdvanceGlobalCursor(ctx, 2, m1.ID)
	require.NoError(t, err)
	assert.Equal(t, m3.ID, effective, "cursor must not regress")

	cursor, err := s.GlobalCursor(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, m3.ID, cursor)

	for _, id := range []int64{m1.ID, m3.ID} {
		n, err := s.GlobalReadersExcluding(ctx, id, 1)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	}
	n, err := s.GlobalReadersExcluding(ctx, own.ID, 2)
	require.NoError(t, err)
	assert.Zero(t, n, "authors never count as readers of their own messages")

	got, err := s.GetMessage(ctx, types.ScopeGlobal, m1.ID)
	require.NoError(t, err)
	assert.True(t, bool(got.IsRead))

	unread, err := s.UnreadGlobal(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, unread)

	insertGlobal(t, s, 1, "new")
	unread, err = s.UnreadGlobal(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)
}

func TestStore_GroupCursorClampsAndCounts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	m1 := insertGroup(t, s, "g", 1, "a")
	m2 := insertGroup(t, s, "g", 1, "b")

	cursor, err := s.GroupCursor(ctx, 2, "g")
	require.NoError(t, err)
	assert.Zero(t, cursor)

	_, err = s.AdvanceGroupCursor(ctx, 2, "g", m2.ID)
	require.NoError(t, err)
	effective, err := s.AdvanceGroupCursor(ctx, 2, "g", m1.ID)
	require.NoError(t, err)
	assert.Equal(t, m2.ID, effective)

	readers, err := s.GroupReadersExcluding(ctx, "g", m2.ID, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, readers)

	readers, err = s.GroupReadersExcluding(ctx, "g", m2.ID, 2)
	require.NoError(t, err)
	assert.Zero(t, readers)

	unread, err := s.UnreadGroup(ctx, 3, "g")
	require.NoError(t, err)
	assert.EqualValues(t, 2, unread)

	history, err := s.GroupHistory(ctx, "g", types.HistoryQuery{})
	require.NoError(t, err)
	assert.True(t, bool(history[1].IsRead))
}

func TestStore_DeleteGroupMessages(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	m := insertGroup(t, s, "doomed", 1, "a")
	keep := insertGroup(t, s, "other", 1, "b")
	_, err := s.AddReaction(ctx, types.Reaction{MessageID: m.ID, Scope: types.ScopeGroup, UserID: 2, Username: "bob", Kind: "x"})
	require.NoError(t, err)
	_, err = s.AdvanceGroupCursor(ctx, 2, "doomed", m.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteGroupMessages(ctx, "doomed"))

	history, err := s.GroupHistory(ctx, "doomed", types.HistoryQuery{})
	require.NoError(t, err)
	assert.Empty(t, history)
	cursor, err := s.GroupCursor(ctx, 2, "doomed")
	require.NoError(t, err)
	assert.Zero(t, cursor)
	_, err = s.GetMessage(ctx, types.ScopeGroup, keep.ID)
	assert.NoError(t, err)
}

func TestStore_CloseIsIdempotentAndRejectsWrites(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.HealthCheck(context.Background()))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err := s.InsertMessage(context.Background(), &types.Message{Scope: types.ScopeGlobal, Body: "late"})
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, NormalizeLimit(0))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, MaxHistoryLimit, NormalizeLimit(10_000))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.False(t, isTransient(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, isTransient(errors.New("boom")))
}

func messageIDs(messages []*types.Message) []int64 {
	ids := make([]int64, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestStore_DeleteGroupCursorStopsCountingReader(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	m := insertGroup(t, s, "g", 1, "hello")

	_, err := s.AdvanceGroupCursor(ctx, 2, "g", m.ID)
	require.NoError(t, err)
	_, err = s.AdvanceGroupCursor(ctx, 2, "other", m.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteGroupCursor(ctx, 2, "g"))
	readers, err := s.GroupReadersExcluding(ctx, "g", m.ID, 1)
	require.NoError(t, err)
	assert.Zero(t, readers)

	cursor, err := s.GroupCursor(ctx, 2, "other")
	require.NoError(t, err)
	assert.Equal(t, m.ID, cursor, "other groups keep their cursor")

	require.NoError(t, s.DeleteGroupCursor(ctx, 2, "g"), "deleting a missing cursor is a no-op")
}
