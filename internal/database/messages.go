package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Each scope projects onto the same column order so one scanner serves all three.
// TECHNICAL DISCOVERY: global and group read flags are derived in SQL from read
// facts and cursors; only private messages carry a stored is_read column
const (
	globalColumns = `m.id, '' AS group_id, m.sender_id, m.sender_username, 0 AS receiver_id, '' AS receiver_username,
		m.body, m.reply_to, m.message_kind, COALESCE(m.file_id, '') AS file_id,
		EXISTS (SELECT 1 FROM global_read_facts f WHERE f.message_id = m.id AND f.reader_id != m.sender_id) AS is_read,
		m.created_at`
	groupColumns = `m.id, m.group_id, m.sender_id, m.sender_username, 0 AS receiver_id, '' AS receiver_username,
		m.body, m.reply_to, m.message_kind, COALESCE(m.file_id, '') AS file_id,
		EXISTS (SELECT 1 FROM group_read_cursors c WHERE c.group_id = m.group_id AND c.last_read_id >= m.id AND c.user_id != m.sender_id) AS is_read,
		m.created_at`
	privateColumns = `m.id, '' AS group_id, m.sender_id, m.sender_username, m.receiver_id, m.receiver_username,
		m.body, m.reply_to, m.message_kind, COALESCE(m.file_id, '') AS file_id, m.is_read, m.created_at`
)

func tableFor(scope types.Scope) (table, columns string, err error) {
	switch scope {
	case types.ScopeGlobal:
		return "global_messages", globalColumns, nil
	case types.ScopeGroup:
		return "group_messages", groupColumns, nil
	case types.ScopePrivate:
		return "private_messages", privateColumns, nil
	default:
		return "", "", types.ErrInvalidScope
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner, scope types.Scope) (*types.Message, error) {
	var (
		m       types.Message
		replyTo sql.NullString
		kind    string
		isRead  int64
	)
	err := row.Scan(
		&m.ID,
		&m.GroupID,
		&m.SenderID,
		&m.SenderUsername,
		&m.ReceiverID,
		&m.ReceiverUsername,
		&m.Body,
		&replyTo,
		&kind,
		&m.FileID,
		&isRead,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Scope = scope
	m.Kind = types.MessageKind(kind)
	m.IsRead = isRead != 0
	if replyTo.Valid && replyTo.String != "" {
		var ref types.ReplyRef
		if err := json.Unmarshal([]byte(replyTo.String), &ref); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reply reference: %w", err)
		}
		m.ReplyTo = &ref
	}
	return &m, nil
}

func encodeReplyTo(ref *types.ReplyRef) (sql.NullString, error) {
	if ref == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(ref)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal reply reference: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// InsertMessage persists message into the table its Scope names and fills in
// ID and CreatedAt.
func (s *Store) InsertMessage(ctx context.Context, message *types.Message) error {
	replyTo, err := encodeReplyTo(message.ReplyTo)
	if err != nil {
		return err
	}
	if message.Kind == "" {
		message.Kind = types.MessageKindGroup
	}
	fileID := sql.NullString{String: message.FileID, Valid: message.FileID != ""}
	createdAt := time.Now().UTC()

	var query string
	var args []any
	switch message.Scope {
	case types.ScopeGlobal:
		query = `INSERT INTO global_messages (sender_id, sender_username, body, reply_to, message_kind, file_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`
		args = []any{message.SenderID, message.SenderUsername, message.Body, replyTo, message.Kind, fileID, createdAt}
	case types.ScopeGroup:
		query = `INSERT INTO group_messages (group_id, sender_id, sender_username, body, reply_to, message_kind, file_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		args = []any{message.GroupID, message.SenderID, message.SenderUsername, message.Body, replyTo, message.Kind, fileID, createdAt}
	case types.ScopePrivate:
		query = `INSERT INTO private_messages (sender_id, sender_username, receiver_id, receiver_username, body, reply_to, message_kind, file_id, is_read, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`
		args = []any{message.SenderID, message.SenderUsername, message.ReceiverID, message.ReceiverUsername, message.Body, replyTo, message.Kind, fileID, createdAt}
	default:
		return types.ErrInvalidScope
	}

	var id int64
	err = s.executeWrite(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to insert %s message: %w", message.Scope, err)
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return err
	}

	message.ID = id
	message.CreatedAt = createdAt
	message.IsRead = false
	return nil
}

// GetMessage loads one message with its current reaction set.
func (s *Store) GetMessage(ctx context.Context, scope types.Scope, messageID int64) (*types.Message, error) {
	table, columns, err := tableFor(scope)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s m WHERE m.id = ?", columns, table)
	message, err := scanMessage(s.db.QueryRowContext(ctx, query, messageID), scope)
	if err != nil {
		return nil, notFoundOr(err)
	}

	if err := s.attachReactions(ctx, scope, []*types.Message{message}); err != nil {
		return nil, err
	}
	return message, nil
}

// UpdateMessageBody replaces the body only; sender, scope and id never change.
func (s *Store) UpdateMessageBody(ctx context.Context, scope types.Scope, messageID int64, body string) error {
	table, _, err := tableFor(scope)
	if err != nil {
		return err
	}

	return s.executeWrite(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET body = ? WHERE id = ?", table), body, messageID)
		if err != nil {
			return fmt.Errorf("failed to update message body: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return interfaces.ErrNotFound
		}
		return nil
	})
}

// DeleteMessage removes the message, its reactions and, for the global room,
// its read facts in one transaction.
func (s *Store) DeleteMessage(ctx context.Context, scope types.Scope, messageID int64) error {
	table, _, err := tableFor(scope)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), messageID)
		if err != nil {
			return fmt.Errorf("failed to delete message: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return interfaces.ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM reactions WHERE scope = ? AND message_id = ?", scope, messageID); err != nil {
			return fmt.Errorf("failed to delete reactions: %w", err)
		}
		if scope == types.ScopeGlobal {
			if _, err := tx.ExecContext(ctx, "DELETE FROM global_read_facts WHERE message_id = ?", messageID); err != nil {
				return fmt.Errorf("failed to delete read facts: %w", err)
			}
		}
		return nil
	})
}

// DeleteGroupMessages drops every message, reaction and cursor of a deleted group.
func (s *Store) DeleteGroupMessages(ctx context.Context, groupID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		statements := []string{
			`DELETE FROM reactions WHERE scope = 'custom_group'
				AND message_id IN (SELECT id FROM group_messages WHERE group_id = ?)`,
			"DELETE FROM group_messages WHERE group_id = ?",
			"DELETE FROM group_read_cursors WHERE group_id = ?",
		}
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt, groupID); err != nil {
				return fmt.Errorf("failed to delete group %s data: %w", groupID, err)
			}
		}
		return nil
	})
}

// GlobalHistory returns the page of global messages ending just before q.Before.
func (s *Store) GlobalHistory(ctx context.Context, q types.HistoryQuery) ([]*types.Message, error) {
	return s.history(ctx, types.ScopeGlobal, "", nil, q)
}

// GroupHistory returns the page of groupID's messages ending just before q.Before.
func (s *Store) GroupHistory(ctx context.Context, groupID string, q types.HistoryQuery) ([]*types.Message, error) {
	return s.history(ctx, types.ScopeGroup, "m.group_id = ?", []any{groupID}, q)
}

// PrivateHistory returns the conversation between userA and userB in either direction.
func (s *Store) PrivateHistory(ctx context.Context, userA, userB int64, q types.HistoryQuery) ([]*types.Message, error) {
	return s.history(ctx, types.ScopePrivate,
		"((m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?))",
		[]any{userA, userB, userB, userA}, q)
}

// NormalizeLimit applies the default and the ceiling to a requested page size.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

func (s *Store) history(ctx context.Context, scope types.Scope, where string, args []any, q types.HistoryQuery) ([]*types.Message, error) {
	table, columns, err := tableFor(scope)
	if err != nil {
		return nil, err
	}

	conditions := []string{"(? = 0 OR m.id < ?)"}
	params := []any{q.Before, q.Before}
	if where != "" {
		conditions = append(conditions, where)
		params = append(params, args...)
	}
	params = append(params, NormalizeLimit(q.Limit))

	// newest page first, then flipped so callers get oldest-first
	query := fmt.Sprintf("SELECT %s FROM %s m WHERE %s ORDER BY m.id DESC LIMIT ?",
		columns, table, strings.Join(conditions, " AND "))

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s history: %w", scope, err)
	}
	defer func() { _ = rows.Close() }()

	messages := []*types.Message{}
	for rows.Next() {
		message, err := scanMessage(rows, scope)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	slices.Reverse(messages)

	if err := s.attachReactions(ctx, scope, messages); err != nil {
		return nil, err
	}
	return messages, nil
}
