package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"chathub/pkg/types"
)

// AddReaction inserts the reaction unless the identical tuple already exists.
// It reports whether a row was added.
func (s *Store) AddReaction(ctx context.Context, reaction types.Reaction) (bool, error) {
	var added bool
	err := s.executeWrite(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, `
			INSERT OR IGNORE INTO reactions (message_id, scope, user_id, username, kind)
			VALUES (?, ?, ?, ?, ?)`,
			reaction.MessageID, reaction.Scope, reaction.UserID, reaction.Username, reaction.Kind,
		)
		if err != nil {
			return fmt.Errorf("failed to insert reaction: %w", err)
		}
		n, err := result.RowsAffected()
		added = n == 1
		return err
	})
	return added, err
}

// RemoveReaction deletes the exact tuple if present. It reports whether a row was removed.
func (s *Store) RemoveReaction(ctx context.Context, reaction types.Reaction) (bool, error) {
	var removed bool
	err := s.executeWrite(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, `
			DELETE FROM reactions
			WHERE message_id = ? AND scope = ? AND user_id = ? AND kind = ?`,
			reaction.MessageID, reaction.Scope, reaction.UserID, reaction.Kind,
		)
		if err != nil {
			return fmt.Errorf("failed to delete reaction: %w", err)
		}
		n, err := result.RowsAffected()
		removed = n > 0
		return err
	})
	return removed, err
}

// ListReactions returns the full reaction set of a message in insertion order.
func (s *Store) ListReactions(ctx context.Context, scope types.Scope, messageID int64) ([]types.Reaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, scope, user_id, username, kind
		FROM reactions
		WHERE scope = ? AND message_id = ?
		ORDER BY id ASC`,
		scope, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	reactions := []types.Reaction{}
	for rows.Next() {
		r, err := scanReaction(rows)
		if err != nil {
			return nil, err
		}
		reactions = append(reactions, r)
	}
	return reactions, rows.Err()
}

func scanReaction(row rowScanner) (types.Reaction, error) {
	var r types.Reaction
	var scope string
	if err := row.Scan(&r.MessageID, &scope, &r.UserID, &r.Username, &r.Kind); err != nil {
		return r, fmt.Errorf("failed to scan reaction row: %w", err)
	}
	r.Scope = types.Scope(scope)
	return r, nil
}

// attachReactions loads reactions for a page of messages with a single query.
func (s *Store) attachReactions(ctx context.Context, scope types.Scope, messages []*types.Message) error {
	if len(messages) == 0 {
		return nil
	}

	byID := make(map[int64]*types.Message, len(messages))
	placeholders := make([]string, 0, len(messages))
	args := []any{scope}
	for _, m := range messages {
		byID[m.ID] = m
		placeholders = append(placeholders, "?")
		args = append(args, m.ID)
	}

	query := fmt.Sprintf(`
		SELECT message_id, scope, user_id, username, kind
		FROM reactions
		WHERE scope = ? AND message_id IN (%s)
		ORDER BY id ASC`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query reactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		r, err := scanReaction(rows)
		if err != nil {
			return err
		}
		if m, ok := byID[r.MessageID]; ok {
			m.Reactions = append(m.Reactions, r)
		}
	}
	return rows.Err()
}
