package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AdvanceGlobalCursor moves userID's global cursor to max(current, messageID)
// and backfills read facts up to the effective cursor. Re-advancing is a no-op.
func (s *Store) AdvanceGlobalCursor(ctx context.Context, userID, messageID int64) (int64, error) {
	var effective int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO global_read_cursors (user_id, last_read_id, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				last_read_id = MAX(last_read_id, excluded.last_read_id),
				updated_at = excluded.updated_at`,
			userID, messageID, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert global cursor: %w", err)
		}

		if err := tx.QueryRowContext(ctx,
			"SELECT last_read_id FROM global_read_cursors WHERE user_id = ?", userID,
		).Scan(&effective); err != nil {
			return fmt.Errorf("failed to read global cursor: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO global_read_facts (message_id, reader_id)
			SELECT id, ? FROM global_messages WHERE id <= ? AND sender_id != ?`,
			userID, effective, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to backfill read facts: %w", err)
		}
		return nil
	})
	return effective, err
}

// AdvanceGroupCursor moves userID's cursor in groupID to max(current, messageID).
func (s *Store) AdvanceGroupCursor(ctx context.Context, userID int64, groupID string, messageID int64) (int64, error) {
	var effective int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO group_read_cursors (user_id, group_id, last_read_id, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, group_id) DO UPDATE SET
				last_read_id = MAX(last_read_id, excluded.last_read_id),
				updated_at = excluded.updated_at`,
			userID, groupID, messageID, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert group cursor: %w", err)
		}

		return tx.QueryRowContext(ctx,
			"SELECT last_read_id FROM group_read_cursors WHERE user_id = ? AND group_id = ?", userID, groupID,
		).Scan(&effective)
	})
	return effective, err
}

// DeleteGroupCursor forgets userID's read position in groupID.
func (s *Store) DeleteGroupCursor(ctx context.Context, userID int64, groupID string) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx,
			"DELETE FROM group_read_cursors WHERE user_id = ? AND group_id = ?", userID, groupID,
		); err != nil {
			return fmt.Errorf("failed to delete group cursor: %w", err)
		}
		return nil
	})
}

// GlobalCursor returns 0 when the user has never read the global room.
func (s *Store) GlobalCursor(ctx context.Context, userID int64) (int64, error) {
	return s.cursor(ctx, "SELECT last_read_id FROM global_read_cursors WHERE user_id = ?", userID)
}

// GroupCursor returns 0 when the user has never read groupID.
func (s *Store) GroupCursor(ctx context.Context, userID int64, groupID string) (int64, error) {
	return s.cursor(ctx, "SELECT last_read_id FROM group_read_cursors WHERE user_id = ? AND group_id = ?", userID, groupID)
}

func (s *Store) cursor(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}
	return id, nil
}

// GlobalReadersExcluding counts read facts for messageID from anyone but authorID.
func (s *Store) GlobalReadersExcluding(ctx context.Context, messageID, authorID int64) (int64, error) {
	return s.count(ctx,
		"SELECT COUNT(*) FROM global_read_facts WHERE message_id = ? AND reader_id != ?",
		messageID, authorID)
}

// GroupReadersExcluding counts members of groupID whose cursor has reached messageID.
func (s *Store) GroupReadersExcluding(ctx context.Context, groupID string, messageID, authorID int64) (int64, error) {
	return s.count(ctx,
		"SELECT COUNT(*) FROM group_read_cursors WHERE group_id = ? AND last_read_id >= ? AND user_id != ?",
		groupID, messageID, authorID)
}

// MarkPrivateRead flips every unread message from counterpartID to readerID.
// It returns how many rows changed.
func (s *Store) MarkPrivateRead(ctx context.Context, readerID, counterpartID int64) (int64, error) {
	var changed int64
	err := s.executeWrite(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			"UPDATE private_messages SET is_read = 1 WHERE receiver_id = ? AND sender_id = ? AND is_read = 0",
			readerID, counterpartID,
		)
		if err != nil {
			return fmt.Errorf("failed to mark private messages read: %w", err)
		}
		changed, err = result.RowsAffected()
		return err
	})
	return changed, err
}

// UnreadGlobal counts global messages past the user's cursor not written by them.
func (s *Store) UnreadGlobal(ctx context.Context, userID int64) (int64, error) {
	return s.count(ctx, `
		SELECT COUNT(*) FROM global_messages
		WHERE sender_id != ?
		AND id > COALESCE((SELECT last_read_id FROM global_read_cursors WHERE user_id = ?), 0)`,
		userID, userID)
}

// UnreadGroup counts groupID messages past the user's cursor not written by them.
func (s *Store) UnreadGroup(ctx context.Context, userID int64, groupID string) (int64, error) {
	return s.count(ctx, `
		SELECT COUNT(*) FROM group_messages
		WHERE group_id = ? AND sender_id != ?
		AND id > COALESCE((SELECT last_read_id FROM group_read_cursors WHERE user_id = ? AND group_id = ?), 0)`,
		groupID, userID, userID, groupID)
}

// UnreadPrivate returns unread counts keyed by sender for readerID.
func (s *Store) UnreadPrivate(ctx context.Context, readerID int64) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender_id, COUNT(*) FROM private_messages
		WHERE receiver_id = ? AND is_read = 0
		GROUP BY sender_id`,
		readerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unread private messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[int64]int64)
	for rows.Next() {
		var sender, n int64
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, err
		}
		counts[sender] = n
	}
	return counts, rows.Err()
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return n, nil
}
