package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks that the message store schema is what the code expects.
// ARCHITECTURAL DISCOVERY: Separate validation component enables startup
// verification without coupling to the migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

var messageStoreTables = map[string]string{
	"global_messages":     "Global room messages",
	"group_messages":      "Group and channel messages",
	"private_messages":    "Direct messages",
	"reactions":           "Reactions across all scopes",
	"global_read_cursors": "Per-user global read progress",
	"global_read_facts":   "Per-message global readers",
	"group_read_cursors":  "Per-user group read progress",
	"schema_migrations":   "Migration tracking",
}

var messageStoreIndexes = map[string]string{
	"idx_group_messages_group":     "Group history paging",
	"idx_private_messages_pair":    "Conversation history paging",
	"idx_private_messages_unread":  "Unread direct message counts",
	"idx_reactions_message":        "Reaction set lookups",
	"idx_group_read_cursors_group": "Group read-by counts",
}

// Validate runs every check in order.
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateIndexes(); err != nil {
		return err
	}
	return v.ValidateTableStructure()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for table, description := range messageStoreTables {
		exists, err := v.objectExists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}
	return nil
}

// ValidateIndexes verifies that the paging and counting indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for index, purpose := range messageStoreIndexes {
		exists, err := v.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}
	return nil
}

// ValidateTableStructure verifies the columns the store scans into.
// TECHNICAL DISCOVERY: Column validation ensures type compatibility between
// Go structs and database schema
func (v *SchemaValidator) ValidateTableStructure() error {
	structures := map[string]map[string]string{
		"private_messages": {
			"id":                "INTEGER",
			"sender_id":         "INTEGER",
			"sender_username":   "TEXT",
			"receiver_id":       "INTEGER",
			"receiver_username": "TEXT",
			"body":              "TEXT",
			"reply_to":          "TEXT",
			"is_read":           "INTEGER",
			"file_id":           "TEXT",
			"created_at":        "DATETIME",
		},
		"reactions": {
			"message_id": "INTEGER",
			"scope":      "TEXT",
			"user_id":    "INTEGER",
			"username":   "TEXT",
			"kind":       "TEXT",
		},
		"group_read_cursors": {
			"user_id":      "INTEGER",
			"group_id":     "TEXT",
			"last_read_id": "INTEGER",
		},
	}

	for table, columns := range structures {
		if err := v.validateColumns(table, columns); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", table, err)
		}
	}
	return nil
}

// ValidateConstraints verifies that the reaction scope check is enforced.
func (v *SchemaValidator) ValidateConstraints() error {
	_, err := v.db.Exec(`
		INSERT INTO reactions (message_id, scope, user_id, username, kind)
		VALUES (0, 'invalid_scope', 0, 'schema-check', 'x')
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM reactions WHERE username = 'schema-check'")
		return fmt.Errorf("check constraint not enforced: reactions.scope")
	}
	return nil
}

func (v *SchemaValidator) objectExists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}
	return nil
}
