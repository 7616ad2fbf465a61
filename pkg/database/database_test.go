package database

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "messages.db"))
	db, err := sql.Open("sqlite3", cfg.DSN())
	require.NoError(t, err)
	cfg.ApplyPool(db)
	require.NoError(t, ApplySQLiteOptimizations(db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty path", func(c *Config) { c.DatabasePath = "" }, true},
		{"zero connections", func(c *Config) { c.MaxConnections = 0 }, true},
		{"zero lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }, true},
		{"negative idle", func(c *Config) { c.ConnMaxIdleTime = -time.Second }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig("./data/chathub.db")
			tc.mutate(cfg)
			if tc.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig("/tmp/x.db")
	assert.Equal(t, "file:/tmp/x.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", cfg.DSN())
}

func TestMigrationManager_AppliesEmbeddedSchemaOnce(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db, MessageStoreMigrations())

	require.NoError(t, manager.ApplyMigrations())
	require.NoError(t, manager.ApplyMigrations())

	versions, err := manager.AppliedVersions()
	require.NoError(t, err)
	assert.Equal(t, []string{"001", "002"}, versions)

	validator := NewSchemaValidator(db)
	assert.NoError(t, validator.Validate())
	assert.NoError(t, validator.ValidateConstraints())
}

func TestMigrationManager_OrdersByVersion(t *testing.T) {
	db := openTestDB(t)
	source := fstest.MapFS{
		"002_add_column.sql": {Data: []byte("ALTER TABLE things ADD COLUMN label TEXT;")},
		"001_things.sql":     {Data: []byte("CREATE TABLE things (id INTEGER PRIMARY KEY);")},
		"README.md":          {Data: []byte("ignored")},
	}

	require.NoError(t, NewMigrationManager(db, source).ApplyMigrations())

	_, err := db.Exec("INSERT INTO things (id, label) VALUES (1, 'x')")
	assert.NoError(t, err)
}

func TestMigrationManager_FailedMigrationIsNotRecorded(t *testing.T) {
	db := openTestDB(t)
	source := fstest.MapFS{
		"001_broken.sql": {Data: []byte("CREATE TABLE broken (;")},
	}
	manager := NewMigrationManager(db, source)

	require.Error(t, manager.ApplyMigrations())

	versions, err := manager.AppliedVersions()
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestSchemaValidator_MissingTables(t *testing.T) {
	db := openTestDB(t)
	err := NewSchemaValidator(db).ValidateTablesExist()
	assert.ErrorContains(t, err, "does not exist")
}
