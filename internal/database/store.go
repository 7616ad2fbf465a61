package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	dbconfig "chathub/pkg/database"
	"chathub/pkg/interfaces"
)

const (
	defaultRetryDelay   = 5 * time.Second
	defaultWriteTimeout = 30 * time.Second
)

// Store is the message store: global, group and private messages, reactions
// and read cursors.
// ARCHITECTURAL DISCOVERY: reads go straight to the pool, every write goes
// through one goroutine so SQLite never sees competing writers
type Store struct {
	db           *sql.DB
	config       *dbconfig.Config
	logger       *zap.Logger
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex

	retryDelay   time.Duration
	writeTimeout time.Duration
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewStore opens the message store, applies the embedded migrations and
// validates the resulting schema.
func NewStore(config *dbconfig.Config, logger *zap.Logger) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message store config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	config.ApplyPool(db)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db, dbconfig.MessageStoreMigrations()).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := dbconfig.NewSchemaValidator(db).Validate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("message store schema invalid: %w", err)
	}

	store := &Store{
		db:           db,
		config:       config,
		logger:       logger.With(zap.String("component", "message_store")),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   defaultRetryDelay,
		writeTimeout: defaultWriteTimeout,
	}

	store.wg.Add(1)
	go store.writeLoop()

	return store, nil
}

// writeLoop processes all write operations in a single goroutine
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			// FUNCTIONAL DISCOVERY: only lock contention is worth one delayed retry;
			// constraint and syntax failures would fail identically again
			err := op.operation(s.db)
			if err != nil && isTransient(err) {
				s.logger.Warn("write failed, retrying", zap.Duration("delay", s.retryDelay), zap.Error(err))
				time.Sleep(s.retryDelay)
				err = op.operation(s.db)
			}
			if err != nil {
				s.logger.Error("write failed", zap.Error(err))
			}
			op.result <- err

		case <-s.shutdown:
			s.logger.Info("write loop shutting down")
			return
		}
	}
}

func isTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// executeWrite queues a write operation and waits for completion
func (s *Store) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(s.writeTimeout):
		return ErrWriteTimeout
	case <-s.shutdown:
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withTx runs fn inside a transaction on the writer goroutine.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
		return nil
	})
}

// HealthCheck validates connectivity and that the schema is readable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close stops the writer and closes the pool. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func notFoundOr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return interfaces.ErrNotFound
	}
	return err
}
