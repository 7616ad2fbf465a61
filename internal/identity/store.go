package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	dbconfig "chathub/pkg/database"
	"chathub/pkg/interfaces"
)

var (
	ErrCreateDatabase  = errors.New("cannot create identity database")
	ErrMigrationFailed = errors.New("identity migration failed")
)

// Store is the identity store: users, groups, memberships, admins and bans.
// ARCHITECTURAL DISCOVERY: this store never reads message data, so the two
// stores can fail independently and writes are ordered identity-first by callers
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore opens the identity database and runs AutoMigrate for every model.
func NewStore(config *dbconfig.Config, log *zap.Logger) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid identity store config: %w", err)
	}
	log = log.With(zap.String("component", "identity_store"))

	db, err := gorm.Open(sqlite.Open(config.DSN()), &gorm.Config{
		TranslateError: true,
		Logger: logger.New(zap.NewStdLog(log), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		log.Error("cannot open GORM database", zap.Error(err))
		return nil, ErrCreateDatabase
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, ErrCreateDatabase
	}
	config.ApplyPool(sqlDB)
	if err := dbconfig.ApplySQLiteOptimizations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	store := &Store{db: db, logger: log}
	if err := store.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates or updates every identity table.
func (s *Store) Migrate() error {
	s.logger.Info("running identity migrations")

	models := []any{&userRecord{}, &groupRecord{}, &groupMember{}, &groupAdmin{}, &groupBan{}, &globalBan{}}
	for _, model := range models {
		if err := s.db.AutoMigrate(model); err != nil {
			s.logger.Error("migration failed", zap.String("model", fmt.Sprintf("%T", model)), zap.Error(err))
			return ErrMigrationFailed
		}
	}
	return nil
}

// HealthCheck pings the underlying pool.
func (s *Store) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("identity database ping failed: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate maps gorm errors onto the shared store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return interfaces.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return interfaces.ErrAlreadyExists
	default:
		return err
	}
}
