package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mizuki/formflow/internal/config"
	"github.com/mizuki/formflow/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// InitDB initializes the database connection based on configuration and runs migrations.
// Parameters:
//   - cfg: database configuration including driver and connection settings.
//
// Returns:
//   - *gorm.DB: initialized database handle.
//   - error: non-nil if connection or migration fails.
func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	var db *gorm.DB
	var err error

	switch cfg.Driver {
	case "postgres":
		db, err = initPostgres(cfg, gormConfig)
	case "sqlite":
		db, err = initSQLite(cfg, gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&domain.Job{}); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return db, nil
}

// initPostgres initializes a PostgreSQL database connection.
func initPostgres(cfg *config.DatabaseConfig, gormConfig *gorm.Config) (*gorm.DB, error) {
	// PreferSimpleProtocol supports transaction poolers (e.g. Supabase port 6543)
	// by disabling implicit prepared statements.
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: true,
	}), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return db, nil
}

// initSQLite initializes a SQLite database connection.
func initSQLite(cfg *config.DatabaseConfig, gormConfig *gorm.Config) (*gorm.DB, error) {
	if cfg.Path != "" {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}

	// WAL mode for concurrent stream reads while callbacks write
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA foreign_keys=ON")

	return db, nil
}

// GormStore is the durable JobStore backed by GORM (sqlite or postgres),
// paired with an in-process notifier for per-row change delivery.
type GormStore struct {
	db       *gorm.DB
	notifier *Notifier
}

// NewGormStore creates a JobStore bound to db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:       db,
		notifier: NewNotifier(),
	}
}

// Create inserts a new job row.
func (s *GormStore) Create(ctx context.Context, job *domain.Job) error {
	return s.db.WithContext(ctx).Create(job).Error
}

// Get retrieves a job by id.
func (s *GormStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// Apply merges a partial update into the job row inside a transaction and
// publishes the resulting snapshot. Patches against terminal rows are
// rejected with ErrTerminal.
func (s *GormStore) Apply(ctx context.Context, id string, patch *domain.JobPatch) (*domain.Job, error) {
	var updated *domain.Job

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.Job
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if job.Status.IsTerminal() {
			return ErrTerminal
		}

		merge(&job, patch)
		if err := tx.Save(&job).Error; err != nil {
			return err
		}
		updated = &job
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(updated)
	return updated, nil
}

// Subscribe registers for change notifications on one job.
func (s *GormStore) Subscribe(jobID string) (<-chan *domain.Job, func()) {
	return s.notifier.Subscribe(jobID)
}

// ListStale returns ids of non-terminal jobs untouched since the cutoff.
func (s *GormStore) ListStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("status IN ? AND updated_at < ?",
			[]domain.JobStatus{domain.JobStatusQueued, domain.JobStatusRunning}, cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Notifier exposes the hub for components that publish out-of-band writes
// (the reaper updates rows through Apply, so this is mainly for tests).
func (s *GormStore) Notifier() *Notifier {
	return s.notifier
}
