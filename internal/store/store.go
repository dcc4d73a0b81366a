package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"pos-edge-agent/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrStorageUnavailable indicates the durable store cannot be opened or
// written. Callers must degrade to online-only capture.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

//go:embed migrations/*.sql
var migrationFS embed.FS

// Storage is the durable store for pending sales, cached products and sync
// tasks. Every method is independently atomic: a call fully commits or fully
// fails, with no observable partial-write state.
type Storage interface {
	// Pending sales
	CreateSale(ctx context.Context, sale *models.PendingSale) error
	GetSale(ctx context.Context, localID string) (*models.PendingSale, error)
	GetSales(ctx context.Context) ([]models.PendingSale, error)
	GetUnsyncedSales(ctx context.Context) ([]models.PendingSale, error)
	CountUnsyncedSales(ctx context.Context) (int, error)
	MarkSaleSynced(ctx context.Context, localID string) error
	SetSaleSyncError(ctx context.Context, localID, message string) error
	PurgeSyncedSales(ctx context.Context, before time.Time) (int64, error)

	// Sync tasks
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetSyncTasks(ctx context.Context) ([]models.SyncTask, error)
	PruneSyncTasks(ctx context.Context) (int64, error)

	// Cached products
	UpsertProduct(ctx context.Context, product *models.CachedProduct) error
	GetProduct(ctx context.Context, id string) (*models.CachedProduct, error)
	SearchProducts(ctx context.Context, query string) ([]models.CachedProduct, error)

	Close() error
}

// Store is the Postgres-backed durable store.
type Store struct {
	db *sqlx.DB
}

// Open connects to the database and applies pending schema migrations.
func Open(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrStorageUnavailable, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrStorageUnavailable, err)
	}

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrStorageUnavailable, err)
	}

	return s, nil
}

var (
	sharedOnce  sync.Once
	sharedStore *Store
	sharedErr   error
)

// OpenShared opens the process-wide store handle. The first caller performs
// the open; later callers receive the same handle without re-initializing.
func OpenShared(databaseURL string) (*Store, error) {
	sharedOnce.Do(func() {
		sharedStore, sharedErr = Open(databaseURL)
	})
	return sharedStore, sharedErr
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded schema migrations that have not run yet. Each
// migration runs inside its own transaction.
func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	entries, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(entries)

	for _, name := range entries {
		var applied bool
		err := s.db.GetContext(ctx, &applied,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		sql, err := migrationFS.ReadFile(name)
		if err != nil {
			return err
		}

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(sql)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}
