package state

import (
	"context"
	"database/sql"
	"sync"

	"github.com/XiaoConstantine/reflexion-go/pkg/errors"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements the Store interface using SQLite as the backend.
type SQLiteStore struct {
	db   *sql.DB
	path string

	initialized sync.Once
}

// NewSQLiteStore creates a new SQLite-backed store.
// The path parameter specifies the database file location.
// If path is ":memory:", the database will be created in-memory.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StoreFailed, "failed to open SQLite database"),
			errors.Fields{"path": path},
		)
	}

	store := &SQLiteStore{
		db:   db,
		path: path,
	}
	if err := store.ensureInitialized(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) ensureInitialized() error {
	var initErr error
	s.initialized.Do(func() {
		// Enable WAL mode for better concurrency
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			initErr = errors.Wrap(err, errors.StoreFailed, "failed to enable WAL mode")
			return
		}

		query := `
        CREATE TABLE IF NOT EXISTS snapshot_store (
            key TEXT PRIMARY KEY,
            value BLOB NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );

        CREATE INDEX IF NOT EXISTS idx_snapshot_store_created_at
        ON snapshot_store(created_at);
        `

		if _, err := s.db.Exec(query); err != nil {
			initErr = errors.WithFields(
				errors.Wrap(err, errors.StoreFailed, "failed to initialize database"),
				errors.Fields{"query": query},
			)
			return
		}
	})
	return initErr
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	query := `
    INSERT INTO snapshot_store (key, value, updated_at)
    VALUES (?, ?, CURRENT_TIMESTAMP)
    ON CONFLICT(key) DO UPDATE SET
        value = excluded.value,
        updated_at = CURRENT_TIMESTAMP;
    `

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StoreFailed, "failed to store value"),
			errors.Fields{"key": key},
		)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM snapshot_store WHERE key = ?", key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "key not found"),
			errors.Fields{"key": key},
		)
	}
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StoreFailed, "failed to retrieve value"),
			errors.Fields{"key": key},
		)
	}
	return value, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM snapshot_store WHERE key = ?", key,
	); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StoreFailed, "failed to delete value"),
			errors.Fields{"key": key},
		)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM snapshot_store ORDER BY created_at")
	if err != nil {
		return nil, errors.Wrap(err, errors.StoreFailed, "failed to list keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrap(err, errors.StoreFailed, "failed to scan key")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.StoreFailed, "failed to iterate keys")
	}
	return keys, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, errors.StoreFailed, "failed to close database")
	}
	return nil
}
