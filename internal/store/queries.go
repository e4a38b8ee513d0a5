package store

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is RFC 3339 with a fixed nine-digit fraction, so that stored
// timestamps sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Operation history

// InsertOperation records a finished update, revert or backup operation.
func (s *Store) InsertOperation(op *Operation) error {
	query := `
		INSERT INTO operations
		(id, kind, install_root, from_version, to_version, success, code, message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		op.ID,
		op.Kind,
		op.InstallRoot,
		op.FromVersion,
		op.ToVersion,
		op.Success,
		op.Code,
		op.Message,
		op.StartedAt.UTC().Format(timeLayout),
		op.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert operation %s: %w", op.ID, err)
	}

	return nil
}

// GetOperation retrieves an operation by ID.
func (s *Store) GetOperation(id string) (*Operation, error) {
	query := `
		SELECT id, kind, install_root, from_version, to_version, success, code, message, started_at, finished_at
		FROM operations
		WHERE id = ?
	`

	op, err := scanOperation(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("operation %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation %s: %w", id, err)
	}
	return op, nil
}

// ListOperations returns the most recent operations, newest first.
// A limit of zero or less returns every row.
func (s *Store) ListOperations(limit int) ([]*Operation, error) {
	query := `
		SELECT id, kind, install_root, from_version, to_version, success, code, message, started_at, finished_at
		FROM operations
		ORDER BY started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation row: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return ops, nil
}

// LastOperation returns the newest operation of the given kind, or nil if
// none has been recorded.
func (s *Store) LastOperation(kind string) (*Operation, error) {
	query := `
		SELECT id, kind, install_root, from_version, to_version, success, code, message, started_at, finished_at
		FROM operations
		WHERE kind = ?
		ORDER BY started_at DESC
		LIMIT 1
	`

	op, err := scanOperation(s.db.QueryRow(query, kind))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last %s operation: %w", kind, err)
	}
	return op, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*Operation, error) {
	var op Operation
	var fromVersion, toVersion, code, message sql.NullString
	var startedAt, finishedAt string

	err := row.Scan(
		&op.ID,
		&op.Kind,
		&op.InstallRoot,
		&fromVersion,
		&toVersion,
		&op.Success,
		&code,
		&message,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	op.FromVersion = fromVersion.String
	op.ToVersion = toVersion.String
	op.Code = code.String
	op.Message = message.String

	op.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at for %s: %w", op.ID, err)
	}
	op.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse finished_at for %s: %w", op.ID, err)
	}

	return &op, nil
}

// Cache entries

// PutCacheEntry inserts or replaces a cache entry.
func (s *Store) PutCacheEntry(entry *CacheEntry) error {
	query := `
		INSERT OR REPLACE INTO cache_entries (key, value, expires_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.Exec(query, entry.Key, entry.Value, entry.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to put cache entry %s: %w", entry.Key, err)
	}
	return nil
}

// GetCacheEntry returns the cache entry for key, or nil if it does not
// exist. Expiry is not checked here; callers compare ExpiresAt against
// their own clock.
func (s *Store) GetCacheEntry(key string) (*CacheEntry, error) {
	query := `SELECT key, value, expires_at FROM cache_entries WHERE key = ?`

	var entry CacheEntry
	var expiresAt int64
	err := s.db.QueryRow(query, key).Scan(&entry.Key, &entry.Value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}

	entry.ExpiresAt = time.Unix(0, expiresAt)
	return &entry, nil
}

// DeleteCacheEntry removes a cache entry. Deleting a missing key is not an error.
func (s *Store) DeleteCacheEntry(key string) error {
	if _, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

// PurgeExpiredCacheEntries removes every entry that expired before now and
// returns how many were removed.
func (s *Store) PurgeExpiredCacheEntries(now time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM cache_entries WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache entries: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// State

// SetState stores a small named value, such as the last update check time.
func (s *Store) SetState(key, value string) error {
	query := `
		INSERT OR REPLACE INTO state (key, value, updated_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.Exec(query, key, value, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

// GetState returns a stored value and whether it exists.
func (s *Store) GetState(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return value, true, nil
}
