package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/frontdesk-notify/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps ":memory:" databases shared across calls
	// and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// GetPreference returns the stored value for key, or ErrNotFound.
func (s *SQLiteStore) GetPreference(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM preferences WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("preference %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting preference %q: %w", key, err)
	}
	return value, nil
}

// SetPreference inserts or replaces the value for key.
func (s *SQLiteStore) SetPreference(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("setting preference %q: %w", key, err)
	}
	return nil
}

// DeletePreference removes key. Deleting an absent key is not an error.
func (s *SQLiteStore) DeletePreference(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM preferences WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting preference %q: %w", key, err)
	}
	return nil
}

// ListPreferences returns every stored preference.
func (s *SQLiteStore) ListPreferences(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT key, value FROM preferences ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("querying preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning preference row: %w", err)
		}
		prefs[key] = value
	}

	return prefs, rows.Err()
}

// AppendHistory records n and trims the history to the newest limit rows.
// A non-positive limit uses DefaultHistoryLimit.
func (s *SQLiteStore) AppendHistory(ctx context.Context, n model.Notification, limit int) error {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	data := []byte("{}")
	if len(n.Data) > 0 {
		var err error
		data, err = json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("marshaling data for notification %s: %w", n.ID, err)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notification_history (
			id, type, title, message, timestamp, auto_hide, duration_ms, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, string(n.Type), n.Title, n.Message, n.Timestamp.UTC(),
		boolToInt(n.AutoHide), n.Duration.Milliseconds(), string(data),
	)
	if err != nil {
		return fmt.Errorf("appending notification %s: %w", n.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM notification_history WHERE seq NOT IN (
			SELECT seq FROM notification_history ORDER BY seq DESC LIMIT ?
		)`, limit)
	if err != nil {
		return fmt.Errorf("trimming history: %w", err)
	}

	return tx.Commit()
}

// GetHistory returns up to limit notifications, most recent first.
// A non-positive limit returns everything.
func (s *SQLiteStore) GetHistory(ctx context.Context, limit int) ([]model.Notification, error) {
	query := `
		SELECT id, type, title, message, timestamp, auto_hide, duration_ms, data
		FROM notification_history ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var history []model.Notification
	for rows.Next() {
		n, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, n)
	}

	return history, rows.Err()
}

// ClearHistory removes every history row.
func (s *SQLiteStore) ClearHistory(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notification_history"); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// scanHistory scans a history row from a sqlx.Rows result set.
func scanHistory(rows *sqlx.Rows) (model.Notification, error) {
	var (
		n          model.Notification
		typ        string
		ts         time.Time
		autoHide   int
		durationMS int64
		data       string
	)

	err := rows.Scan(
		&n.ID, &typ, &n.Title, &n.Message,
		&ts, &autoHide, &durationMS, &data,
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("scanning history row: %w", err)
	}

	n.Type = model.NotificationType(typ)
	n.Timestamp = ts
	n.AutoHide = autoHide != 0
	n.Duration = time.Duration(durationMS) * time.Millisecond

	if data != "" && data != "{}" {
		if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
			return model.Notification{}, fmt.Errorf("unmarshaling data for notification %s: %w", n.ID, err)
		}
	}

	return n, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
