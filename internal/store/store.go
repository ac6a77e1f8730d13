// Package store is the audit persistence layer: accepted alerts and
// remediation/rollback outcomes are written to SQLite (default) or MySQL so
// history survives the process and rollbacks can target remediations recorded
// by an earlier run.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/opsrelay/opsrelay/internal/alert"
	"github.com/opsrelay/opsrelay/internal/config"
	"github.com/opsrelay/opsrelay/internal/remediation"
)

// Store wraps a SQL database with the audit-log schema.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the backend named by cfg and applies the schema.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	switch cfg.Driver {
	case "mysql":
		return open("mysql", cfg.DSN)
	case "sqlite", "sqlite3", "":
		path := cfg.Path
		if path == "" {
			home, _ := os.UserHomeDir()
			path = filepath.Join(home, config.DefaultDBFile)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL", path)
		return open("sqlite3", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q (supported: sqlite, mysql)", cfg.Driver)
	}
}

func open(driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1) // SQLite is single-writer
		db.SetMaxIdleConns(1)
	}
	s := &Store{db: db, driver: driver}
	if err := s.db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("pinging %s: %w", driver, err)
	}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Driver returns the backend name: "sqlite3" or "mysql".
func (s *Store) Driver() string { return s.driver }

// Close releases the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	autoPK := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "mysql" {
		autoPK = "BIGINT PRIMARY KEY AUTO_INCREMENT"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id                TEXT NOT NULL,
			title             TEXT NOT NULL,
			severity          TEXT NOT NULL,
			source            TEXT NOT NULL,
			dedupe_key        TEXT NOT NULL,
			delivered         INTEGER NOT NULL,
			delivery_attempts INTEGER NOT NULL,
			payload           TEXT NOT NULL,
			recorded_at       TEXT NOT NULL,
			PRIMARY KEY (id)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS remediations (
			id         %s,
			action     TEXT NOT NULL,
			success    INTEGER NOT NULL,
			message    TEXT NOT NULL,
			payload    TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`, autoPK),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rollbacks (
			id         %s,
			action     TEXT NOT NULL,
			success    INTEGER NOT NULL,
			message    TEXT NOT NULL,
			payload    TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`, autoPK),
	}
	if s.driver == "mysql" {
		// MySQL TEXT cannot be a primary key without a length; use VARCHAR.
		stmts[0] = `CREATE TABLE IF NOT EXISTS alerts (
			id                VARCHAR(64) NOT NULL,
			title             TEXT NOT NULL,
			severity          VARCHAR(16) NOT NULL,
			source            TEXT NOT NULL,
			dedupe_key        TEXT NOT NULL,
			delivered         INTEGER NOT NULL,
			delivery_attempts INTEGER NOT NULL,
			payload           TEXT NOT NULL,
			recorded_at       TEXT NOT NULL,
			PRIMARY KEY (id)
		)`
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// RecordAlert upserts an alert's identity and latest delivery state, so
// retries overwrite the same row instead of duplicating it.
func (s *Store) RecordAlert(ctx context.Context, a *alert.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	query := `INSERT INTO alerts (id, title, severity, source, dedupe_key, delivered, delivery_attempts, payload, recorded_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT (id) DO UPDATE SET delivered = excluded.delivered,
	              delivery_attempts = excluded.delivery_attempts, payload = excluded.payload`
	if s.driver == "mysql" {
		query = `INSERT INTO alerts (id, title, severity, source, dedupe_key, delivered, delivery_attempts, payload, recorded_at)
		         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		         ON DUPLICATE KEY UPDATE delivered = VALUES(delivered),
		             delivery_attempts = VALUES(delivery_attempts), payload = VALUES(payload)`
	}
	_, err = s.db.ExecContext(ctx, query,
		a.ID, a.Title, a.Severity.String(), a.Source, a.DedupeKey,
		boolToInt(a.Delivered), a.DeliveryAttempts, string(payload), now)
	return err
}

// ListAlerts returns up to limit most recently recorded alerts, oldest first.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]*alert.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM (
		     SELECT payload, recorded_at FROM alerts ORDER BY recorded_at DESC LIMIT ?
		 ) latest ORDER BY recorded_at ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var out []*alert.Alert
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var a alert.Alert
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("decoding alert: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// RecordRemediation appends one remediation outcome.
func (s *Store) RecordRemediation(ctx context.Context, res *remediation.Result) error {
	return s.appendRecord(ctx, "remediations", res.Action, res.Success, res.Message, res)
}

// RecordRollback appends one rollback outcome.
func (s *Store) RecordRollback(ctx context.Context, res *remediation.RollbackResult) error {
	return s.appendRecord(ctx, "rollbacks", res.Action, res.Success, res.Message, res)
}

func (s *Store) appendRecord(ctx context.Context, table, action string, success bool, message string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	query := fmt.Sprintf(
		`INSERT INTO %s (action, success, message, payload, created_at) VALUES (?, ?, ?, ?, ?)`, table)
	_, err = s.db.ExecContext(ctx, query, action, boolToInt(success), message, string(b), now)
	return err
}

// RemediationRecord pairs a stored remediation with its row id.
type RemediationRecord struct {
	ID        int64
	Result    *remediation.Result
	CreatedAt string
}

// GetRemediation loads one remediation by row id, for rollback.
func (s *Store) GetRemediation(ctx context.Context, id int64) (*RemediationRecord, error) {
	var payload, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, created_at FROM remediations WHERE id = ?`, id).
		Scan(&payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("remediation %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading remediation %d: %w", id, err)
	}
	var res remediation.Result
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, fmt.Errorf("decoding remediation %d: %w", id, err)
	}
	return &RemediationRecord{ID: id, Result: &res, CreatedAt: createdAt}, nil
}

// ListRemediations returns up to limit most recent remediation records,
// oldest first.
func (s *Store) ListRemediations(ctx context.Context, limit int) ([]*RemediationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, created_at FROM (
		     SELECT id, payload, created_at FROM remediations ORDER BY id DESC LIMIT ?
		 ) latest ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying remediations: %w", err)
	}
	defer rows.Close()

	var out []*RemediationRecord
	for rows.Next() {
		rec := &RemediationRecord{}
		var payload string
		if err := rows.Scan(&rec.ID, &payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		var res remediation.Result
		if err := json.Unmarshal([]byte(payload), &res); err != nil {
			return nil, fmt.Errorf("decoding remediation %d: %w", rec.ID, err)
		}
		rec.Result = &res
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
