package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"upbitSignalBot/internal/domain"
	"upbitSignalBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Journal implements the ports.EventJournal interface using SQLite. Events
// survive restarts so the dashboard shows history from before the last crash.
type Journal struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite journal.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewJournal creates a new SQLite journal instance.
func NewJournal(cfg Config) (*Journal, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite journal")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/bot_events.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally, but the Go driver benefits from
	// limiting connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	j := &Journal{db: db, logger: cfg.Logger}
	if err := j.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Event journal ready", map[string]interface{}{"path": dbPath})

	return j, nil
}

func (j *Journal) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS lifecycle_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts DATETIME NOT NULL,
		kind TEXT NOT NULL,
		market TEXT NOT NULL,
		message TEXT NOT NULL,
		roi REAL NOT NULL DEFAULT 0,
		level TEXT NOT NULL DEFAULT 'info'
	);
	CREATE INDEX IF NOT EXISTS idx_lifecycle_events_ts ON lifecycle_events(ts);
	`
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema execution failed: %w", err)
	}
	return nil
}

// Record persists a lifecycle event and returns its assigned ID.
func (j *Journal) Record(ctx context.Context, event *domain.LifecycleEvent) (int64, error) {
	op := "Record"
	if event == nil {
		return 0, fmt.Errorf("%s failed: event is nil", op)
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	if event.Level == "" {
		event.Level = "info"
	}

	const query = `INSERT INTO lifecycle_events (ts, kind, market, message, roi, level) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := j.db.ExecContext(ctx, query, event.Time, event.Kind, event.Market, event.Message, event.ROI, event.Level)
	if err != nil {
		err = fmt.Errorf("%s failed: %w", op, err)
		j.logger.Error(ctx, err, "Failed to persist lifecycle event", map[string]interface{}{"kind": event.Kind})
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s failed to get last insert ID: %w", op, err)
	}
	event.ID = id
	return id, nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]*domain.LifecycleEvent, error) {
	op := "Recent"
	if limit <= 0 {
		limit = 50
	}

	const query = `SELECT id, ts, kind, market, message, roi, level FROM lifecycle_events ORDER BY ts DESC, id DESC LIMIT ?`
	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", op, err)
	}
	defer rows.Close()

	var events []*domain.LifecycleEvent
	for rows.Next() {
		var ev domain.LifecycleEvent
		if err := rows.Scan(&ev.ID, &ev.Time, &ev.Kind, &ev.Market, &ev.Message, &ev.ROI, &ev.Level); err != nil {
			return nil, fmt.Errorf("%s scan failed: %w", op, err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s row iteration failed: %w", op, err)
	}
	return events, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	j.logger.Info(context.Background(), "Closing event journal")
	return j.db.Close()
}
