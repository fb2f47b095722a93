package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Register driver
)

// Preference keys.
const (
	prefKeySpeed = "speed"
	prefKeyBoost = "boost"
)

// SettingsStore persists the last control positions.
type SettingsStore interface {
	// GetPosition returns ok=false when nothing has been stored for key.
	GetPosition(ctx context.Context, key string) (float64, bool, error)
	SetPosition(ctx context.Context, key string, pos float64) error
	Close() error
}

// sqliteStore keeps positions in a persistent_state table.
type sqliteStore struct {
	db *sql.DB
}

// openSQLiteStore opens (creating if needed) the database at path.
func openSQLiteStore(path string) (*sqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS persistent_state (
		key TEXT PRIMARY KEY,
		value TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`)
	return err
}

func (s *sqliteStore) GetPosition(ctx context.Context, key string) (float64, bool, error) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get %s: %w", key, err)
	}
	pos, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse stored %s %q: %w", key, val, err)
	}
	return pos, true, nil
}

func (s *sqliteStore) SetPosition(ctx context.Context, key string, pos float64) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, key, strconv.FormatFloat(pos, 'g', -1, 64), time.Now()); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// memoryStore is used when no store path is configured. Positions survive only
// for the life of the process.
type memoryStore struct {
	mu   sync.Mutex
	vals map[string]float64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{vals: make(map[string]float64)}
}

func (m *memoryStore) GetPosition(ctx context.Context, key string) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	return v, ok, nil
}

func (m *memoryStore) SetPosition(ctx context.Context, key string, pos float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = pos
	return nil
}

func (m *memoryStore) Close() error { return nil }

// openStore picks the sqlite store when path is set, otherwise memory.
func openStore(path string) (SettingsStore, error) {
	if path == "" {
		return newMemoryStore(), nil
	}
	return openSQLiteStore(ExpandPath(path))
}
