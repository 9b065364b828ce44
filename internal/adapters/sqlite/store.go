package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradeEngine/internal/ports"

	"github.com/mattn/go-sqlite3" // SQLite driver, also used for error inspection
)

// Store implements ports.Store as document-oriented keyed collections on a
// single SQLite file: one table per collection, documents serialized to JSON
// under their key.
type Store struct {
	db     *sql.DB
	logger ports.Logger

	created map[string]bool // collections whose table already exists
}

// Config holds configuration for the SQLite store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewStore opens (or creates) the database file.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite store")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_engine.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// single connection: SQLite serializes writers anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite store opened", map[string]interface{}{"path": dbPath})
	return &Store{db: db, logger: cfg.Logger, created: make(map[string]bool)}, nil
}

// ensureCollection creates the backing table on first use of a collection.
func (s *Store) ensureCollection(ctx context.Context, collection string) (string, error) {
	table := tableName(collection)
	if s.created[table] {
		return table, nil
	}
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		doc_key TEXT PRIMARY KEY,
		doc     TEXT NOT NULL,
		updated TIMESTAMP NOT NULL
	);`, table)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return "", fmt.Errorf("failed to create collection '%s': %w", collection, err)
	}
	s.created[table] = true
	return table, nil
}

// Insert adds a document, refusing to overwrite an existing key.
func (s *Store) Insert(ctx context.Context, collection, key string, doc interface{}) error {
	table, err := s.ensureCollection(ctx, collection)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document for %s/%s: %w", collection, key, err)
	}
	query := fmt.Sprintf("INSERT INTO %s (doc_key, doc, updated) VALUES (?, ?, ?)", table)
	if _, err := s.db.ExecContext(ctx, query, key, string(payload), time.Now().UTC()); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %s/%s", ports.ErrDuplicateEntry, collection, key)
		}
		return fmt.Errorf("failed to insert %s/%s: %w", collection, key, err)
	}
	return nil
}

// Upsert replaces the document under the key, inserting it if absent.
func (s *Store) Upsert(ctx context.Context, collection, key string, doc interface{}) error {
	table, err := s.ensureCollection(ctx, collection)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document for %s/%s: %w", collection, key, err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (doc_key, doc, updated) VALUES (?, ?, ?)
		ON CONFLICT(doc_key) DO UPDATE SET doc = excluded.doc, updated = excluded.updated`, table)
	if _, err := s.db.ExecContext(ctx, query, key, string(payload), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", collection, key, err)
	}
	return nil
}

// Query loads the document under (collection, key) into out.
func (s *Store) Query(ctx context.Context, collection, key string, out interface{}) error {
	table, err := s.ensureCollection(ctx, collection)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT doc FROM %s WHERE doc_key = ?", table)
	var payload string
	err = s.db.QueryRowContext(ctx, query, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", ports.ErrNotFound, collection, key)
	}
	if err != nil {
		return fmt.Errorf("failed to query %s/%s: %w", collection, key, err)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("failed to decode document %s/%s: %w", collection, key, err)
	}
	return nil
}

// Scan iterates the whole collection in key order.
func (s *Store) Scan(ctx context.Context, collection string, fn func(key string, doc []byte) error) error {
	table, err := s.ensureCollection(ctx, collection)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT doc_key, doc FROM %s ORDER BY doc_key", table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", collection, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			return fmt.Errorf("failed to scan row in %s: %w", collection, err)
		}
		if err := fn(key, []byte(payload)); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to scan %s: %w", collection, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// tableName sanitizes a collection name into a SQL identifier. Collection
// names come from engine code, not user input, but dots are common in them
// (instrument-qualified collections).
func tableName(collection string) string {
	replacer := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return "col_" + replacer.Replace(collection)
}
