// Package store persists the coordinator-owned state: the user photo
// profile, the captured product selections, the latest try-on result, and
// the cached API credential. Everything lives in a single-file sqlite
// database keyed like the extension-style local storage it replaces.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/veyralabs/fitlens/api/schemas"
)

// MaxProducts caps the persisted selection list; the oldest entry is
// evicted when a new capture would exceed it.
const MaxProducts = 12

// ErrNotFound reports a missing key; callers usually treat it as "empty".
var ErrNotFound = errors.New("store: not found")

const (
	keyUserProfile = "fitlens:userProfile"
	keyProducts    = "fitlens:productSelections"
	keyLastResult  = "fitlens:lastTryOnResult"
	keyAPIKey      = "fitlens:geminiApiKey"
)

// Store is the sqlite-backed key/value persistence layer.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (creating if needed) the store at path and verifies the
// connection.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// The store serves a single coordinator loop; one connection avoids
	// sqlite write contention entirely.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &Store{db: db, log: logger.Named("store")}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) getJSON(ctx context.Context, key string, v interface{}) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("store: read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("store: decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) setJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, string(raw))
	if err != nil {
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	return nil
}

// UserProfile returns the stored user photo, or ErrNotFound.
func (s *Store) UserProfile(ctx context.Context) (schemas.UserProfile, error) {
	var p schemas.UserProfile
	err := s.getJSON(ctx, keyUserProfile, &p)
	return p, err
}

// SaveUserProfile persists the user photo profile.
func (s *Store) SaveUserProfile(ctx context.Context, p schemas.UserProfile) error {
	return s.setJSON(ctx, keyUserProfile, p)
}

// Products returns the persisted selections, most recent first. A missing
// key is an empty list, not an error.
func (s *Store) Products(ctx context.Context) ([]schemas.ProductMetadata, error) {
	var products []schemas.ProductMetadata
	if err := s.getJSON(ctx, keyProducts, &products); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return products, nil
}

// UpsertProduct inserts or replaces a selection by id. A re-captured id
// moves to the front; the list is capped at MaxProducts with the oldest
// entries evicted. Returns the updated list.
func (s *Store) UpsertProduct(ctx context.Context, incoming schemas.ProductMetadata) ([]schemas.ProductMetadata, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return nil, err
	}

	next := make([]schemas.ProductMetadata, 0, len(products)+1)
	next = append(next, incoming)
	for _, p := range products {
		if p.ID == incoming.ID {
			continue
		}
		next = append(next, p)
	}
	if len(next) > MaxProducts {
		next = next[:MaxProducts]
	}

	if err := s.setJSON(ctx, keyProducts, next); err != nil {
		return nil, err
	}
	s.log.Debug("Product selection persisted",
		zap.String("product_id", incoming.ID),
		zap.Int("count", len(next)),
	)
	return next, nil
}

// LatestTryOnResult returns the most recent stored generation result.
func (s *Store) LatestTryOnResult(ctx context.Context) (schemas.TryOnResult, error) {
	var r schemas.TryOnResult
	err := s.getJSON(ctx, keyLastResult, &r)
	return r, err
}

// SaveTryOnResult persists a generation result.
func (s *Store) SaveTryOnResult(ctx context.Context, r schemas.TryOnResult) error {
	return s.setJSON(ctx, keyLastResult, r)
}

// APIKey returns the cached credential, or ErrNotFound.
func (s *Store) APIKey(ctx context.Context) (string, error) {
	var key string
	err := s.getJSON(ctx, keyAPIKey, &key)
	return key, err
}

// CacheAPIKey stores the credential for later runs.
func (s *Store) CacheAPIKey(ctx context.Context, key string) error {
	return s.setJSON(ctx, keyAPIKey, key)
}
