package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/faceguard/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEntryNotFound is returned when an entry id does not exist.
var ErrEntryNotFound = errors.New("gallery entry not found")

// Store persists the face gallery in PostgreSQL. Entries come back in insertion order, which
// is what gives them their gallery index.
type Store struct {
	pool *pgxpool.Pool
}

// New establishes a connection pool and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// initSchema creates the gallery table if it doesn't exist (Auto-Migration).
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS gallery_entries (
			id BIGSERIAL PRIMARY KEY,
			label TEXT NOT NULL,
			feature BYTEA NOT NULL,
			thumbnail BYTEA,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close terminates the connection pool.
func (s *Store) Close(ctx context.Context) {
	s.pool.Close()
}

// InsertEntry saves an enrolled face and returns its row id.
func (s *Store) InsertEntry(ctx context.Context, entry types.GalleryEntry) (int64, error) {
	if entry.Feature.Empty() {
		return 0, errors.New("refusing to store an empty feature")
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		"INSERT INTO gallery_entries (label, feature, thumbnail) VALUES ($1, $2, $3) RETURNING id",
		entry.Label, entry.Feature.Data, entry.Thumbnail,
	).Scan(&id)
	return id, err
}

// LoadEntries reads the whole gallery in insertion order.
func (s *Store) LoadEntries(ctx context.Context) ([]types.GalleryEntry, error) {
	rows, err := s.pool.Query(ctx, "SELECT label, feature, thumbnail FROM gallery_entries ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.GalleryEntry
	for rows.Next() {
		var e types.GalleryEntry
		if err := rows.Scan(&e.Label, &e.Feature.Data, &e.Thumbnail); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EntryInfo is the listing view of a stored entry. Index is its position in the gallery.
type EntryInfo struct {
	ID          int64
	Index       int
	Label       string
	FeatureSize int
	CreatedAt   time.Time
}

// ListEntries returns every entry without its feature bytes.
func (s *Store) ListEntries(ctx context.Context) ([]EntryInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, label, octet_length(feature), created_at
		FROM gallery_entries
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EntryInfo
	for rows.Next() {
		var info EntryInfo
		if err := rows.Scan(&info.ID, &info.Label, &info.FeatureSize, &info.CreatedAt); err != nil {
			return nil, err
		}
		info.Index = len(out)
		out = append(out, info)
	}
	return out, rows.Err()
}

// RenameEntry updates the label of a stored entry.
func (s *Store) RenameEntry(ctx context.Context, id int64, label string) error {
	tag, err := s.pool.Exec(ctx, "UPDATE gallery_entries SET label = $1 WHERE id = $2", label, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrEntryNotFound, id)
	}
	return nil
}

// EntryID resolves a gallery index to its row id.
func (s *Store) EntryID(ctx context.Context, index int) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, "SELECT id FROM gallery_entries ORDER BY id ASC OFFSET $1 LIMIT 1", index).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: index %d", ErrEntryNotFound, index)
	}
	return id, err
}

// Clear deletes every entry, keeping the table.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM gallery_entries")
	return err
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS gallery_entries CASCADE;`)
	return err
}
