package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/larder/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
)

// timeLayout is the text form of every timestamp column. The fixed width
// keeps lexical and chronological order identical.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a unified SQLite-based storage that provides access to
// all store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.larder/data/larder.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".larder", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "larder.db")

	// WAL for concurrent readers; immediate transactions so read-then-write
	// sequences never race for the write lock.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RecordStore returns a RecordStore for the named collection.
// quotaBytes caps the collection's serialized size; zero means unlimited.
func (s *Store) RecordStore(collection string, quotaBytes int64) driven.RecordStore {
	return &recordStore{store: s, collection: collection, quotaBytes: quotaBytes}
}

// SyncStateStore returns a SyncStateStore interface backed by this store.
func (s *Store) SyncStateStore() driven.SyncStateStore {
	return &syncStateStore{store: s}
}

// SchedulerStore returns a SchedulerStore interface backed by this store.
func (s *Store) SchedulerStore() driven.SchedulerStore {
	return &schedulerStore{store: s}
}

// CacheStorage returns a CacheStorage interface backed by this store.
func (s *Store) CacheStorage() driven.CacheStorage {
	return &cacheStorage{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys fs.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Record Store ====================

// recordStore implements driven.RecordStore for one collection.
type recordStore struct {
	store      *Store
	collection string
	quotaBytes int64
}

var _ driven.RecordStore = (*recordStore)(nil)

// Get retrieves a record by id.
func (s *recordStore) Get(ctx context.Context, id string) (*domain.StoredRecord, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT body, rev, updated_at
		FROM records WHERE collection = ? AND id = ?
	`, s.collection, id)

	var body []byte
	var stored domain.StoredRecord
	var updatedAt string
	if err := row.Scan(&body, &stored.Rev, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	rec, err := domain.DecodeRecord(body)
	if err != nil {
		return nil, fmt.Errorf("decoding stored record %s: %w", id, err)
	}
	stored.Record = rec
	stored.UpdatedAt = parseTime(updatedAt)
	return &stored, nil
}

// Put writes a record guarded by its revision token.
func (s *recordStore) Put(ctx context.Context, id string, rec domain.Record, rev string) (string, error) {
	body, err := domain.CanonicalJSON(rec)
	if err != nil {
		return "", err
	}
	size := int64(len(body))

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var storedRev string
	var gen, oldSize int64
	err = tx.QueryRowContext(ctx, `
		SELECT rev, generation, size FROM records WHERE collection = ? AND id = ?
	`, s.collection, id).Scan(&storedRev, &gen, &oldSize)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("reading revision: %w", err)
	}

	if exists && storedRev != rev {
		return "", fmt.Errorf("%w: record %s", domain.ErrConflict, id)
	}
	if !exists && rev != "" {
		return "", fmt.Errorf("%w: record %s does not exist", domain.ErrConflict, id)
	}

	if s.quotaBytes > 0 {
		var used int64
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(SUM(size), 0) FROM records WHERE collection = ?", s.collection,
		).Scan(&used); err != nil {
			return "", fmt.Errorf("measuring collection: %w", err)
		}
		if used-oldSize+size > s.quotaBytes {
			return "", fmt.Errorf("%w: collection %s", domain.ErrQuotaExceeded, s.collection)
		}
	}

	gen++
	newRev := fmt.Sprintf("%d-%s", gen, uuid.NewString())
	checksum, _ := rec.Checksum()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (collection, id, rev, generation, checksum, body, size, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			rev = excluded.rev,
			generation = excluded.generation,
			checksum = excluded.checksum,
			body = excluded.body,
			size = excluded.size,
			updated_at = excluded.updated_at
	`, s.collection, id, newRev, gen, int64(checksum), body, size, formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("writing record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing record: %w", err)
	}
	return newRev, nil
}

// List returns every stored record ordered by id.
func (s *recordStore) List(ctx context.Context) ([]domain.StoredRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, body, rev, updated_at
		FROM records WHERE collection = ?
		ORDER BY id
	`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var result []domain.StoredRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id, updatedAt string
		var body []byte
		var stored domain.StoredRecord
		if err := rows.Scan(&id, &body, &stored.Rev, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		rec, err := domain.DecodeRecord(body)
		if err != nil {
			return nil, fmt.Errorf("decoding stored record %s: %w", id, err)
		}
		stored.Record = rec
		stored.UpdatedAt = parseTime(updatedAt)
		result = append(result, stored)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return result, nil
}

// Info describes the collection.
func (s *recordStore) Info(ctx context.Context) (*domain.CollectionInfo, error) {
	var count int
	if err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE collection = ?", s.collection,
	).Scan(&count); err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	return &domain.CollectionInfo{
		Name:       s.collection,
		Records:    count,
		QuotaBytes: s.quotaBytes,
	}, nil
}

// ==================== Sync State Store ====================

// syncStateStore implements driven.SyncStateStore.
type syncStateStore struct {
	store *Store
}

var _ driven.SyncStateStore = (*syncStateStore)(nil)

// Save stores or updates sync state.
func (s *syncStateStore) Save(ctx context.Context, state domain.SyncState) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_state (collection, last_sync)
		VALUES (?, ?)
		ON CONFLICT(collection) DO UPDATE SET
			last_sync = excluded.last_sync
	`, state.Collection, nullTime(state.LastSync))

	if err != nil {
		return fmt.Errorf("saving sync state: %w", err)
	}
	return nil
}

// Get retrieves sync state for a collection.
func (s *syncStateStore) Get(ctx context.Context, collection string) (*domain.SyncState, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT collection, last_sync
		FROM sync_state WHERE collection = ?
	`, collection)

	var state domain.SyncState
	var lastSync sql.NullString
	if err := row.Scan(&state.Collection, &lastSync); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning sync state: %w", err)
	}
	state.LastSync = parseNullTime(lastSync)

	return &state, nil
}

// ==================== Cache Storage ====================

// cacheStorage implements driven.CacheStorage.
type cacheStorage struct {
	store *Store
}

var _ driven.CacheStorage = (*cacheStorage)(nil)

// Open returns the named generation, creating it if needed.
func (s *cacheStorage) Open(ctx context.Context, name string) (driven.Cache, error) {
	if name == "" {
		return nil, domain.ErrInvalidInput
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO cache_generations (name, created_at) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", name, err)
	}
	return &cache{store: s.store, name: name}, nil
}

// Keys lists generation names in sorted order.
func (s *cacheStorage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx, "SELECT name FROM cache_generations ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying cache generations: %w", err)
	}
	defer rows.Close()

	var names []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning cache generation: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cache generations: %w", err)
	}
	return names, nil
}

// Delete removes a generation and, through the cascade, its entries.
func (s *cacheStorage) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM cache_generations WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("deleting cache %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting cache %s: %w", name, err)
	}
	return n > 0, nil
}

// cache implements driven.Cache for one generation.
type cache struct {
	store *Store
	name  string
}

var _ driven.Cache = (*cache)(nil)

// Name returns the generation name.
func (c *cache) Name() string {
	return c.name
}

// Match returns the entry stored under key.
func (c *cache) Match(ctx context.Context, key string) (*domain.CacheEntry, error) {
	row := c.store.db.QueryRowContext(ctx, `
		SELECT key, method, url, status, header, body, stored_at
		FROM cache_entries WHERE generation = ? AND key = ?
	`, c.name, key)

	var entry domain.CacheEntry
	var header sql.NullString
	var storedAt string
	if err := row.Scan(&entry.Key, &entry.Method, &entry.URL, &entry.Status,
		&header, &entry.Body, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning cache entry: %w", err)
	}

	entry.Header = http.Header{}
	if header.Valid && header.String != "" {
		if err := json.Unmarshal([]byte(header.String), &entry.Header); err != nil {
			return nil, fmt.Errorf("unmarshalling cache headers: %w", err)
		}
	}
	entry.StoredAt = parseTime(storedAt)
	return &entry, nil
}

// Put stores or overwrites the entry.
func (c *cache) Put(ctx context.Context, entry *domain.CacheEntry) error {
	if entry == nil || entry.Key == "" {
		return domain.ErrInvalidInput
	}

	header, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("marshalling cache headers: %w", err)
	}

	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	_, err = c.store.db.ExecContext(ctx, `
		INSERT INTO cache_entries (generation, key, method, url, status, header, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(generation, key) DO UPDATE SET
			method = excluded.method,
			url = excluded.url,
			status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			stored_at = excluded.stored_at
	`, c.name, entry.Key, entry.Method, entry.URL, entry.Status,
		string(header), entry.Body, formatTime(storedAt))
	if err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}
	return nil
}

// Count returns the number of entries.
func (c *cache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cache_entries WHERE generation = ?", c.name,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

// ==================== Helper Functions ====================

// formatTime formats a time for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored timestamp, returning zero time when invalid.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// nullTime formats t for storage, or returns nil for the zero time.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

// parseNullTime parses a nullable timestamp, returning the zero time for NULL.
func parseNullTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	return parseTime(s.String)
}
