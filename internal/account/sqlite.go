package account

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteInfo is the persistent Info implementation (spec.md §4.1: "a
// persistent implementation must serialize itself such that concurrent
// processes cannot observe a half-written state"). It wraps a MemoryInfo as
// an in-process read cache and writes every SetAuthData/Clear through an
// exclusive transaction.
type SQLiteInfo struct {
	db     *sql.DB
	logger *slog.Logger
	cache  *MemoryInfo

	// writeMu serializes SetAuthData/Clear so the single-row upsert and
	// the in-process cache swap happen atomically with respect to each
	// other, not just with respect to other processes.
	writeMu sync.Mutex
}

// OpenSQLiteInfo opens (creating if necessary) a SQLite-backed Info store
// at dbPath, applies pending migrations, and loads any existing state into
// the in-process cache. Use ":memory:" for tests.
func OpenSQLiteInfo(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=foreign_keys(ON)", dbPath)
	if dbPath == ":memory:" {
		dsn = dbPath
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("account: open sqlite: %w", err)
	}

	// A SQLite connection pool with more than one connection defeats the
	// single-writer discipline this store relies on for exclusivity.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteInfo{db: db, logger: logger, cache: NewMemoryInfo()}

	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("account: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("account: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("account: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()))
	}

	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteInfo) Close() error { return s.db.Close() }

func (s *SQLiteInfo) load(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `
		SELECT account_id, auth_token, api_url, download_url, recommended_part_size,
		       min_part_size, realm, allowed_capabilities, allowed_bucket_id,
		       allowed_bucket_name, allowed_name_prefix
		FROM account_info WHERE id = 1`)

	var (
		state        State
		capsJSON     string
		bucketID     sql.NullString
		bucketName   sql.NullString
		namePrefix   sql.NullString
	)

	err := row.Scan(&state.AccountID, &state.AuthToken, &state.APIURL, &state.DownloadURL,
		&state.RecommendedPartSize, &state.MinPartSize, &state.Realm, &capsJSON,
		&bucketID, &bucketName, &namePrefix)

	switch {
	case err == sql.ErrNoRows:
		return s.loadBucketCache(ctx)
	case err != nil:
		return &ErrCorruptAccountInfo{Cause: err}
	}

	if err := json.Unmarshal([]byte(capsJSON), &state.Allowed.Capabilities); err != nil {
		return &ErrCorruptAccountInfo{Cause: fmt.Errorf("decode capabilities: %w", err)}
	}

	state.Allowed.BucketID = bucketID.String
	state.Allowed.BucketName = bucketName.String
	state.Allowed.NamePrefix = namePrefix.String

	if err := s.cache.SetAuthData(state); err != nil {
		return &ErrCorruptAccountInfo{Cause: err}
	}

	return s.loadBucketCache(ctx)
}

func (s *SQLiteInfo) loadBucketCache(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket_name, bucket_id FROM bucket_name_cache`)
	if err != nil {
		return &ErrCorruptAccountInfo{Cause: err}
	}
	defer rows.Close()

	for rows.Next() {
		var name, id string
		if err := rows.Scan(&name, &id); err != nil {
			return &ErrCorruptAccountInfo{Cause: err}
		}

		s.cache.CacheBucketID(name, id)
	}

	return rows.Err()
}

// SetAuthData persists s inside an exclusive transaction, then swaps the
// in-process cache, matching spec.md §4.1's atomicity requirement.
func (s *SQLiteInfo) SetAuthData(state State) error {
	if err := validateAllowed(state.Allowed); err != nil {
		return err
	}

	if len(state.Allowed.Capabilities) == 0 {
		state.Allowed = mergeDefaultCapabilities(state.Allowed)
	}

	capsJSON, err := json.Marshal(state.Allowed.Capabilities)
	if err != nil {
		return fmt.Errorf("account: marshal capabilities: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx := context.Background()

	// A single-connection pool (see OpenSQLiteInfo) makes every transaction
	// exclusive with respect to other connections from this process; WAL
	// mode plus SQLite's own file locking handles exclusivity across
	// processes sharing the same database file.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("account: begin tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO account_info (id, account_id, auth_token, api_url, download_url,
			recommended_part_size, min_part_size, realm, allowed_capabilities,
			allowed_bucket_id, allowed_bucket_name, allowed_name_prefix)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			auth_token = excluded.auth_token,
			api_url = excluded.api_url,
			download_url = excluded.download_url,
			recommended_part_size = excluded.recommended_part_size,
			min_part_size = excluded.min_part_size,
			realm = excluded.realm,
			allowed_capabilities = excluded.allowed_capabilities,
			allowed_bucket_id = excluded.allowed_bucket_id,
			allowed_bucket_name = excluded.allowed_bucket_name,
			allowed_name_prefix = excluded.allowed_name_prefix`,
		state.AccountID, state.AuthToken, state.APIURL, state.DownloadURL,
		state.RecommendedPartSize, state.MinPartSize, state.Realm, string(capsJSON),
		nullable(state.Allowed.BucketID), nullable(state.Allowed.BucketName), nullable(state.Allowed.NamePrefix),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("account: write account_info: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("account: commit account_info: %w", err)
	}

	return s.cache.SetAuthData(state)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}

	return v
}

func (s *SQLiteInfo) AccountID() (string, error)            { return s.cache.AccountID() }
func (s *SQLiteInfo) AuthToken() (string, error)             { return s.cache.AuthToken() }
func (s *SQLiteInfo) APIURL() (string, error)                { return s.cache.APIURL() }
func (s *SQLiteInfo) DownloadURL() (string, error)           { return s.cache.DownloadURL() }
func (s *SQLiteInfo) RecommendedPartSize() (int64, error)    { return s.cache.RecommendedPartSize() }
func (s *SQLiteInfo) MinPartSize() (int64, error)            { return s.cache.MinPartSize() }
func (s *SQLiteInfo) Realm() (string, error)                 { return s.cache.Realm() }
func (s *SQLiteInfo) AllowedInfo() (Allowed, error)          { return s.cache.AllowedInfo() }

// Clear wipes both the persisted row and the in-process cache.
func (s *SQLiteInfo) Clear() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("account: begin tx: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM account_info WHERE id = 1`); err != nil {
		tx.Rollback()
		return fmt.Errorf("account: clear account_info: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM bucket_name_cache`); err != nil {
		tx.Rollback()
		return fmt.Errorf("account: clear bucket_name_cache: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("account: commit clear: %w", err)
	}

	return s.cache.Clear()
}

// CacheBucketID persists the bucket name/id mapping and updates the
// in-process cache. Persistence failures are logged, not returned — the
// bucket cache is an optimization, not authoritative state, matching
// spec.md §3's note that it is rebuildable by listing buckets again.
func (s *SQLiteInfo) CacheBucketID(bucketName, bucketID string) {
	s.cache.CacheBucketID(bucketName, bucketID)

	if _, err := s.db.Exec(`
		INSERT INTO bucket_name_cache (bucket_name, bucket_id) VALUES (?, ?)
		ON CONFLICT(bucket_name) DO UPDATE SET bucket_id = excluded.bucket_id`,
		bucketName, bucketID); err != nil {
		s.logger.Warn("persist bucket cache entry failed",
			slog.String("bucket_name", bucketName), slog.String("error", err.Error()))
	}
}

func (s *SQLiteInfo) LookupBucketID(bucketName string) (string, bool) {
	return s.cache.LookupBucketID(bucketName)
}
