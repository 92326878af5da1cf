package markov

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	lru "github.com/hashicorp/golang-lru"
)

const (
	// TriadTable is the name of the table holding the persisted triads.
	TriadTable = "markov_triads"
	// MergeChunkSize is the maximum number of triads loaded into the staging
	// table per merge transaction.
	MergeChunkSize = 50000
	// candidateCacheSize is the number of candidate lookups kept in memory.
	candidateCacheSize = 4096
)

// SetupSchema initializes the triad table and its secondary index in the
// provided database. It is idempotent and safe to call on an
// already-initialized database.
func SetupSchema(db *sql.DB) error {
	return setupSchema(context.Background(), db)
}

func setupSchema(ctx context.Context, db *sql.DB) error {
	const (
		schemaTriads = `
CREATE TABLE IF NOT EXISTS markov_triads (
    first_token  TEXT NOT NULL,
    second_token TEXT NOT NULL,
    third_token  TEXT NOT NULL,
    occurrences  INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (first_token, second_token, third_token)
);
`
		indexSecond = `CREATE INDEX IF NOT EXISTS markov_triads_second ON markov_triads (second_token);`
	)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, schemaTriads); err != nil {
		return fmt.Errorf("could not create triad schema: %w", err)
	}
	if _, err = tx.ExecContext(ctx, indexSecond); err != nil {
		return fmt.Errorf("could not create triad index: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store is the persisted triad table. It owns the prepared statements used
// for lookups and a cache of candidate sets. Lookups are read-only and safe
// for concurrent use; writes (merge, prune, import, vacuum) invalidate the
// cache.
type Store struct {
	db                 *sql.DB
	tokenizer          Tokenizer
	wrap               bool
	cache              *lru.ARCCache
	stmtFirstTokens    *sql.Stmt
	stmtNextExact      *sql.Stmt
	stmtNextUnigram    *sql.Stmt
	stmtPruneUncommon  *sql.Stmt
	stmtPurgeSelfLoops *sql.Stmt
	stmtCountTriads    *sql.Stmt
	stmtSumOccurrences *sql.Stmt
	stmtCountFirst     *sql.Stmt
	stmtCountStarters  *sql.Stmt
	logger             *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTokenizer sets the tokenizer used by MergeText and Train.
// Default: NewDefaultTokenizer()
func WithTokenizer(t Tokenizer) StoreOption {
	return func(s *Store) {
		s.tokenizer = t
	}
}

// WithWraparound makes MergeText link the end of each input back to its
// beginning, producing as many triads as tokens. Default: false.
func WithWraparound(wrap bool) StoreOption {
	return func(s *Store) {
		s.wrap = wrap
	}
}

// NewStore creates the triad table if needed and prepares every statement
// the store uses. The caller keeps ownership of db.
func NewStore(ctx context.Context, db *sql.DB, opts ...StoreOption) (*Store, error) {
	if err := setupSchema(ctx, db); err != nil {
		return nil, err
	}

	cache, err := lru.NewARC(candidateCacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create candidate cache: %w", err)
	}

	s := &Store{
		db:        db,
		tokenizer: NewDefaultTokenizer(),
		cache:     cache,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	prepared := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtFirstTokens, `SELECT third_token, SUM(occurrences) FROM markov_triads WHERE second_token IN ('.', '!', '?') GROUP BY third_token;`},
		{&s.stmtNextExact, `SELECT third_token, occurrences FROM markov_triads WHERE first_token = ? AND second_token = ?;`},
		{&s.stmtNextUnigram, `SELECT third_token, SUM(occurrences) FROM markov_triads WHERE second_token = ? GROUP BY third_token;`},
		{&s.stmtPruneUncommon, `DELETE FROM markov_triads WHERE first_token IN (SELECT first_token FROM markov_triads GROUP BY first_token HAVING COUNT(*) <= ?);`},
		{&s.stmtPurgeSelfLoops, `DELETE FROM markov_triads WHERE first_token = second_token AND second_token = third_token;`},
		{&s.stmtCountTriads, `SELECT COUNT(*) FROM markov_triads;`},
		{&s.stmtSumOccurrences, `SELECT coalesce(SUM(occurrences), 0) FROM markov_triads;`},
		{&s.stmtCountFirst, `SELECT COUNT(DISTINCT first_token) FROM markov_triads;`},
		{&s.stmtCountStarters, `SELECT COUNT(DISTINCT third_token) FROM markov_triads WHERE second_token IN ('.', '!', '?');`},
	}
	for _, p := range prepared {
		stmt, err := db.PrepareContext(ctx, p.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not prepare statement: %w", err)
		}
		*p.dst = stmt
	}

	return s, nil
}

// Create idempotently creates the backing table if it is absent.
func (s *Store) Create(ctx context.Context) error {
	return setupSchema(ctx, s.db)
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases all prepared statements held by the Store. It does not
// close the database.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtFirstTokens,
		s.stmtNextExact,
		s.stmtNextUnigram,
		s.stmtPruneUncommon,
		s.stmtPurgeSelfLoops,
		s.stmtCountTriads,
		s.stmtSumOccurrences,
		s.stmtCountFirst,
		s.stmtCountStarters,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// invalidate drops every cached candidate set after a write.
func (s *Store) invalidate() {
	s.cache.Purge()
}
