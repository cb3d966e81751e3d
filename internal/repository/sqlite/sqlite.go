package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"reconstore/internal/metrics"
	"reconstore/internal/repository"
)

var _ repository.Repository = (*Store)(nil)

// AdminLinkMode controls how RecordAdminEdge pairs resolved users with
// resolved hosts
type AdminLinkMode string

const (
	// AdminLinkPositional pairs the i-th user with the i-th host and drops the
	// surplus of the longer list
	AdminLinkPositional AdminLinkMode = "positional"
	// AdminLinkCrossProduct links every resolved user to every resolved host
	AdminLinkCrossProduct AdminLinkMode = "cross"
)

// ParseAdminLinkMode maps a config value to an AdminLinkMode, defaulting to
// positional pairing
func ParseAdminLinkMode(s string) AdminLinkMode {
	if AdminLinkMode(strings.ToLower(s)) == AdminLinkCrossProduct {
		return AdminLinkCrossProduct
	}
	return AdminLinkPositional
}

// Store is the recon store over a single SQLite file
type Store struct {
	db      *sql.DB
	log     zerolog.Logger
	metrics *metrics.Recorder

	adminLink              AdminLinkMode
	independentUserUpdates bool
	busyTimeout            time.Duration
	journalMode            string
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for reconcile outcomes and degraded writes
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithMetrics attaches a metrics recorder
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Store) { s.metrics = m }
}

// WithAdminLinkMode selects how admin edges pair users with hosts
func WithAdminLinkMode(mode AdminLinkMode) Option {
	return func(s *Store) { s.adminLink = mode }
}

// WithIndependentUserUpdates makes RecordUser update domain and username
// independently instead of only when both differ
func WithIndependentUserUpdates(enabled bool) Option {
	return func(s *Store) { s.independentUserUpdates = enabled }
}

// WithBusyTimeout sets the SQLite busy timeout
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) { s.busyTimeout = d }
}

// WithJournalMode sets the SQLite journal mode (WAL, DELETE, ...)
func WithJournalMode(mode string) Option {
	return func(s *Store) { s.journalMode = mode }
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens an existing store without touching its schema
func Open(dbPath string, opts ...Option) (*Store, error) {
	s := &Store{
		log:         zerolog.Nop(),
		adminLink:   AdminLinkPositional,
		busyTimeout: 5 * time.Second,
		journalMode: "WAL",
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite", s.dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes every operation, so a reconcile's read and
	// write cannot interleave with another caller's.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s.db = db
	return s, nil
}

// New opens a store and creates the schema if the file is empty
func New(dbPath string, opts ...Option) (*Store, error) {
	s, err := Open(dbPath, opts...)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	initialized, err := s.HasSchema(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	if !initialized {
		if err := s.InitSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return s, nil
}

func (s *Store) dsn(dbPath string) string {
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", s.busyTimeout.Milliseconds()))
	if s.journalMode != "" {
		params.Add("_pragma", fmt.Sprintf("journal_mode(%s)", s.journalMode))
	}
	return "file:" + dbPath + "?" + params.Encode()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction. The transaction is rolled back on every
// path that does not reach Commit.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(op, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return storeErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr(op, fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// exists reports whether table has a row with the given id. table is always
// one of the schema constants, never caller input.
func exists(ctx context.Context, q querier, table string, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}

	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ? LIMIT 1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check %s id: %w", table, err)
	}
	return true, nil
}

func (s *Store) record(entity, outcome string) {
	s.metrics.Record(entity, outcome)
}
