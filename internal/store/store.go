// Package store persists flows, sessions, escalations and the notification
// outbox in SQLite or Postgres through database/sql.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/capitalize-ai/guided-resolution/pkg/logger"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// Opts holds store construction options.
type Opts struct {
	Driver string
	DSN    string
	Logger *logger.Logger
}

// Option configures the store.
type Option func(*Opts)

// WithDriver selects the database/sql driver name ("sqlite3" or "pgx").
func WithDriver(driver string) Option {
	return func(o *Opts) { o.Driver = driver }
}

// WithDSN sets the data source name.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithLogger sets the store logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Opts) { o.Logger = l }
}

// Store owns the database handle.
type Store struct {
	db  *sql.DB
	d   dialect
	log *logger.Logger
}

// Open connects to the database and applies the schema.
func Open(ctx context.Context, opts ...Option) (*Store, error) {
	cfg := Opts{Driver: DriverSQLite}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}

	var d dialect
	switch cfg.Driver {
	case DriverSQLite, "sqlite":
		d = sqliteDialect
		cfg.Driver = DriverSQLite
	case DriverPostgres, "postgres", "postgresql":
		d = postgresDialect
		cfg.Driver = DriverPostgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.postgres {
		db.SetMaxOpenConns(20)
		db.SetConnMaxIdleTime(5 * time.Minute)
	} else {
		// One writer keeps in-memory databases shared and serialises SQLite
		// transactions without SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, d: d, log: cfg.Logger.Named("store")}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	s.log.Info("Database ready", zap.String("driver", cfg.Driver))
	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Queries returns a query set running outside any transaction.
func (s *Store) Queries() *Queries {
	return &Queries{ex: s.db, d: s.d}
}

// InTx runs fn in a transaction. The transaction commits when fn returns nil
// and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Queries{ex: tx, d: s.d, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Warn("Rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every statement the engine runs. It is bound either to the
// database or to one transaction.
type Queries struct {
	ex   execer
	d    dialect
	inTx bool
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.ex.ExecContext(ctx, q.d.rebind(query), args...)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.ex.QueryContext(ctx, q.d.rebind(query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.ex.QueryRowContext(ctx, q.d.rebind(query), args...)
}

// forUpdate appends a row lock on Postgres when running in a transaction.
func (q *Queries) forUpdate(query string) string {
	if q.inTx && q.d.postgres {
		return query + " FOR UPDATE"
	}
	return query
}

type dialect struct {
	postgres bool
	timeType string
}

var (
	sqliteDialect   = dialect{timeType: "DATETIME"}
	postgresDialect = dialect{postgres: true, timeType: "TIMESTAMPTZ"}
)

// rebind rewrites ? placeholders to $n for Postgres.
func (d dialect) rebind(query string) string {
	if !d.postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// wrapWrite maps unique violations onto ErrDuplicate.
func wrapWrite(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ts normalises timestamps to UTC microseconds, the common precision of
// both backends.
func ts(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
