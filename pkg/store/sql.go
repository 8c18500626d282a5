package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // register sqlite as a database/sql driver

	"github.com/matzehuels/exprflow/pkg/errors"
)

//go:embed migrations
var migrations embed.FS

// goose keeps its dialect and base FS in package globals.
var gooseMu sync.Mutex

type dialect struct {
	driver string // database/sql driver name
	goose  string // goose dialect
	dir    string // migrations subdirectory
	pos    bool   // $n placeholders instead of ?
}

var dialects = map[string]dialect{
	DriverSQLite:   {driver: "sqlite", goose: "sqlite3", dir: "migrations/sqlite"},
	DriverPostgres: {driver: "pgx", goose: "postgres", dir: "migrations/postgres", pos: true},
}

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

var _ Store = (*SQLStore)(nil)

// Open connects to the database, runs pending migrations and returns the
// store. driver is "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupported, "unknown store driver %q (want sqlite or postgres)", driver)
	}
	if dsn == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%s store requires a DSN", driver)
	}
	if driver == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := migrate(ctx, db, d); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db, d: d}, nil
}

// New wraps an already migrated connection.
func New(db *sql.DB, driver string) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupported, "unknown store driver %q", driver)
	}
	return &SQLStore{db: db, d: d}, nil
}

func migrate(ctx context.Context, db *sql.DB, d dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	sub, err := fs.Sub(migrations, d.dir)
	if err != nil {
		return err
	}
	goose.SetBaseFS(sub)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(d.goose); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Version returns the applied migration version.
func (s *SQLStore) Version() (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := goose.SetDialect(s.d.goose); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(s.db)
}

// DB exposes the underlying connection.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// q rewrites ? placeholders for the dialect.
func (s *SQLStore) q(query string) string {
	if !s.d.pos {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

const runColumns = `id, dataset, coefficient, reference, status, started_at, completed_at, features, significant, terms, location, error`

func (s *SQLStore) CreateRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	r.Status = StatusRunning
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO runs (id, dataset, coefficient, reference, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`),
		r.ID, r.Dataset, r.Coefficient, r.Reference, string(r.Status), r.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (s *SQLStore) FinishRun(ctx context.Context, r *Run) error {
	if r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now().UTC()
	}
	if r.Status == "" || r.Status == StatusRunning {
		r.Status = StatusSucceeded
		if r.Error != "" {
			r.Status = StatusFailed
		}
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE runs SET coefficient = ?, status = ?, completed_at = ?, features = ?, significant = ?, terms = ?, location = ?, error = ? WHERE id = ?`),
		r.Coefficient, string(r.Status), r.CompletedAt.UnixMilli(), r.Features, r.Significant, r.Terms, r.Location, r.Error, r.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.New(errors.ErrCodeNotFound, "run %s not found", r.ID)
	}
	return nil
}

func (s *SQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+runColumns+` FROM runs WHERE id = ?`), id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeNotFound, "run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r         Run
		status    string
		started   int64
		completed sql.NullInt64
	)
	err := sc.Scan(&r.ID, &r.Dataset, &r.Coefficient, &r.Reference, &status, &started, &completed,
		&r.Features, &r.Significant, &r.Terms, &r.Location, &r.Error)
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.StartedAt = time.UnixMilli(started).UTC()
	if completed.Valid {
		r.CompletedAt = time.UnixMilli(completed.Int64).UTC()
	}
	return &r, nil
}

// Nop discards runs. It backs the "none" driver.
type Nop struct{}

func (Nop) CreateRun(_ context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	r.Status = StatusRunning
	return nil
}
func (Nop) FinishRun(context.Context, *Run) error { return nil }
func (Nop) GetRun(_ context.Context, id string) (*Run, error) {
	return nil, errors.New(errors.ErrCodeNotFound, "run %s not found", id)
}
func (Nop) ListRuns(context.Context, int) ([]Run, error) { return nil, nil }
func (Nop) Close() error                                 { return nil }

// OpenDriver returns the store for a configured driver, with "" and "none"
// mapping to [Nop].
func OpenDriver(ctx context.Context, driver, dsn string) (Store, error) {
	if driver == "" || driver == DriverNone {
		return Nop{}, nil
	}
	return Open(ctx, driver, dsn)
}
