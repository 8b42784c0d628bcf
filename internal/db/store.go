// Package db is the postgres implementation of store.Store.
package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"

	"otc-exchange/internal/pda"
	"otc-exchange/internal/store"
)

type Store struct{ DB *sql.DB }

var _ store.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) migrator(dir string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(s.DB, &postgres.Config{})
	if err != nil {
		return nil, err
	}
	return migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
}

// Migrate applies every pending migration in dir.
func (s *Store) Migrate(dir string) error {
	m, err := s.migrator(dir)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// MigrateDown rolls back steps migrations.
func (s *Store) MigrateDown(dir string, steps int) error {
	m, err := s.migrator(dir)
	if err != nil {
		return err
	}
	if err := m.Steps(-steps); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// MigrationVersion reports the applied schema version.
func (s *Store) MigrationVersion(dir string) (uint, bool, error) {
	m, err := s.migrator(dir)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	return v, dirty, err
}

// Begin opens a transaction. Rows read through the returned Tx are locked FOR UPDATE.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx   *sql.Tx
	done bool
}

func (t *pgTx) Commit() error {
	t.done = true
	return t.tx.Commit()
}

func (t *pgTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

// ── Helpers ──────────────────────────────────────────

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface{ Scan(dest ...any) error }

// num carries a uint64 through NUMERIC(20,0); database/sql rejects uint64 values with the high bit set.
type num uint64

func (n num) Value() (driver.Value, error) { return strconv.FormatUint(uint64(n), 10), nil }

func (n *num) Scan(src any) error {
	var s string
	switch t := src.(type) {
	case []byte:
		s = string(t)
	case string:
		s = t
	case int64:
		if t < 0 {
			return fmt.Errorf("num: negative value %d", t)
		}
		*n = num(t)
		return nil
	default:
		return fmt.Errorf("num: cannot scan %T", src)
	}
	v, err := strconv.ParseUint(strings.TrimSuffix(s, ".0"), 10, 64)
	if err != nil {
		return fmt.Errorf("num: %w", err)
	}
	*n = num(v)
	return nil
}

// nullAddr scans a nullable address column.
type nullAddr struct{ dst **pda.Address }

func (n nullAddr) Scan(src any) error {
	if src == nil {
		*n.dst = nil
		return nil
	}
	var a pda.Address
	if err := a.Scan(src); err != nil {
		return err
	}
	*n.dst = &a
	return nil
}

func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(from+i)
	}
	return strings.Join(parts, ",")
}

func insertSQL(table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ","), placeholders(1, len(cols)))
}

// updateSQL sets every column but the first, keyed by the first.
func updateSQL(table string, cols []string) string {
	sets := make([]string, 0, len(cols)-1)
	for i, c := range cols[1:] {
		sets = append(sets, fmt.Sprintf("%s=$%d", c, i+2))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s=$1", table, strings.Join(sets, ","), cols[0])
}

func selectSQL(table string, cols []string) string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ","), table)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func exec(ctx context.Context, q querier, query string, args ...any) error {
	_, err := q.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return store.ErrDuplicateKey
	}
	return err
}

// execOne runs an UPDATE or DELETE that must touch exactly one row.
func execOne(ctx context.Context, q querier, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
