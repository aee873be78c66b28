package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/bizops/internal/model"
)

// SQLStore implements the Store interface on top of SQLite or PostgreSQL.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

var _ Store = (*SQLStore)(nil)

// Open connects to the database described by driver and dsn and runs any
// pending schema migrations. driver is one of model.DriverSQLite or
// model.DriverPostgres.
func Open(driver, dsn string) (*SQLStore, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch driver {
	case model.DriverSQLite:
		db, err = openSQLite(dsn)
	case model.DriverPostgres:
		db, err = sqlx.Open("pgx", dsn)
		if err == nil {
			err = db.Ping()
		}
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("opening %s db: %w", driver, err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.runMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	return Open(model.DriverSQLite, dbPath)
}

func openSQLite(path string) (*sqlx.DB, error) {
	// Times are written in a fixed layout so that text comparisons in
	// WHERE clauses order correctly. Connection pragmas go in the DSN so
	// they apply to every connection the pool opens.
	params := "_time_format=sqlite&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	dsn := path + "?" + params
	if strings.Contains(path, "?") {
		dsn = path + "&" + params
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A single connection keeps :memory: databases alive across calls
	// and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return db, fmt.Errorf("enabling WAL mode: %w", err)
	}

	return db, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Driver reports which database driver the store was opened with.
func (s *SQLStore) Driver() string {
	return s.driver
}

// SchemaVersion returns the highest applied migration version.
func (s *SQLStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.GetContext(ctx, &v, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order, each in its own transaction.
func (s *SQLStore) runMigrations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)")
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if err := s.withTx(ctx, func(tx *sqlx.Tx) error {
			for _, stmt := range m.statements(s.driver) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// withTx runs fn inside a transaction, committing on success.
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// q rebinds a query written with ? placeholders for the active driver.
func (s *SQLStore) q(query string) string {
	return s.db.Rebind(query)
}

// notFound maps sql.ErrNoRows to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// expectRow returns ErrNotFound when an update or delete touched nothing.
func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
