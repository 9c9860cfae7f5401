// Package sqlstore keeps sessions in a relational table through database/sql. It is
// tested against modernc.org/sqlite and speaks MySQL through go-sql-driver/mysql; both
// use ? placeholders.
//
// Schema:
//
//	CREATE TABLE sessions (
//	    session_id    VARCHAR(128) PRIMARY KEY,
//	    session_data  BLOB,
//	    last_accessed BIGINT NOT NULL
//	);
//
// last_accessed holds unix seconds.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite" // registers "sqlite"

	"github.com/MrEthical07/goSession/container"
)

var (
	// ErrInvalidTable is returned for table names that are not plain identifiers.
	ErrInvalidTable = errors.New("sqlstore: invalid table name")
	// ErrUnsupportedDriver is returned by Open for drivers this package does not speak.
	ErrUnsupportedDriver = errors.New("sqlstore: unsupported driver")
)

var tableNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidTable reports whether name is safe to interpolate into a query.
func ValidTable(name string) bool { return tableNameRE.MatchString(name) }

// Config configures the SQL backend.
type Config struct {
	Driver       string
	DSN          string
	Table        string
	AutoMigrate  bool
	MaxOpenConns int
	MaxLifetime  time.Duration
}

// Store is the SQL backend provider.
type Store struct {
	db          *sql.DB
	table       string
	maxLifetime time.Duration
	ownsDB      bool

	qGet, qCount, qUpdate, qInsert, qTouch, qGC, qDelete string
}

// Open opens cfg.DSN with cfg.Driver and wraps the pool in a Store that owns it.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	switch cfg.Driver {
	case "sqlite", "mysql":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
	dsn, err := driverDSN(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}
	s, err := New(ctx, db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// driverDSN adjusts dsn for the driver. MySQL reports rows changed rather than rows
// matched unless clientFoundRows is set, so a Touch within the same second would look
// like a miss.
func driverDSN(driver, dsn string) (string, error) {
	if driver != "mysql" {
		return dsn, nil
	}
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("sqlstore: mysql dsn: %w", err)
	}
	mc.ClientFoundRows = true
	return mc.FormatDSN(), nil
}

// New wraps an existing pool. The caller keeps ownership of db. A MySQL pool should be
// opened with clientFoundRows=true, or unchanged touches fall back to a full write.
func New(ctx context.Context, db *sql.DB, cfg Config) (*Store, error) {
	table := cfg.Table
	if table == "" {
		table = "sessions"
	}
	if !ValidTable(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	s := &Store{
		db:          db,
		table:       table,
		maxLifetime: cfg.MaxLifetime,
		qGet:        fmt.Sprintf("SELECT session_data FROM %s WHERE session_id = ? AND last_accessed > ?", table),
		qCount:      fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE session_id = ?", table),
		qUpdate:     fmt.Sprintf("UPDATE %s SET session_data = ?, last_accessed = ? WHERE session_id = ?", table),
		qInsert:     fmt.Sprintf("INSERT INTO %s (session_id, session_data, last_accessed) VALUES (?, ?, ?)", table),
		qTouch:      fmt.Sprintf("UPDATE %s SET last_accessed = ? WHERE session_id = ?", table),
		qGC:         fmt.Sprintf("DELETE FROM %s WHERE last_accessed < ?", table),
		qDelete:     fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", table),
	}

	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates the session table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		session_id VARCHAR(128) PRIMARY KEY,
		session_data BLOB,
		last_accessed BIGINT NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// NewContainer implements container.Provider.
func (s *Store) NewContainer() container.Container {
	return &conn{store: s}
}

// Close closes the pool when the store opened it.
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

type conn struct {
	store *Store
	now   time.Time
	ready bool
}

func (c *conn) Init(_ context.Context, p container.InitParams) error {
	c.now = p.Now
	if c.now.IsZero() {
		c.now = time.Now()
	}
	c.ready = true
	return nil
}

func (c *conn) Get(ctx context.Context, id string) ([]byte, bool, error) {
	if !c.ready {
		return nil, false, container.ErrNotInitialized
	}
	cutoff := int64(0)
	if c.store.maxLifetime > 0 {
		cutoff = c.now.Add(-c.store.maxLifetime).Unix()
	}
	var data []byte
	err := c.store.db.QueryRowContext(ctx, c.store.qGet, id, cutoff).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlstore: get: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, true, nil
}

// Set probes for the row inside a transaction and then updates or inserts it.
func (c *conn) Set(ctx context.Context, id string, payload []byte) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, c.store.qCount, id).Scan(&n); err != nil {
		return false, fmt.Errorf("sqlstore: probe: %w", err)
	}
	ts := c.now.Unix()
	if n > 0 {
		_, err = tx.ExecContext(ctx, c.store.qUpdate, payload, ts, id)
	} else {
		_, err = tx.ExecContext(ctx, c.store.qInsert, id, payload, ts)
	}
	if err != nil {
		return false, fmt.Errorf("sqlstore: write: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlstore: commit: %w", err)
	}
	return true, nil
}

func (c *conn) Touch(ctx context.Context, id string, _ []byte) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	res, err := c.store.db.ExecContext(ctx, c.store.qTouch, c.now.Unix(), id)
	if err != nil {
		return false, fmt.Errorf("sqlstore: touch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: touch: %w", err)
	}
	return n > 0, nil
}

func (c *conn) GC(ctx context.Context, maxLifetime time.Duration) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	if _, err := c.store.db.ExecContext(ctx, c.store.qGC, c.now.Add(-maxLifetime).Unix()); err != nil {
		return false, fmt.Errorf("sqlstore: gc: %w", err)
	}
	return true, nil
}

func (c *conn) Delete(ctx context.Context, id string) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	if _, err := c.store.db.ExecContext(ctx, c.store.qDelete, id); err != nil {
		return false, fmt.Errorf("sqlstore: delete: %w", err)
	}
	return true, nil
}

func (c *conn) Close() error {
	c.ready = false
	return nil
}
