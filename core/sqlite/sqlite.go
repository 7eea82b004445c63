// Package sqlite opens sagadb backends on SQLite databases. Two drivers are
// supported:
//   - Default (CGO_ENABLED=0): pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): mattn/go-sqlite3 via contrib/sqlite-external
//
// Both register with database/sql; use Open or Connect instead of sql.Open so
// the driver matching the build is picked.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/sqldb"
	"github.com/calounx/sagas-sub011/core/sqlgen"
	"github.com/calounx/sagas-sub011/internal/logging"
)

// Backend is the backend name of SQLite connections.
const Backend = "sqlite"

// DefaultBusyTimeout is how long a statement waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// DriverName returns the database/sql driver name of the build.
func DriverName() string {
	return driverName
}

// DriverType returns "cgo" for mattn/go-sqlite3 and "purego" for
// modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// IsCGO returns true if the CGO implementation is being used.
func IsCGO() bool {
	return driverType == "cgo"
}

// Open opens a database/sql pool on dataSourceName.
func Open(dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

// OpenReadOnly opens a SQLite database in read-only mode.
func OpenReadOnly(path string) (*sql.DB, error) {
	return Open(readOnlyDSN(path))
}

func readOnlyDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path + "&mode=ro"
	}
	return "file:" + path + "?mode=ro"
}

// Options configures Connect.
type Options struct {
	// Path is the database file; ":memory:" opens a private in-memory
	// database.
	Path     string
	Prefix   string
	ReadOnly bool
	// BusyTimeout defaults to DefaultBusyTimeout.
	BusyTimeout time.Duration
	// StatementCacheSize bounds the prepared statements kept per connection.
	StatementCacheSize int
	// SchemaCacheTTL is passed to sqldb.Options.
	SchemaCacheTTL time.Duration
}

// session closes the pool along with the pinned connection.
type session struct {
	*sqldb.Conn
	db *sql.DB
}

func (s session) Close() error {
	return errors.Join(s.Conn.Close(), s.db.Close())
}

// Connect opens the database at opts.Path and returns a backend pinned to one
// connection with foreign keys enforced.
func Connect(ctx context.Context, opts Options) (*sqldb.Backend, error) {
	if opts.Path == "" {
		return nil, sagaerrors.NewValidation("path", "", "database path is required")
	}
	dsn := opts.Path
	if opts.ReadOnly {
		dsn = readOnlyDSN(opts.Path)
	}
	db, err := Open(dsn)
	if err != nil {
		return nil, &sagaerrors.ConnectionError{Op: "open", Err: err}
	}
	conn, err := sqldb.NewConn(ctx, db, opts.StatementCacheSize)
	if err != nil {
		db.Close()
		return nil, &sagaerrors.ConnectionError{Op: "connect", Err: err}
	}
	s := session{Conn: conn, db: db}

	timeout := opts.BusyTimeout
	if timeout <= 0 {
		timeout = DefaultBusyTimeout
	}
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = " + strconv.FormatInt(timeout.Milliseconds(), 10),
	} {
		if _, err := s.Exec(pragma, nil); err != nil {
			s.Close()
			return nil, &sagaerrors.ConnectionError{Op: "configure", Err: fmt.Errorf("%s: %w", pragma, err)}
		}
	}

	logging.Debug("sqlite connected", "path", opts.Path, "driver", driverType, "read_only", opts.ReadOnly)
	return sqldb.New(s, sqldb.Options{
		Name:           Backend,
		Dialect:        sqlgen.SQLite{},
		Prefix:         opts.Prefix,
		SchemaCacheTTL: opts.SchemaCacheTTL,
	}), nil
}

// Info contains information about the SQLite driver configuration.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	IsCGO      bool   `json:"is_cgo"`
	Package    string `json:"package"`
}

// GetInfo returns information about the current SQLite configuration.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      IsCGO(),
		Package:    driverPackage,
	}
}
