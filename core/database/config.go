package database

import (
	"time"

	"github.com/calounx/sagas-sub011/core/hostdb"
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/core/sqlgen"
	"github.com/calounx/sagas-sub011/core/txn"
)

// Driver selects the backend of a connection.
type Driver string

const (
	// DriverMemory keeps every table in process. DSN optionally names a store
	// image to load at open.
	DriverMemory Driver = "memory"
	// DriverSQLite opens the SQLite database file named by DSN.
	DriverSQLite Driver = "sqlite"
	// DriverHost runs statements through Config.Host.
	DriverHost Driver = "host"
)

// Config holds connection configuration.
type Config struct {
	Driver    Driver
	DSN       string
	Prefix    string
	Isolation txn.Isolation

	RetryAttempts  int           // Attempts made by Connection.Run (1 = no retry)
	RetryBaseDelay time.Duration // First backoff delay, doubled per attempt

	StatementCacheSize int           // Prepared statements kept per SQLite connection
	SchemaCacheTTL     time.Duration // Lifetime of introspected table definitions

	Host        hostdb.Host    // Host database API, required by DriverHost
	HostDialect sqlgen.Dialect // Dialect of the host database (nil = MySQL)

	Observer query.Observer // Receives an Event per executed statement
}

// DefaultConfig returns an in-process configuration with the default
// isolation and retry policy.
func DefaultConfig() Config {
	return Config{
		Driver:         DriverMemory,
		Isolation:      txn.RepeatableRead,
		RetryAttempts:  3,
		RetryBaseDelay: 50 * time.Millisecond,
	}
}
