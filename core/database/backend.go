package database

import (
	"context"
	"fmt"
	"os"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/hostdb"
	"github.com/calounx/sagas-sub011/core/memory"
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/core/result"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/core/sqldb"
	"github.com/calounx/sagas-sub011/core/sqlite"
	"github.com/calounx/sagas-sub011/core/txn"
)

// backend is the set of contracts one adapter provides.
type backend struct {
	name   string
	prefix string
	exec   query.Executor
	engine txn.Engine
	schema schema.Manager
	raw    func(sql string, args ...any) (*result.ResultSet, error)
	ping   func() error
	close  func() error
	store  *memory.Store
}

func fromSQL(b *sqldb.Backend) *backend {
	return &backend{
		name:   b.Name(),
		prefix: b.Prefix(),
		exec:   b,
		engine: b,
		schema: b.Schema(),
		raw:    b.Raw,
		ping:   b.Ping,
		close:  b.Close,
	}
}

func fromStore(s *memory.Store) *backend {
	return &backend{
		name:   memory.Backend,
		prefix: s.Prefix(),
		exec:   s,
		engine: s,
		schema: s.Schema(),
		raw: func(string, ...any) (*result.ResultSet, error) {
			return nil, sagaerrors.NewUnsupported("raw statements", "the in-process backend evaluates builder state only")
		},
		ping:  func() error { return nil },
		close: func() error { return nil },
		store: s,
	}
}

// opener returns the function that connects cfg's backend. The in-process
// store is created once so that reconnecting keeps its tables.
func opener(cfg Config) (func() (*backend, error), error) {
	switch cfg.Driver {
	case DriverMemory, "":
		s := memory.New(cfg.Prefix)
		if cfg.DSN != "" {
			if err := loadImage(s, cfg.DSN); err != nil {
				return nil, err
			}
		}
		return func() (*backend, error) { return fromStore(s), nil }, nil
	case DriverSQLite:
		if cfg.DSN == "" {
			return nil, sagaerrors.NewValidation("dsn", "", "the sqlite driver needs a database path")
		}
		return func() (*backend, error) {
			b, err := sqlite.Connect(context.Background(), sqlite.Options{
				Path:               cfg.DSN,
				Prefix:             cfg.Prefix,
				StatementCacheSize: cfg.StatementCacheSize,
				SchemaCacheTTL:     cfg.SchemaCacheTTL,
			})
			if err != nil {
				return nil, err
			}
			return fromSQL(b), nil
		}, nil
	case DriverHost:
		if cfg.Host == nil {
			return nil, sagaerrors.NewValidation("host", "", "the host driver needs a host database API")
		}
		return func() (*backend, error) {
			return fromSQL(hostdb.Open(cfg.Host, hostdb.Options{
				Dialect:        cfg.HostDialect,
				Prefix:         cfg.Prefix,
				SchemaCacheTTL: cfg.SchemaCacheTTL,
			})), nil
		}, nil
	}
	return nil, sagaerrors.NewValidation("driver", string(cfg.Driver), "unknown driver")
}

func loadImage(s *memory.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &sagaerrors.ConnectionError{Op: "open", Err: err}
	}
	defer f.Close()
	if err := s.LoadImage(f); err != nil {
		return &sagaerrors.ConnectionError{Op: "open", Err: fmt.Errorf("%s: %w", path, err)}
	}
	return nil
}
