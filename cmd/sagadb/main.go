// Command sagadb inspects and maintains sagadb databases: it runs raw
// statements, lists schemas, applies XML migrations, moves data through
// compressed store images and serves a live query monitor.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/calounx/sagas-sub011/core/database"
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/core/sqlite"
	"github.com/calounx/sagas-sub011/core/txn"
	"github.com/calounx/sagas-sub011/internal/logging"
	"github.com/calounx/sagas-sub011/internal/monitor"
)

const version = "0.1.0"

// stdout receives command output; tests replace it.
var stdout io.Writer = os.Stdout

// Globals are the connection flags shared by every command.
type Globals struct {
	Driver         string        `help:"Backend driver (memory, sqlite)" enum:"memory,sqlite" default:"sqlite" env:"SAGADB_DRIVER"`
	DSN            string        `help:"SQLite database path, or store image for the memory driver" env:"SAGADB_DSN"`
	Prefix         string        `help:"Table name prefix" env:"SAGADB_PREFIX"`
	Isolation      string        `help:"Transaction isolation level" default:"repeatable_read" env:"SAGADB_ISOLATION"`
	Retries        int           `help:"Attempts for transient failures" default:"3" env:"SAGADB_RETRY_ATTEMPTS"`
	SchemaCacheTTL time.Duration `name:"schema-cache-ttl" help:"Lifetime of cached table definitions" default:"30s" env:"SAGADB_SCHEMA_CACHE_TTL"`
	LogLevel       string        `help:"Log level" enum:"debug,info,warn,error" default:"warn" env:"SAGADB_LOG_LEVEL"`
	LogFormat      string        `help:"Log format" enum:"text,json" default:"text" env:"SAGADB_LOG_FORMAT"`
}

// CLI defines the command-line interface for sagadb.
type CLI struct {
	Globals

	Query   QueryCmd     `cmd:"" help:"Run a raw SQL statement"`
	Tables  TablesCmd    `cmd:"" help:"List tables with row counts"`
	Columns ColumnsCmd   `cmd:"" help:"Describe the columns, indexes and foreign keys of a table"`
	Migrate MigrateGroup `cmd:"" help:"Apply and revert XML migrations"`
	Image   ImageGroup   `cmd:"" help:"Save, load and inspect compressed store images"`
	Serve   ServeCmd     `cmd:"" help:"Serve the query API and live event stream"`
	Version VersionCmd   `cmd:"" help:"Print version information"`
}

// MigrateGroup contains migration operations.
type MigrateGroup struct {
	Up     MigrateUpCmd     `cmd:"" help:"Apply pending migrations"`
	Down   MigrateDownCmd   `cmd:"" help:"Revert the newest migrations"`
	Status MigrateStatusCmd `cmd:"" help:"Show applied and pending migrations"`
}

// ImageGroup contains store image operations.
type ImageGroup struct {
	Save ImageSaveCmd `cmd:"" help:"Copy every table into a store image"`
	Load ImageLoadCmd `cmd:"" help:"Copy every table of a store image into the database"`
	Info ImageInfoCmd `cmd:"" help:"Print the fingerprint and table statistics of an image"`
}

// config builds the connection configuration from the global flags.
func (g *Globals) config() (database.Config, error) {
	cfg := database.DefaultConfig()
	cfg.Driver = database.Driver(g.Driver)
	cfg.DSN = g.DSN
	if cfg.Driver == database.DriverSQLite && cfg.DSN == "" {
		cfg.DSN = "sagadb.db"
	}
	cfg.Prefix = g.Prefix
	iso, err := txn.ParseIsolation(g.Isolation)
	if err != nil {
		return cfg, err
	}
	cfg.Isolation = iso
	cfg.RetryAttempts = g.Retries
	cfg.SchemaCacheTTL = g.SchemaCacheTTL
	return cfg, nil
}

func (g *Globals) open() (*database.Connection, error) {
	return g.openWith(nil)
}

func (g *Globals) openWith(obs query.Observer) (*database.Connection, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	cfg.Observer = obs
	return database.Open(cfg)
}

func (g *Globals) initLogging() {
	format := logging.FormatText
	if g.LogFormat == "json" {
		format = logging.FormatJSON
	}
	logging.InitLoggerTo(os.Stderr, logging.ParseLevel(g.LogLevel), format)
}

// ServeCmd starts the monitor server.
type ServeCmd struct {
	Addr           string   `help:"Listen address" default:"127.0.0.1:8470" env:"SAGADB_ADDR"`
	AllowedOrigins []string `help:"Allowed CORS and websocket origins (empty = all)" env:"SAGADB_ALLOWED_ORIGINS"`
	RateLimit      int      `help:"POST /query requests per minute per client (0 = disabled)" default:"0" env:"SAGADB_RATE_LIMIT"`
	RateBurst      int      `help:"Rate limit burst size" default:"10"`
}

func (c *ServeCmd) Run(g *Globals) error {
	hub := monitor.NewHub()
	conn, err := g.openWith(hub)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	srv := monitor.NewServer(monitor.Config{
		Addr:              c.Addr,
		AllowedOrigins:    c.AllowedOrigins,
		RateLimitRequests: c.RateLimit,
		RateLimitBurst:    c.RateBurst,
	}, conn, hub)
	return srv.ListenAndServe(ctx)
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Fprintf(stdout, "sagadb version %s (sqlite driver %s, %s)\n", version, info.DriverName, info.DriverType)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("sagadb"),
		kong.Description("sagadb - backend-agnostic relational persistence toolkit"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Bind(&cli.Globals),
	)
	cli.Globals.initLogging()
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
