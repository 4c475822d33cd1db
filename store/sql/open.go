package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	peerlinkmigrations "github.com/goliatone/go-peerlink/migrations"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// OpenConfig selects the database for the presence journal.
type OpenConfig struct {
	Driver      string
	DSN         string
	Debug       bool
	PingTimeout time.Duration
	// SkipMigrations leaves schema management to the caller.
	SkipMigrations bool
}

type persistenceConfig struct {
	driver      string
	server      string
	debug       bool
	pingTimeout time.Duration
}

func (c persistenceConfig) GetDebug() bool { return c.debug }
func (c persistenceConfig) GetDriver() string { return c.driver }
func (c persistenceConfig) GetServer() string { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return c.pingTimeout }
func (c persistenceConfig) GetOtelIdentifier() string { return "go-peerlink" }

// Open connects through go-persistence-bun, applies the embedded migrations
// for the driver's dialect, and returns the client with its store factory.
func Open(ctx context.Context, cfg OpenConfig) (*persistence.Client, *RepositoryFactory, error) {
	migrationDialect, err := peerlinkmigrations.DialectForDriver(cfg.Driver)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}
	var (
		driver  string
		dialect schema.Dialect
	)
	switch migrationDialect {
	case peerlinkmigrations.DialectSQLite:
		driver = DriverSQLite
		dialect = sqlitedialect.New()
	default:
		driver = DriverPostgres
		dialect = pgdialect.New()
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlstore: dsn is required")
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{
		driver:      driver,
		server:      cfg.DSN,
		debug:       cfg.Debug,
		pingTimeout: cfg.PingTimeout,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}

	if !cfg.SkipMigrations {
		_, err = peerlinkmigrations.RegisterDialect(ctx, migrationDialect, func(fsys fs.FS) {
			client.RegisterSQLMigrations(fsys)
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		if err := client.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}

	factory, err := NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return client, factory, nil
}
