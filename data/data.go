// Package data owns the process-wide store connections: the relational
// database, the optional redis client and the optional mongo client.
package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/ncobase/keyvault/data/config"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ContextKey string

const (
	ContextKeyTransaction ContextKey = "tx"
)

// Supported relational drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var ErrClosed = errors.New("data layer is closed")

// Data represents the data layer implementation
type Data struct {
	db     *sql.DB
	rc     *redis.Client
	mc     *mongo.Client
	driver string

	mu     sync.RWMutex
	closed bool
}

// New creates new data layer
func New(cfg *config.Config) (*Data, func(name ...string), error) {
	if cfg == nil || cfg.Database == nil {
		return nil, nil, errors.New("database config is required")
	}

	db, driver, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	d := &Data{db: db, driver: driver}

	if cfg.Redis != nil && cfg.Redis.Addr != "" {
		rc := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Username:     cfg.Redis.Username,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.Db,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			DialTimeout:  cfg.Redis.DialTimeout,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		d.rc = rc
	}

	if cfg.MongoDB != nil && cfg.MongoDB.URI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mc, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.URI))
		if err != nil {
			_ = d.Close()
			return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		d.mc = mc
	}

	cleanup := func(name ...string) {
		if err := d.Close(); err != nil {
			fmt.Printf("cleanup errors: %v\n", err)
		}
	}

	return d, cleanup, nil
}

// NewWithDB wraps an already opened database, used by tests and tooling
func NewWithDB(db *sql.DB, driver string, rc *redis.Client) *Data {
	return &Data{db: db, driver: driver, rc: rc}
}

func openDatabase(cfg *config.Database) (*sql.DB, string, error) {
	var driverName string
	switch cfg.Driver {
	case DriverPostgres, "postgresql", "pgx":
		driverName = "pgx"
		cfg.Driver = DriverPostgres
	case DriverSQLite, "sqlite":
		driverName = DriverSQLite
		cfg.Driver = DriverSQLite
	default:
		return nil, "", fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := sql.Open(driverName, cfg.Source)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxIdleConn > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifeTime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifeTime)
	}
	// sqlite serialises writers, a single connection avoids SQLITE_BUSY inside transactions
	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}

	return db, cfg.Driver, nil
}

// DB returns the relational database handle
func (d *Data) DB() *sql.DB {
	return d.db
}

// Redis returns the redis client, nil when redis is not configured
func (d *Data) Redis() *redis.Client {
	return d.rc
}

// Mongo returns the mongo client, nil when mongo is not configured
func (d *Data) Mongo() *mongo.Client {
	return d.mc
}

// Driver returns the configured relational driver name
func (d *Data) Driver() string {
	return d.driver
}

// Dialect returns the ent dialect matching the driver
func (d *Data) Dialect() string {
	if d.driver == DriverSQLite {
		return dialect.SQLite
	}
	return dialect.Postgres
}

// Builder returns a dialect-aware SQL builder
func (d *Data) Builder() *entsql.DialectBuilder {
	return entsql.Dialect(d.Dialect())
}

// Ping checks every configured connection
func (d *Data) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if d.rc != nil {
		if err := d.rc.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if d.mc != nil {
		if err := d.mc.Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongodb: %w", err)
		}
	}
	return nil
}

// Close closes all connections
func (d *Data) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	if d.mc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.mc.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb: %w", err))
		}
		cancel()
	}
	if d.rc != nil {
		if err := d.rc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (d *Data) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}
