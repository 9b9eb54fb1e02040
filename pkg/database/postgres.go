package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/analyzerhq/analyzer-console/pkg/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL represents a PostgreSQL database connection
type PostgreSQL struct {
	pool *pgxpool.Pool
}

type PostgreSQLConfig struct {
	User              string
	Password          string
	Host              string
	Port              int
	Database          string
	SSLMode           string
	MaxConnections    int32
	ConnectionTimeout time.Duration
}

// New creates a new PostgreSQL instance
func New(ctx context.Context, cfg PostgreSQLConfig) (*PostgreSQL, error) {
	if cfg.Database == "" {
		return nil, fmt.Errorf("database name is required")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("database host is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("database user is required")
	}

	// Use pgxpool.ParseConfig to handle special characters in passwords
	poolConfig, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("failed to create connection config: %w", err)
	}

	poolConfig.ConnConfig.Host = cfg.Host
	poolConfig.ConnConfig.Port = uint16(cfg.Port)
	poolConfig.ConnConfig.Database = cfg.Database
	poolConfig.ConnConfig.User = cfg.User
	poolConfig.ConnConfig.Password = cfg.Password
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectionTimeout

	switch cfg.SSLMode {
	case "disable":
		poolConfig.ConnConfig.TLSConfig = nil
	case "require", "prefer":
		// pgx handles the TLS negotiation automatically
	default:
	}

	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MaxConnIdleTime = cfg.ConnectionTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgreSQL{pool: pool}, nil
}

// NewFromURL creates a PostgreSQL instance from a connection string
func NewFromURL(ctx context.Context, url string) (*PostgreSQL, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgreSQL{pool: pool}, nil
}

// FromGlobalConfig creates a PostgreSQL config from the global configuration
func FromGlobalConfig(cfg *config.Config) PostgreSQLConfig {
	port, err := strconv.Atoi(cfg.Get("database.port"))
	if err != nil {
		port = 5432
	}

	return PostgreSQLConfig{
		User:              cfg.Get("database.user"),
		Password:          cfg.Get("database.password"),
		Host:              cfg.Get("database.host"),
		Port:              port,
		Database:          cfg.Get("database.name"),
		SSLMode:           cfg.Get("database.sslmode"),
		MaxConnections:    40,
		ConnectionTimeout: 5 * time.Second,
	}
}

// Pool returns the underlying connection pool
func (db *PostgreSQL) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the database connection
func (db *PostgreSQL) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}
