// Package database provides the connectors queryviz runs its
// configured queries against, plus a manager that tracks connection
// health so failing databases don't stall the query loop.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/queryviz/queryviz/internal/config"
)

// Status is the health state of a connection.
type Status string

const (
	StatusOK     Status = "OK"
	StatusFailed Status = "FAIL"
)

// Connector executes queries against one configured database.
type Connector interface {
	Name() string
	// ExecuteQuery runs the query and returns the result column names
	// and all rows.
	ExecuteQuery(ctx context.Context, query string) ([]string, [][]interface{}, error)
	Ping(ctx context.Context) error
	Status() Status
	Close() error
}

// SQLConnector is a Connector backed by database/sql.
// No mutex guards the *sql.DB itself: it maintains its own connection
// pool with internal synchronization. The mutex only protects the
// health status.
type SQLConnector struct {
	name    string
	dbms    string
	db      *sql.DB
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.Mutex
	status Status
}

// Open creates a connector for the given connection config. The
// database is not contacted here; health is established by the first
// Ping or query.
func Open(cfg config.ConnectionConfig, timeout time.Duration, logger zerolog.Logger) (*SQLConnector, error) {
	driver, dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection %q: %w", cfg.Name, err)
	}

	// One recurring query per stream; a small pool is plenty.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	logger.Info().
		Str("connection", cfg.Name).
		Str("dbms", cfg.DBMS).
		Str("host", cfg.Host).
		Msg("Connection configured")

	return &SQLConnector{
		name:    cfg.Name,
		dbms:    cfg.DBMS,
		db:      db,
		timeout: timeout,
		logger:  logger,
		status:  StatusFailed,
	}, nil
}

// buildDSN maps a connection config onto a registered driver and its
// connection string.
func buildDSN(cfg config.ConnectionConfig) (driver, dsn string, err error) {
	switch cfg.DBMS {
	case "postgresql", "postgres":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   fmt.Sprintf("%s:%d", cfg.Host, portOr(cfg.Port, 5432)),
			Path:   "/" + cfg.Database,
		}
		q := url.Values{}
		q.Set("sslmode", "prefer")
		u.RawQuery = q.Encode()
		return "pgx", u.String(), nil
	case "clickhouse":
		u := url.URL{
			Scheme: "clickhouse",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   fmt.Sprintf("%s:%d", cfg.Host, portOr(cfg.Port, 9000)),
			Path:   "/" + cfg.Database,
		}
		return "clickhouse", u.String(), nil
	case "sqlite", "sqlite3":
		if cfg.Database == "" {
			return "", "", fmt.Errorf("connection %q: sqlite requires 'database' (file path)", cfg.Name)
		}
		return "sqlite3", cfg.Database, nil
	default:
		return "", "", fmt.Errorf("connection %q: unsupported dbms %q", cfg.Name, cfg.DBMS)
	}
}

func portOr(port, fallback int) int {
	if port > 0 {
		return port
	}
	return fallback
}

func (c *SQLConnector) Name() string { return c.name }

func (c *SQLConnector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// setStatus records the new health state, logging transitions.
func (c *SQLConnector) setStatus(s Status, cause error) {
	c.mu.Lock()
	prev := c.status
	c.status = s
	c.mu.Unlock()

	if prev == s {
		return
	}
	if s == StatusOK {
		c.logger.Info().Str("connection", c.name).Msg("Connection is healthy")
	} else {
		c.logger.Warn().Str("connection", c.name).Err(cause).Msg("Connection marked as failed")
	}
}

// Ping tests the connection and updates its health status.
func (c *SQLConnector) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		c.setStatus(StatusFailed, err)
		return fmt.Errorf("ping %q: %w", c.name, err)
	}
	c.setStatus(StatusOK, nil)
	return nil
}

// ExecuteQuery runs the query with the configured timeout and returns
// the result column names and all rows. Query failures mark the
// connection as failed.
func (c *SQLConnector) ExecuteQuery(ctx context.Context, query string) ([]string, [][]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		c.setStatus(StatusFailed, err)
		return nil, nil, fmt.Errorf("query on %q: %w", c.name, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query on %q: %w", c.name, err)
	}

	var result [][]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("query on %q: %w", c.name, err)
		}
		// Drivers hand back []byte for text columns; normalize to
		// string so downstream formatting is stable.
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result = append(result, values)
	}
	if err := rows.Err(); err != nil {
		c.setStatus(StatusFailed, err)
		return nil, nil, fmt.Errorf("query on %q: %w", c.name, err)
	}

	c.setStatus(StatusOK, nil)
	return columns, result, nil
}

func (c *SQLConnector) Close() error {
	return c.db.Close()
}
