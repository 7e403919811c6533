// Package database owns the postgres connection pool used by the
// subscription store.
package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConnected is returned by Status before Connect succeeded
var ErrNotConnected = errors.New("database not initialized")

// Config holds pool settings
type Config struct {
	URL         string        `mapstructure:"url"`
	MaxConns    int           `mapstructure:"max_connections"`
	MinConns    int           `mapstructure:"min_connections"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
	MaxIdleTime time.Duration `mapstructure:"max_idle_time"`
	Migrate     bool          `mapstructure:"migrate"`
}

var (
	pool   *pgxpool.Pool
	poolMu sync.RWMutex
)

// Connect opens the shared pool, pings it, and applies the schema when
// cfg.Migrate is set. Connecting twice returns the existing pool.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolMu.Lock()
	defer poolMu.Unlock()
	if pool != nil {
		return pool, nil
	}

	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxLifetime
	}
	if cfg.MaxIdleTime > 0 {
		pcfg.MaxConnIdleTime = cfg.MaxIdleTime
	}
	pcfg.HealthCheckPeriod = time.Minute

	p, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if cfg.Migrate {
		if err := Migrate(ctx, p); err != nil {
			p.Close()
			return nil, err
		}
	}

	pool = p
	return pool, nil
}

// Close closes the shared pool
func Close() {
	poolMu.Lock()
	defer poolMu.Unlock()
	if pool != nil {
		pool.Close()
		pool = nil
	}
}

// Pool returns the shared pool, or nil before Connect
func Pool() *pgxpool.Pool {
	poolMu.RLock()
	defer poolMu.RUnlock()
	return pool
}

// Status pings the shared pool
func Status(ctx context.Context) error {
	p := Pool()
	if p == nil {
		return ErrNotConnected
	}
	return p.Ping(ctx)
}
