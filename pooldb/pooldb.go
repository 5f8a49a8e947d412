// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package pooldb implements the persistence layer of the pool: farmers and
// their custodial wallets, pool contracts, the per-block operation lifecycle
// records and exit settlements, all backed by PostgreSQL.
//
// Write paths that cross tables (harvest credit, exit creation, exit
// completion) run in a single transaction so a crash never leaves the
// lifecycle half applied.
package pooldb

import (
	"context"
	"embed"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/pkg/errors"

	"github.com/kalepool/kalepool/log"
)

var logger = log.WithContext("pkg", "pooldb")

//go:embed migrations/*.sql
var migrations embed.FS

const (
	defaultMaxOpenConns = 16
	defaultMaxIdleConns = 8
	connMaxLifetime     = 30 * time.Minute
)

// Options configures the database connection.
type Options struct {
	// DSN is a lib/pq connection string or postgres:// URL.
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Store provides access to the pool database.
type Store struct {
	db *sqlx.DB
}

// Open connects to the database named by opts.DSN and applies any pending
// schema migrations before returning.
func Open(opts *Options) (*Store, error) {
	db, err := sqlx.Connect("postgres", opts.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "connect database")
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := opts.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate database")
	}
	return &Store{db: db}, nil
}

// New wraps an existing database handle without running migrations.
// It is intended for tests.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func runMigrations(db *sqlx.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	drv, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	logger.Info("database schema ready", "version", version)
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn inside a transaction, rolling back when fn fails.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
