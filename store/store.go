// Package store persists shares, datasets, environments and work tasks in
// a SQLite metastore.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// SQLite DSN parameters for production hardening.
const (
	defaultBusyTimeout = "5000" // 5 seconds
	defaultSynchronous = "NORMAL"
	defaultJournalMode = "WAL"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store wraps a write pool and a read pool over the same SQLite file.
// SQLite allows a single writer, so the write pool is capped at one
// connection and takes its transaction lock immediately.
type Store struct {
	write *sql.DB
	read  *sql.DB
}

// Open opens the metastore at path, runs pending migrations, and returns
// a ready Store.
func Open(path string) (*Store, error) {
	write, read, err := openSQLitePair(path, 0)
	if err != nil {
		return nil, err
	}

	if err = runMigrations(write); err != nil {
		_ = write.Close()
		_ = read.Close()

		return nil, err
	}

	return &Store{write: write, read: read}, nil
}

func (s *Store) Close() error {
	if err := s.read.Close(); err != nil {
		_ = s.write.Close()
		return err
	}

	return s.write.Close()
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

func openSQLitePair(path string, readMaxOpen int) (writeDB, readDB *sql.DB, err error) {
	writeDB, err = openSQLite(path, "write", 0)
	if err != nil {
		return nil, nil, err
	}

	readDB, err = openSQLite(path, "read", readMaxOpen)
	if err != nil {
		_ = writeDB.Close()
		return nil, nil, err
	}

	return writeDB, readDB, nil
}

func openSQLite(path string, mode string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", buildDSN(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open sqlite (%s): %w", mode, err)
	}

	switch mode {
	case "write":
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case "read":
		if maxOpen <= 0 {
			maxOpen = 4
		}

		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}

	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite (%s): %w", mode, err)
	}

	return db, nil
}

func buildDSN(path string, mode string) string {
	params := url.Values{}
	params.Set("_journal_mode", defaultJournalMode)
	params.Set("_busy_timeout", defaultBusyTimeout)
	params.Set("_synchronous", defaultSynchronous)
	params.Set("_foreign_keys", "on")

	if mode == "write" {
		params.Set("_txlock", "immediate")
	}

	return path + "?" + params.Encode()
}
