// Package db owns schema initialization for the obligation store.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"finsched/internal/constants"
	"finsched/internal/lock"
)

const (
	baseDir = "./migrations"
	schema  = "finsched_schema"
)

// Init connects to the database and applies the migration scripts under
// baseDir in name order. A distributed lock guarantees that only one instance
// runs migrations at a time; the rest wait and then no-op because every
// script is idempotent.
func Init(postgresURL string, distributedLock lock.DistributedLockManager, log zerolog.Logger) error {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err = distributedLock.Acquire(constants.MigrationLock); err != nil {
		return err
	}
	defer distributedLock.Release(constants.MigrationLock)

	if err = db.Ping(); err != nil {
		return err
	}

	if _, err = db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return err
	}

	scripts, err := readSQLScripts()
	if err != nil {
		return err
	}
	for _, script := range scripts {
		log.Info().Str("script", script.name).Msg("applying migration")
		if _, err := db.Exec(script.content); err != nil {
			return fmt.Errorf("migration %s: %w", script.name, err)
		}
	}
	return nil
}

type sqlScript struct {
	name    string
	content string
}

// readSQLScripts returns the migration scripts in file name order, which is
// the order they must run in.
func readSQLScripts() ([]sqlScript, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, err
	}

	var scripts []sqlScript
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(baseDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, sqlScript{name: entry.Name(), content: string(content)})
	}
	return scripts, nil
}
