// Package migrations embeds the SQLite schema and applies it with goose.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var files embed.FS

// QuietMode suppresses goose's per-migration output.
var QuietMode = true

var mu sync.Mutex

// Run applies every pending migration.
func Run(db *sql.DB) error {
	// goose keeps its configuration in package globals.
	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(files)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if QuietMode {
		goose.SetLogger(goose.NopLogger())
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
