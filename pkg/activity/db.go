// Package activity implements the request/response activity log: an
// in-memory ring for fast reads and a sqlite mirror for durability
// (spec.md §3, §4.9).
package activity

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// openDB opens (creating and migrating if necessary) the sqlite mirror
// at dbFile.
func openDB(dbFile string) (*sqlx.DB, error) {
	ensureDirectoryExists(dbFile)

	db, err := sql.Open("sqlite", "file:"+dbFile+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening activity database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	migDriver, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, err
	}
	driver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		return nil, err
	}
	mig, err := migrate.NewWithInstance("iofs", migDriver, "sqlite", driver)
	if err != nil {
		return nil, err
	}
	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("running activity log migrations: %w", err)
	}

	return sqlx.NewDb(db, "sqlite"), nil
}

func ensureDirectoryExists(path string) {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		_ = os.MkdirAll(dir, 0o700)
	}
}

// row is the sqlx-mapped shape of a persisted event.
type row struct {
	ID        string `db:"id"`
	Timestamp string `db:"timestamp"`
	Source    string `db:"source"`
	EventType string `db:"event_type"`
	Message   string `db:"message"`
	Metadata  string `db:"metadata"`
}

const insertQuery = `
	INSERT INTO activity_events (id, timestamp, source, event_type, message, metadata)
	VALUES (:id, :timestamp, :source, :event_type, :message, :metadata)
`

const selectRecentQuery = `
	SELECT id, timestamp, source, event_type, message, metadata
	FROM activity_events
	ORDER BY timestamp DESC
	LIMIT ?
`
