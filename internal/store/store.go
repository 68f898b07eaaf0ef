// Package store persists the dedup ledger and the reply audit log in a
// local sqlite database. Both tables are append-only; nothing in the
// polling path ever updates or deletes a row.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS processed_message (
	message_id   TEXT PRIMARY KEY,
	processed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reply_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp     DATETIME NOT NULL,
	from_email    TEXT NOT NULL,
	to_email      TEXT NOT NULL,
	subject       TEXT NOT NULL,
	response_sent BOOLEAN NOT NULL,
	message_id    TEXT NOT NULL
);
`

// Open opens (creating if necessary) the sqlite database at path and
// applies the schema. WAL keeps the single-writer append path durable
// without blocking readers.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// sqlite handles one writer at a time; keep the pool at one
	// connection so appends serialize at the driver as well.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}
	return db, nil
}
