package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Ledger is the durable record of message identifiers already handled.
// The full identifier set is loaded into memory at construction so
// membership tests never touch the database; appends write through to
// sqlite before the in-memory set is updated. Growth is unbounded by
// design; there is no eviction.
type Ledger struct {
	db *sql.DB

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewLedger loads every previously recorded identifier from the database.
func NewLedger(ctx context.Context, db *sql.DB) (*Ledger, error) {
	l := &Ledger{db: db, seen: make(map[string]struct{})}

	rows, err := db.QueryContext(ctx, `SELECT message_id FROM processed_message`)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		l.seen[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return l, nil
}

// Has reports whether the identifier has already been handled.
func (l *Ledger) Has(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[id]
	return ok
}

// Record durably appends an identifier. The in-memory set is only updated
// after the insert is acknowledged, so a failed write never poisons
// membership tests. Appends are serialized by a single mutex; callers in
// parallel account workers share one append stream.
func (l *Ledger) Record(ctx context.Context, id string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[id]; ok {
		return nil
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_message (message_id, processed_at) VALUES (?, ?)`,
		id, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", id, err)
	}
	l.seen[id] = struct{}{}
	return nil
}

// Size returns the number of recorded identifiers.
func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
