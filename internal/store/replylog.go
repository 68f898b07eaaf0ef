package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/replykit-io/replykit/internal/models"
)

// ReplyLog is the append-only audit stream of reply attempts. Entries are
// ordered by insertion and never mutated.
type ReplyLog struct {
	db *sql.DB
	mu sync.Mutex
}

// NewReplyLog wraps the shared store handle.
func NewReplyLog(db *sql.DB) *ReplyLog {
	return &ReplyLog{db: db}
}

// Append durably writes one entry.
func (r *ReplyLog) Append(ctx context.Context, entry *models.ReplyLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reply_log (timestamp, from_email, to_email, subject, response_sent, message_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.UTC(),
		entry.FromEmail,
		entry.ToEmail,
		entry.Subject,
		entry.ResponseSent,
		entry.MessageID,
	)
	if err != nil {
		return fmt.Errorf("append reply log: %w", err)
	}
	return nil
}

// List returns the full stream in creation order.
func (r *ReplyLog) List(ctx context.Context) ([]models.ReplyLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, from_email, to_email, subject, response_sent, message_id
		FROM reply_log
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list reply log: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Activity summarizes the stream for health reporting: total entry count
// and the timestamp of the most recent entry.
func (r *ReplyLog) Activity(ctx context.Context) (models.RecentActivity, error) {
	var activity models.RecentActivity

	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(timestamp) FROM reply_log`)
	var last sql.NullTime
	if err := row.Scan(&activity.Count, &last); err != nil {
		return models.RecentActivity{}, fmt.Errorf("reply log activity: %w", err)
	}
	if last.Valid {
		t := last.Time
		activity.LastTimestamp = &t
	}
	return activity, nil
}

func scanEntries(rows *sql.Rows) ([]models.ReplyLogEntry, error) {
	var entries []models.ReplyLogEntry
	for rows.Next() {
		var e models.ReplyLogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.FromEmail, &e.ToEmail, &e.Subject, &e.ResponseSent, &e.MessageID); err != nil {
			return nil, fmt.Errorf("scan reply log row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
