package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replykit-io/replykit/internal/models"
)

func TestReplyLogAppend(t *testing.T) {
	db, mock := newMockDB(t)

	at := time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO reply_log`)).
		WithArgs(at, "support@example.com", "lead@other.com", "Re: Pricing", true, "<m1@other.com>").
		WillReturnResult(sqlmock.NewResult(1, 1))

	log := NewReplyLog(db)
	require.NoError(t, log.Append(context.Background(), &models.ReplyLogEntry{
		Timestamp:    at,
		FromEmail:    "support@example.com",
		ToEmail:      "lead@other.com",
		Subject:      "Re: Pricing",
		ResponseSent: true,
		MessageID:    "<m1@other.com>",
	}))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplyLogListOrderedByInsertion(t *testing.T) {
	db, mock := newMockDB(t)

	t1 := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 4, 2, 9, 5, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "timestamp", "from_email", "to_email", "subject", "response_sent", "message_id"}).
		AddRow(int64(1), t1, "a@example.com", "x@other.com", "Re: Hi", true, "<1@other.com>").
		AddRow(int64(2), t2, "a@example.com", "y@other.com", "Re: Yo", false, "<2@other.com>")

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY id ASC`)).WillReturnRows(rows)

	log := NewReplyLog(db)
	entries, err := log.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, int64(2), entries[1].ID)
	assert.True(t, entries[0].ResponseSent)
	assert.False(t, entries[1].ResponseSent)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplyLogActivity(t *testing.T) {
	db, mock := newMockDB(t)

	last := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*), MAX(timestamp) FROM reply_log`)).
		WillReturnRows(sqlmock.NewRows([]string{"count", "max"}).AddRow(5, last))

	log := NewReplyLog(db)
	activity, err := log.Activity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, activity.Count)
	require.NotNil(t, activity.LastTimestamp)
	assert.True(t, activity.LastTimestamp.Equal(last))
}

func TestReplyLogActivityEmpty(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*), MAX(timestamp) FROM reply_log`)).
		WillReturnRows(sqlmock.NewRows([]string{"count", "max"}).AddRow(0, nil))

	log := NewReplyLog(db)
	activity, err := log.Activity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, activity.Count)
	assert.Nil(t, activity.LastTimestamp)
}
