// Package connector opens and tears down protocol sessions against the
// mailbox endpoints of configured accounts.
package connector

import (
	"context"
	"fmt"

	"github.com/replykit-io/replykit/internal/models"
)

// MessageRef identifies one message within an open inbound session.
type MessageRef struct {
	// SeqID is the protocol-level numeric handle (POP3 sequence number,
	// IMAP UID). Valid only for the session that produced it.
	SeqID uint32
	// UID is the stable identifier reported by the server (IMAP UID as
	// decimal, POP3 UIDL).
	UID string
	// RemoteID qualifies the UID with the account identity, for use as a
	// ledger fallback when a message carries no Message-ID header.
	RemoteID string
}

// InboundSession is an open retrieval session against one account's
// mailbox. Implementations must not be shared across accounts or reused
// across polling ticks.
type InboundSession interface {
	// ListUnread returns refs for messages not yet read, in mailbox order.
	// For protocols without read flags (POP3) it returns every message;
	// dedup then rests entirely on the ledger.
	ListUnread(ctx context.Context) ([]MessageRef, error)

	// Fetch returns the raw RFC 822 payload for a ref.
	Fetch(ctx context.Context, ref MessageRef) ([]byte, error)

	// MarkSeen flags the source message read. No-op where the protocol
	// has no flags.
	MarkSeen(ctx context.Context, ref MessageRef) error

	Close() error
}

// OutgoingMessage is a composed reply ready for SMTP submission.
type OutgoingMessage struct {
	From       string
	FromName   string
	To         string
	Subject    string
	Body       string
	MessageID  string
	InReplyTo  string
	References string
}

// OutboundSession is an open submission session for one account.
type OutboundSession interface {
	Send(ctx context.Context, msg *OutgoingMessage) error
	Close() error
}

// ConnectionError reports a failure to open or authenticate a protocol
// session. It is scoped to one account and never fatal to a batch.
type ConnectionError struct {
	Account string
	Op      string // "inbound" or "outbound"
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection for %s: %v", e.Op, e.Account, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Opener produces an inbound session for an account. Implementations
// (IMAP, POP3) register with the Manager by account type.
type Opener interface {
	Name() string
	Open(ctx context.Context, account *models.MailAccount) (InboundSession, error)
}

func buildRemoteID(account *models.MailAccount, uid string) string {
	if account.Email == "" {
		return fmt.Sprintf("%s:%s", account.InboundHost, uid)
	}
	return fmt.Sprintf("%s@%s:%s", account.Email, account.InboundHost, uid)
}
