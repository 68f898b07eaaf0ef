package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/go-pop3"

	"github.com/replykit-io/replykit/internal/models"
)

type pop3Connection interface {
	Auth(user, password string) error
	Quit() error
	Uidl(msgID int) ([]pop3.MessageID, error)
	RetrRaw(msgID int) (*bytes.Buffer, error)
}

type pop3ConnFactory func(*models.MailAccount) (pop3Connection, error)

// POP3Opener opens POP3/POP3S retrieval sessions. POP3 has no read flags,
// so ListUnread returns every message and MarkSeen is a no-op; the dedup
// ledger alone decides what has been handled.
type POP3Opener struct {
	dialTimeout time.Duration
	logger      *log.Logger
	newConn     pop3ConnFactory
}

// POP3Option customizes opener behavior.
type POP3Option func(*POP3Opener)

// WithPOP3DialTimeout overrides the socket dial timeout.
func WithPOP3DialTimeout(timeout time.Duration) POP3Option {
	return func(o *POP3Opener) {
		if timeout > 0 {
			o.dialTimeout = timeout
		}
	}
}

// WithPOP3Logger overrides the logger used for session diagnostics.
func WithPOP3Logger(logger *log.Logger) POP3Option {
	return func(o *POP3Opener) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func withPOP3ConnFactory(factory pop3ConnFactory) POP3Option {
	return func(o *POP3Opener) {
		o.newConn = factory
	}
}

// NewPOP3Opener returns a POP3 opener ready for polling.
func NewPOP3Opener(opts ...POP3Option) *POP3Opener {
	o := &POP3Opener{
		dialTimeout: 5 * time.Second,
		logger:      log.Default(),
	}
	o.newConn = o.defaultConnFactory
	for _, opt := range opts {
		opt(o)
	}
	if o.newConn == nil {
		o.newConn = o.defaultConnFactory
	}
	return o
}

// Name returns the opener identifier.
func (o *POP3Opener) Name() string {
	return "pop3"
}

// Open dials and authenticates a POP3 session.
func (o *POP3Opener) Open(ctx context.Context, account *models.MailAccount) (InboundSession, error) {
	if err := validatePOP3Account(account); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := o.newConn(account)
	if err != nil {
		return nil, fmt.Errorf("pop3 connect: %w", err)
	}

	if err := conn.Auth(account.Email, string(account.Password)); err != nil {
		o.safeQuit(conn)
		return nil, fmt.Errorf("pop3 auth: %w", err)
	}

	return &pop3Session{conn: conn, account: account, logger: o.logger}, nil
}

func (o *POP3Opener) safeQuit(conn pop3Connection) {
	if conn == nil {
		return
	}
	if err := conn.Quit(); err != nil && o.logger != nil {
		o.logger.Printf("pop3 quit error: %v", err)
	}
}

func (o *POP3Opener) defaultConnFactory(account *models.MailAccount) (pop3Connection, error) {
	if account.InboundHost == "" {
		return nil, errors.New("pop3 account missing host")
	}
	port := account.InboundPort
	if port == 0 {
		if usePOP3TLS(account.InboundType) {
			port = 995
		} else {
			port = 110
		}
	}
	client := pop3.New(pop3.Opt{
		Host:        account.InboundHost,
		Port:        port,
		DialTimeout: o.dialTimeout,
		TLSEnabled:  usePOP3TLS(account.InboundType),
	})
	return client.NewConn()
}

type pop3Session struct {
	conn    pop3Connection
	account *models.MailAccount
	logger  *log.Logger
}

func (s *pop3Session) ListUnread(ctx context.Context) ([]MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msgs, err := s.conn.Uidl(0)
	if err != nil {
		return nil, fmt.Errorf("pop3 uidl: %w", err)
	}
	refs := make([]MessageRef, 0, len(msgs))
	for _, meta := range msgs {
		uid := meta.UID
		if uid == "" {
			uid = strconv.Itoa(meta.ID)
		}
		refs = append(refs, MessageRef{
			SeqID:    uint32(meta.ID),
			UID:      uid,
			RemoteID: buildRemoteID(s.account, uid),
		})
	}
	return refs, nil
}

func (s *pop3Session) Fetch(ctx context.Context, ref MessageRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := s.conn.RetrRaw(int(ref.SeqID))
	if err != nil {
		return nil, fmt.Errorf("pop3 retr %d: %w", ref.SeqID, err)
	}
	return append([]byte(nil), payload.Bytes()...), nil
}

// MarkSeen is a no-op: POP3 has no message flags.
func (s *pop3Session) MarkSeen(ctx context.Context, ref MessageRef) error {
	return ctx.Err()
}

func (s *pop3Session) Close() error {
	return s.conn.Quit()
}

func validatePOP3Account(account *models.MailAccount) error {
	if account == nil {
		return errors.New("pop3 account is nil")
	}
	if account.Email == "" {
		return errors.New("pop3 account missing address")
	}
	if len(account.Password) == 0 {
		return errors.New("pop3 account missing password")
	}
	if !supportsPOP3(account.InboundType) {
		return fmt.Errorf("account type %s not supported by POP3 opener", account.InboundType)
	}
	return nil
}

func supportsPOP3(t string) bool {
	switch strings.ToLower(t) {
	case "pop3", "pop3s", "pop3_tls", "pop3s_tls":
		return true
	default:
		return false
	}
}

func usePOP3TLS(t string) bool {
	switch strings.ToLower(t) {
	case "pop3s", "pop3_tls", "pop3s_tls":
		return true
	default:
		return false
	}
}
