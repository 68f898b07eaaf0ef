package connector

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/replykit-io/replykit/internal/models"
)

// Manager resolves the right opener for an account and hands out sessions
// with guaranteed teardown. Sessions are opened fresh for every use and
// never survive the callback that received them.
type Manager struct {
	mu       sync.RWMutex
	inbound  map[string]Opener
	outbound *SMTPOpener
	logger   *log.Logger
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithOpener registers an inbound opener for the provided account types.
func WithOpener(opener Opener, accountTypes ...string) ManagerOption {
	return func(m *Manager) {
		if opener == nil {
			return
		}
		for _, t := range accountTypes {
			key := strings.ToLower(strings.TrimSpace(t))
			if key == "" {
				continue
			}
			m.inbound[key] = opener
		}
	}
}

// WithOutbound overrides the SMTP opener.
func WithOutbound(opener *SMTPOpener) ManagerOption {
	return func(m *Manager) {
		if opener != nil {
			m.outbound = opener
		}
	}
}

// WithManagerLogger overrides the logger used for teardown diagnostics.
func WithManagerLogger(logger *log.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager builds a manager with the provided options.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		inbound: make(map[string]Opener),
		logger:  log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// DefaultManager returns a manager preloaded with the built-in openers.
func DefaultManager(dialTimeout time.Duration) *Manager {
	return NewManager(
		WithOpener(NewIMAPOpener(WithIMAPDialTimeout(dialTimeout)), "imap", "imaps", "imap_tls", "imaps_tls", "imaptls"),
		WithOpener(NewPOP3Opener(WithPOP3DialTimeout(dialTimeout)), "pop3", "pop3s", "pop3_tls", "pop3s_tls"),
		WithOutbound(NewSMTPOpener(WithSMTPDialTimeout(dialTimeout))),
	)
}

func (m *Manager) openerFor(account *models.MailAccount) (Opener, error) {
	key := strings.ToLower(strings.TrimSpace(account.InboundType))
	m.mu.RLock()
	opener, ok := m.inbound[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no opener registered for account type %s", account.InboundType)
	}
	return opener, nil
}

// WithInbound opens a retrieval session for the account, invokes fn with
// it, and tears the session down on every exit path. Open failures surface
// as *ConnectionError.
func (m *Manager) WithInbound(ctx context.Context, account *models.MailAccount, fn func(InboundSession) error) error {
	opener, err := m.openerFor(account)
	if err != nil {
		return &ConnectionError{Account: account.Email, Op: "inbound", Err: err}
	}
	session, err := opener.Open(ctx, account)
	if err != nil {
		return &ConnectionError{Account: account.Email, Op: "inbound", Err: err}
	}
	defer m.closeSession(account, "inbound", session.Close)
	return fn(session)
}

// WithOutbound opens a submission session for the account, invokes fn with
// it, and tears the session down on every exit path.
func (m *Manager) WithOutbound(ctx context.Context, account *models.MailAccount, fn func(OutboundSession) error) error {
	if m.outbound == nil {
		return &ConnectionError{Account: account.Email, Op: "outbound", Err: fmt.Errorf("no outbound opener configured")}
	}
	session, err := m.outbound.Open(ctx, account)
	if err != nil {
		return &ConnectionError{Account: account.Email, Op: "outbound", Err: err}
	}
	defer m.closeSession(account, "outbound", session.Close)
	return fn(session)
}

// ProbeInbound opens and immediately closes a retrieval session.
func (m *Manager) ProbeInbound(ctx context.Context, account *models.MailAccount) error {
	return m.WithInbound(ctx, account, func(InboundSession) error { return nil })
}

// ProbeOutbound opens and immediately closes a submission session.
func (m *Manager) ProbeOutbound(ctx context.Context, account *models.MailAccount) error {
	return m.WithOutbound(ctx, account, func(OutboundSession) error { return nil })
}

func (m *Manager) closeSession(account *models.MailAccount, op string, close func() error) {
	if err := close(); err != nil && m.logger != nil {
		m.logger.Printf("%s session close error for %s: %v", op, account.Email, err)
	}
}
