package connector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/replykit-io/replykit/internal/models"
)

type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
	Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}

// IMAPOpener opens IMAP/IMAPS retrieval sessions.
type IMAPOpener struct {
	dialTimeout time.Duration
	logger      *log.Logger
	newClient   func(*models.MailAccount) (imapClient, error)
}

// IMAPOption customizes opener behavior.
type IMAPOption func(*IMAPOpener)

// WithIMAPDialTimeout overrides the socket dial timeout.
func WithIMAPDialTimeout(timeout time.Duration) IMAPOption {
	return func(o *IMAPOpener) {
		if timeout > 0 {
			o.dialTimeout = timeout
		}
	}
}

// WithIMAPLogger overrides the logger used for session diagnostics.
func WithIMAPLogger(logger *log.Logger) IMAPOption {
	return func(o *IMAPOpener) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func withIMAPClientFactory(factory func(*models.MailAccount) (imapClient, error)) IMAPOption {
	return func(o *IMAPOpener) {
		o.newClient = factory
	}
}

// NewIMAPOpener returns an IMAP opener ready for polling.
func NewIMAPOpener(opts ...IMAPOption) *IMAPOpener {
	o := &IMAPOpener{
		dialTimeout: 5 * time.Second,
		logger:      log.Default(),
	}
	o.newClient = o.defaultClientFactory
	for _, opt := range opts {
		opt(o)
	}
	if o.newClient == nil {
		o.newClient = o.defaultClientFactory
	}
	return o
}

// Name returns the opener identifier.
func (o *IMAPOpener) Name() string {
	return "imap"
}

// Open dials, authenticates and selects the account's mailbox. On any
// failure the half-open client is closed before the error is returned.
func (o *IMAPOpener) Open(ctx context.Context, account *models.MailAccount) (InboundSession, error) {
	if err := validateIMAPAccount(account); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := o.newClient(account)
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}

	if err := client.Login(account.Email, string(account.Password)).Wait(); err != nil {
		o.safeClose(client)
		return nil, fmt.Errorf("imap auth: %w", err)
	}

	mailbox := account.IMAPFolder
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		o.safeClose(client)
		return nil, fmt.Errorf("imap select %s: %w", mailbox, err)
	}

	return &imapSession{client: client, account: account, logger: o.logger}, nil
}

func (o *IMAPOpener) safeClose(client imapClient) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil && o.logger != nil {
		o.logger.Printf("imap close error: %v", err)
	}
}

func (o *IMAPOpener) defaultClientFactory(account *models.MailAccount) (imapClient, error) {
	if account.InboundHost == "" {
		return nil, errors.New("imap account missing host")
	}
	port := account.InboundPort
	if port == 0 {
		if useIMAPTLS(account.InboundType) {
			port = 993
		} else {
			port = 143
		}
	}
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: o.dialTimeout}}
	addr := fmt.Sprintf("%s:%d", account.InboundHost, port)
	var client *imapclient.Client
	var err error
	if useIMAPTLS(account.InboundType) {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, err
	}
	return &imapClientWrapper{Client: client}, nil
}

type imapSession struct {
	client  imapClient
	account *models.MailAccount
	logger  *log.Logger
}

func (s *imapSession) ListUnread(ctx context.Context) ([]MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search unseen: %w", err)
	}

	uids := data.AllUIDs()
	refs := make([]MessageRef, 0, len(uids))
	for _, uid := range uids {
		uidStr := strconv.FormatUint(uint64(uid), 10)
		refs = append(refs, MessageRef{
			SeqID:    uint32(uid),
			UID:      uidStr,
			RemoteID: buildRemoteID(s.account, uidStr),
		})
	}
	return refs, nil
}

func (s *imapSession) Fetch(ctx context.Context, ref MessageRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	uidSet := imap.UIDSetNum(imap.UID(ref.SeqID))
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	buffers, err := s.client.Fetch(uidSet, fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch %s: %w", ref.UID, err)
	}
	for _, buf := range buffers {
		if body := buf.FindBodySection(&imap.FetchItemBodySection{}); body != nil {
			return append([]byte(nil), body...), nil
		}
	}
	return nil, fmt.Errorf("imap fetch %s: no body section returned", ref.UID)
}

func (s *imapSession) MarkSeen(ctx context.Context, ref MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uidSet := imap.UIDSetNum(imap.UID(ref.SeqID))
	store := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Flags: []imap.Flag{imap.FlagSeen}}
	if err := s.client.Store(uidSet, store, nil).Close(); err != nil {
		return fmt.Errorf("imap mark seen %s: %w", ref.UID, err)
	}
	return nil
}

func (s *imapSession) Close() error {
	if err := s.client.Logout().Wait(); err != nil && s.logger != nil {
		s.logger.Printf("imap logout error for %s: %v", s.account.Email, err)
	}
	return s.client.Close()
}

type imapClientWrapper struct{ *imapclient.Client }

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}
func (w *imapClientWrapper) Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter {
	return w.Client.Store(numSet, store, options)
}

func validateIMAPAccount(account *models.MailAccount) error {
	if account == nil {
		return errors.New("imap account is nil")
	}
	if account.Email == "" {
		return errors.New("imap account missing address")
	}
	if len(account.Password) == 0 {
		return errors.New("imap account missing password")
	}
	if !supportsIMAP(account.InboundType) {
		return fmt.Errorf("account type %s not supported by IMAP opener", account.InboundType)
	}
	return nil
}

func supportsIMAP(t string) bool {
	switch strings.ToLower(t) {
	case "imap", "imaps", "imap_tls", "imaps_tls", "imaptls":
		return true
	default:
		return false
	}
}

func useIMAPTLS(t string) bool {
	switch strings.ToLower(t) {
	case "imaps", "imap_tls", "imaps_tls", "imaptls":
		return true
	default:
		return false
	}
}
