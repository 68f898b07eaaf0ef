package connector

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/replykit-io/replykit/internal/models"
)

type smtpClient interface {
	Auth(a smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// SMTPOpener opens authenticated SMTP submission sessions.
type SMTPOpener struct {
	dialTimeout time.Duration
	logger      *log.Logger
	newClient   func(*models.MailAccount) (smtpClient, error)
}

// SMTPOption customizes opener behavior.
type SMTPOption func(*SMTPOpener)

// WithSMTPDialTimeout overrides the socket dial timeout.
func WithSMTPDialTimeout(timeout time.Duration) SMTPOption {
	return func(o *SMTPOpener) {
		if timeout > 0 {
			o.dialTimeout = timeout
		}
	}
}

// WithSMTPLogger overrides the logger used for session diagnostics.
func WithSMTPLogger(logger *log.Logger) SMTPOption {
	return func(o *SMTPOpener) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func withSMTPClientFactory(factory func(*models.MailAccount) (smtpClient, error)) SMTPOption {
	return func(o *SMTPOpener) {
		o.newClient = factory
	}
}

// NewSMTPOpener returns an SMTP opener.
func NewSMTPOpener(opts ...SMTPOption) *SMTPOpener {
	o := &SMTPOpener{
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

// Open dials and authenticates an SMTP session for the account.
func (o *SMTPOpener) Open(ctx context.Context, account *models.MailAccount) (OutboundSession, error) {
	if account == nil {
		return nil, errors.New("smtp account is nil")
	}
	if account.Email == "" || len(account.Password) == 0 {
		return nil, errors.New("smtp account missing credentials")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := o.newClient(account)
	if err != nil {
		return nil, fmt.Errorf("smtp connect: %w", err)
	}

	auth := smtp.PlainAuth("", account.Email, string(account.Password), account.OutboundHost)
	if err := client.Auth(auth); err != nil {
		o.safeClose(client)
		return nil, fmt.Errorf("smtp auth: %w", err)
	}

	return &smtpSession{client: client, logger: o.logger}, nil
}

func (o *SMTPOpener) safeClose(client smtpClient) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil && o.logger != nil {
		o.logger.Printf("smtp close error: %v", err)
	}
}

func (o *SMTPOpener) defaultClientFactory(account *models.MailAccount) (smtpClient, error) {
	if account.OutboundHost == "" {
		return nil, errors.New("smtp account missing host")
	}
	port := account.OutboundPort
	if port == 0 {
		if account.OutboundTLS {
			port = 465
		} else {
			port = 587
		}
	}
	addr := fmt.Sprintf("%s:%d", account.OutboundHost, port)
	dialer := &net.Dialer{Timeout: o.dialTimeout}

	if account.OutboundTLS {
		tlsConfig := &tls.Config{ServerName: account.OutboundHost}
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn, account.OutboundHost)
	}

	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return smtp.NewClient(conn, account.OutboundHost)
}

type smtpSession struct {
	client smtpClient
	logger *log.Logger
}

func (s *smtpSession) Send(ctx context.Context, msg *OutgoingMessage) error {
	if msg == nil {
		return errors.New("nil outgoing message")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.client.Mail(msg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := s.client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	writer, err := s.client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := writer.Write(composeMessage(msg)); err != nil {
		writer.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return nil
}

func (s *smtpSession) Close() error {
	if err := s.client.Quit(); err != nil {
		return s.client.Close()
	}
	return nil
}

// headerValue strips CR/LF so values copied from an inbound message can
// never smuggle extra header lines into the outgoing reply.
func headerValue(value string) string {
	value = strings.ReplaceAll(value, "\r", "")
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.TrimSpace(value)
}

func composeMessage(msg *OutgoingMessage) []byte {
	from := mail.Address{Name: headerValue(msg.FromName), Address: headerValue(msg.From)}

	var headers bytes.Buffer
	fmt.Fprintf(&headers, "From: %s\r\n", from.String())
	fmt.Fprintf(&headers, "To: %s\r\n", headerValue(msg.To))
	fmt.Fprintf(&headers, "Subject: %s\r\n", headerValue(msg.Subject))
	fmt.Fprintf(&headers, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	if msg.MessageID != "" {
		fmt.Fprintf(&headers, "Message-ID: %s\r\n", headerValue(msg.MessageID))
	}
	if msg.InReplyTo != "" {
		fmt.Fprintf(&headers, "In-Reply-To: %s\r\n", headerValue(msg.InReplyTo))
	}
	if msg.References != "" {
		fmt.Fprintf(&headers, "References: %s\r\n", headerValue(msg.References))
	}
	headers.WriteString("MIME-Version: 1.0\r\n")
	headers.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	headers.WriteString("\r\n")
	headers.WriteString(msg.Body)
	return headers.Bytes()
}

// NewMessageID generates an RFC 5322 Message-ID scoped to the sender's
// domain, mirroring what mail user agents emit.
func NewMessageID(domain string) string {
	if domain == "" {
		domain = "localhost"
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
