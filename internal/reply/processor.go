package reply

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/replykit-io/replykit/internal/config"
	"github.com/replykit-io/replykit/internal/mail/connector"
	"github.com/replykit-io/replykit/internal/metrics"
	"github.com/replykit-io/replykit/internal/models"
)

// Connections supplies scoped inbound and outbound mail sessions.
// *connector.Manager satisfies it.
type Connections interface {
	WithInbound(ctx context.Context, account *models.MailAccount, fn func(connector.InboundSession) error) error
	WithOutbound(ctx context.Context, account *models.MailAccount, fn func(connector.OutboundSession) error) error
}

// Ledger tracks which inbound messages already received a reply.
type Ledger interface {
	Has(id string) bool
	Record(ctx context.Context, id string, at time.Time) error
}

// AuditLog records the outcome of every reply attempt.
type AuditLog interface {
	Append(ctx context.Context, entry *models.ReplyLogEntry) error
}

// Processor walks one account's unread mail, drafts replies, and sends
// them. Every failure is contained to the message or account it hit.
type Processor struct {
	conns     Connections
	ledger    Ledger
	audit     AuditLog
	generator Generator
	voice     config.VoiceConfig
	metrics   *metrics.Metrics
	logger    *log.Logger
	now       func() time.Time
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithProcessorLogger overrides the default logger.
func WithProcessorLogger(logger *log.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithMetrics attaches reply counters.
func WithMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithVoice sets the brand voice applied to every generated reply.
func WithVoice(voice config.VoiceConfig) ProcessorOption {
	return func(p *Processor) {
		p.voice = voice
	}
}

// WithClock overrides the timestamp source, used by tests.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.now = now
	}
}

// NewProcessor wires a processor over connections, dedup state, the
// audit log, and a reply generator.
func NewProcessor(conns Connections, ledger Ledger, audit AuditLog, generator Generator, opts ...ProcessorOption) *Processor {
	p := &Processor{
		conns:     conns,
		ledger:    ledger,
		audit:     audit,
		generator: generator,
		logger:    log.New(os.Stdout, "[REPLY] ", log.LstdFlags),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes every unread message in one account's inbox. Connection
// and listing failures surface in the result's Errors; per-message
// failures are counted and the walk continues.
func (p *Processor) Run(ctx context.Context, account *models.MailAccount) models.ProcessingResult {
	result := models.ProcessingResult{Account: account.Email}

	err := p.conns.WithInbound(ctx, account, func(session connector.InboundSession) error {
		refs, err := session.ListUnread(ctx)
		if err != nil {
			return fmt.Errorf("list unread: %w", err)
		}
		if len(refs) > 0 {
			p.logger.Printf("%s: %d unread message(s)", account.Email, len(refs))
		}
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.processMessage(ctx, account, session, ref, &result)
		}
		return nil
	})
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		p.countAccountError(account.Email)
		p.logger.Printf("%s: inbox walk failed: %v", account.Email, err)
	}
	return result
}

// RunAll processes each account in turn. One account's failure never
// stops the others.
func (p *Processor) RunAll(ctx context.Context, accounts []*models.MailAccount) []models.ProcessingResult {
	results := make([]models.ProcessingResult, 0, len(accounts))
	for _, account := range accounts {
		if ctx.Err() != nil {
			break
		}
		results = append(results, p.Run(ctx, account))
	}
	return results
}

func (p *Processor) processMessage(ctx context.Context, account *models.MailAccount, session connector.InboundSession, ref connector.MessageRef, result *models.ProcessingResult) {
	result.Attempted++

	raw, err := session.Fetch(ctx, ref)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: fetch: %v", ref.RemoteID, err))
		p.countFailure(account.Email)
		return
	}

	env := ParseEnvelope(raw)
	id := env.MessageID
	if id == "" {
		id = ref.RemoteID
	}

	if p.ledger.Has(id) {
		result.Skipped++
		if p.metrics != nil {
			p.metrics.MessagesSkipped.Inc()
		}
		return
	}
	if env.From == "" {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: no sender address", id))
		p.countFailure(account.Email)
		return
	}

	body, err := p.generator.Generate(ctx, PromptContext{
		AccountEmail: account.Email,
		DisplayName:  account.DisplayName,
		ServiceTag:   account.ServiceTag,
		Subject:      env.Subject,
		Body:         env.Body,
		Voice:        p.voice,
	})
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: generate: %v", id, err))
		p.countFailure(account.Email)
		p.logger.Printf("%s: generation failed for %s: %v", account.Email, id, err)
		return
	}

	outgoing := &connector.OutgoingMessage{
		From:       account.Email,
		FromName:   account.DisplayName,
		To:         env.From,
		Subject:    ReplySubject(env.Subject),
		Body:       body,
		MessageID:  connector.NewMessageID(account.DomainOf()),
		InReplyTo:  env.MessageID,
		References: ReplyReferences(env.References, env.MessageID),
	}

	entry := &models.ReplyLogEntry{
		Timestamp: p.now(),
		FromEmail: account.Email,
		ToEmail:   env.From,
		Subject:   outgoing.Subject,
		MessageID: id,
	}

	err = p.conns.WithOutbound(ctx, account, func(out connector.OutboundSession) error {
		return out.Send(ctx, outgoing)
	})
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: send: %v", id, err))
		p.countFailure(account.Email)
		p.logger.Printf("%s: send to %s failed: %v", account.Email, env.From, err)
		p.appendAudit(ctx, entry)
		return
	}

	// The message is out. Marking and recording are best effort from
	// here: a failure is logged, never retried by unsending.
	if err := session.MarkSeen(ctx, ref); err != nil {
		p.logger.Printf("%s: mark seen %s: %v", account.Email, id, err)
	}
	if err := p.ledger.Record(ctx, id, p.now()); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: record: %v", id, err))
		p.logger.Printf("%s: ledger record %s: %v", account.Email, id, err)
	}
	entry.ResponseSent = true
	p.appendAudit(ctx, entry)

	result.Sent++
	if p.metrics != nil {
		p.metrics.RepliesSent.Inc()
	}
	p.logger.Printf("%s: replied to %s (%s)", account.Email, env.From, id)
}

func (p *Processor) appendAudit(ctx context.Context, entry *models.ReplyLogEntry) {
	if err := p.audit.Append(ctx, entry); err != nil {
		p.logger.Printf("%s: audit append %s: %v", entry.FromEmail, entry.MessageID, err)
	}
}

func (p *Processor) countFailure(account string) {
	if p.metrics == nil {
		return
	}
	p.metrics.RepliesFailed.Inc()
	p.metrics.AccountErrors.WithLabelValues(account).Inc()
}

func (p *Processor) countAccountError(account string) {
	if p.metrics == nil {
		return
	}
	p.metrics.AccountErrors.WithLabelValues(account).Inc()
}
