// Package health probes each account's mail endpoints and summarizes
// recent reply activity for operators.
package health

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/replykit-io/replykit/internal/metrics"
	"github.com/replykit-io/replykit/internal/models"
)

// Prober opens and immediately closes protocol sessions to check that
// an account's endpoints accept its credentials. *connector.Manager
// satisfies it.
type Prober interface {
	ProbeInbound(ctx context.Context, account *models.MailAccount) error
	ProbeOutbound(ctx context.Context, account *models.MailAccount) error
}

// ActivitySource reports the size and recency of the reply log.
// *store.ReplyLog satisfies it.
type ActivitySource interface {
	Activity(ctx context.Context) (models.RecentActivity, error)
}

// Monitor checks every registered account in turn. One account's
// failure never stops the probes for the rest.
type Monitor struct {
	prober       Prober
	activity     ActivitySource
	probeTimeout time.Duration
	logger       *log.Logger
	metrics      *metrics.Metrics
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithMetrics attaches probe failure counters.
func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = metrics
	}
}

// WithProbeTimeout bounds each individual endpoint probe.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(m *Monitor) {
		if timeout > 0 {
			m.probeTimeout = timeout
		}
	}
}

// NewMonitor builds a monitor over a connection prober and the reply
// activity source.
func NewMonitor(prober Prober, activity ActivitySource, opts ...Option) *Monitor {
	m := &Monitor{
		prober:       prober,
		activity:     activity,
		probeTimeout: 10 * time.Second,
		logger:       log.New(os.Stdout, "[HEALTH] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Report probes every account and collects recent activity.
func (m *Monitor) Report(ctx context.Context, accounts []*models.MailAccount) models.HealthReport {
	report := models.HealthReport{Accounts: make([]models.AccountProbe, 0, len(accounts))}

	for _, account := range accounts {
		if ctx.Err() != nil {
			break
		}
		report.Accounts = append(report.Accounts, m.probeAccount(ctx, account))
	}

	activity, err := m.activity.Activity(ctx)
	if err != nil {
		m.logger.Printf("reply activity lookup failed: %v", err)
	} else {
		report.RecentActivity = activity
	}
	return report
}

func (m *Monitor) probeAccount(ctx context.Context, account *models.MailAccount) models.AccountProbe {
	probe := models.AccountProbe{Email: account.Email, InboundOK: true, OutboundOK: true}
	var problems []string

	inCtx, cancelIn := context.WithTimeout(ctx, m.probeTimeout)
	if err := m.prober.ProbeInbound(inCtx, account); err != nil {
		probe.InboundOK = false
		problems = append(problems, "inbound: "+err.Error())
		m.countFailure("inbound")
		m.logger.Printf("%s: inbound probe failed: %v", account.Email, err)
	}
	cancelIn()

	outCtx, cancelOut := context.WithTimeout(ctx, m.probeTimeout)
	if err := m.prober.ProbeOutbound(outCtx, account); err != nil {
		probe.OutboundOK = false
		problems = append(problems, "outbound: "+err.Error())
		m.countFailure("outbound")
		m.logger.Printf("%s: outbound probe failed: %v", account.Email, err)
	}
	cancelOut()

	probe.Error = strings.Join(problems, "; ")
	return probe
}

func (m *Monitor) countFailure(direction string) {
	if m.metrics == nil {
		return
	}
	m.metrics.ProbeFailures.WithLabelValues(direction).Inc()
}
