package health

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replykit-io/replykit/internal/models"
)

type fakeProber struct {
	inboundErr  map[string]error
	outboundErr map[string]error
	probed      []string
}

func (f *fakeProber) ProbeInbound(ctx context.Context, account *models.MailAccount) error {
	f.probed = append(f.probed, "in:"+account.Email)
	return f.inboundErr[account.Email]
}

func (f *fakeProber) ProbeOutbound(ctx context.Context, account *models.MailAccount) error {
	f.probed = append(f.probed, "out:"+account.Email)
	return f.outboundErr[account.Email]
}

type fakeActivity struct {
	activity models.RecentActivity
	err      error
}

func (f *fakeActivity) Activity(ctx context.Context) (models.RecentActivity, error) {
	return f.activity, f.err
}

func accounts(emails ...string) []*models.MailAccount {
	out := make([]*models.MailAccount, 0, len(emails))
	for _, email := range emails {
		out = append(out, &models.MailAccount{Email: email})
	}
	return out
}

func quiet() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestReportAllHealthy(t *testing.T) {
	last := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	monitor := NewMonitor(
		&fakeProber{},
		&fakeActivity{activity: models.RecentActivity{Count: 4, LastTimestamp: &last}},
		WithLogger(quiet()),
	)

	report := monitor.Report(context.Background(), accounts("sales@replykit.io", "support@replykit.io"))

	require.Len(t, report.Accounts, 2)
	for _, probe := range report.Accounts {
		assert.True(t, probe.InboundOK, probe.Email)
		assert.True(t, probe.OutboundOK, probe.Email)
		assert.Empty(t, probe.Error)
	}
	assert.Equal(t, 4, report.RecentActivity.Count)
	require.NotNil(t, report.RecentActivity.LastTimestamp)
	assert.Equal(t, last, *report.RecentActivity.LastTimestamp)
}

func TestReportFailureDoesNotBlockOtherAccounts(t *testing.T) {
	prober := &fakeProber{
		inboundErr: map[string]error{"sales@replykit.io": errors.New("imap auth: LOGIN failed")},
	}
	monitor := NewMonitor(prober, &fakeActivity{}, WithLogger(quiet()))

	report := monitor.Report(context.Background(), accounts("sales@replykit.io", "support@replykit.io"))

	require.Len(t, report.Accounts, 2)
	bad := report.Accounts[0]
	assert.False(t, bad.InboundOK)
	assert.True(t, bad.OutboundOK)
	assert.Contains(t, bad.Error, "LOGIN failed")

	good := report.Accounts[1]
	assert.True(t, good.InboundOK)
	assert.True(t, good.OutboundOK)

	// The failing account still got its outbound probe, and the second
	// account was probed on both directions.
	assert.Equal(t, []string{
		"in:sales@replykit.io", "out:sales@replykit.io",
		"in:support@replykit.io", "out:support@replykit.io",
	}, prober.probed)
}

func TestReportCombinesBothDirectionFailures(t *testing.T) {
	prober := &fakeProber{
		inboundErr:  map[string]error{"sales@replykit.io": errors.New("dial tcp: timeout")},
		outboundErr: map[string]error{"sales@replykit.io": errors.New("smtp auth: rejected")},
	}
	monitor := NewMonitor(prober, &fakeActivity{}, WithLogger(quiet()))

	report := monitor.Report(context.Background(), accounts("sales@replykit.io"))
	require.Len(t, report.Accounts, 1)
	probe := report.Accounts[0]
	assert.False(t, probe.InboundOK)
	assert.False(t, probe.OutboundOK)
	assert.Contains(t, probe.Error, "inbound: dial tcp: timeout")
	assert.Contains(t, probe.Error, "outbound: smtp auth: rejected")
}

func TestReportActivityErrorLeavesZeroActivity(t *testing.T) {
	monitor := NewMonitor(&fakeProber{}, &fakeActivity{err: errors.New("database is locked")}, WithLogger(quiet()))
	report := monitor.Report(context.Background(), accounts("sales@replykit.io"))
	assert.Equal(t, 0, report.RecentActivity.Count)
	assert.Nil(t, report.RecentActivity.LastTimestamp)
}
