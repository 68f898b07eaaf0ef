package connector

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/replykit-io/replykit/internal/models"
)

type stubSession struct {
	closed bool
}

func (s *stubSession) ListUnread(context.Context) ([]MessageRef, error)     { return nil, nil }
func (s *stubSession) Fetch(context.Context, MessageRef) ([]byte, error)    { return nil, nil }
func (s *stubSession) MarkSeen(context.Context, MessageRef) error           { return nil }
func (s *stubSession) Close() error                                         { s.closed = true; return nil }

type stubOpener struct {
	name    string
	session *stubSession
	err     error
	opens   int
}

func (o *stubOpener) Name() string { return o.name }
func (o *stubOpener) Open(context.Context, *models.MailAccount) (InboundSession, error) {
	o.opens++
	if o.err != nil {
		return nil, o.err
	}
	return o.session, nil
}

func TestManagerWithInboundClosesOnSuccess(t *testing.T) {
	session := &stubSession{}
	opener := &stubOpener{name: "imap", session: session}
	m := NewManager(WithOpener(opener, "imaps"), WithManagerLogger(log.New(io.Discard, "", 0)))

	err := m.WithInbound(context.Background(), imapAccount(), func(s InboundSession) error {
		require.Same(t, session, s)
		return nil
	})
	require.NoError(t, err)
	require.True(t, session.closed)
}

func TestManagerWithInboundClosesOnCallbackError(t *testing.T) {
	session := &stubSession{}
	opener := &stubOpener{name: "imap", session: session}
	m := NewManager(WithOpener(opener, "imaps"), WithManagerLogger(log.New(io.Discard, "", 0)))

	wantErr := errors.New("processing blew up")
	err := m.WithInbound(context.Background(), imapAccount(), func(InboundSession) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.True(t, session.closed)
}

func TestManagerWithInboundOpenFailureIsConnectionError(t *testing.T) {
	opener := &stubOpener{name: "imap", err: errors.New("dial refused")}
	m := NewManager(WithOpener(opener, "imaps"))

	err := m.WithInbound(context.Background(), imapAccount(), func(InboundSession) error {
		t.Fatal("callback must not run on open failure")
		return nil
	})

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "agent@example.com", connErr.Account)
	require.Equal(t, "inbound", connErr.Op)
	require.ErrorContains(t, connErr, "dial refused")
}

func TestManagerUnknownAccountType(t *testing.T) {
	m := NewManager()
	err := m.WithInbound(context.Background(), imapAccount(), func(InboundSession) error { return nil })

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.ErrorContains(t, connErr, "no opener registered")
}

func TestManagerWithOutboundClosesOnEveryPath(t *testing.T) {
	client := &fakeSMTPClient{}
	m := NewManager(
		WithOutbound(quietSMTPOpener(client, nil)),
		WithManagerLogger(log.New(io.Discard, "", 0)),
	)

	err := m.WithOutbound(context.Background(), smtpAccount(), func(OutboundSession) error {
		return errors.New("send failed")
	})
	require.ErrorContains(t, err, "send failed")
	require.Equal(t, 1, client.quitCalls)
}

func TestManagerOutboundOpenFailure(t *testing.T) {
	m := NewManager(WithOutbound(quietSMTPOpener(nil, errors.New("refused"))))

	err := m.WithOutbound(context.Background(), smtpAccount(), func(OutboundSession) error { return nil })

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "outbound", connErr.Op)
}

func TestManagerProbes(t *testing.T) {
	session := &stubSession{}
	opener := &stubOpener{name: "imap", session: session}
	client := &fakeSMTPClient{}
	m := NewManager(
		WithOpener(opener, "imaps"),
		WithOutbound(quietSMTPOpener(client, nil)),
		WithManagerLogger(log.New(io.Discard, "", 0)),
	)

	require.NoError(t, m.ProbeInbound(context.Background(), imapAccount()))
	require.True(t, session.closed)
	require.NoError(t, m.ProbeOutbound(context.Background(), smtpAccount()))
	require.Equal(t, 1, client.quitCalls)
}

func TestDefaultManagerCoversBuiltinTypes(t *testing.T) {
	m := DefaultManager(0)
	for _, typ := range []string{"imap", "imaps", "pop3", "pop3s"} {
		_, err := m.openerFor(&models.MailAccount{InboundType: typ})
		require.NoError(t, err, typ)
	}
}
