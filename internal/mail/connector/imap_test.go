package connector

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/stretchr/testify/require"

	"github.com/replykit-io/replykit/internal/models"
)

func imapAccount() *models.MailAccount {
	return &models.MailAccount{
		Email:       "agent@example.com",
		Password:    []byte("secret"),
		InboundType: "imaps",
		InboundHost: "mail.example.com",
		IMAPFolder:  "INBOX",
	}
}

func quietIMAPOpener(client imapClient, err error) *IMAPOpener {
	return NewIMAPOpener(
		WithIMAPLogger(log.New(io.Discard, "", 0)),
		withIMAPClientFactory(func(*models.MailAccount) (imapClient, error) { return client, err }),
	)
}

func TestIMAPOpenListFetchMarkSeen(t *testing.T) {
	client := &fakeIMAPClient{
		unseen: []imap.UID{11, 12},
		bodies: map[imap.UID][]byte{
			11: []byte("first"),
			12: []byte("second"),
		},
	}
	o := quietIMAPOpener(client, nil)

	session, err := o.Open(context.Background(), imapAccount())
	require.NoError(t, err)

	refs, err := session.ListUnread(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 2)
	require.Equal(t, "11", refs[0].UID)
	require.Equal(t, "agent@example.com@mail.example.com:11", refs[0].RemoteID)

	body, err := session.Fetch(context.Background(), refs[1])
	require.NoError(t, err)
	require.Equal(t, []byte("second"), body)

	require.NoError(t, session.MarkSeen(context.Background(), refs[0]))
	require.Equal(t, []imap.UID{11}, client.seenUIDs)

	require.NoError(t, session.Close())
	require.Equal(t, 1, client.logoutCalls)
	require.True(t, client.closed)
}

func TestIMAPOpenAuthErrorClosesClient(t *testing.T) {
	client := &fakeIMAPClient{loginErr: errors.New("bad creds")}
	o := quietIMAPOpener(client, nil)

	_, err := o.Open(context.Background(), imapAccount())
	require.ErrorContains(t, err, "imap auth")
	require.True(t, client.closed)
}

func TestIMAPOpenSelectErrorClosesClient(t *testing.T) {
	client := &fakeIMAPClient{selectErr: errors.New("no inbox")}
	o := quietIMAPOpener(client, nil)

	_, err := o.Open(context.Background(), imapAccount())
	require.ErrorContains(t, err, "imap select")
	require.True(t, client.closed)
}

func TestIMAPOpenConnectErrorWrapped(t *testing.T) {
	o := quietIMAPOpener(nil, errors.New("dial failed"))
	_, err := o.Open(context.Background(), imapAccount())
	require.ErrorContains(t, err, "imap connect")
}

func TestIMAPOpenValidation(t *testing.T) {
	cases := []*models.MailAccount{
		nil,
		{InboundType: "imap", Password: []byte("pw")},
		{Email: "a@b.c", InboundType: "imap"},
		{Email: "a@b.c", InboundType: "pop3", Password: []byte("pw")},
	}
	o := NewIMAPOpener()
	for _, acc := range cases {
		if _, err := o.Open(context.Background(), acc); err == nil {
			t.Fatalf("expected validation error for %+v", acc)
		}
	}
}

func TestIMAPFetchMissingBodySection(t *testing.T) {
	client := &fakeIMAPClient{unseen: []imap.UID{7}}
	o := quietIMAPOpener(client, nil)

	session, err := o.Open(context.Background(), imapAccount())
	require.NoError(t, err)

	refs, err := session.ListUnread(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)

	_, err = session.Fetch(context.Background(), refs[0])
	require.ErrorContains(t, err, "no body section")
}

func TestIMAPListUnreadEmptyMailbox(t *testing.T) {
	client := &fakeIMAPClient{}
	o := quietIMAPOpener(client, nil)

	session, err := o.Open(context.Background(), imapAccount())
	require.NoError(t, err)

	refs, err := session.ListUnread(context.Background())
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestSupportsIMAPPreds(t *testing.T) {
	require.True(t, supportsIMAP("imap_tls"))
	require.True(t, supportsIMAP("IMAPTLS"))
	require.False(t, supportsIMAP("pop3"))
	require.True(t, useIMAPTLS("imaps"))
	require.False(t, useIMAPTLS("imap"))
}

type fakeIMAPClient struct {
	unseen []imap.UID
	bodies map[imap.UID][]byte

	loginErr  error
	selectErr error
	searchErr error
	fetchErr  error
	storeErr  error
	logoutErr error

	seenUIDs    []imap.UID
	logoutCalls int
	closed      bool
}

func (c *fakeIMAPClient) Login(_, _ string) commandWaiter { return &fakeCommand{err: c.loginErr} }
func (c *fakeIMAPClient) Logout() commandWaiter {
	c.logoutCalls++
	return &fakeCommand{err: c.logoutErr}
}
func (c *fakeIMAPClient) Close() error { c.closed = true; return nil }
func (c *fakeIMAPClient) Select(_ string, _ *imap.SelectOptions) selectWaiter {
	return &fakeSelect{err: c.selectErr}
}
func (c *fakeIMAPClient) UIDSearch(_ *imap.SearchCriteria, _ *imap.SearchOptions) searchWaiter {
	data := &imap.SearchData{All: imap.UIDSetNum(c.unseen...)}
	return &fakeSearch{err: c.searchErr, data: data}
}
func (c *fakeIMAPClient) Fetch(numSet imap.NumSet, _ *imap.FetchOptions) fetchWaiter {
	var bufs []*imapclient.FetchMessageBuffer
	if c.fetchErr == nil {
		for _, uid := range uidsFromSet(numSet) {
			buf := &imapclient.FetchMessageBuffer{SeqNum: uint32(uid), UID: uid}
			if body, ok := c.bodies[uid]; ok {
				buf.BodySection = []imapclient.FetchBodySectionBuffer{{
					Section: &imap.FetchItemBodySection{},
					Bytes:   append([]byte(nil), body...),
				}}
			}
			bufs = append(bufs, buf)
		}
	}
	return &fakeFetch{err: c.fetchErr, bufs: bufs}
}
func (c *fakeIMAPClient) Store(numSet imap.NumSet, store *imap.StoreFlags, _ *imap.StoreOptions) fetchWaiter {
	if store != nil && c.storeErr == nil {
		c.seenUIDs = append(c.seenUIDs, uidsFromSet(numSet)...)
	}
	return &fakeFetch{err: c.storeErr}
}

func uidsFromSet(numSet imap.NumSet) []imap.UID {
	uidSet, ok := numSet.(imap.UIDSet)
	if !ok {
		return nil
	}
	var uids []imap.UID
	for _, r := range uidSet {
		for uid := r.Start; uid <= r.Stop; uid++ {
			uids = append(uids, uid)
			if uid == r.Stop {
				break
			}
		}
	}
	return uids
}

type fakeCommand struct{ err error }

func (c *fakeCommand) Wait() error { return c.err }

type fakeSelect struct{ err error }

func (s *fakeSelect) Wait() (*imap.SelectData, error) { return nil, s.err }

type fakeSearch struct {
	err  error
	data *imap.SearchData
}

func (s *fakeSearch) Wait() (*imap.SearchData, error) { return s.data, s.err }

type fakeFetch struct {
	err  error
	bufs []*imapclient.FetchMessageBuffer
}

func (f *fakeFetch) Collect() ([]*imapclient.FetchMessageBuffer, error) { return f.bufs, f.err }
func (f *fakeFetch) Close() error                                       { return f.err }
