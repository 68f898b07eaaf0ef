package account

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/replykit-io/replykit/internal/config"
	"github.com/replykit-io/replykit/internal/models"
)

func validConfig(email string) config.AccountConfig {
	return config.AccountConfig{
		Email:        email,
		Password:     "secret",
		InboundType:  "imaps",
		InboundHost:  "imap.example.com",
		OutboundHost: "smtp.example.com",
	}
}

func TestNewRegistryDefaults(t *testing.T) {
	r, err := NewRegistry([]config.AccountConfig{validConfig("a@example.com")})
	require.NoError(t, err)

	acct, ok := r.Get("a@example.com")
	require.True(t, ok)
	require.Equal(t, "a@example.com", acct.DisplayName)
	require.Equal(t, "INBOX", acct.IMAPFolder)
	require.Equal(t, "default", acct.DKIMSelector)
	require.Equal(t, "example.com", acct.DomainOf())
}

func TestNewRegistryPreservesOrder(t *testing.T) {
	r, err := NewRegistry([]config.AccountConfig{
		validConfig("c@example.com"),
		validConfig("a@example.com"),
		validConfig("b@example.com"),
	})
	require.NoError(t, err)
	require.Equal(t, 3, r.Len())

	var emails []string
	for _, acct := range r.All() {
		emails = append(emails, acct.Email)
	}
	require.Equal(t, []string{"c@example.com", "a@example.com", "b@example.com"}, emails)
}

func TestNewRegistryRejectsBadConfig(t *testing.T) {
	cases := []config.AccountConfig{
		{},
		{Email: "not-an-address", Password: "x", InboundHost: "h", OutboundHost: "h"},
		{Email: "a@example.com", InboundHost: "h", OutboundHost: "h"},
		{Email: "a@example.com", Password: "x", OutboundHost: "h"},
		{Email: "a@example.com", Password: "x", InboundHost: "h"},
	}
	for _, ac := range cases {
		if _, err := NewRegistry([]config.AccountConfig{ac}); err == nil {
			t.Fatalf("expected error for %+v", ac)
		}
	}
}

func TestUpdateDomain(t *testing.T) {
	r, err := NewRegistry([]config.AccountConfig{validConfig("a@example.com")})
	require.NoError(t, err)

	now := time.Now()
	settings := models.DomainSettings{SPFValid: true, MXValid: true, LastVerified: &now}
	require.True(t, r.UpdateDomain("a@example.com", settings))

	got, ok := r.Domain("a@example.com")
	require.True(t, ok)
	require.Equal(t, settings, got)

	require.False(t, r.UpdateDomain("nobody@example.com", settings))
	_, ok = r.Domain("nobody@example.com")
	require.False(t, ok)
}

// Domain verification runs from HTTP handlers while other handlers read
// the same account, so updates and reads must be safe to interleave.
func TestDomainConcurrentAccess(t *testing.T) {
	r, err := NewRegistry([]config.AccountConfig{validConfig("a@example.com")})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.UpdateDomain("a@example.com", models.DomainSettings{
					SPFValid: true, DKIMValid: true, MXValid: true, Verified: true,
				})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if settings, ok := r.Domain("a@example.com"); ok && settings.Verified {
					require.True(t, settings.SPFValid)
				}
			}
		}()
	}
	wg.Wait()

	settings, ok := r.Domain("a@example.com")
	require.True(t, ok)
	require.True(t, settings.Verified)
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]config.AccountConfig{
		validConfig("a@example.com"),
		validConfig("a@example.com"),
	})
	require.Error(t, err)
}
