// Package account holds the static set of configured mailbox accounts.
package account

import (
	"fmt"
	"strings"
	"sync"

	"github.com/replykit-io/replykit/internal/config"
	"github.com/replykit-io/replykit/internal/models"
)

// Registry is the set of configured mail accounts, keyed by address.
// Iteration order follows the configuration file so poll runs are
// deterministic. The account set and credentials are immutable after
// load; only the derived domain settings change at runtime, guarded by
// the registry mutex.
type Registry struct {
	order    []string
	accounts map[string]*models.MailAccount

	mu sync.RWMutex // guards the Domain field of every account
}

// NewRegistry builds a registry from configuration. Accounts with a missing
// address, credential or endpoint are rejected up front so polling never
// trips over half-configured entries.
func NewRegistry(configs []config.AccountConfig) (*Registry, error) {
	r := &Registry{accounts: make(map[string]*models.MailAccount)}
	for _, ac := range configs {
		acct, err := fromConfig(ac)
		if err != nil {
			return nil, err
		}
		if _, dup := r.accounts[acct.Email]; dup {
			return nil, fmt.Errorf("duplicate account %s", acct.Email)
		}
		r.accounts[acct.Email] = acct
		r.order = append(r.order, acct.Email)
	}
	return r, nil
}

func fromConfig(ac config.AccountConfig) (*models.MailAccount, error) {
	email := strings.TrimSpace(ac.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid account address %q", ac.Email)
	}
	if ac.Password == "" {
		return nil, fmt.Errorf("account %s missing password", email)
	}
	if ac.InboundHost == "" {
		return nil, fmt.Errorf("account %s missing inbound host", email)
	}
	if ac.OutboundHost == "" {
		return nil, fmt.Errorf("account %s missing outbound host", email)
	}

	inboundType := strings.ToLower(strings.TrimSpace(ac.InboundType))
	if inboundType == "" {
		inboundType = "imaps"
	}

	displayName := ac.DisplayName
	if displayName == "" {
		displayName = email
	}

	folder := ac.IMAPFolder
	if folder == "" {
		folder = "INBOX"
	}

	selector := ac.DKIMSelector
	if selector == "" {
		selector = "default"
	}

	return &models.MailAccount{
		Email:        email,
		Password:     []byte(ac.Password),
		DisplayName:  displayName,
		ServiceTag:   ac.ServiceTag,
		InboundType:  inboundType,
		InboundHost:  ac.InboundHost,
		InboundPort:  ac.InboundPort,
		IMAPFolder:   folder,
		OutboundHost: ac.OutboundHost,
		OutboundPort: ac.OutboundPort,
		OutboundTLS:  ac.OutboundTLS,
		DKIMSelector: selector,
	}, nil
}

// Get returns the account for an address.
func (r *Registry) Get(email string) (*models.MailAccount, bool) {
	acct, ok := r.accounts[email]
	return acct, ok
}

// All returns every account in configuration order.
func (r *Registry) All() []*models.MailAccount {
	out := make([]*models.MailAccount, 0, len(r.order))
	for _, email := range r.order {
		out = append(out, r.accounts[email])
	}
	return out
}

// Len returns the number of registered accounts.
func (r *Registry) Len() int {
	return len(r.order)
}

// Domain returns a copy of the account's current domain settings.
func (r *Registry) Domain(email string) (models.DomainSettings, bool) {
	acct, ok := r.accounts[email]
	if !ok {
		return models.DomainSettings{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return acct.Domain, true
}

// UpdateDomain replaces the account's domain settings. It reports
// whether the account exists.
func (r *Registry) UpdateDomain(email string, settings models.DomainSettings) bool {
	acct, ok := r.accounts[email]
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	acct.Domain = settings
	return true
}
