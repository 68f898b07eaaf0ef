// Package verify checks SPF, DKIM and MX DNS records for a sending domain.
package verify

import (
	"context"
	"log"
	"net"
	"strings"
	"time"

	"github.com/replykit-io/replykit/internal/models"
)

// Resolver is the subset of net.Resolver the verifier needs. Satisfied by
// net.DefaultResolver; swapped for a fake in tests.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Result carries the three independent record checks for one domain.
type Result struct {
	Domain    string `json:"domain"`
	SPFValid  bool   `json:"spf_valid"`
	DKIMValid bool   `json:"dkim_valid"`
	MXValid   bool   `json:"mx_valid"`
}

// Verifier performs DNS record verification. It has no side effects and no
// caching; callers decide when to persist results via DomainSettings.
type Verifier struct {
	resolver Resolver
	logger   *log.Logger
	now      func() time.Time
}

// Option customizes a Verifier.
type Option func(*Verifier)

// WithResolver overrides the DNS resolver, primarily for tests.
func WithResolver(r Resolver) Option {
	return func(v *Verifier) {
		if r != nil {
			v.resolver = r
		}
	}
}

// WithLogger overrides the logger used for lookup diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// New returns a Verifier backed by the system resolver.
func New(opts ...Option) *Verifier {
	v := &Verifier{
		resolver: net.DefaultResolver,
		logger:   log.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify runs the three record checks for a domain. A lookup failure for
// one record type yields false for that field only; it never propagates.
func (v *Verifier) Verify(ctx context.Context, domain, dkimSelector string) Result {
	return Result{
		Domain:    domain,
		SPFValid:  v.verifySPF(ctx, domain),
		DKIMValid: v.verifyDKIM(ctx, domain, dkimSelector),
		MXValid:   v.verifyMX(ctx, domain),
	}
}

// Apply writes a verification result onto an account's domain settings and
// stamps the verification time. Safe to re-run at any time.
func (v *Verifier) Apply(result Result, settings *models.DomainSettings) {
	now := v.now()
	settings.SPFValid = result.SPFValid
	settings.DKIMValid = result.DKIMValid
	settings.MXValid = result.MXValid
	settings.Verified = true
	settings.LastVerified = &now
}

func (v *Verifier) verifySPF(ctx context.Context, domain string) bool {
	records, err := v.resolver.LookupTXT(ctx, domain)
	if err != nil {
		v.logger.Printf("spf lookup failed for %s: %v", domain, err)
		return false
	}
	for _, txt := range records {
		if strings.HasPrefix(txt, "v=spf1") {
			return true
		}
	}
	return false
}

func (v *Verifier) verifyDKIM(ctx context.Context, domain, selector string) bool {
	if selector == "" {
		selector = "default"
	}
	name := selector + "._domainkey." + domain
	records, err := v.resolver.LookupTXT(ctx, name)
	if err != nil {
		v.logger.Printf("dkim lookup failed for %s: %v", name, err)
		return false
	}
	return len(records) > 0
}

func (v *Verifier) verifyMX(ctx context.Context, domain string) bool {
	records, err := v.resolver.LookupMX(ctx, domain)
	if err != nil {
		v.logger.Printf("mx lookup failed for %s: %v", domain, err)
		return false
	}
	return len(records) > 0
}
