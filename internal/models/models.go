package models

import (
	"strings"
	"time"
)

// MailAccount is one email identity with its own inbound and outbound
// credentials. Accounts are created at registry load time and are immutable
// for the process lifetime; reconfiguration requires a restart.
type MailAccount struct {
	Email       string
	Password    []byte
	DisplayName string
	ServiceTag  string // free-text classification, e.g. "Customer Support"

	// Inbound endpoint. Type selects the connector: imap, imaps, pop3, pop3s.
	InboundType string
	InboundHost string
	InboundPort int
	IMAPFolder  string

	// Outbound (SMTP) endpoint.
	OutboundHost string
	OutboundPort int
	OutboundTLS  bool

	DKIMSelector string
	Domain       DomainSettings
}

// DomainOf returns the domain part of the account address.
func (a *MailAccount) DomainOf() string {
	if idx := strings.LastIndex(a.Email, "@"); idx >= 0 {
		return a.Email[idx+1:]
	}
	return ""
}

// DomainSettings holds derived DNS attributes of an account's domain.
// Verified=true implies all three booleans and LastVerified are populated.
type DomainSettings struct {
	SPFValid     bool       `json:"spf_valid"`
	DKIMValid    bool       `json:"dkim_valid"`
	MXValid      bool       `json:"mx_valid"`
	Verified     bool       `json:"verified"`
	LastVerified *time.Time `json:"last_verified,omitempty"`
}

// ProcessedMessage is one entry in the dedup ledger: a protocol-level
// message identifier plus the time it was recorded.
type ProcessedMessage struct {
	MessageID   string    `json:"message_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ReplyLogEntry is one row of the append-only reply audit stream. Entries
// are ordered by creation time and never mutated.
type ReplyLogEntry struct {
	ID           int64     `json:"-"`
	Timestamp    time.Time `json:"timestamp"`
	FromEmail    string    `json:"from_email"`
	ToEmail      string    `json:"to_email"`
	Subject      string    `json:"subject"`
	ResponseSent bool      `json:"response_sent"`
	MessageID    string    `json:"message_id"`
}

// ProcessingResult summarizes one ReplyProcessor run for a single account.
// Skipped counts messages already present in the ledger; they are neither
// sent nor failed. Errors holds per-message and account-level failures as
// data so one account's trouble never escapes to its siblings.
type ProcessingResult struct {
	Account   string   `json:"account"`
	Attempted int      `json:"attempted"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// Merge folds another result into the receiver for batch summaries.
func (r *ProcessingResult) Merge(other ProcessingResult) {
	r.Attempted += other.Attempted
	r.Sent += other.Sent
	r.Failed += other.Failed
	r.Skipped += other.Skipped
	r.Errors = append(r.Errors, other.Errors...)
}

// AccountProbe is the health status of a single account's protocol
// endpoints as observed by HealthMonitor.
type AccountProbe struct {
	Email      string `json:"email"`
	InboundOK  bool   `json:"inbound_ok"`
	OutboundOK bool   `json:"outbound_ok"`
	Error      string `json:"error,omitempty"`
}

// RecentActivity summarizes the tail of the reply log.
type RecentActivity struct {
	Count         int        `json:"count"`
	LastTimestamp *time.Time `json:"last_timestamp,omitempty"`
}

// HealthReport aggregates per-account probes and recent ledger activity.
type HealthReport struct {
	Accounts       []AccountProbe `json:"accounts"`
	RecentActivity RecentActivity `json:"recent_activity"`
}

// SchedulerStatus is the operator-facing view of the polling job.
type SchedulerStatus struct {
	Running     bool       `json:"running"`
	NextRunTime *time.Time `json:"next_run_time,omitempty"`
	JobCount    int        `json:"job_count"`
}
