// Package api exposes the operator-facing HTTP surface: the reply log,
// scheduler controls, health probes, and domain verification.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/replykit-io/replykit/internal/account"
	"github.com/replykit-io/replykit/internal/metrics"
	"github.com/replykit-io/replykit/internal/models"
	"github.com/replykit-io/replykit/internal/scheduler"
	"github.com/replykit-io/replykit/internal/verify"
)

// SchedulerControl is the slice of the scheduler the API drives.
type SchedulerControl interface {
	TriggerNow() error
	Status() models.SchedulerStatus
	Start(ctx context.Context) error
}

// RepliesSource lists the audit log. *store.ReplyLog satisfies it.
type RepliesSource interface {
	List(ctx context.Context) ([]models.ReplyLogEntry, error)
}

// HealthReporter produces the per-account health report.
type HealthReporter interface {
	Report(ctx context.Context, accounts []*models.MailAccount) models.HealthReport
}

// Server wires the HTTP handlers to the polling subsystem.
type Server struct {
	registry  *account.Registry
	replies   RepliesSource
	scheduler SchedulerControl
	monitor   HealthReporter
	verifier  *verify.Verifier
	metrics   *metrics.Metrics
	logger    *log.Logger

	// baseCtx outlives any single request. A scheduler restarted from a
	// handler must not inherit the request context, which net/http
	// cancels as soon as the handler returns.
	baseCtx context.Context
}

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBaseContext sets the application context used when a handler has
// to (re)start long-running work such as the scheduler.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) {
		if ctx != nil {
			s.baseCtx = ctx
		}
	}
}

// WithMetrics mounts the metrics endpoint.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHealthReporter mounts the health endpoint.
func WithHealthReporter(monitor HealthReporter) Option {
	return func(s *Server) {
		s.monitor = monitor
	}
}

// WithVerifier mounts the domain verification endpoint.
func WithVerifier(verifier *verify.Verifier) Option {
	return func(s *Server) {
		s.verifier = verifier
	}
}

// NewServer builds the API server over its collaborators.
func NewServer(registry *account.Registry, replies RepliesSource, sched SchedulerControl, opts ...Option) *Server {
	s := &Server{
		registry:  registry,
		replies:   replies,
		scheduler: sched,
		logger:    log.New(os.Stdout, "[API] ", log.LstdFlags),
		baseCtx:   context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/email_replies", s.handleEmailReplies)
	router.POST("/check_now", s.handleCheckNow)
	router.GET("/scheduler_status", s.handleSchedulerStatus)
	router.POST("/restart_scheduler", s.handleRestartScheduler)

	if s.monitor != nil {
		router.GET("/health", s.handleHealth)
	}
	router.GET("/accounts", s.handleAccounts)
	if s.verifier != nil {
		router.POST("/accounts/:email/verify_domain", s.handleVerifyDomain)
	}
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return router
}

func (s *Server) handleEmailReplies(c *gin.Context) {
	entries, err := s.replies.List(c.Request.Context())
	if err != nil {
		s.logger.Printf("list replies: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reply log"})
		return
	}
	if entries == nil {
		entries = []models.ReplyLogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"email_replies": entries,
		"count":         len(entries),
	})
}

func (s *Server) handleCheckNow(c *gin.Context) {
	err := s.scheduler.TriggerNow()
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "check started"})
	case errors.Is(err, scheduler.ErrCycleInProgress):
		c.JSON(http.StatusConflict, gin.H{"status": "check already in progress"})
	case errors.Is(err, scheduler.ErrNotRunning):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler is not running"})
	default:
		s.logger.Printf("trigger check: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleSchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleRestartScheduler(c *gin.Context) {
	if s.scheduler.Status().Running {
		c.JSON(http.StatusOK, gin.H{"status": "scheduler already running"})
		return
	}
	if err := s.scheduler.Start(s.baseCtx); err != nil {
		s.logger.Printf("restart scheduler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "scheduler started"})
}

func (s *Server) handleHealth(c *gin.Context) {
	report := s.monitor.Report(c.Request.Context(), s.registry.All())
	status := http.StatusOK
	for _, probe := range report.Accounts {
		if !probe.InboundOK || !probe.OutboundOK {
			status = http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(status, report)
}

func (s *Server) handleAccounts(c *gin.Context) {
	type accountView struct {
		Email       string                `json:"email"`
		DisplayName string                `json:"display_name"`
		ServiceTag  string                `json:"service_tag,omitempty"`
		InboundType string                `json:"inbound_type"`
		Domain      models.DomainSettings `json:"domain"`
	}

	accounts := s.registry.All()
	views := make([]accountView, 0, len(accounts))
	for _, acct := range accounts {
		domain, _ := s.registry.Domain(acct.Email)
		views = append(views, accountView{
			Email:       acct.Email,
			DisplayName: acct.DisplayName,
			ServiceTag:  acct.ServiceTag,
			InboundType: acct.InboundType,
			Domain:      domain,
		})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": views, "count": len(views)})
}

func (s *Server) handleVerifyDomain(c *gin.Context) {
	email := c.Param("email")
	acct, ok := s.registry.Get(email)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown account: " + email})
		return
	}

	result := s.verifier.Verify(c.Request.Context(), acct.DomainOf(), acct.DKIMSelector)

	settings, _ := s.registry.Domain(acct.Email)
	s.verifier.Apply(result, &settings)
	s.registry.UpdateDomain(acct.Email, settings)

	c.JSON(http.StatusOK, gin.H{
		"email":  acct.Email,
		"domain": settings,
	})
}
