package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/replykit-io/replykit/internal/account"
	"github.com/replykit-io/replykit/internal/config"
	"github.com/replykit-io/replykit/internal/health"
	"github.com/replykit-io/replykit/internal/mail/connector"
	"github.com/replykit-io/replykit/internal/metrics"
	"github.com/replykit-io/replykit/internal/models"
	"github.com/replykit-io/replykit/internal/reply"
	"github.com/replykit-io/replykit/internal/scheduler"
	"github.com/replykit-io/replykit/internal/store"
	"github.com/replykit-io/replykit/internal/verify"
)

// app holds every wired component a subcommand may need.
type app struct {
	cfg       *config.Config
	registry  *account.Registry
	db        *sql.DB
	ledger    *store.Ledger
	replyLog  *store.ReplyLog
	manager   *connector.Manager
	processor *reply.Processor
	scheduler *scheduler.Scheduler
	monitor   *health.Monitor
	verifier  *verify.Verifier
	metrics   *metrics.Metrics
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// buildApp loads configuration and wires the full polling pipeline.
func buildApp(ctx context.Context) (*app, error) {
	if err := config.Load(configFlag); err != nil {
		log.Printf("config file not loaded, continuing with env and defaults: %v", err)
	}
	cfg := config.Get()
	if cfg == nil {
		return nil, fmt.Errorf("configuration unavailable")
	}
	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("no mail accounts configured")
	}

	registry, err := account.NewRegistry(cfg.Accounts)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}

	ledger, err := store.NewLedger(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load dedup ledger: %w", err)
	}
	replyLog := store.NewReplyLog(db)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	manager := connector.DefaultManager(cfg.Polling.DialTimeout)
	generator := reply.NewOpenAIGenerator(cfg.AI)
	processor := reply.NewProcessor(manager, ledger, replyLog, generator,
		reply.WithVoice(cfg.Voice),
		reply.WithMetrics(m),
	)

	cycle := func(ctx context.Context) []models.ProcessingResult {
		return processor.RunAll(ctx, registry.All())
	}
	sched := scheduler.New(cycle, cfg.Polling.Interval, cfg.Polling.MisfireGrace,
		scheduler.WithMetrics(m),
	)

	return &app{
		cfg:       cfg,
		registry:  registry,
		db:        db,
		ledger:    ledger,
		replyLog:  replyLog,
		manager:   manager,
		processor: processor,
		scheduler: sched,
		monitor:   health.NewMonitor(manager, replyLog, health.WithMetrics(m)),
		verifier:  verify.New(),
		metrics:   m,
	}, nil
}
