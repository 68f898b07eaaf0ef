package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/replykit-io/replykit/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the polling scheduler and the operator API",
	Long: `Serve starts the recurring inbox polling cycle and exposes the
operator API: the reply log, scheduler controls, per-account health
probes and domain verification.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	if application.cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Printf("loaded %d account(s), dedup ledger holds %d message(s)",
		application.registry.Len(), application.ledger.Size())

	if err := application.scheduler.Start(ctx); err != nil {
		return err
	}
	defer application.scheduler.Stop()

	server := api.NewServer(application.registry, application.replyLog, application.scheduler,
		api.WithBaseContext(ctx),
		api.WithHealthReporter(application.monitor),
		api.WithVerifier(application.verifier),
		api.WithMetrics(application.metrics),
	)

	httpServer := &http.Server{
		Addr:         application.cfg.Server.GetServerAddr(),
		Handler:      server.Router(),
		ReadTimeout:  application.cfg.Server.ReadTimeout,
		WriteTimeout: application.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %v, shutting down", sig)
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownTimeout := application.cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	return nil
}
