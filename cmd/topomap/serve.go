package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"topomap/internal/handler"
	"topomap/internal/hub"
	"topomap/internal/scan"
	"topomap/internal/service"
)

const defaultShutdownTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP control surface",
		Long: `Start the HTTP API. Scans are started and stopped through
POST /start_scan and POST /stop_scan, or immediately with --autostart.`,
		Example: `  topomap serve
  topomap serve --addr 127.0.0.1:8000 --autostart
  TOPOMAP_SUMMARY_API_KEY=sk-... topomap serve --target 10.0.0.0/24`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.String("addr", "", "HTTP listen address")
	flags.Bool("autostart", false, "start continuous scanning immediately")
	c.bind(flags, map[string]string{
		"server.addr":      "addr",
		"server.autostart": "autostart",
	})

	return cmd
}

func (c *cli) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := c.logger.WithComponent("server")
	log.Info("starting topomap", "version", version, "config", c.cfgPath)
	log.Info(c.cfg.Describe())

	a, err := newApp(c.cfg, c.logger, appOptions{summaries: true, sinks: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("close store", "error", err)
		}
	}()
	a.checkProber(ctx)

	// Event bus to SSE hub
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	sseHub := hub.New(hub.WithLogger(c.logger.WithComponent("hub")))
	go sseHub.Run(hubCtx)

	events := make(chan service.Event, 100)
	a.bus.Subscribe(events)
	go func() {
		for {
			select {
			case ev := <-events:
				sseHub.Broadcast(ev)
			case <-hubCtx.Done():
				return
			}
		}
	}()

	h := handler.NewScanHandler(a.orchestrator, a.registry, a.topology,
		handler.WithBaseContext(ctx),
		handler.WithEvents(sseHub),
		handler.WithMetrics(a.metrics),
		handler.WithLogger(c.logger.WithComponent("http")),
	)

	server := &http.Server{
		Addr:              c.cfg.Server.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       c.cfg.Server.ReadTimeout.Duration(),
		// SSE streams stay open, so writes are unbounded unless configured
		WriteTimeout: c.cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if c.cfg.Server.AutoStart {
		a.orchestrator.Start(ctx, scan.ModeContinuous)
		log.Info("continuous scanning started")
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	grace := c.cfg.Server.ShutdownTimeout.Duration()
	if grace <= 0 {
		grace = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	// Close SSE clients first so Shutdown does not wait on open streams
	hubCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}

	if !a.orchestrator.Stop() {
		log.Warn("scan did not drain before the stop timeout")
	}
	h.Wait()
	a.topology.Wait()

	log.Info("server stopped")
	return nil
}
