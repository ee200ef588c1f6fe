package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/justinhartfield/protein-empire-cms/pkg/config"
	"github.com/justinhartfield/protein-empire-cms/pkg/notifier"
	"github.com/justinhartfield/protein-empire-cms/pkg/stores"
)

const (
	webhookPath     = "/webhooks/content"
	healthPath      = "/healthz"
	shutdownTimeout = 15 * time.Second
)

func newServeCommand() *cobra.Command {
	var (
		listen     string
		ledgerPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive content webhooks and trigger site rebuilds",
		Long: `Listen for content store lifecycle webhooks and turn bursts of changes
into a single rebuild notification.

The first qualifying change arms a timer; changes that arrive while it is
pending are folded into the same notification. When the timer fires one
repository dispatch is sent, scoped to the site of the first change (or
unscoped when that change was a delete).

Endpoints:
  POST /webhooks/content  content store webhook
  GET  /metrics           Prometheus metrics
  GET  /healthz           health check`,
		Example: `  # Listen on the configured address
  empire serve

  # Listen on a different port and without a ledger
  empire serve --listen :9000 --ledger ""`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(func(cfg *config.Config) {
				if cmd.Flags().Changed("listen") {
					cfg.Receiver.Listen = listen
				}
				if cmd.Flags().Changed("ledger") {
					cfg.Ledger.Path = ledgerPath
				}
			})
			if err != nil {
				return err
			}
			defer rt.close()

			return runServe(cmd.Context(), rt)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "run ledger database; empty disables it")

	return cmd
}

func runServe(ctx context.Context, rt *runtime) error {
	cfg := rt.cfg
	logger := rt.logger("serve")

	dispatcher := newDispatcher(cfg)
	if !notifier.Enabled(dispatcher) {
		logger.Warn("GITHUB_WEBHOOK_URL or GITHUB_WEBHOOK_TOKEN not set, notifications will be skipped")
	}

	opts := []notifier.Option{
		notifier.WithDelay(cfg.Notifier.Delay),
		notifier.WithLogger(rt.logger("notifier")),
		notifier.WithMetrics(rt.tel.Metrics),
		notifier.WithTracer(rt.tel.Tracer),
	}

	ledger, err := rt.openLedger(ctx)
	if err != nil {
		logger.WithError(err).Warn("Run ledger unavailable, continuing without it")
	} else if ledger != nil {
		defer ledger.Close()
		opts = append(opts, notifier.WithRecorder(ledger))
	}

	n := notifier.New(dispatcher, opts...)
	receiver := notifier.NewReceiver(n, notifier.ReceiverConfig{
		Secret:  cfg.Receiver.Secret,
		Models:  cfg.Receiver.Models,
		Logger:  rt.logger("receiver"),
		Metrics: rt.tel.Metrics,
	})

	mux := http.NewServeMux()
	mux.Handle(webhookPath, receiver)
	mux.Handle(rt.tel.Metrics.Path(), rt.tel.Metrics.Handler())
	mux.Handle(healthPath, healthHandler(n, ledger))

	server := &http.Server{
		Addr:              cfg.Receiver.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":  cfg.Receiver.Listen,
			"delay": cfg.Notifier.Delay.String(),
		}).Info("Listening for content webhooks")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("Shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Server shutdown incomplete")
	}
	// a pending flush still goes out
	if err := n.Wait(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Pending notification not delivered before shutdown")
	}
	return nil
}

func newDispatcher(cfg *config.Config) notifier.Dispatcher {
	return notifier.NewDispatcher(notifier.DispatcherConfig{
		URL:       cfg.Notifier.WebhookURL,
		Token:     cfg.Notifier.WebhookToken,
		EventType: cfg.Notifier.EventType,
		UserAgent: "protein-empire-cms/" + buildVersion,
	})
}

func healthHandler(n *notifier.Notifier, ledger *stores.SQLiteStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]interface{}{
			"status":  "ok",
			"pending": n.Pending(),
		}
		if ledger != nil {
			if err := ledger.HealthCheck(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body["ledger"] = err.Error()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
}
