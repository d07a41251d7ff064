package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/agentrt/core/internal/config"
	"github.com/agentrt/core/internal/eventlog"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent runtime: cron scheduler plus a local event-stream server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentd.yaml", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	inst, err := buildInstance(cfg)
	if err != nil {
		return fmt.Errorf("build instance: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if inst.manifestWatcher != nil {
		if err := inst.manifestWatcher.Start(ctx); err != nil {
			slog.Warn("capability manifest watcher failed to start", "error", err)
		} else {
			defer inst.manifestWatcher.Close()
		}
	}

	if err := inst.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start cron scheduler: %w", err)
	}
	defer inst.scheduler.Stop(context.Background())
	if inst.tracerShutdown != nil {
		defer inst.tracerShutdown(context.Background())
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/events", newEventsHandler(inst.store))
	mux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		slog.Info("agentd http listening", "addr", httpSrv.Addr, "instance", cfg.Instance.ID)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server exited", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// eventsHandler upgrades a session's event subscription to a websocket
// connection, narrowed to a single read-only event fan-out (no RPC
// frames, no auth handshake — out of scope for this runtime's
// single-tenant local server).
type eventsHandler struct {
	store    eventlog.Store
	upgrader websocket.Upgrader
}

func newEventsHandler(store eventlog.Store) http.Handler {
	return &eventsHandler{
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *eventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.store.Subscribe(sessionID)
	defer unsubscribe()

	for evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
