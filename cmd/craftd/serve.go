package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/craftd"
	hfactory "github.com/loykin/craftd/internal/history/factory"
	sfactory "github.com/loykin/craftd/internal/store/factory"
	tlsutil "github.com/loykin/craftd/internal/tls"
)

func runServe(configPath string) error {
	cfg, err := craftd.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logCloser := cfg.Log.Setup()
	if logCloser != nil {
		defer func() { _ = logCloser.Close() }()
	}

	if err := craftd.RegisterMetricsDefault(); err != nil {
		slog.Warn("failed to register metrics", "error", err)
	}

	panel := craftd.New(cfg.ServerList(), cfg.GroupMap(), cfg.SupervisorOptions())

	if cfg.Store.DSN != "" {
		st, err := sfactory.NewFromDSN(cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = st.Close() }()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := st.EnsureSchema(ctx); err != nil {
			cancel()
			return fmt.Errorf("failed to ensure store schema: %w", err)
		}
		// Sessions still flagged running were orphaned by a previous daemon.
		if n, err := st.CloseOpenSessions(ctx, time.Now()); err != nil {
			slog.Warn("failed to close stale sessions", "error", err)
		} else if n > 0 {
			slog.Info("closed stale sessions from previous run", "count", n)
		}
		cancel()
		panel.SetStore(st)
	}

	if cfg.History.Type != "" {
		sink, err := hfactory.New(cfg.History.Type, cfg.History.Addr, cfg.History.Table)
		if err != nil {
			return fmt.Errorf("failed to create history sink: %w", err)
		}
		panel.SetHistorySink(sink)
	}

	tlsConf, err := tlsutil.Setup(cfg.TLS)
	if err != nil {
		return fmt.Errorf("failed to set up TLS: %w", err)
	}
	var server *http.Server
	scheme := "http"
	if tlsConf != nil {
		server = panel.NewHTTPSServer(cfg.Listen, tlsConf)
		scheme = "https"
	} else {
		server = panel.NewHTTPServer(cfg.Listen)
	}
	slog.Info("craftd daemon started", "listen", cfg.Listen, "scheme", scheme, "servers", len(cfg.Servers))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	// Managed servers are not killed here; their sessions get marked stopped
	// by the stale-session sweep on the next daemon start.
	slog.Info("shutting down")
	return server.Close()
}
