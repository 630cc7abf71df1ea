package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sleeperqc/sleeperqc/pkg/report"
	"github.com/sleeperqc/sleeperqc/server/internal/alerts"
	"github.com/sleeperqc/sleeperqc/server/internal/api"
	"github.com/sleeperqc/sleeperqc/server/internal/auth"
	"github.com/sleeperqc/sleeperqc/server/internal/config"
	"github.com/sleeperqc/sleeperqc/server/internal/history"
	"github.com/sleeperqc/sleeperqc/server/internal/receiver"
	"github.com/sleeperqc/sleeperqc/server/internal/store"
	"github.com/sleeperqc/sleeperqc/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve the UI static files from this directory (e.g. ui/dist); leave empty to disable")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("sleeperqc-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"container_ttl", cfg.Server.Containers.TTL,
		"edit_window", cfg.Server.Records.EditWindow,
		"storage", cfg.Server.Storage.Backend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Shift store with background TTL eviction.
	st := store.New(cfg.Server.Containers.TTL, cfg.Server.Records.EditWindow)

	// Optional SQLite journal: restore the live shifts, then journal every write.
	if cfg.Server.Storage.Backend == "sqlite" {
		journal, err := history.Open(cfg.Server.Storage.Path)
		if err != nil {
			slog.Error("failed to open history journal", "path", cfg.Server.Storage.Path, "err", err)
			os.Exit(1)
		}
		defer journal.Close()

		if _, err := journal.Prune(ctx, time.Now().Add(-cfg.Server.Storage.Retention)); err != nil {
			slog.Warn("history prune failed", "err", err)
		}
		n, err := journal.Replay(ctx, st.Apply)
		if err != nil {
			slog.Error("failed to replay history journal", "err", err)
			os.Exit(1)
		}
		st.SetJournal(journal)
		go journal.Run(ctx, cfg.Server.Storage.Retention)
		slog.Info("history journal restored",
			"path", cfg.Server.Storage.Path,
			"entries", n,
			"containers", st.Count(),
		)
	}
	go st.Run(ctx)

	reportOpts := report.Options{TheoreticalLoad: cfg.Server.QC.TheoreticalLoad}

	// Alerts engine: evaluates rules against the shift report after every write.
	alertEngine := alerts.New(cfg.Server.Alerts)

	// WebSocket hub: streams shift reports to UI clients.
	hub := ws.New(st, cfg.Server.Stream.Interval, reportOpts)
	go hub.Run(ctx)

	onChange := func(cid string) {
		sh, ok := st.Shift(cid)
		if !ok {
			return
		}
		alertEngine.Evaluate(report.Build(sh, reportOpts))
		hub.Notify(cid)
	}

	// Combined HTTP server: REST API, agent ingest and WebSocket hub on HTTPPort.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(st, api.Options{
		Report:   reportOpts,
		Alerts:   alertEngine,
		OnChange: onChange,
	}))
	receiver.New(st, onChange).Register(httpMux)
	httpMux.Handle("/ws/stream", hub)

	// Optional: serve a pre-built UI from a local directory.
	// The "/" catch-all serves index.html for any unknown path (SPA routing).
	if *uiDir != "" {
		fs := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := *uiDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, *uiDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	secured := auth.APIKey(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
		"/api/v1/health",
	)(httpMux)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           secured,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("sleeperqc-server shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	alertEngine.Wait()
}
