package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/floorscore/floorscore/pkg/ingest"
	"github.com/floorscore/floorscore/pkg/logging"
	"github.com/floorscore/floorscore/server/internal/alerts"
	"github.com/floorscore/floorscore/server/internal/allocation"
	"github.com/floorscore/floorscore/server/internal/api"
	"github.com/floorscore/floorscore/server/internal/auth"
	"github.com/floorscore/floorscore/server/internal/config"
	"github.com/floorscore/floorscore/server/internal/metrics"
	"github.com/floorscore/floorscore/server/internal/receiver"
	"github.com/floorscore/floorscore/server/internal/store"
	"github.com/floorscore/floorscore/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve the dashboard UI static files from this directory (e.g. ui/dist); leave empty to disable")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logCloser, err := logging.Setup(cfg.Server.Log)
	if err != nil {
		slog.Error("failed to set up logging", "err", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	slog.Info("floorscore-server starting",
		"config", *configPath,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"storage", cfg.Storage.Backend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *configPath, *uiDir); err != nil {
		slog.Error("floorscore-server stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("floorscore-server shut down")
}

func openStore(cfg config.StorageConfig) (store.Store, error) {
	if cfg.Backend == "sqlite" {
		return store.OpenSQLite(cfg.Path)
	}
	return store.NewMemory(), nil
}

func run(ctx context.Context, cfg *config.Config, configPath, uiDir string) error {
	st, err := openStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	svc := allocation.New(st,
		allocation.WithProfiles(cfg.Scoring.Resolve()),
		allocation.WithPageSize(cfg.Report.PageSize),
	)

	// Alerts engine: evaluates rules on every record change.
	alertEngine, err := alerts.New(cfg.Alerts)
	if err != nil {
		return fmt.Errorf("alerts: %w", err)
	}
	svc.OnChange(alertEngine.Handle)

	// WebSocket hub: pushes the dashboard on every tick and after changes.
	hub := ws.New(svc, cfg.Server.Dashboard.Interval)
	svc.OnChange(hub.Notify)

	collector := metrics.New(svc,
		metrics.WithAlerts(alertEngine.FiringCount),
		metrics.WithClients(hub.Count),
	)
	svc.OnChange(collector.Observe)

	mux := http.NewServeMux()
	mux.Handle("/api/", api.New(svc, alertEngine))
	mux.Handle(ingest.Path, receiver.New(svc))
	mux.Handle("/ws/dashboard", hub)
	mux.Handle("/metrics", collector)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok")) //nolint:errcheck
	})

	// Optional: serve the pre-built dashboard UI from a local directory.
	// The "/" catch-all serves index.html for any unknown path (SPA routing).
	if uiDir != "" {
		fs := http.FileServer(http.Dir(uiDir))
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := uiDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, uiDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", uiDir)
	}

	authed := auth.Middleware(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
		"/healthz", "/metrics",
	)(mux)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           authed,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	// Hot-reload scoring parameters. Other settings need a restart.
	g.Go(func() error {
		err := config.Watch(gctx, configPath, func(next *config.Config) {
			if err := svc.SetParams(next.Scoring.Resolve()); err != nil {
				slog.Error("config: scoring parameters rejected", "err", err)
				return
			}
			slog.Info("config: scoring parameters applied", "profiles", len(next.Scoring.Profiles))
		})
		if err != nil {
			slog.Warn("config: watch disabled", "path", configPath, "err", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("floorscore-server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		alertEngine.Wait()
		return err
	})

	return g.Wait()
}
