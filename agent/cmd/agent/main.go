package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/floorscore/floorscore/agent/internal/compute"
	"github.com/floorscore/floorscore/agent/internal/config"
	"github.com/floorscore/floorscore/agent/internal/scraper"
	"github.com/floorscore/floorscore/agent/internal/security"
	"github.com/floorscore/floorscore/agent/internal/shipper"
	"github.com/floorscore/floorscore/pkg/logging"
)

// flushTimeout bounds the final delivery attempt at shutdown.
const flushTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		slog.Error("failed to set up logging", "err", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	slog.Info("floorscore-agent starting",
		"config", *configPath,
		"agent_id", cfg.Agent.ID,
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"stations", len(cfg.Agent.Stations),
		"scrape_interval", cfg.Agent.ScrapeInterval,
		"window", cfg.Agent.Window,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *configPath); err != nil {
		slog.Error("floorscore-agent stopped", "err", err)
		os.Exit(1)
	}
}

// station pairs a configured station with its scraper.
type station struct {
	id string
	s  scraper.Scraper
}

func run(ctx context.Context, cfg *config.Config, configPath string) error {
	// Station endpoints are fixed for the life of the process; reloads only
	// move stations between shift records and change scoring parameters.
	var stations []station
	for _, st := range cfg.Agent.Stations {
		s, err := scraper.New(st, cfg.Agent.Metrics)
		if err != nil {
			slog.Error("skipping station, could not build scraper", "station", st.ID, "err", err)
			continue
		}
		stations = append(stations, station{id: st.ID, s: s})
		slog.Info("registered station", "id", st.ID, "record_id", st.RecordID, "endpoint", st.Endpoint)
	}
	if len(stations) == 0 {
		slog.Warn("no stations configured, agent will idle")
	}

	ship, err := shipper.New(cfg.Agent)
	if err != nil {
		return err
	}
	engine := compute.NewEngine(cfg.Agent.Window, cfg.Agent.Scoring)

	security.CheckAll(ctx, security.Targets(cfg.Agent))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ship.Run(gctx)
		return nil
	})

	g.Go(func() error {
		err := config.Watch(gctx, configPath, func(next *config.Config) {
			ship.SetStations(next.Agent.Stations)
			engine.SetParams(next.Agent.Scoring)
			slog.Info("config hot-reloaded", "stations", len(next.Agent.Stations))
			security.CheckAll(gctx, security.Targets(next.Agent))
		})
		if err != nil {
			slog.Warn("config watcher disabled", "path", configPath, "err", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.Agent.ScrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				scrapeAll(gctx, stations, engine, ship)
			}
		}
	})

	err = g.Wait()

	slog.Info("floorscore-agent shutting down")
	for _, w := range engine.Flush() {
		ship.Ship(w)
	}
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), flushTimeout)
	defer cancelFlush()
	if lost := ship.Flush(flushCtx); lost > 0 {
		slog.Warn("undelivered updates dropped at shutdown", "updates", lost)
	}
	return err
}

// scrapeAll polls every station once and ships any window that closed.
func scrapeAll(ctx context.Context, stations []station, engine *compute.Engine, ship *shipper.Shipper) {
	for _, st := range stations {
		r, err := st.s.Scrape(ctx)
		if err != nil {
			slog.Warn("scrape error", "station", st.id, "err", err)
			continue
		}
		w := engine.Process(r, time.Now())
		if w == nil {
			continue
		}
		ship.Ship(w)
		slog.Info("window closed",
			"station", w.StationID,
			"hour", w.Hour,
			"products", w.ProductsMade,
			"rework", w.ReworkCount,
			"downtime_minutes", w.DowntimeMinutes,
			"provisional_efficiency", w.Provisional.Value,
			"uptime_pct", w.UptimePct,
		)
	}
}
