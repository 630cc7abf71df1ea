package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sleeperqc/sleeperqc/agent/internal/config"
	"github.com/sleeperqc/sleeperqc/agent/internal/scada"
	"github.com/sleeperqc/sleeperqc/agent/internal/shipper"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("sleeperqc-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"container", cfg.Agent.ContainerID,
		"sources", len(cfg.Agent.Sources),
		"scrape_interval", cfg.Agent.ScrapeInterval,
	)

	agentID, err := os.Hostname()
	if err != nil || agentID == "" {
		agentID = "sleeperqc-agent"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := scada.NewCollector(cfg.Agent.Sources)
	if collector.Len() == 0 {
		slog.Warn("no sources configured, agent will idle")
	}

	ship, err := shipper.New(cfg.Agent, agentID)
	if err != nil {
		slog.Error("failed to build shipper", "err", err)
		os.Exit(1)
	}
	shipDone := make(chan struct{})
	go func() {
		ship.Run(ctx)
		close(shipDone)
	}()

	var scrapeInterval atomic.Int64
	scrapeInterval.Store(int64(cfg.Agent.ScrapeInterval))

	// Hot-reload: rebuild scrapers, keeping change state per source ID, and
	// point the shipper at the new server settings.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			collector.Reload(updated.Agent.Sources)
			if err := ship.Reconfigure(updated.Agent); err != nil {
				slog.Error("shipper reconfigure failed, keeping previous settings", "err", err)
			}
			scrapeInterval.Store(int64(updated.Agent.ScrapeInterval))
			slog.Info("config hot-reloaded",
				"container", updated.Agent.ContainerID,
				"sources", collector.Len(),
			)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Scrape loop: poll every source each interval and hand what changed to
	// the shipper.
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("sleeperqc-agent shutting down")
			<-shipDone
			return
		case <-timer.C:
		}

		obs, failed := collector.Collect(ctx)
		if obs.Len() > 0 {
			ship.Ship(obs)
		}
		slog.Debug("scrape cycle complete",
			"records", len(obs.Records),
			"phases", len(obs.Phases),
			"failed_sources", failed,
			"buffered", ship.Len(),
		)
		timer.Reset(time.Duration(scrapeInterval.Load()))
	}
}
