package scada

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sleeperqc/sleeperqc/agent/internal/config"
)

// maxConcurrentScrapes bounds the goroutines of one Collect call.
const maxConcurrentScrapes = 8

// Collector scrapes every configured source concurrently. Change trackers
// are kept per source ID across Reload, so a config edit does not re-emit
// every unchanged reading.
type Collector struct {
	mu       sync.Mutex
	scrapers []*Scraper
	trackers map[string]*Tracker
}

// NewCollector builds a Collector for sources. Sources whose client cannot
// be built are logged and skipped.
func NewCollector(sources []config.Source) *Collector {
	c := &Collector{trackers: make(map[string]*Tracker)}
	c.Reload(sources)
	return c
}

// Reload replaces the scraper set. Trackers of removed sources are dropped.
func (c *Collector) Reload(sources []config.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()

	scrapers := make([]*Scraper, 0, len(sources))
	trackers := make(map[string]*Tracker, len(sources))
	for _, src := range sources {
		tr := c.trackers[src.ID]
		if tr == nil {
			tr = NewTracker()
		}
		s, err := New(src, tr)
		if err != nil {
			slog.Error("scada: skipping source, could not build scraper", "source", src.ID, "err", err)
			continue
		}
		scrapers = append(scrapers, s)
		trackers[src.ID] = tr
		slog.Info("scada: registered source", "id", src.ID, "stage", src.Stage, "endpoint", src.Endpoint)
	}
	c.scrapers = scrapers
	c.trackers = trackers
}

// Len returns the number of active scrapers.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scrapers)
}

// Collect scrapes all sources at once and merges what changed. A failing
// source is logged and does not hold back the others; failed reports how
// many sources could not be scraped.
func (c *Collector) Collect(ctx context.Context) (obs Observation, failed int) {
	c.mu.Lock()
	scrapers := c.scrapers
	c.mu.Unlock()

	results := make([]Observation, len(scrapers))
	errs := make([]error, len(scrapers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentScrapes)
	for i, s := range scrapers {
		g.Go(func() error {
			results[i], errs[i] = s.Scrape(gctx)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // per-source errors are collected in errs

	for i, s := range scrapers {
		if errs[i] != nil {
			failed++
			slog.Warn("scada: scrape failed", "source", s.Source().ID, "err", errs[i])
			continue
		}
		obs.merge(results[i])
	}
	return obs, failed
}
