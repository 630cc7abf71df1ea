package scada

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/sleeperqc/sleeperqc/agent/internal/config"
	"github.com/sleeperqc/sleeperqc/agent/internal/transport"
	"github.com/sleeperqc/sleeperqc/pkg/types"
)

const defaultScrapeTimeout = 10 * time.Second

// Observation is the set of new records and curing cycles found in one or
// more scrapes.
type Observation struct {
	Records []types.ActualRecord
	Phases  []types.PhaseRecord
}

// Len returns the total number of observations.
func (o Observation) Len() int {
	return len(o.Records) + len(o.Phases)
}

func (o *Observation) merge(other Observation) {
	o.Records = append(o.Records, other.Records...)
	o.Phases = append(o.Phases, other.Phases...)
}

// Scraper polls one SCADA source and emits the readings that changed since
// its previous scrape.
type Scraper struct {
	src     config.Source
	client  *http.Client
	tracker *Tracker
	now     func() time.Time
	newID   func() string
}

// New returns a Scraper for src. tracker carries change state across scrapes
// and may be shared with a Scraper built from an earlier config; nil starts
// fresh.
func New(src config.Source, tracker *Tracker) (*Scraper, error) {
	client, err := transport.NewClient(src.Auth, src.TLS, defaultScrapeTimeout)
	if err != nil {
		return nil, fmt.Errorf("scada %q: build http client: %w", src.ID, err)
	}
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Scraper{
		src:     src,
		client:  client,
		tracker: tracker,
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

// Source returns the source configuration the scraper was built from.
func (s *Scraper) Source() config.Source { return s.src }

// Scrape fetches the source once. Each emitted record and cycle gets a fresh
// ID, which the server uses to drop duplicates when a shipment is resent.
func (s *Scraper) Scrape(ctx context.Context) (Observation, error) {
	mfs, err := s.fetch(ctx)
	if err != nil {
		return Observation{}, fmt.Errorf("scada %q: %w", s.src.ID, err)
	}

	var obs Observation
	for _, r := range extract(s.src.ID, s.src.Stage, mfs, s.now().UTC()) {
		if !s.tracker.Changed(r.Key, r.Signature) {
			continue
		}
		switch {
		case r.Record != nil:
			rec := *r.Record
			rec.ID = s.newID()
			obs.Records = append(obs.Records, rec)
		case r.Phase != nil:
			ph := *r.Phase
			ph.ID = s.newID()
			obs.Phases = append(obs.Phases, ph)
		}
	}
	return obs, nil
}

// fetch performs an HTTP GET to the source endpoint and returns parsed metric families.
func (s *Scraper) fetch(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.src.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}
