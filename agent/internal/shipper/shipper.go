package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sleeperqc/sleeperqc/agent/internal/config"
	"github.com/sleeperqc/sleeperqc/agent/internal/scada"
	"github.com/sleeperqc/sleeperqc/agent/internal/transport"
	"github.com/sleeperqc/sleeperqc/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second

	// maxBatch bounds the observations carried by one shipment.
	maxBatch = 500
)

// item is one buffered observation, tagged with the container it was
// observed for.
type item struct {
	container string
	record    *types.ActualRecord
	phase     *types.PhaseRecord
}

// Shipper buffers SCADA observations and ships them to sleeperqc-server as
// JSON shipments. Ship() is non-blocking; when the buffer is full the oldest
// observation is evicted. Run() must be called in a goroutine to drain the
// buffer and handle retries.
type Shipper struct {
	agentID string
	buf     chan item

	mu     sync.Mutex
	cfg    config.AgentConfig
	client *http.Client

	// Owned by the Run goroutine.
	pending *types.Shipment
	carry   *item
	bo      *backoff
}

// New creates a Shipper using the given agent config. The buffer capacity is
// fixed at cfg.BufferSize for the life of the Shipper.
func New(cfg config.AgentConfig, agentID string) (*Shipper, error) {
	client, err := transport.NewClient(cfg.ServerAuth, config.TLSConfig{}, sendTimeout)
	if err != nil {
		return nil, fmt.Errorf("shipper: build http client: %w", err)
	}
	return &Shipper{
		agentID: agentID,
		buf:     make(chan item, cfg.BufferSize),
		cfg:     cfg,
		client:  client,
		bo:      newBackoff(backoffInitial, backoffMax),
	}, nil
}

// Reconfigure swaps the server endpoint, container, interval and auth used
// by subsequent shipments. Observations already buffered keep the container
// they were observed for.
func (s *Shipper) Reconfigure(cfg config.AgentConfig) error {
	client, err := transport.NewClient(cfg.ServerAuth, config.TLSConfig{}, sendTimeout)
	if err != nil {
		return fmt.Errorf("shipper: build http client: %w", err)
	}
	s.mu.Lock()
	s.cfg = cfg
	s.client = client
	s.mu.Unlock()
	return nil
}

// Ship enqueues every observation of obs for the configured container.
// If the buffer is full the oldest entry is evicted to make room.
func (s *Shipper) Ship(obs scada.Observation) {
	container := s.current().cfg.ContainerID
	for i := range obs.Records {
		s.enqueue(item{container: container, record: &obs.Records[i]})
	}
	for i := range obs.Phases {
		s.enqueue(item{container: container, phase: &obs.Phases[i]})
	}
}

// Len returns the number of buffered observations not yet taken into a
// shipment.
func (s *Shipper) Len() int {
	return len(s.buf)
}

func (s *Shipper) enqueue(it item) {
	select {
	case s.buf <- it:
	default:
		select {
		case <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest observation",
				"container", it.container, "buffer_cap", cap(s.buf))
		default:
		}
		select {
		case s.buf <- it:
		default:
		}
	}
}

// Run ships buffered observations every ship interval until ctx is
// cancelled, then attempts one final flush. A failed shipment is retried
// unchanged, so the server sees the same record IDs and drops any it already
// stored.
func (s *Shipper) Run(ctx context.Context) {
	timer := time.NewTimer(s.current().cfg.ShipInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finalFlush()
			return
		case <-timer.C:
		}

		wait := s.current().cfg.ShipInterval
		if err := s.flush(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			wait = s.bo.next()
			slog.Warn("shipper: send failed, will retry",
				"endpoint", s.current().cfg.ServerEndpoint,
				"pending", s.pendingLen(),
				"err", err,
				"retry_in", wait)
		} else {
			s.bo.reset()
		}
		timer.Reset(wait)
	}
}

// flush sends shipments until the buffer is empty or a send fails. On a
// transient failure the shipment stays pending.
func (s *Shipper) flush(ctx context.Context) error {
	for {
		if s.pending == nil {
			s.pending = s.nextShipment()
		}
		if s.pending == nil {
			return nil
		}
		if err := s.send(ctx, s.pending); err != nil {
			if !isPermanent(err) {
				return err
			}
			slog.Error("shipper: server refused shipment, discarding",
				"container", s.pending.ContainerID,
				"observations", s.pending.Len(),
				"err", err)
		}
		s.pending = nil
	}
}

// finalFlush makes one bounded attempt to deliver what is left on shutdown.
func (s *Shipper) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := s.flush(ctx); err != nil {
		slog.Warn("shipper: final flush failed, observations lost",
			"pending", s.pendingLen()+s.Len(), "err", err)
	}
}

// nextShipment drains up to maxBatch observations of a single container.
// Returns nil when nothing is buffered.
func (s *Shipper) nextShipment() *types.Shipment {
	var sh *types.Shipment
	for sh == nil || sh.Len() < maxBatch {
		it, ok := s.take()
		if !ok {
			break
		}
		if sh == nil {
			sh = &types.Shipment{ContainerID: it.container, AgentID: s.agentID}
		} else if it.container != sh.ContainerID {
			s.carry = &it
			break
		}
		if it.record != nil {
			sh.Records = append(sh.Records, *it.record)
		}
		if it.phase != nil {
			sh.Phases = append(sh.Phases, *it.phase)
		}
	}
	return sh
}

func (s *Shipper) pendingLen() int {
	if s.pending == nil {
		return 0
	}
	return s.pending.Len()
}

func (s *Shipper) take() (item, bool) {
	if s.carry != nil {
		it := *s.carry
		s.carry = nil
		return it, true
	}
	select {
	case it := <-s.buf:
		return it, true
	default:
		return item{}, false
	}
}

// send posts sh to the ingest endpoint and decodes the acknowledgement.
func (s *Shipper) send(ctx context.Context, sh *types.Shipment) error {
	cur := s.current()
	body, err := json.Marshal(sh)
	if err != nil {
		return &statusError{code: http.StatusBadRequest, msg: err.Error()}
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	url := strings.TrimRight(cur.cfg.ServerEndpoint, "/") + types.IngestPath
	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := cur.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{code: resp.StatusCode, msg: strings.TrimSpace(string(msg))}
	}

	var ack types.ShipmentAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return fmt.Errorf("decode ack: %w", err)
	}
	slog.Debug("shipper: shipment delivered",
		"container", sh.ContainerID,
		"accepted", ack.Accepted,
		"duplicates", ack.Duplicates)
	return nil
}

type snapshot struct {
	cfg    config.AgentConfig
	client *http.Client
}

func (s *Shipper) current() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{cfg: s.cfg, client: s.client}
}

// statusError is a non-200 reply from the server.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server replied %d: %s", e.code, e.msg)
}

// isPermanent reports whether err means the shipment itself was refused and
// should not be retried. Timeouts and rate limiting are retried.
func isPermanent(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return se.code >= 400 && se.code < 500
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, maxWait time.Duration) *backoff {
	return &backoff{initial: initial, max: maxWait, current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.initial
}
