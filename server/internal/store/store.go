package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sleeperqc/sleeperqc/pkg/qc"
	"github.com/sleeperqc/sleeperqc/pkg/types"
)

var (
	// ErrNotFound is returned when a container or record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrEditWindowClosed is returned when a record is edited too long after it was recorded.
	ErrEditWindowClosed = errors.New("store: edit window closed")
	// ErrInvalid is returned when a record fails validation.
	ErrInvalid = errors.New("store: invalid record")
	// ErrDuplicate is returned when a record or cycle ID is already stored.
	ErrDuplicate = errors.New("store: duplicate id")
)

// Kind names the mutation carried by a journal Entry.
type Kind string

const (
	KindDeclare  Kind = "declare"
	KindRecord   Kind = "record"
	KindEdit     Kind = "edit"
	KindPhase    Kind = "phase"
	KindCubes    Kind = "cubes"
	KindMoisture Kind = "moisture"
)

// Entry is one journaled mutation of a shift container.
type Entry struct {
	ContainerID string
	Kind        Kind
	Payload     json.RawMessage
	At          time.Time
}

// Journal persists mutations so the store can be rebuilt after a restart.
type Journal interface {
	Append(ctx context.Context, e Entry) error
}

type editPayload struct {
	ID       string             `json:"id"`
	Values   map[string]float64 `json:"values"`
	EditedAt time.Time          `json:"edited_at"`
}

type container struct {
	shift     types.Shift
	updatedAt time.Time
}

// Store is a thread-safe set of per-shift-container repositories, keyed by
// container ID. A background goroutine (Run) evicts containers that have not
// been mutated within the configured TTL.
type Store struct {
	mu         sync.RWMutex
	data       map[string]*container
	ttl        time.Duration
	editWindow time.Duration
	journal    Journal
	now        func() time.Time // injectable for deterministic tests
	newID      func() string
}

// New creates a Store. Records may be edited for editWindow after RecordedAt.
func New(ttl, editWindow time.Duration) *Store {
	return &Store{
		data:       make(map[string]*container),
		ttl:        ttl,
		editWindow: editWindow,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// SetJournal makes every subsequent mutation durable through j.
func (s *Store) SetJournal(j Journal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = j
}

// Declare stores decl for container cid, superseding any earlier declaration
// with the same batch number. The proportion status is recomputed.
func (s *Store) Declare(cid string, decl types.BatchDeclaration) (types.BatchDeclaration, error) {
	if cid == "" || decl.BatchNo == "" {
		return types.BatchDeclaration{}, fmt.Errorf("%w: container and batch number are required", ErrInvalid)
	}
	s.mu.Lock()
	now := s.now()
	if decl.DeclaredAt.IsZero() {
		decl.DeclaredAt = now
	}
	decl.Status = qc.ValidateProportion(decl.SetValues, decl.Reference)
	s.applyDeclare(s.containerFor(cid, now), decl)
	s.record(cid, KindDeclare, decl, now)
	s.mu.Unlock()
	return decl, nil
}

// AddRecord stores an actual record. An empty ID is assigned a new UUID and
// a zero RecordedAt is set to now.
func (s *Store) AddRecord(cid string, rec types.ActualRecord) (types.ActualRecord, error) {
	if err := validateRecord(cid, rec); err != nil {
		return types.ActualRecord{}, err
	}
	s.mu.Lock()
	now := s.now()
	if rec.ID == "" {
		rec.ID = s.newID()
	} else if c, ok := s.data[cid]; ok && indexOfRecord(c.shift.Records, rec.ID) >= 0 {
		s.mu.Unlock()
		return types.ActualRecord{}, fmt.Errorf("record %q: %w", rec.ID, ErrDuplicate)
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = now
	}
	c := s.containerFor(cid, now)
	c.shift.Records = append(c.shift.Records, rec)
	s.record(cid, KindRecord, rec, now)
	s.mu.Unlock()
	return rec, nil
}

// EditRecord replaces the values of record id. The record keeps its identity,
// source and RecordedAt. Edits are refused with ErrEditWindowClosed once the
// edit window measured from RecordedAt has elapsed.
func (s *Store) EditRecord(cid, id string, values map[string]float64) (types.ActualRecord, error) {
	s.mu.Lock()
	c, ok := s.data[cid]
	if !ok {
		s.mu.Unlock()
		return types.ActualRecord{}, fmt.Errorf("container %q: %w", cid, ErrNotFound)
	}
	i := indexOfRecord(c.shift.Records, id)
	if i < 0 {
		s.mu.Unlock()
		return types.ActualRecord{}, fmt.Errorf("record %q: %w", id, ErrNotFound)
	}
	now := s.now()
	if now.Sub(c.shift.Records[i].RecordedAt) > s.editWindow {
		s.mu.Unlock()
		return types.ActualRecord{}, fmt.Errorf("record %q: %w", id, ErrEditWindowClosed)
	}
	p := editPayload{ID: id, Values: values, EditedAt: now}
	rec := applyEdit(c, i, p)
	c.updatedAt = now
	s.record(cid, KindEdit, p, now)
	s.mu.Unlock()
	return rec, nil
}

// AddPhase stores one steam-curing cycle.
func (s *Store) AddPhase(cid string, rec types.PhaseRecord) (types.PhaseRecord, error) {
	if cid == "" || rec.BatchNo == "" {
		return types.PhaseRecord{}, fmt.Errorf("%w: container and batch number are required", ErrInvalid)
	}
	s.mu.Lock()
	now := s.now()
	if rec.ID == "" {
		rec.ID = s.newID()
	} else if c, ok := s.data[cid]; ok && hasPhase(c.shift.Phases, rec.ID) {
		s.mu.Unlock()
		return types.PhaseRecord{}, fmt.Errorf("phase record %q: %w", rec.ID, ErrDuplicate)
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = now
	}
	c := s.containerFor(cid, now)
	c.shift.Phases = append(c.shift.Phases, rec)
	s.record(cid, KindPhase, rec, now)
	s.mu.Unlock()
	return rec, nil
}

// AddCubes stores one cube set.
func (s *Store) AddCubes(cid string, set types.CubeSet) (types.CubeSet, error) {
	if cid == "" || set.BatchNo == "" || set.Grade == "" {
		return types.CubeSet{}, fmt.Errorf("%w: container, batch number and grade are required", ErrInvalid)
	}
	s.mu.Lock()
	now := s.now()
	if set.ID == "" {
		set.ID = s.newID()
	}
	if set.TestedAt.IsZero() {
		set.TestedAt = now
	}
	c := s.containerFor(cid, now)
	c.shift.Cubes = append(c.shift.Cubes, set)
	s.record(cid, KindCubes, set, now)
	s.mu.Unlock()
	return set, nil
}

// SetMoisture replaces the moisture sheet of container cid.
func (s *Store) SetMoisture(cid string, sheet types.MoistureSheet) error {
	if cid == "" {
		return fmt.Errorf("%w: container is required", ErrInvalid)
	}
	s.mu.Lock()
	now := s.now()
	c := s.containerFor(cid, now)
	c.shift.Moisture = copySheet(&sheet)
	s.record(cid, KindMoisture, sheet, now)
	s.mu.Unlock()
	return nil
}

// Shift returns a deep copy of container cid, safe to read without locking.
func (s *Store) Shift(cid string) (types.Shift, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data[cid]
	if !ok {
		return types.Shift{}, false
	}
	return copyShift(c.shift), true
}

// Shifts returns deep copies of every live container, ordered by ID.
func (s *Store) Shifts() []types.Shift {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]types.Shift, 0, len(s.data))
	for _, c := range s.data {
		if c.updatedAt.After(cutoff) {
			out = append(out, copyShift(c.shift))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Containers returns the IDs of every live container, sorted.
func (s *Store) Containers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]string, 0, len(s.data))
	for id, c := range s.data {
		if c.updatedAt.After(cutoff) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Count returns the total number of containers currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Apply replays one journal entry without journaling it again. Edit windows
// are not enforced on replay.
func (s *Store) Apply(e Entry) error {
	// Decode first: an entry that fails leaves no trace, not even an empty
	// container.
	var (
		mutate func(c *container)
		editID string
	)
	switch e.Kind {
	case KindDeclare:
		var d types.BatchDeclaration
		if err := json.Unmarshal(e.Payload, &d); err != nil {
			return fmt.Errorf("store: apply %s: %w", e.Kind, err)
		}
		mutate = func(c *container) { s.applyDeclare(c, d) }
	case KindRecord:
		var r types.ActualRecord
		if err := json.Unmarshal(e.Payload, &r); err != nil {
			return fmt.Errorf("store: apply %s: %w", e.Kind, err)
		}
		mutate = func(c *container) {
			c.shift.Records = append(c.shift.Records, r)
		}
	case KindEdit:
		var p editPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("store: apply %s: %w", e.Kind, err)
		}
		editID = p.ID
		mutate = func(c *container) { applyEdit(c, indexOfRecord(c.shift.Records, p.ID), p) }
	case KindPhase:
		var r types.PhaseRecord
		if err := json.Unmarshal(e.Payload, &r); err != nil {
			return fmt.Errorf("store: apply %s: %w", e.Kind, err)
		}
		mutate = func(c *container) {
			c.shift.Phases = append(c.shift.Phases, r)
		}
	case KindCubes:
		var cs types.CubeSet
		if err := json.Unmarshal(e.Payload, &cs); err != nil {
			return fmt.Errorf("store: apply %s: %w", e.Kind, err)
		}
		mutate = func(c *container) {
			c.shift.Cubes = append(c.shift.Cubes, cs)
		}
	case KindMoisture:
		var m types.MoistureSheet
		if err := json.Unmarshal(e.Payload, &m); err != nil {
			return fmt.Errorf("store: apply %s: %w", e.Kind, err)
		}
		mutate = func(c *container) {
			c.shift.Moisture = &m
		}
	default:
		return fmt.Errorf("store: apply: unknown kind %q", e.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Kind == KindEdit {
		c, ok := s.data[e.ContainerID]
		if !ok {
			return fmt.Errorf("store: apply edit in container %q: %w", e.ContainerID, ErrNotFound)
		}
		if indexOfRecord(c.shift.Records, editID) < 0 {
			return fmt.Errorf("store: apply edit of record %q: %w", editID, ErrNotFound)
		}
	}
	mutate(s.containerFor(e.ContainerID, e.At))
	return nil
}

// Evict removes containers whose last mutation is older than now minus TTL.
// It returns the number of containers removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, c := range s.data {
		if !c.updatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted idle shift containers", "count", n)
			}
		}
	}
}

// containerFor returns the container for cid, creating it if needed, and
// marks it updated at now. Caller must hold s.mu.
func (s *Store) containerFor(cid string, now time.Time) *container {
	c, ok := s.data[cid]
	if !ok {
		c = &container{shift: types.Shift{ID: cid}}
		s.data[cid] = c
	}
	if now.After(c.updatedAt) {
		c.updatedAt = now
	}
	return c
}

func (s *Store) applyDeclare(c *container, decl types.BatchDeclaration) {
	for i, d := range c.shift.Declarations {
		if d.BatchNo == decl.BatchNo {
			c.shift.Declarations[i] = decl
			return
		}
	}
	c.shift.Declarations = append(c.shift.Declarations, decl)
}

// record journals one mutation. Caller must hold s.mu, so entries reach the
// journal in the order they were applied. Journal failures are logged, not
// returned: the in-memory state is already updated.
func (s *Store) record(cid string, kind Kind, payload any, at time.Time) {
	if s.journal == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("store: marshal journal entry", "container", cid, "kind", kind, "err", err)
		return
	}
	if err := s.journal.Append(context.Background(), Entry{ContainerID: cid, Kind: kind, Payload: raw, At: at}); err != nil {
		slog.Error("store: journal append failed", "container", cid, "kind", kind, "err", err)
	}
}

func applyEdit(c *container, i int, p editPayload) types.ActualRecord {
	rec := c.shift.Records[i]
	rec.Values = copyValues(p.Values)
	edited := p.EditedAt
	rec.EditedAt = &edited
	c.shift.Records[i] = rec
	return rec
}

func indexOfRecord(records []types.ActualRecord, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func hasPhase(phases []types.PhaseRecord, id string) bool {
	for _, p := range phases {
		if p.ID == id {
			return true
		}
	}
	return false
}

func validateRecord(cid string, rec types.ActualRecord) error {
	switch {
	case cid == "":
		return fmt.Errorf("%w: container is required", ErrInvalid)
	case rec.BatchNo == "":
		return fmt.Errorf("%w: batch number is required", ErrInvalid)
	case !types.ValidStage(rec.Stage):
		return fmt.Errorf("%w: unknown stage %q", ErrInvalid, rec.Stage)
	case !types.ValidSource(rec.Source):
		return fmt.Errorf("%w: unknown source %q", ErrInvalid, rec.Source)
	}
	return nil
}
