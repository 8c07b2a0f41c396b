// Package storage keeps the in-memory player snapshot and the tables derived
// from it. Nothing survives a restart.
package storage

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/playerstats-proxy/internal/cache"
	"github.com/playerstats-proxy/internal/metrics"
	"github.com/playerstats-proxy/internal/ranking"
	"github.com/playerstats-proxy/internal/stats"
	"github.com/playerstats-proxy/internal/upstream"
)

const (
	opSnapshot = "Snapshot"
	opTables   = "Tables"

	snapshotKey = "snapshot"
)

// Fetcher downloads the full player list.
type Fetcher interface {
	FetchPlayers(ctx context.Context) ([]stats.PlayerRecord, error)
}

// Config holds the store's lifetimes.
type Config struct {
	SnapshotTTL  time.Duration
	AggregateTTL time.Duration
	MaximaTTL    time.Duration
	// FetchTimeout bounds one shared upstream fetch.
	FetchTimeout time.Duration
}

// NewConfig uses ttl for all three slots.
func NewConfig(ttl, fetchTimeout time.Duration) Config {
	return Config{
		SnapshotTTL:  ttl,
		AggregateTTL: ttl,
		MaximaTTL:    ttl,
		FetchTimeout: fetchTimeout,
	}
}

// Tables is a snapshot together with the tables derived from that same
// snapshot.
type Tables struct {
	Snapshot  *stats.Snapshot
	Aggregate ranking.AggregateTable
	Maxima    ranking.MaximaTable
}

// RefreshEvent describes a freshly fetched snapshot.
type RefreshEvent struct {
	Generation uint64    `json:"generation"`
	Players    int       `json:"players"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for the store and its slots.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithMetrics records cache and fetch metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

type derived[T any] struct {
	generation uint64
	table      T
}

// Store serves the player snapshot and its aggregate and maxima tables, each
// from its own expiring slot. A fresh snapshot always clears both derived
// slots, and derived tables are tagged with the snapshot generation they came
// from so a table is never paired with a different snapshot.
type Store struct {
	fetcher Fetcher
	cfg     Config
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger

	// mu orders slot updates against generation changes.
	mu         sync.Mutex
	generation uint64
	hooks      []func(RefreshEvent)

	snapshot  *cache.Slot[*stats.Snapshot]
	aggregate *cache.Slot[derived[ranking.AggregateTable]]
	maxima    *cache.Slot[derived[ranking.MaximaTable]]

	group singleflight.Group
}

// NewStore creates an empty store. Nothing is fetched until first use.
func NewStore(fetcher Fetcher, cfg Config, opts ...Option) *Store {
	s := &Store{
		fetcher: fetcher,
		cfg:     cfg,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	clock := cache.WithClock(s.now)
	s.snapshot = cache.NewSlot[*stats.Snapshot](clock, cache.WithObserver(func(hit bool) {
		s.metrics.CacheLookup("snapshot", hit)
	}))
	s.aggregate = cache.NewSlot[derived[ranking.AggregateTable]](clock)
	s.maxima = cache.NewSlot[derived[ranking.MaximaTable]](clock)
	return s
}

// OnRefresh registers fn to be called, on its own goroutine, after every
// successful upstream fetch.
func (s *Store) OnRefresh(fn func(RefreshEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Snapshot returns the cached snapshot, fetching a new one if the slot is
// empty or expired. Concurrent misses share one fetch. Errors are
// *upstream.Error.
func (s *Store) Snapshot(ctx context.Context) (*stats.Snapshot, error) {
	if snap, ok := s.snapshot.Get(); ok {
		return snap, nil
	}

	// The fetch outlives any single caller; each caller only stops waiting.
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(snapshotKey, func() (any, error) {
		return s.refresh(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*stats.Snapshot), nil
	case <-ctx.Done():
		return nil, upstream.Transport(opSnapshot, ctx.Err())
	}
}

func (s *Store) refresh(ctx context.Context) (*stats.Snapshot, error) {
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	start := s.now()
	players, err := s.fetcher.FetchPlayers(ctx)
	elapsed := s.now().Sub(start)
	if err != nil {
		var ue *upstream.Error
		if !errors.As(err, &ue) {
			ue = upstream.Transport(opSnapshot, err)
			err = ue
		}
		outcome := metrics.OutcomeTransport
		if ue.Class == upstream.ClassPayload {
			outcome = metrics.OutcomePayload
		}
		s.metrics.ObserveFetch(outcome, elapsed)
		s.logger.Warn("upstream fetch failed", "tag", "storage", "category", ue.Category, "error", err)
		return nil, err
	}

	s.mu.Lock()
	s.generation++
	snap := &stats.Snapshot{
		Players:    players,
		FetchedAt:  s.now().UTC(),
		Generation: s.generation,
	}
	s.snapshot.Set(snap, s.cfg.SnapshotTTL)
	s.aggregate.Clear()
	s.maxima.Clear()
	hooks := append([]func(RefreshEvent){}, s.hooks...)
	s.mu.Unlock()

	s.metrics.ObserveFetch(metrics.OutcomeOK, elapsed)
	s.metrics.SetSnapshotPlayers(len(players))
	s.logger.Debug("snapshot refreshed", "tag", "storage", "generation", snap.Generation, "players", len(players), "elapsed", elapsed)

	ev := RefreshEvent{Generation: snap.Generation, Players: len(players), FetchedAt: snap.FetchedAt}
	for _, h := range hooks {
		go h(ev)
	}
	return snap, nil
}

// Tables returns a snapshot with the aggregate and maxima tables computed
// from it.
func (s *Store) Tables(ctx context.Context) (Tables, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return Tables{}, err
	}

	agg, err := derive(ctx, s, s.aggregate, "aggregate", s.cfg.AggregateTTL, snap, ranking.ComputeAggregate)
	if err != nil {
		return Tables{}, err
	}
	maxima, err := derive(ctx, s, s.maxima, "maxima", s.cfg.MaximaTTL, snap, ranking.ComputeMaxima)
	if err != nil {
		return Tables{}, err
	}

	return Tables{Snapshot: snap, Aggregate: agg, Maxima: maxima}, nil
}

// derive returns the table cached for snap's generation or computes it.
// Computations are shared per (kind, generation) and only stored while that
// generation is still the newest.
func derive[T any](ctx context.Context, s *Store, slot *cache.Slot[derived[T]], kind string, ttl time.Duration, snap *stats.Snapshot, compute func([]stats.PlayerRecord) T) (T, error) {
	d, ok := slot.Get()
	hit := ok && d.generation == snap.Generation
	s.metrics.CacheLookup(kind, hit)
	if hit {
		return d.table, nil
	}

	key := kind + ":" + strconv.FormatUint(snap.Generation, 10)
	ch := s.group.DoChan(key, func() (any, error) {
		table := compute(snap.Players)
		s.mu.Lock()
		if s.generation == snap.Generation {
			slot.Set(derived[T]{generation: snap.Generation, table: table}, ttl)
		}
		s.mu.Unlock()
		return table, nil
	})

	select {
	case res := <-ch:
		return res.Val.(T), nil
	case <-ctx.Done():
		var zero T
		return zero, upstream.Transport(opTables, ctx.Err())
	}
}

// Invalidate drops all cached state so the next request refetches.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.snapshot.Clear()
	s.aggregate.Clear()
	s.maxima.Clear()
	s.mu.Unlock()

	s.metrics.Invalidation()
	s.logger.Info("cache invalidated", "tag", "storage")
}
