package blacklist

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"feedsnap/internal/config"
	"feedsnap/internal/domain"
	"feedsnap/internal/sink"
)

var ErrNoSnapshot = errors.New("blacklist: no snapshot captured yet")

// RefreshOutcome summarizes one run.
type RefreshOutcome struct {
	Reason        string        `json:"reason"`
	Timestamp     int64         `json:"timestamp"`
	Sources       int           `json:"sources"`
	FailedSources int           `json:"failed_sources"`
	Addresses     int           `json:"addresses"`
	Networks      int           `json:"networks"`
	InvalidTokens int           `json:"invalid_tokens"`
	Duration      time.Duration `json:"duration_ns"`
}

type runConfig struct {
	feeds      []Feed
	downloader Downloader
	workers    int
}

type Manager struct {
	run         atomic.Pointer[runConfig]
	latest      atomic.Pointer[domain.Snapshot]
	refreshOnce singleflight.Group

	sink    sink.Sink
	clock   func() time.Time
	metrics *Metrics
}

type ManagerOption func(*Manager)

func WithSink(s sink.Sink) ManagerOption {
	return func(m *Manager) {
		m.sink = s
	}
}

// WithClock sets the source of the snapshot timestamp.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

func NewManager(feeds []Feed, dl Downloader, workers int, opts ...ManagerOption) *Manager {
	m := &Manager{clock: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	m.Reconfigure(feeds, dl, workers)
	return m
}

// Reconfigure replaces the feeds and download settings used by later runs.
// A run already in progress keeps its settings.
func (m *Manager) Reconfigure(feeds []Feed, dl Downloader, workers int) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	m.run.Store(&runConfig{
		feeds:      append([]Feed(nil), feeds...),
		downloader: dl,
		workers:    workers,
	})
}

// Latest returns the most recent snapshot.
func (m *Manager) Latest() (*domain.Snapshot, error) {
	snap := m.latest.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// StartRefreshRoutine runs a refresh at startup and then whenever the
// configured interval elapses or a reason arrives on triggers. It returns
// when ctx is done.
func (m *Manager) StartRefreshRoutine(ctx context.Context, triggers <-chan string) {
	if ctx == nil {
		ctx = context.Background()
	}

	updates := config.RefreshIntervalUpdates()
	current := <-updates

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	resetTicker := func(interval time.Duration) {
		if ticker != nil {
			ticker.Stop()
			drainTicker(ticker)
			ticker, tick = nil, nil
		}
		if interval > 0 {
			ticker = time.NewTicker(interval)
			tick = ticker.C
		}
	}
	resetTicker(current)
	defer resetTicker(0)

	m.RunRefresh(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			m.RunRefresh(ctx, "scheduled")
		case reason, ok := <-triggers:
			if !ok {
				triggers = nil
				continue
			}
			m.RunRefresh(ctx, reason)
		case newInterval := <-updates:
			if newInterval == current {
				continue
			}
			log.Info("Refresh interval changed", "from", current, "to", newInterval)
			current = newInterval
			resetTicker(current)
		}
	}
}

// RunRefresh triggers a refresh immediately and logs its outcome.
func (m *Manager) RunRefresh(ctx context.Context, reason string) {
	outcome, err := m.Refresh(ctx, reason)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Feed refresh canceled", "reason", reason)
		} else {
			log.Error("Feed refresh failed", "reason", reason, "error", err)
		}
		return
	}
	if outcome == nil {
		return
	}

	log.Info("Feed refresh completed",
		"reason", reason,
		"sources", outcome.Sources,
		"failed_sources", outcome.FailedSources,
		"addresses", outcome.Addresses,
		"networks", outcome.Networks,
		"duration", outcome.Duration.Round(time.Millisecond),
	)
}

func drainTicker(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
		default:
			return
		}
	}
}

// Refresh downloads and normalizes every feed, stores the snapshot as the
// latest one, and hands it to the sink. Concurrent calls share one run.
// The outcome is returned even when the sink fails.
func (m *Manager) Refresh(ctx context.Context, reason string) (*RefreshOutcome, error) {
	result, err, shared := m.refreshOnce.Do("refresh", func() (interface{}, error) {
		return m.doRefresh(ctx, reason)
	})
	if shared {
		log.Debug("Feed refresh coalesced", "reason", reason)
	}
	outcome, _ := result.(*RefreshOutcome)
	return outcome, err
}

func (m *Manager) doRefresh(ctx context.Context, reason string) (*RefreshOutcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	run := m.run.Load()
	started := time.Now()

	log.Info("Downloading feeds...", "sources", len(run.feeds), "workers", run.workers, "reason", reason)
	raw := Collect(ctx, run.feeds, run.downloader, run.workers)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for _, feed := range run.feeds {
		res := raw[feed.Source.Name]
		if res.Failed {
			failed++
		}
		m.metrics.observeFetch(feed.Source.Name, res)
	}

	log.Info("Processing feeds...")
	feeds, invalid := Normalize(raw)
	snap := Aggregate(feeds, m.clock())
	m.latest.Store(snap)

	addresses, networks := snap.Counts()
	outcome := &RefreshOutcome{
		Reason:        reason,
		Timestamp:     snap.Timestamp,
		Sources:       len(run.feeds),
		FailedSources: failed,
		Addresses:     addresses,
		Networks:      networks,
		Duration:      time.Since(started),
	}
	for name, n := range invalid {
		outcome.InvalidTokens += n
		if n > 0 {
			log.Debug("Dropped unparseable tokens", "name", name, "count", n)
		}
	}
	m.metrics.observeSnapshot(snap, invalid, outcome.Duration.Seconds())

	if m.sink != nil {
		if err := m.sink.Write(ctx, snap); err != nil {
			return outcome, fmt.Errorf("write snapshot: %w", err)
		}
	}

	log.Info("Saved snapshot", "feeds", len(snap.Feeds), "timestamp", snap.Timestamp)
	return outcome, nil
}
