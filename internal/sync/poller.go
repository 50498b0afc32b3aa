// Package sync polls supplementary inbound sources and feeds what they
// find into the notification dispatcher.
package sync

import (
	"context"
	"errors"
	"slices"
	"strings"
	gosync "sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/nhle/frontdesk-notify/internal/events"
	"github.com/nhle/frontdesk-notify/internal/model"
	"github.com/nhle/frontdesk-notify/internal/notify"
	"github.com/nhle/frontdesk-notify/internal/source"
)

// SyncState represents the current state of a source poll.
type SyncState string

const (
	SyncIdle    SyncState = "idle"
	SyncRunning SyncState = "running"
	SyncError   SyncState = "error"
)

// SyncStatus holds the poll state for a single source.
type SyncStatus struct {
	SourceID   string
	SourceType source.SourceType
	State      SyncState
	LastSync   time.Time
	Error      error
}

// Ingester accepts events found by a source.
type Ingester interface {
	Ingest(ctx context.Context, raw notify.RawEvent) model.Notification
}

// CursorStore persists each source's resume cursor.
type CursorStore interface {
	Cursor(ctx context.Context, sourceID string) (string, error)
	SetCursor(ctx context.Context, sourceID, cursor string) error
}

const (
	// fetchTimeout is the maximum time allowed for a single fetch operation.
	fetchTimeout = 30 * time.Second

	defaultInterval = 120 * time.Second
)

// Options configures a Poller.
type Options struct {
	Clock  clock.Clock
	Logger *logrus.Entry
	Bus    *events.Bus
}

// sourceEntry holds a registered source and its polling state.
type sourceEntry struct {
	src      source.Source
	interval time.Duration
	trigger  chan struct{}
}

// Poller orchestrates background polling of registered sources.
type Poller struct {
	ingest  Ingester
	cursors CursorStore
	clock   clock.Clock
	log     *logrus.Entry
	bus     *events.Bus

	mu       gosync.Mutex
	sources  []*sourceEntry
	statuses map[string]*SyncStatus
	cancel   context.CancelFunc
	wg       gosync.WaitGroup
}

// New creates a new Poller.
func New(ingest Ingester, cursors CursorStore, opts Options) *Poller {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Poller{
		ingest:   ingest,
		cursors:  cursors,
		clock:    opts.Clock,
		log:      opts.Logger.WithField("component", "poller"),
		bus:      opts.Bus,
		statuses: make(map[string]*SyncStatus),
	}
}

// RegisterSource adds a source polled every interval. It must be called
// before Start.
func (p *Poller) RegisterSource(src source.Source, interval time.Duration) {
	if interval <= 0 {
		interval = defaultInterval
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sources = append(p.sources, &sourceEntry{
		src:      src,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	})
	p.statuses[src.ID()] = &SyncStatus{
		SourceID:   src.ID(),
		SourceType: src.Type(),
		State:      SyncIdle,
	}
}

// Start launches one polling goroutine per source. Calling Start on a
// running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)

	for _, entry := range p.sources {
		entry := entry
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.pollSource(ctx, entry)
		}()
	}
	p.log.WithField("sources", len(p.sources)).Info("poller started")
}

// Stop halts all polling goroutines and waits for them to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
}

// RefreshAll triggers an immediate poll of all registered sources.
func (p *Poller) RefreshAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.sources {
		select {
		case entry.trigger <- struct{}{}:
		default:
			// A poll is already pending.
		}
	}
}

// GetStatuses returns the current status of every source, ordered by ID.
func (p *Poller) GetStatuses() []SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		statuses = append(statuses, *s)
	}
	slices.SortFunc(statuses, func(a, b SyncStatus) int {
		return strings.Compare(a.SourceID, b.SourceID)
	})
	return statuses
}

// pollSource runs the polling loop for a single source.
func (p *Poller) pollSource(ctx context.Context, entry *sourceEntry) {
	ticker := p.clock.Ticker(entry.interval)
	defer ticker.Stop()

	p.fetchAndIngest(ctx, entry.src)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetchAndIngest(ctx, entry.src)
		case <-entry.trigger:
			p.fetchAndIngest(ctx, entry.src)
		}
	}
}

// fetchAndIngest performs a single poll: it fetches events past the
// stored cursor, ingests them, then advances the cursor.
func (p *Poller) fetchAndIngest(ctx context.Context, src source.Source) {
	id := src.ID()
	log := p.log.WithField("source", id)
	p.setStatus(id, SyncRunning, nil)

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	cursor, err := p.cursors.Cursor(ctx, id)
	if err != nil {
		log.WithError(err).Warn("loading source cursor")
		p.setStatus(id, SyncError, err)
		return
	}

	result, err := src.FetchSince(ctx, cursor)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			p.setStatus(id, SyncIdle, nil)
			return
		}
		if source.IsAuthError(err) {
			log.WithError(err).Error("source credentials rejected; run login to update them")
		} else {
			log.WithError(err).Warn("polling source")
		}
		p.setStatus(id, SyncError, err)
		return
	}

	for _, raw := range result.Events {
		p.ingest.Ingest(ctx, raw)
	}

	if result.Cursor != cursor {
		if err := p.cursors.SetCursor(ctx, id, result.Cursor); err != nil {
			log.WithError(err).Warn("saving source cursor")
			p.setStatus(id, SyncError, err)
			return
		}
	}

	if len(result.Events) > 0 {
		log.WithField("count", len(result.Events)).Info("ingested source events")
	}
	p.setStatus(id, SyncIdle, nil)
}

// setStatus updates the status of a source and announces it.
func (p *Poller) setStatus(id string, state SyncState, err error) {
	p.mu.Lock()
	status, ok := p.statuses[id]
	if ok {
		status.State = state
		status.Error = err
		if state == SyncIdle && err == nil {
			status.LastSync = p.clock.Now()
		}
	}
	p.mu.Unlock()

	if ok {
		p.bus.Publish(events.SourceStatusChanged{SourceID: id, Status: string(state), Err: err})
	}
}
