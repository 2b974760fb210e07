// Package poll drives the ingestion loop: fetch → normalize → diff → commit →
// broadcast, once per configured interval. The loop is the sole writer of the
// server state store and survives any individual cycle failure.
package poll

import (
	"context"
	"time"

	"go.uber.org/zap"

	"live-results/dashboard/internal/hub"
	"live-results/dashboard/internal/ingest"
	"live-results/dashboard/internal/source"
	"live-results/dashboard/internal/state"
)

// Poller runs the periodic ingestion cycle.
type Poller struct {
	fetcher  *source.Fetcher
	differ   *ingest.Differ
	store    *state.Store
	hub      *hub.Hub
	interval time.Duration
	logger   *zap.Logger
}

// New assembles a poller. A nil logger is replaced with a no-op one.
func New(fetcher *source.Fetcher, store *state.Store, h *hub.Hub, interval time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		fetcher:  fetcher,
		differ:   ingest.NewDiffer(logger),
		store:    store,
		hub:      h,
		interval: interval,
		logger:   logger,
	}
}

// Run polls until the context is cancelled. The first cycle fires
// immediately so a fresh server has state to replay as soon as possible.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poll loop started",
		zap.String("url", p.fetcher.URL()),
		zap.Duration("interval", p.interval),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poll loop stopped")
			return
		case <-ticker.C:
			p.Cycle(ctx)
		}
	}
}

// Cycle performs one fetch→normalize→diff→commit→broadcast pass. Any failure
// leaves the store untouched and broadcasts an error to subscribers; the next
// tick tries again.
func (p *Poller) Cycle(ctx context.Context) {
	raw, err := p.fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("snapshot fetch failed", zap.Error(err))
		p.hub.BroadcastError("timing source unavailable")
		return
	}

	curr, err := ingest.Normalize(raw)
	if err != nil {
		p.logger.Warn("snapshot rejected", zap.Error(err))
		p.hub.BroadcastError(err.Error())
		return
	}

	cycle := p.differ.Diff(p.store.Current(), curr)
	if cycle.Empty() && p.store.Current() != nil {
		return
	}
	p.hub.Publish(cycle)
}
