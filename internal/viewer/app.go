package viewer

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"live-results/dashboard/internal/config"
	"live-results/dashboard/internal/logging"
	"live-results/dashboard/internal/viewer/localdb"
)

const reportEvery = 5 * time.Second

// Run wires the viewer together and blocks until the process is signalled:
// local state is loaded first so standings show before the first connection,
// then the transport and scheduler run until shutdown.
func Run(ctx context.Context) error {
	cfg := config.LoadViewer()
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var persist localDB
	var stored *localdb.Stored
	if cfg.StatePath != "" {
		db, err := localdb.Open(cfg.StatePath)
		if err != nil {
			return err
		}
		defer db.Close()
		persist = db
		if stored, err = db.Load(); err != nil {
			logger.Warn("load persisted state", zap.Error(err))
			stored = nil
		}
	}

	store := NewStore(Settings{
		GroupGapSeconds: cfg.GroupGapSeconds,
		MaxGroups:       cfg.MaxGroups,
	}, persist, logger)

	if stored != nil && (len(stored.Distances) > 0 || stored.EventName != "") {
		store.LoadLocal(NewStoredState(stored.EventName, stored.Distances, stored.Competitors))
		logger.Info("restored persisted state",
			zap.String("event", stored.EventName),
			zap.Int("distances", len(stored.Distances)),
			zap.Int("competitors", len(stored.Competitors)))
	}

	sched := NewScheduler(store, cfg.RenderBudget, logger)
	transport := NewTransport(cfg.ServerURL, cfg.ReconnectEvery, sched, store, logger)

	go sched.Run(ctx)
	go transport.Run(ctx)

	report := time.NewTicker(reportEvery)
	defer report.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("viewer shutting down")
			return nil
		case <-report.C:
			logStandings(store, logger)
		}
	}
}

// logStandings writes one line per live distance so the viewer is usable
// from a terminal without any UI attached.
func logStandings(store *Store, logger *zap.Logger) {
	for _, dist := range store.Distances() {
		if !dist.IsLive {
			continue
		}
		rows := store.Standings(dist.ID)
		fields := []zap.Field{
			zap.String("event", store.EventName()),
			zap.String("distance", dist.Name),
			zap.Int("competitors", len(rows)),
		}
		if len(rows) > 0 {
			leader := rows[0]
			fields = append(fields,
				zap.String("leader", leader.Name),
				zap.Int("laps", leader.LapsCount),
				zap.String("time", leader.FormattedTotalTime))
		}
		if dist.IsMassStart {
			fields = append(fields, zap.Int("groups", len(store.Groups(dist.ID))))
		}
		if id := store.RecentlyUpdated(dist.ID); id != "" {
			fields = append(fields, zap.String("just_crossed", id))
		}
		logger.Info("standings", fields...)
	}
}
