package viewer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"live-results/dashboard/internal/net/proto"
)

const inboxSize = 1024

// Scheduler drains decoded messages into the store in bounded render cycles:
// each cycle applies queued messages until the inbox empties or the time
// budget runs out, then lets pending group flushes run. Leftover messages
// stay queued for the next cycle, so a burst never starves rendering.
type Scheduler struct {
	store  *Store
	inbox  chan proto.Envelope
	budget time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewScheduler builds a scheduler over the given store.
func NewScheduler(store *Store, budget time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		inbox:  make(chan proto.Envelope, inboxSize),
		budget: budget,
		logger: logger,
		now:    time.Now,
	}
}

// Enqueue hands one decoded message to the scheduler. It blocks when the
// inbox is full, pushing backpressure onto the transport's read loop.
func (s *Scheduler) Enqueue(env proto.Envelope) {
	s.inbox <- env
}

// Run processes messages until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	flush := time.NewTimer(time.Hour)
	flush.Stop()
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.inbox:
			s.Cycle(env)
		case <-flush.C:
		}

		if next, ok := s.store.FlushGroups(s.now()); ok {
			d := next.Sub(s.now())
			if d < time.Millisecond {
				d = time.Millisecond
			}
			flush.Stop()
			flush.Reset(d)
		}
	}
}

// Cycle applies first and then keeps draining the inbox until it empties or
// the budget elapses. It returns how many messages were applied.
func (s *Scheduler) Cycle(first proto.Envelope) int {
	deadline := s.now().Add(s.budget)
	applied := 0
	env := first
	for {
		if err := s.store.Apply(env); err != nil {
			s.logger.Warn("dropping message", zap.String("type", env.Type), zap.Error(err))
		}
		applied++

		if !s.now().Before(deadline) {
			return applied
		}
		select {
		case env = <-s.inbox:
		default:
			return applied
		}
	}
}
