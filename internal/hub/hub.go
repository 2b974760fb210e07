// Package hub owns the set of live subscriber connections and fans encoded
// cycle deltas out to all of them. Committing a cycle and registering a new
// subscriber take the same lock, so a joining connection either sees a cycle
// fully committed in its replay or receives it as deltas, never halves.
package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-results/dashboard/internal/ingest"
	"live-results/dashboard/internal/model"
	"live-results/dashboard/internal/net/proto"
	"live-results/dashboard/internal/state"
)

const (
	writeWait     = 10 * time.Second
	sendQueueSize = 256
)

// Hub broadcasts to subscribers and performs full-state replay on join.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*subscriber
	store  *state.Store
	status proto.Status
	logger *zap.Logger

	cycles  atomic.Uint64
	sent    atomic.Uint64
	dropped atomic.Uint64
}

type subscriber struct {
	id   string
	conn *websocket.Conn
	// outbox carries the replay frames; the write loop drains it before
	// touching the live queue so replay always precedes newer deltas.
	outbox [][]byte
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// New creates a hub bound to the server state store. The status message is
// sent verbatim to every new connection.
func New(store *state.Store, status proto.Status, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]*subscriber),
		store:  store,
		status: status,
		logger: logger,
	}
}

// Publish commits the cycle's snapshot and pushes its deltas to every
// subscriber: distance metadata first, then competitor updates.
func (h *Hub) Publish(cycle *ingest.Cycle) {
	frames := make([][]byte, 0, 1+len(cycle.Distances)+len(cycle.Competitors))
	if cycle.NameChanged {
		if frame, err := proto.EncodeEventName(cycle.Name); err == nil {
			frames = append(frames, frame)
		} else {
			h.logger.Error("encode event_name", zap.Error(err))
		}
	}
	for _, dist := range cycle.Distances {
		frame, err := proto.EncodeDistanceMeta(dist)
		if err != nil {
			h.logger.Error("encode distance_meta", zap.String("distance", dist.ID), zap.Error(err))
			continue
		}
		frames = append(frames, frame)
	}
	for _, comp := range cycle.Competitors {
		frame, err := proto.EncodeCompetitorUpdate(comp)
		if err != nil {
			h.logger.Error("encode competitor_update", zap.String("competitor", comp.ID), zap.Error(err))
			continue
		}
		frames = append(frames, frame)
	}

	h.mu.Lock()
	h.store.Commit(cycle.Snapshot)
	h.fanOutLocked(frames)
	h.mu.Unlock()

	h.cycles.Add(1)
	h.logger.Info("cycle published",
		zap.Int("distance_updates", len(cycle.Distances)),
		zap.Int("competitor_updates", len(cycle.Competitors)),
	)
}

// BroadcastError notifies every subscriber that an ingestion cycle was
// rejected. The committed state is untouched.
func (h *Hub) BroadcastError(reason string) {
	frame, err := proto.EncodeError(reason)
	if err != nil {
		h.logger.Error("encode error broadcast", zap.Error(err))
		return
	}
	h.mu.Lock()
	h.fanOutLocked([][]byte{frame})
	h.mu.Unlock()
}

// fanOutLocked queues frames on every subscriber. A subscriber whose queue is
// full is dropped rather than retried; it can reconnect and replay.
func (h *Hub) fanOutLocked(frames [][]byte) {
subscribers:
	for id, sub := range h.subs {
		for _, frame := range frames {
			select {
			case sub.send <- frame:
			default:
				h.logger.Warn("subscriber queue full, dropping", zap.String("subscriber", id))
				delete(h.subs, id)
				sub.close()
				h.dropped.Add(1)
				continue subscribers
			}
		}
	}
}

// Subscribe registers a connection and queues the full replay: status, event
// name, metadata for every known distance, then every competitor record —
// including no-time start-list entries and complete lap histories. Returns
// the subscriber id.
func (h *Hub) Subscribe(conn *websocket.Conn) string {
	sub := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	sub.outbox = h.replayFramesLocked()
	h.subs[sub.id] = sub
	count := len(h.subs)
	h.mu.Unlock()

	go h.writeLoop(sub)
	h.logger.Info("subscriber connected", zap.String("subscriber", sub.id), zap.Int("active", count))
	return sub.id
}

func (h *Hub) replayFramesLocked() [][]byte {
	frames := make([][]byte, 0, 16)
	if frame, err := proto.EncodeStatus(h.status); err == nil {
		frames = append(frames, frame)
	}

	snap := h.store.Current()
	if snap == nil {
		return frames
	}
	if frame, err := proto.EncodeEventName(snap.Name); err == nil {
		frames = append(frames, frame)
	}
	for _, dist := range ingest.OrderedDistances(snap) {
		frame, err := proto.EncodeDistanceMeta(dist)
		if err != nil {
			h.logger.Error("encode replay distance", zap.String("distance", dist.ID), zap.Error(err))
			continue
		}
		frames = append(frames, frame)
	}
	for _, dist := range ingest.OrderedDistances(snap) {
		comps := make([]*model.Competitor, 0, len(snap.Competitors[dist.ID]))
		for _, comp := range snap.Competitors[dist.ID] {
			comps = append(comps, comp)
		}
		for _, comp := range model.SortCompetitors(comps) {
			frame, err := proto.EncodeCompetitorUpdate(comp)
			if err != nil {
				h.logger.Error("encode replay competitor", zap.String("competitor", comp.ID), zap.Error(err))
				continue
			}
			frames = append(frames, frame)
		}
	}
	return frames
}

// Unsubscribe removes a subscriber and closes its connection.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	count := len(h.subs)
	h.mu.Unlock()

	if ok {
		sub.close()
		h.logger.Info("subscriber disconnected", zap.String("subscriber", id), zap.Int("active", count))
	}
}

// Close drops every subscriber, used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	for _, frame := range sub.outbox {
		if !h.write(sub, frame) {
			return
		}
	}
	sub.outbox = nil

	for {
		select {
		case frame := <-sub.send:
			if !h.write(sub, frame) {
				return
			}
		case <-sub.done:
			return
		}
	}
}

func (h *Hub) write(sub *subscriber, frame []byte) bool {
	sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := sub.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		h.logger.Warn("send failed, dropping subscriber",
			zap.String("subscriber", sub.id), zap.Error(err))
		h.Unsubscribe(sub.id)
		return false
	}
	h.sent.Add(1)
	return true
}

// Diagnostics reports fan-out counters for the diagnostics endpoint.
type Diagnostics struct {
	Subscribers        int    `json:"subscribers"`
	Cycles             uint64 `json:"cycles"`
	MessagesSent       uint64 `json:"messages_sent"`
	DroppedSubscribers uint64 `json:"dropped_subscribers"`
}

// Diagnostics returns a point-in-time counter snapshot.
func (h *Hub) DiagnosticsSnapshot() Diagnostics {
	h.mu.Lock()
	count := len(h.subs)
	h.mu.Unlock()

	return Diagnostics{
		Subscribers:        count,
		Cycles:             h.cycles.Load(),
		MessagesSent:       h.sent.Load(),
		DroppedSubscribers: h.dropped.Load(),
	}
}
