package viewer

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-results/dashboard/internal/net/proto"
)

// Transport dials the results server and feeds decoded frames to the
// scheduler. On any failure it waits a fixed interval and redials; the replay
// the server sends on reconnect reconciles whatever was missed.
type Transport struct {
	url    string
	retry  time.Duration
	sched  *Scheduler
	store  *Store
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewTransport builds a transport for the given websocket URL.
func NewTransport(url string, retry time.Duration, sched *Scheduler, store *Store, logger *zap.Logger) *Transport {
	return &Transport{
		url:    url,
		retry:  retry,
		sched:  sched,
		store:  store,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}
}

// Run keeps a connection alive until the context is cancelled.
func (t *Transport) Run(ctx context.Context) {
	for {
		conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn("connect failed",
				zap.String("url", t.url),
				zap.Duration("retry", t.retry),
				zap.Error(err))
			if !t.sleep(ctx) {
				return
			}
			continue
		}

		t.store.SetConnected(true)
		t.logger.Info("connected", zap.String("url", t.url))
		t.readLoop(ctx, conn)
		t.store.SetConnected(false)

		if ctx.Err() != nil {
			return
		}
		t.logger.Info("connection lost", zap.Duration("retry", t.retry))
		if !t.sleep(ctx) {
			return
		}
	}
}

func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Warn("read failed", zap.Error(err))
			}
			return
		}
		env, err := proto.Decode(payload)
		if err != nil {
			t.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		t.sched.Enqueue(env)
	}
}

func (t *Transport) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(t.retry):
		return true
	}
}
