// Package viewer implements C12: fanning out significant telemetry and
// mission events to websocket subscribers, bounded in both connection
// count and outbound queue depth so a slow or stalled viewer can never
// back-pressure ingestion.
package viewer

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/falconmind/clustercenter/internal/ingest"
	"github.com/falconmind/clustercenter/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	defaultMaxConnections  = 100
	defaultMaxQueueSize    = 1000
	defaultHeartbeatPeriod = 30 * time.Second
	writeTimeout           = 5 * time.Second
	closeCodeAtCapacity    = websocket.StatusCode(4001)
)

// Event is one message pushed to every connected viewer.
type Event struct {
	Type      string          `json:"type"`
	UAVID     string          `json:"uav_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

type subscriber struct {
	id   string
	conn *websocket.Conn
}

// Broadcaster is the C12 fan-out hub.
type Broadcaster struct {
	logger            *zap.Logger
	maxConnections    int
	maxQueueSize      int
	heartbeatInterval time.Duration

	mu   sync.Mutex
	subs map[string]*subscriber

	queue        chan []byte
	droppedCount uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Broadcaster with the given caps; zero values fall back
// to §4.10's defaults.
func New(logger *zap.Logger, maxConnections, maxQueueSize int, heartbeatInterval time.Duration) *Broadcaster {
	if maxConnections <= 0 {
		maxConnections = defaultMaxConnections
	}
	if maxQueueSize <= 0 {
		maxQueueSize = defaultMaxQueueSize
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatPeriod
	}
	return &Broadcaster{
		logger:            logger,
		maxConnections:    maxConnections,
		maxQueueSize:      maxQueueSize,
		heartbeatInterval: heartbeatInterval,
		subs:              make(map[string]*subscriber),
		queue:             make(chan []byte, maxQueueSize),
		stopCh:            make(chan struct{}),
	}
}

// Start begins the single background fan-out worker.
func (b *Broadcaster) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.fanOutLoop(ctx)
}

// Stop halts the fan-out worker and closes every subscriber.
func (b *Broadcaster) Stop() {
	close(b.stopCh)
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		_ = s.conn.Close(websocket.StatusNormalClosure, "server shutting down")
	}
}

// ServeHTTP upgrades r to a websocket connection and registers it as a
// subscriber; once maxConnections subscribers are registered, the new
// connection is closed right after the upgrade with status 4001. Blocks,
// running the per-connection heartbeat, until the connection closes.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	if len(b.subs) >= b.maxConnections {
		b.mu.Unlock()
		_ = conn.Close(closeCodeAtCapacity, "max connections reached")
		return
	}
	sub := &subscriber{id: uuid.NewString(), conn: conn}
	b.subs[sub.id] = sub
	b.mu.Unlock()
	metrics.ViewerConnections.Inc()

	b.logger.Info("viewer connected", zap.String("subscriber_id", sub.id))
	b.heartbeatLoop(r.Context(), sub)
}

func (b *Broadcaster) heartbeatLoop(ctx context.Context, sub *subscriber) {
	ticker := time.NewTicker(b.heartbeatInterval)
	defer ticker.Stop()
	defer b.reap(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := sub.conn.Ping(pctx)
			cancel()
			if err != nil {
				b.logger.Info("viewer heartbeat failed, reaping", zap.String("subscriber_id", sub.id), zap.Error(err))
				return
			}
		}
	}
}

func (b *Broadcaster) reap(sub *subscriber) {
	b.mu.Lock()
	_, existed := b.subs[sub.id]
	delete(b.subs, sub.id)
	b.mu.Unlock()
	if existed {
		metrics.ViewerConnections.Dec()
	}
	_ = sub.conn.Close(websocket.StatusNormalClosure, "")
}

// Broadcast implements ingest.Broadcaster: it enqueues a telemetry
// update, dropping the newest message (and counting the drop) if the
// queue is already full.
func (b *Broadcaster) Broadcast(ctx context.Context, uavID string, t ingest.Telemetry) {
	payload, err := json.Marshal(t)
	if err != nil {
		return
	}
	b.enqueue(Event{Type: "telemetry", UAVID: uavID, Payload: payload, Timestamp: t.Timestamp})
}

// BroadcastMissionEvent pushes a mission/coordination event (from C4/C7)
// to every subscriber.
func (b *Broadcaster) BroadcastMissionEvent(eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	b.enqueue(Event{Type: eventType, Payload: data, Timestamp: time.Now()})
}

func (b *Broadcaster) enqueue(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	select {
	case b.queue <- data:
	default:
		atomic.AddUint64(&b.droppedCount, 1)
	}
}

// DroppedCount reports how many outbound messages were dropped because
// the queue was full.
func (b *Broadcaster) DroppedCount() uint64 {
	return atomic.LoadUint64(&b.droppedCount)
}

// ConnectionCount reports the current subscriber count.
func (b *Broadcaster) ConnectionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) fanOutLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		case data := <-b.queue:
			b.writeToAll(ctx, data)
		}
	}
}

func (b *Broadcaster) writeToAll(ctx context.Context, data []byte) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := s.conn.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			b.logger.Info("viewer write failed, reaping", zap.String("subscriber_id", s.id), zap.Error(err))
			b.reap(s)
		}
	}
}
