package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/scooter-telemetry/internal/history"
	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/scooter-telemetry/internal/telemetry"
)

// storeTimeout bounds the history write of a single snapshot.
const storeTimeout = 5 * time.Second

// Subscriber is the broker side of the ingestor. mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	HasSubscription(topic string) bool
}

// Store persists snapshots. history.SQLRepository satisfies it.
type Store interface {
	Insert(ctx context.Context, s telemetry.Snapshot) error
}

// TimeSeries is the optional second sink. influxdb.Client satisfies it.
type TimeSeries interface {
	WriteSnapshot(topic string, s telemetry.Snapshot) error
}

// Broadcaster relays snapshots to live clients. api.Hub satisfies it.
type Broadcaster interface {
	Broadcast(channel string, payload any) int
}

// Logger is the logging contract used by the ingestor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the collaborators of an Ingestor. Store is required.
type Deps struct {
	Store      Store
	TimeSeries TimeSeries  // optional
	Hub        Broadcaster // optional
	Channel    string      // hub channel, "telemetry" when empty
	Metrics    *Metrics    // optional; unregistered collectors when nil
	Logger     Logger      // optional
}

// Ingestor consumes snapshots from one topic.
type Ingestor struct {
	deps Deps

	mu     sync.Mutex
	ctx    context.Context
	sub    Subscriber
	topic  string
	active bool
}

// New creates an Ingestor.
func New(deps Deps) (*Ingestor, error) {
	if deps.Store == nil {
		return nil, ErrNoStore
	}
	if deps.Channel == "" {
		deps.Channel = "telemetry"
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	return &Ingestor{deps: deps, ctx: context.Background()}, nil
}

// Start subscribes to topic at QoS 0. Writes triggered by received
// messages run under ctx; cancelling it aborts in-flight history writes.
func (i *Ingestor) Start(ctx context.Context, sub Subscriber, topic string) error {
	i.mu.Lock()
	i.ctx = ctx
	i.sub = sub
	i.topic = topic
	i.mu.Unlock()

	if err := sub.Subscribe(topic, mqtt.QoSAtMostOnce, i.handleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	i.mu.Lock()
	i.active = true
	i.mu.Unlock()

	i.deps.Logger.Info("ingest subscribed", "topic", topic)
	return nil
}

// Stop unsubscribes from the topic.
func (i *Ingestor) Stop() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.active {
		return ErrNotStarted
	}
	i.active = false
	if err := i.sub.Unsubscribe(i.topic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", i.topic, err)
	}
	return nil
}

// HealthCheck reports whether the ingestor is started and its topic is
// still registered with the subscriber.
func (i *Ingestor) HealthCheck(_ context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.active {
		return ErrNotStarted
	}
	if !i.sub.HasSubscription(i.topic) {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, i.topic)
	}
	return nil
}

// handleMessage adapts Handle to mqtt.MessageHandler.
func (i *Ingestor) handleMessage(topic string, payload []byte) error {
	i.mu.Lock()
	ctx := i.ctx
	i.mu.Unlock()
	return i.Handle(ctx, topic, payload)
}

// Handle processes one received payload. Only storage failures are returned
// as errors; a malformed payload or an already-stored snapshot is not an
// error for the caller.
func (i *Ingestor) Handle(ctx context.Context, topic string, payload []byte) error {
	_, err := i.process(ctx, topic, payload)
	return err
}

// process returns the result label recorded for the payload.
func (i *Ingestor) process(ctx context.Context, topic string, payload []byte) (string, error) {
	log := i.deps.Logger

	snap, err := telemetry.Decode(payload)
	if err != nil {
		log.Warn("dropping malformed payload", "topic", topic, "bytes", len(payload), "error", err)
		return i.count(ResultMalformed), nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	err = i.deps.Store.Insert(storeCtx, snap)
	cancel()
	switch {
	case errors.Is(err, history.ErrExists):
		log.Info("entry already exists", "timestamp", snap.Timestamp)
		return i.count(ResultDuplicate), nil
	case errors.Is(err, telemetry.ErrMalformed):
		log.Warn("dropping snapshot with unusable timestamp", "timestamp", snap.Timestamp, "error", err)
		return i.count(ResultMalformed), nil
	case err != nil:
		log.Error("storing snapshot failed", "timestamp", snap.Timestamp, "error", err)
		i.count(ResultFailed)
		return ResultFailed, fmt.Errorf("storing snapshot %s: %w", snap.Timestamp, err)
	}

	if i.deps.TimeSeries != nil {
		if err := i.deps.TimeSeries.WriteSnapshot(topic, snap); err != nil {
			i.deps.Metrics.TimeSeriesErrors.Inc()
			log.Warn("time-series write failed", "timestamp", snap.Timestamp, "error", err)
		}
	}

	if i.deps.Hub != nil {
		if n := i.deps.Hub.Broadcast(i.deps.Channel, snap); n > 0 {
			i.deps.Metrics.Broadcasts.Add(float64(n))
		}
	}

	log.Debug("snapshot ingested", "timestamp", snap.Timestamp, "gps_fix", !snap.GPS.IsNullIsland())
	return i.count(ResultStored), nil
}

func (i *Ingestor) count(result string) string {
	i.deps.Metrics.Messages.WithLabelValues(result).Inc()
	return result
}
