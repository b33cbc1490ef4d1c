package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/scooter-telemetry/internal/retry"
)

// Client wraps paho.mqtt.golang for the telemetry pipeline.
//
// It provides connection management, message publishing, subscription
// handling, and reconnection with exponential backoff. The client
// is created once per process and outlives any scooter relink.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	topics  Topics

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger or WithLogger).
	logger   Logger
	loggerMu sync.RWMutex

	factory       func(*pahomqtt.ClientOptions) pahomqtt.Client
	timer         retry.Timer
	retryInterval time.Duration

	// ctx lives until Close and bounds the reconnect loop.
	ctx          context.Context
	cancel       context.CancelFunc
	reconnecting bool
	reconnectMu  sync.Mutex
	reconnectWG  sync.WaitGroup

	// noStatus disables the retained status topic and its will.
	noStatus bool
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library.
// They should not block for extended periods.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload (a JSON snapshot)
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Option customises Connect.
type Option func(*Client)

// WithLogger sets the logger before the first connect attempt, so startup
// failures are reported.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimer replaces the real-time timer pacing the startup and reconnect
// loops.
func WithTimer(t retry.Timer) Option {
	return func(c *Client) {
		c.timer = t
	}
}

// WithoutStatus turns off the retained online/offline status and the Last
// Will. Subscribe-only clients use it so they never overwrite the status
// of the publishing bridge.
func WithoutStatus() Option {
	return func(c *Client) {
		c.noStatus = true
	}
}

// WithClientFactory replaces pahomqtt.NewClient.
func WithClientFactory(factory func(*pahomqtt.ClientOptions) pahomqtt.Client) Option {
	return func(c *Client) {
		c.factory = factory
	}
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URI, auth, keep-alive)
//  2. Configures Last Will and Testament (LWT) on the status topic
//  3. Attempts the initial connection; while the broker is unreachable it
//     retries every connect_retry_interval seconds, without giving up
//  4. Arms the reconnect loop for later outages: waits double from
//     reconnect_min up to reconnect_max
//  5. Publishes online status to the status topic
//
// Parameters:
//   - ctx: Ends the startup loop when cancelled
//   - cfg: MQTT configuration
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: Only the context error; broker outages are retried
func Connect(ctx context.Context, cfg config.MQTTConfig, opts ...Option) (*Client, error) {
	options := buildClientOptions(cfg)
	topics := Topics{Base: cfg.Topic}

	c := &Client{
		cfg:           cfg,
		options:       options,
		topics:        topics,
		subscriptions: make(map[string]subscription),
		factory:       pahomqtt.NewClient,
		retryInterval: cfg.ConnectRetryDuration(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retryInterval <= 0 {
		c.retryInterval = defaultRetryInterval
	}
	if !c.noStatus {
		configureLWT(options, topics, cfg.Client)
	}

	// Set up connection callbacks
	options.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = c.factory(options)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	attempt := 0
	startup := retry.Policy{Backoff: retry.Fixed, Interval: c.retryInterval}
	err := retry.Do(ctx, startup, func() error {
		attempt++
		return c.connectOnce()
	}, c.retryOptions(func(err error, next time.Duration) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT broker unreachable, retrying",
				"broker", cfg.Broker,
				"attempt", attempt,
				"retry_in", next,
				"error", err,
			)
		}
	})...)
	if err != nil {
		c.cancel()
		c.client.Disconnect(0)
		return nil, err
	}

	c.setConnected(true)

	if logger := c.getLogger(); logger != nil {
		logger.Info("MQTT connected", "broker", cfg.Broker, "client_id", cfg.Client)
	}
	return c, nil
}

func (c *Client) retryOptions(notify func(err error, next time.Duration)) []retry.Option {
	opts := []retry.Option{retry.WithNotify(notify)}
	if c.timer != nil {
		opts = append(opts, retry.WithTimer(c.timer))
	}
	return opts
}

// setConnected records the connection state. The OnConnectHandler callback
// runs asynchronously, so Connect and the reconnect loop set it themselves
// to make IsConnected true as soon as they return.
func (c *Client) setConnected(connected bool) {
	c.connMu.Lock()
	c.connected = connected
	c.connMu.Unlock()
}

// connectOnce runs a single connect attempt.
func (c *Client) connectOnce() error {
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.setConnected(true)

	// Restore subscriptions
	c.restoreSubscriptions()

	// Publish online status
	if !c.noStatus {
		c.publishStatus("online", "")
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}

	c.startReconnect()
}

// startReconnect launches the reconnect loop unless one is running or the
// client is closed.
func (c *Client) startReconnect() {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	if c.reconnecting || c.ctx == nil || c.ctx.Err() != nil {
		return
	}
	c.reconnecting = true
	c.reconnectWG.Add(1)
	go c.reconnect()
}

// reconnect retries the broker with waits doubling from reconnect_min up
// to reconnect_max until it connects or Close is called.
func (c *Client) reconnect() {
	defer c.reconnectWG.Done()
	defer func() {
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
	}()

	minInterval, maxInterval := c.cfg.ReconnectBounds()
	policy := retry.Policy{
		Backoff:     retry.Exponential,
		Interval:    minInterval,
		MaxInterval: maxInterval,
	}

	attempt := 0
	err := retry.Do(c.ctx, policy, func() error {
		attempt++
		return c.connectOnce()
	}, c.retryOptions(func(err error, next time.Duration) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT reconnecting",
				"broker", c.cfg.Broker,
				"attempt", attempt,
				"retry_in", next,
				"error", err,
			)
		}
	})...)
	if err != nil {
		return
	}

	c.setConnected(true)
	if logger := c.getLogger(); logger != nil {
		logger.Info("MQTT reconnected", "broker", c.cfg.Broker, "attempts", attempt)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		// Re-subscribe (ignore errors during reconnection)
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// publishStatus publishes the client's retained status.
func (c *Client) publishStatus(status, reason string) pahomqtt.Token {
	payload := buildStatusPayload(c.cfg.Client, status, reason)
	return c.client.Publish(c.topics.Status(), 1, true, payload)
}

// Topics returns the topic builder for the configured telemetry topic.
func (c *Client) Topics() Topics {
	return c.topics
}

// Close gracefully disconnects from the MQTT broker.
//
// It performs:
//  1. Publishes graceful offline status (different from LWT crash status)
//  2. Waits for pending publish operations
//  3. Disconnects from broker
//
// Returns:
//   - error: If disconnect fails (connection already closed is not an error)
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.reconnectWG.Wait()

	if c.IsConnected() && !c.noStatus {
		token := c.publishStatus("offline", "graceful_shutdown")
		token.WaitTimeout(defaultPublishTimeout)
	}

	// Disconnect with quiesce period for pending operations
	c.client.Disconnect(defaultDisconnectQuiesce)

	c.setConnected(false)

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
