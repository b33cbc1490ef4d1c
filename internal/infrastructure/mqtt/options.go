package mqtt

import (
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for one connect attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultRetryInterval paces the manual connect loop at startup.
	defaultRetryInterval = 3 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// QoSAtMostOnce is used for telemetry: samples are frequent and losing
	// one is acceptable.
	QoSAtMostOnce byte = 0
)

// buildClientOptions creates paho MQTT options from the broker config.
//
// This configures:
//   - Broker URI and client id
//   - Authentication credentials (if provided)
//   - Keep-alive interval
//   - Clean session mode
//
// Neither the initial connect nor later reconnects retry inside paho: its
// reconnect floor is fixed at one second. Client runs both loops itself.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURI(cfg.Broker))
	opts.SetClientID(cfg.Client)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(cfg.KeepAliveDuration())

	return opts
}

// brokerURI accepts both full URIs and bare host:port pairs.
func brokerURI(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The broker publishes the will on the status topic if the client vanishes
// without a clean disconnect, so subscribers can tell a dead bridge from a
// parked scooter.
//
// QoS: 1, Retained: true (new subscribers see last status)
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	opts.SetWill(topics.Status(), buildStatusPayload(clientID, "offline", "unexpected_disconnect"), 1, true)
}

// buildStatusPayload creates the JSON payload for status messages.
func buildStatusPayload(clientID, status, reason string) string {
	if reason == "" {
		return fmt.Sprintf(
			`{"status":"%s","client_id":"%s","timestamp":"%s"}`,
			status, clientID, time.Now().UTC().Format(time.RFC3339),
		)
	}
	return fmt.Sprintf(
		`{"status":"%s","client_id":"%s","reason":"%s","timestamp":"%s"}`,
		status, clientID, reason, time.Now().UTC().Format(time.RFC3339),
	)
}
