// Package mqtt provides MQTT client connectivity for the telemetry pipeline.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - A startup loop that waits out a broker outage at boot
//   - Best-effort QoS 0 publishing of telemetry snapshots
//   - Topic subscriptions for the ingest service
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The scooter bridge publishes one snapshot per send interval on the
// configured topic. The ingest service subscribes to the same topic and
// stores what it receives.
//
//	scooterbridge → MQTT Broker → telemetry-ingest
//
// The broker session is its own failure domain: it is created once, is
// never torn down by a scooter relink, and reconnects on its own through
// paho's auto-reconnect. The bridge only decides when to publish.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT, mqtt.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishBestEffort(client.Topics().Telemetry(), payload)
package mqtt
