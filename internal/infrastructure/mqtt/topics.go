package mqtt

// Topics builds the topic names derived from the configured telemetry topic.
//
//	topics := mqtt.Topics{Base: "scooter/telemetry"}
//	topics.Telemetry() // "scooter/telemetry"
//	topics.Status()    // "scooter/telemetry/status"
type Topics struct {
	Base string
}

// Telemetry returns the topic snapshots are published on.
func (t Topics) Telemetry() string {
	return t.Base
}

// Status returns the retained online/offline topic of the publishing client.
func (t Topics) Status() string {
	return t.Base + "/status"
}

// All returns a filter matching the telemetry topic and everything under it.
func (t Topics) All() string {
	return t.Base + "/#"
}
