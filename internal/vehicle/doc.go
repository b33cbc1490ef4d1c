// Package vehicle defines the contracts the bridge needs from a scooter
// driver: discovery, the wireless peripheral, the login handshake and the
// authenticated telemetry session.
//
// The bridge never talks to a radio stack directly. A driver package (the
// built-in one is vehicle/sim) implements these interfaces.
package vehicle
