// Package bridge drives the scooter-to-broker pipeline.
//
// The Orchestrator is a small state machine:
//
//	linking → authenticating → streaming ⇄ recovering → fatal
//
// Linking waits (for hours if need be) for the scooter to power on.
// Authenticating logs in, retrying handshake failures without bound.
// Streaming pulls one snapshot per send interval and publishes it best
// effort. Any pull failure moves to recovering, which rebuilds the link
// with a short retry budget; when that budget runs out the machine enters
// fatal and Run returns, leaving the restart to the process supervisor.
//
// A single goroutine runs the machine, so at most one radio operation and
// one serial command are ever in flight.
package bridge
