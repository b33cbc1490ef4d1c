// Package session runs the scooter login handshake.
//
// Handshake failures are not told apart from transient radio glitches:
// both are logged and retried after a fixed pause for as long as the link
// itself holds. Only a link that cannot be brought back ends the loop.
package session
