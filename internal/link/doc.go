// Package link manages the wireless link to the scooter.
//
// A Manager wraps one vehicle.Peripheral and a retry.Policy. The bridge
// builds a Manager with the long initial profile for the first link and a
// fresh one with the short relink profile every time it recovers, so a
// relink can never hang for hours.
//
// Connect reports one of three outcomes (Connected, AlreadyConnected,
// Failed) instead of a bare bool, which lets the caller decide whether an
// existing session survived.
package link
