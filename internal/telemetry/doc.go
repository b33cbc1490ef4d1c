// Package telemetry assembles the snapshot the bridge publishes.
//
// A Snapshot is built from one complete pull: motor, battery, remaining
// range and GPS are queried fresh, in that order, and the first failure
// aborts the pull. Nothing is cached and no field is ever defaulted, so a
// published snapshot always reflects a single successful round trip.
//
// The GPS part is the exception that proves the rule: "no fix yet" is a
// successful reading (null island), only a modem that does not answer
// fails the pull.
package telemetry
