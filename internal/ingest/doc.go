// Package ingest moves published snapshots from the broker into storage.
//
// An Ingestor subscribes to the telemetry topic and, for each payload:
//
//  1. decodes it into a telemetry.Snapshot (malformed payloads are dropped)
//  2. stores it in the history repository as one transaction
//  3. writes it to the time-series sink, when one is configured
//  4. broadcasts it to live WebSocket subscribers
//
// A snapshot whose timestamp is already stored is logged and skipped; the
// later steps do not run for it.
package ingest
