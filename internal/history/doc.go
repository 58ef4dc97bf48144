// Package history stores coordination reports, one per cycle, keyed by
// timestamp.
//
// Two backends are provided. JSONLStore appends one JSON document per line
// to a file in the state directory and is the default. SQLiteStore keeps
// reports in a SQLite database through the pure-Go modernc.org/sqlite
// driver, which suits long-running deployments that query history.
//
// Both store the full report as JSON, so every field survives a round trip.
package history
