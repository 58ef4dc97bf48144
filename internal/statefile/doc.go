// Package statefile holds the primitives every on-disk store in foreman
// shares: a cross-process flock(2) lock, atomic whole-file writes
// (temp file + rename), and JSONL encode/decode helpers.
package statefile
