// Package task defines the task record shared by the distributor, the
// status monitor, and the coordinator.
//
// A [Task] moves through a fixed lifecycle:
//
//	pending -> active -> completed
//	                  -> failed -> pending (redistribution only)
//	pending|active -> cancelled
//
// [CanTransition] encodes the table. The distributor is the only component
// that mutates records; everything else works on clones returned by
// [Task.Clone].
package task
