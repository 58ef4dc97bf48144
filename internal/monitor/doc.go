// Package monitor derives worker health and task risk from the distributor's
// records and from mailbox reachability.
//
// Each [Monitor.Cycle] polls every known worker concurrently (bounded by the
// poll concurrency) and recomputes its [WorkerStatus]:
//
//	probe error                     -> Error (until a newer contact arrives)
//	no contact within the timeout   -> Unavailable + critical worker_timeout
//	workload == 0                   -> Idle
//	0 < workload <= threshold       -> Working
//	workload > threshold            -> Overloaded + warning worker_overloaded
//
// Workload is the estimated hours of a worker's Active tasks divided by a
// fixed capacity, clamped to [0, 1]. After polling, every non-terminal task
// is checked for stuck execution and deadline risk.
//
// # Alerts
//
// Alerts are append-only. A condition already covered by an unresolved alert
// of the same type, worker and task is not raised again. Alerts stay
// queryable until explicitly resolved, and resolved alerts are removed only
// by [Monitor.PruneResolved]. Warning and critical alerts are relayed to the
// affected worker through the mailbox.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Updates to a single worker's
// status are serialized; distinct workers are polled in parallel.
package monitor
