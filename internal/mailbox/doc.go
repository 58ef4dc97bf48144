// Package mailbox carries messages between the coordinator and its workers.
//
// The coordinator never talks to a worker directly. Task assignments, alerts
// and urgent deadline notices are posted to the worker's mailbox; workers post
// status updates and heartbeats to the coordinator's mailbox, and the newest of
// those is what the monitor treats as the worker's last contact.
//
// # Architecture
//
// A [Mailbox] wraps a [Backend]. The file [Store] persists messages as
// append-only JSONL under the state directory:
//
//	{stateDir}/mailbox/
//	    broadcast/index.jsonl   -- messages to all workers
//	    coordinator/index.jsonl -- status and heartbeats from workers
//	    {workerID}/index.jsonl  -- messages to a specific worker
//
// The redisbox subpackage provides a Redis-backed Backend for deployments
// where workers run on other hosts.
//
// # Delivery Semantics
//
// Delivery is best-effort. [Mailbox.Send] reports success as a boolean and
// logs failures. [Mailbox.Receive] drops messages whose TTL has elapsed and
// orders the rest by priority (highest first) and then send time.
//
// # Thread Safety
//
// [Store] and [Mailbox] are safe for concurrent use within a single process.
// File writes use O_APPEND for atomicity of small JSONL lines across processes.
package mailbox
