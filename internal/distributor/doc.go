// Package distributor owns the task registry.
//
// The [Distributor] is the only component that mutates task records. The
// monitor and coordinator read through its query methods, which return deep
// copies, and change tasks only through its lifecycle methods.
//
// # Lifecycle
//
//	Create ──> Pending ──Distribute──> Active ──UpdateStatus──> Completed
//	              │                      │                  └─> Failed ──RedistributeFailed──> Pending
//	              └──────────────────────┴──> Cancelled
//
// [Distributor.Distribute] is the single gate into Active: a task whose
// dependencies are not all Completed stays Pending. Distribution sends a
// task_assignment message through the mailbox; delivery is best-effort and
// a failed send is logged without blocking activation.
//
// [Distributor.Reassign] moves work between workers for load balancing. An
// Active task that is reassigned returns to Pending on its new worker and
// must be distributed again.
//
// # Persistence
//
// [Distributor.SaveState] and [LoadState] write and read a single JSON file
// in the state directory, atomically and under a cross-process flock.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Mutations of a single task are
// atomic; readers never observe a partially-updated record.
package distributor
