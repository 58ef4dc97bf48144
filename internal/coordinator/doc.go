// Package coordinator runs the adaptive control loop.
//
// Each cycle executes the actions queued by the previous report, polls the
// status monitor, classifies the system into a Mode, applies that mode's
// corrective behavior through the distributor's API, and emits one
// immutable Report.
//
// # Modes
//
//   - Normal: preventive balancing once average workload passes 0.6, and
//     Low tasks near their deadline are bumped to Medium.
//   - Optimizing: every Pending task is rebalanced through the active
//     Strategy and each unresolved alert is acted on by category.
//   - Emergency: Active Low and Medium work is moved off saturated workers,
//     tasks close to their deadline become Critical and their assignees are
//     sent an urgent message.
//   - Maintenance: assessment and reporting only.
//
// Classification is a pure function of a Snapshot, see Classify. Operators
// can override it with ForceEmergencyMode, ResetToNormalMode and
// EnterMaintenance until ClearOverride.
//
// # Loop
//
// Run executes one cycle at a time. A failed or panicking cycle is logged
// and followed by a short backoff; it never stops the loop. Cancellation is
// checked between cycles only.
package coordinator
