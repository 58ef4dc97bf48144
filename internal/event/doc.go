// Package event provides a pub-sub event bus that decouples the task
// distributor, status monitor, and coordinator from the components that
// observe them (metrics, logging, the dashboard).
//
// # Main Types
//
//   - [Event]: Interface that all events implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub dispatcher, safe for concurrent use
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Task lifecycle (published by the distributor):
//   - [TaskCreatedEvent], [TaskDistributedEvent], [TaskStatusChangedEvent]
//   - [TaskReassignedEvent], [TaskRedistributedEvent], [TaskPriorityChangedEvent]
//
// Monitoring (published by the status monitor):
//   - [WorkerStateChangedEvent], [AlertRaisedEvent], [AlertResolvedEvent]
//
// Coordination (published by the coordinator):
//   - [ModeChangedEvent], [CycleCompletedEvent], [CycleFailedEvent]
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	bus.Subscribe("alert.raised", func(e event.Event) {
//	    raised := e.(event.AlertRaisedEvent)
//	    log.Printf("%s alert for %s", raised.Severity, raised.WorkerID)
//	})
//
//	bus.Publish(event.NewAlertRaisedEvent("a-1", "w-1", "", "worker_timeout", "critical", "no contact"))
//
// Event types follow the pattern "category.action".
package event
