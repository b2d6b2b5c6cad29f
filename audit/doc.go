// Package audit provides the append-only security-event trail: the event
// model, sink implementations (no-op, channel, JSON writer, in-memory, Redis
// Stream), and an asynchronous dispatcher for events that must not block the
// primary authentication flow.
//
// # Delivery semantics
//
// Sink.Record is synchronous and propagates storage failure. The Dispatcher
// wraps a sink with a buffered worker for best-effort events; critical events
// (token reuse) are written through the sink directly by the engine.
//
// # What this package must NOT do
//
//   - Update or delete events (retention is an external concern).
//   - Default missing optional fields to sentinels.
package audit
