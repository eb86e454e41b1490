// Package eventbus is the topic-based pub/sub client described in
// spec.md §4.2: a durable topic exchange, routing-key pattern binds, bounded
// prefetch, and ack-after-handler-success/requeue-on-exception delivery.
// See DESIGN.md for why NATS JetStream stands in for the original's
// RabbitMQ/aio_pika transport.
package eventbus

import "context"

// Handler processes one delivered envelope. Returning a non-nil error
// requeues the message (spec.md §4.2: "message is acknowledged only after
// handler returns normally, requeued on exception").
type Handler func(ctx context.Context, env Envelope) error

// Bus is the minimal pub/sub surface the Runner and CLI depend on. Both the
// NATS-backed implementation (nats.go) and the in-memory test double
// (memory.go) satisfy it.
type Bus interface {
	// Publish enriches payload (if fields are absent) and sends it under
	// routingKey.
	Publish(ctx context.Context, routingKey string, payload map[string]any) error

	// Subscribe declares a durable queue bound to the given routing-key
	// pattern (NATS subject wildcard syntax, e.g. "optimization.*") and
	// delivers matching envelopes to handler until the returned unsubscribe
	// func is called. ctx is handed to handler; cancelling it does not stop
	// delivery.
	Subscribe(ctx context.Context, pattern string, handler Handler) (unsubscribe func() error, err error)

	// Close releases the underlying connection.
	Close() error
}
