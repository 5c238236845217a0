// Package broker provides durable at-least-once handoff of transaction ids
// from the ingestion API to worker processes (C2). Production code depends
// only on the Broker interface; amqp.go and memory.go are the two concrete
// adapters.
package broker

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the broker cannot be reached after
// exhausting its reconnect backoff.
var ErrUnavailable = errors.New("broker: unavailable")

// Delivery is one dequeued message, alive until Ack or Nack is called.
type Delivery interface {
	TransactionID() string
	Ack() error
	Nack(requeue bool) error
}

// Broker is the job-queue contract every adapter (AMQP, in-memory) must
// satisfy.
type Broker interface {
	Publish(ctx context.Context, transactionID string) error
	Consume(ctx context.Context) (<-chan Delivery, error)
	Close() error
}
