package broker

import "context"

// MemoryBroker is an in-memory Broker used by tests and the in-memory
// end-to-end harness. Delivery is FIFO via a buffered channel; Nack with
// requeue re-enqueues at the back (ordering is not otherwise guaranteed,
// matching the at-least-once, not-strictly-ordered contract).
type MemoryBroker struct {
	queue  chan string
	out    chan Delivery
	closed chan struct{}
}

func NewMemoryBroker(capacity int) *MemoryBroker {
	return &MemoryBroker{
		queue:  make(chan string, capacity),
		out:    make(chan Delivery, capacity),
		closed: make(chan struct{}),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, transactionID string) error {
	select {
	case <-b.closed:
		return ErrUnavailable
	default:
	}
	select {
	case b.queue <- transactionID:
		return nil
	case <-b.closed:
		return ErrUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) Consume(ctx context.Context) (<-chan Delivery, error) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.closed:
				return
			case id := <-b.queue:
				select {
				case b.out <- &memoryDelivery{txID: id, queue: b.queue}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return b.out, nil
}

func (b *MemoryBroker) Close() error {
	close(b.closed)
	return nil
}

type memoryDelivery struct {
	txID  string
	queue chan string
}

func (d *memoryDelivery) TransactionID() string { return d.txID }
func (d *memoryDelivery) Ack() error            { return nil }
func (d *memoryDelivery) Nack(requeue bool) error {
	if requeue {
		d.queue <- d.txID
	}
	return nil
}

var _ Broker = (*MemoryBroker)(nil)
