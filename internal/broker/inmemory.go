package broker

import (
	"context"
	"sync"
)

// InMemory is a channel-backed broker for tests and single-process runs.
type InMemory struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	closed bool
}

func NewInMemory() *InMemory {
	return &InMemory{
		queues: make(map[string]chan []byte),
	}
}

func (b *InMemory) queue(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		q = make(chan []byte, 1000)
		b.queues[name] = q
	}
	return q
}

func (b *InMemory) Publish(queue string, message []byte) error {
	// Close also holds the lock, so the channel cannot be closed under the
	// send. The send is non-blocking; the buffer absorbs bursts.
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}
	q, ok := b.queues[queue]
	if !ok {
		q = make(chan []byte, 1000)
		b.queues[queue] = q
	}
	select {
	case q <- message:
		return nil
	default:
		return ErrQueueFull
	}
}

func (b *InMemory) Consume(ctx context.Context, queue string) (<-chan []byte, error) {
	in := b.queue(queue)
	out := make(chan []byte, 1000)

	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (b *InMemory) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, q := range b.queues {
		close(q)
	}
	return nil
}
