package broker

import "context"

// MessageBroker carries fired ledger events out of the engine. The CRUD/HTTP
// layer (or a downstream ledger writer) consumes them.
type MessageBroker interface {
	Publish(queue string, message []byte) error
	Consume(ctx context.Context, queue string) (<-chan []byte, error)
	Close() error
}
