package broker

import "errors"

// ErrBrokerClosed is returned by Publish after Close.
var ErrBrokerClosed = errors.New("message broker is closed")

// ErrQueueFull is returned by the in-memory broker when a queue's buffer is
// exhausted and nobody is consuming.
var ErrQueueFull = errors.New("message queue is full")
