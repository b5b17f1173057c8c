package queue

import "errors"

// ErrQueueFull is returned by Enqueue when the queue has no free capacity.
var ErrQueueFull = errors.New("queue is full")

// Queue represents a bounded queue that never blocks its producers.
type Queue interface {
	Enqueue(item interface{}) error
	Size() int
	ReadAllMessages() []interface{}
	ClearQueue()
}
