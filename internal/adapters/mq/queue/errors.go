package queue

import "errors"

// ErrClosed is returned by EnqueueAll once the queue is closed.
var ErrClosed = errors.New("queue closed")

// ErrFull is returned by EnqueueAll when a pair could not be accepted.
var ErrFull = errors.New("queue full")
