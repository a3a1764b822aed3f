package dispatch

import "errors"

var (
	// ErrPoolClosed is returned when a serializer is requested from a
	// pool that has been shut down.
	ErrPoolClosed = errors.New("dispatch pool closed")

	// ErrSerializerExists is returned when a serializer name is already
	// in use by a live serializer.
	ErrSerializerExists = errors.New("serializer already exists")

	// ErrSuspended is returned by Submit on a closed serializer.
	//
	// Callers treat this as a rejection: advisory tasks may be dropped,
	// ordered tasks must not be retried out of band.
	ErrSuspended = errors.New("serializer suspended")

	// ErrQueueFull is returned by Submit when the queue is at its hard
	// capacity.
	ErrQueueFull = errors.New("serializer queue full")
)
