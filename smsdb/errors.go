package smsdb

import "errors"

var (
	// ErrKeyTooLong is returned when a composed row key exceeds the
	// schema's 256-byte key columns.
	ErrKeyTooLong = errors.New("smsdb: key too long")

	// ErrPartNotFound is returned by SetPartStatus when no outgoing
	// part matches the (device, address, reference) key, for example
	// when a delivery report arrives after the message was purged.
	ErrPartNotFound = errors.New("smsdb: outgoing part not found")

	// ErrClosed is returned when an operation is attempted on a closed
	// store.
	ErrClosed = errors.New("smsdb: store closed")
)
