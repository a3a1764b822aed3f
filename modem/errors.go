package modem

import "errors"

var (
	// ErrNoDialer is returned when a session is constructed without a
	// Dialer.
	//
	// This indicates a configuration error. A Dialer is required in
	// order to establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotConnected is returned when an operation requires a live
	// transport and the session has none.
	ErrNotConnected = errors.New("session not connected")

	// ErrAlreadyRunning is returned when Start is called on a monitor
	// whose loop is already running.
	ErrAlreadyRunning = errors.New("monitor already running")

	// ErrNotInitialized is returned when commands are submitted to a
	// session that has not completed its initialization sequence.
	ErrNotInitialized = errors.New("session not initialized")

	// ErrConnectionLost is returned by the health checker when the
	// data or audio path is dead and could not be recovered.
	//
	// The monitor loop treats it as fatal to the session: disconnect,
	// then let the supervising layer decide whether to reopen.
	ErrConnectionLost = errors.New("connection lost")

	// ErrLineTooLong is returned when a modem response record exceeds
	// the ring buffer capacity.
	//
	// This typically indicates malformed input, unexpected binary
	// data, or a protocol framing error.
	ErrLineTooLong = errors.New("response line too long")
)
