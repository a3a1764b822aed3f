package modem

import (
	"time"
)

// Config tunes a monitor loop. The defaults match long-standing modem
// behavior; override them only for tests.
type Config struct {
	// ResponseTimeout is how long the loop waits for transport data
	// when no command is pending before queueing a keepalive ping.
	ResponseTimeout time.Duration
	// UnhandledCommandTimeout is the short wait after a command
	// deadline already passed, giving a late response a final chance
	// to arrive before the next pass.
	UnhandledCommandTimeout time.Duration
	// RingBufferSize bounds the raw read backlog between record
	// extractions.
	RingBufferSize int
	// HighWater is the serializer depth treated as congestion; at or
	// above it the loop requests its own restart to shed load.
	HighWater int
}

func (c *Config) setDefaults() {
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 10 * time.Second
	}
	if c.UnhandledCommandTimeout <= 0 {
		c.UnhandledCommandTimeout = 500 * time.Millisecond
	}
	if c.RingBufferSize <= 0 {
		c.RingBufferSize = 2 * 1024
	}
	if c.HighWater <= 0 {
		c.HighWater = 400
	}
}
