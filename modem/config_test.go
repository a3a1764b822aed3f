package modem

import (
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.setDefaults()

	if cfg.ResponseTimeout != 10*time.Second {
		t.Errorf("unexpected response timeout: %v", cfg.ResponseTimeout)
	}
	if cfg.UnhandledCommandTimeout != 500*time.Millisecond {
		t.Errorf("unexpected unhandled-command timeout: %v", cfg.UnhandledCommandTimeout)
	}
	if cfg.RingBufferSize != 2048 {
		t.Errorf("unexpected ring buffer size: %d", cfg.RingBufferSize)
	}
	if cfg.HighWater != 400 {
		t.Errorf("unexpected high-water mark: %d", cfg.HighWater)
	}

	// Explicit values survive.
	cfg = Config{ResponseTimeout: time.Second, HighWater: 10}
	cfg.setDefaults()
	if cfg.ResponseTimeout != time.Second || cfg.HighWater != 10 {
		t.Errorf("explicit values overwritten: %+v", cfg)
	}
}
