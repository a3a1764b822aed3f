package modem

import (
	"fmt"
	"log/slog"
)

// AudioMode selects the health-check policy for a session's audio path.
type AudioMode int

const (
	// AudioModeExternal: a hardware codec bypasses this process, so
	// the audio path is not polled.
	AudioModeExternal AudioMode = iota
	// AudioModeTTY: software duplex over a tty. On detected loss the
	// checker attempts one reopen before declaring the session lost.
	AudioModeTTY
	// AudioModeALSA: internal codec. The playback and capture states
	// of the audio subsystem are polled directly.
	AudioModeALSA
)

// String implements fmt.Stringer for log output.
func (m AudioMode) String() string {
	switch m {
	case AudioModeExternal:
		return "external"
	case AudioModeTTY:
		return "tty"
	case AudioModeALSA:
		return "alsa"
	default:
		return fmt.Sprintf("audio-mode(%d)", int(m))
	}
}

// HealthChecker polls a session's transport liveness. The monitor loop
// runs it once per locked pass; ErrConnectionLost sends the session to
// cleanup.
type HealthChecker struct {
	Mode   AudioMode
	Logger *slog.Logger
}

// Check probes the data path and, depending on the configured mode,
// the audio path. Caller holds the session lock.
func (h *HealthChecker) Check(s *Session) error {
	if prober, ok := s.transport.(LivenessProber); ok {
		if err := prober.Alive(); err != nil {
			h.Logger.Error("Lost data connection", "device", s.id, "error", err)
			return fmt.Errorf("%w: data: %w", ErrConnectionLost, err)
		}
	}

	switch h.Mode {
	case AudioModeExternal:
		// Audio handled outside this process.

	case AudioModeTTY:
		if s.audio == nil {
			break
		}
		if err := s.audio.Alive(); err != nil {
			if reopenErr := s.audio.Reopen(); reopenErr != nil {
				h.Logger.Error("Lost audio connection", "device", s.id, "error", err, "reopen_error", reopenErr)
				return fmt.Errorf("%w: audio: %w", ErrConnectionLost, err)
			}
			h.Logger.Warn("Lost audio connection, reopened", "device", s.id, "error", err)
		}

	case AudioModeALSA:
		if s.pcm == nil {
			break
		}
		if err := s.pcm.PlaybackAlive(); err != nil {
			h.Logger.Error("Lost audio connection", "device", s.id, "channel", "playback", "error", err)
			return fmt.Errorf("%w: playback: %w", ErrConnectionLost, err)
		}
		if err := s.pcm.CaptureAlive(); err != nil {
			h.Logger.Error("Lost audio connection", "device", s.id, "channel", "capture", "error", err)
			return fmt.Errorf("%w: capture: %w", ErrConnectionLost, err)
		}
	}

	return nil
}
