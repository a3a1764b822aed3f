package modem

import (
	"errors"
	"testing"
)

type probeTransport struct {
	*TestTransport
	aliveErr error
}

func (p *probeTransport) Alive() error { return p.aliveErr }

type fakeAudio struct {
	aliveErr  error
	reopenErr error
	reopens   int
}

func (a *fakeAudio) Alive() error { return a.aliveErr }
func (a *fakeAudio) Close() error { return nil }
func (a *fakeAudio) Reopen() error {
	a.reopens++
	return a.reopenErr
}

type fakePCM struct {
	playbackErr error
	captureErr  error
}

func (p *fakePCM) PlaybackAlive() error { return p.playbackErr }
func (p *fakePCM) CaptureAlive() error  { return p.captureErr }

func TestHealthChecker(t *testing.T) {
	probeErr := errors.New("device node gone")

	t.Run("dead data path", func(t *testing.T) {
		s := connectedSession(t, &probeTransport{
			TestTransport: NewTestTransport(),
			aliveErr:      probeErr,
		})
		h := &HealthChecker{Mode: AudioModeExternal, Logger: discardLogger()}

		if err := h.Check(s); !errors.Is(err, ErrConnectionLost) {
			t.Errorf("expected ErrConnectionLost, got: %v", err)
		}
	})

	t.Run("external mode skips audio", func(t *testing.T) {
		s := connectedSession(t, NewTestTransport())
		s.SetAudio(&fakeAudio{aliveErr: probeErr}, nil)
		h := &HealthChecker{Mode: AudioModeExternal, Logger: discardLogger()}

		if err := h.Check(s); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("tty mode reopens once on loss", func(t *testing.T) {
		s := connectedSession(t, NewTestTransport())
		audio := &fakeAudio{aliveErr: probeErr}
		s.SetAudio(audio, nil)
		h := &HealthChecker{Mode: AudioModeTTY, Logger: discardLogger()}

		if err := h.Check(s); err != nil {
			t.Errorf("expected recovery after reopen, got: %v", err)
		}
		if audio.reopens != 1 {
			t.Errorf("expected 1 reopen attempt, got: %d", audio.reopens)
		}
	})

	t.Run("tty mode lost when reopen fails", func(t *testing.T) {
		s := connectedSession(t, NewTestTransport())
		s.SetAudio(&fakeAudio{aliveErr: probeErr, reopenErr: probeErr}, nil)
		h := &HealthChecker{Mode: AudioModeTTY, Logger: discardLogger()}

		if err := h.Check(s); !errors.Is(err, ErrConnectionLost) {
			t.Errorf("expected ErrConnectionLost, got: %v", err)
		}
	})

	t.Run("alsa mode polls both channels", func(t *testing.T) {
		s := connectedSession(t, NewTestTransport())
		s.SetAudio(nil, &fakePCM{})
		h := &HealthChecker{Mode: AudioModeALSA, Logger: discardLogger()}

		if err := h.Check(s); err != nil {
			t.Errorf("unexpected error: %v", err)
		}

		s.SetAudio(nil, &fakePCM{captureErr: probeErr})
		if err := h.Check(s); !errors.Is(err, ErrConnectionLost) {
			t.Errorf("expected ErrConnectionLost, got: %v", err)
		}
	})
}

func TestAudioModeString(t *testing.T) {
	for mode, want := range map[AudioMode]string{
		AudioModeExternal: "external",
		AudioModeTTY:      "tty",
		AudioModeALSA:     "alsa",
	} {
		if got := mode.String(); got != want {
			t.Errorf("expected %q, got: %q", want, got)
		}
	}
}
