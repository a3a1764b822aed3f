package modem

import (
	"fmt"
	"sync"
)

// Stats accumulates per-session transfer counters. They are advisory:
// the monitor loop updates them under a best-effort trylock so a busy
// session never stalls the reader.
type Stats struct {
	ReadBytes    uint64
	ReadRecords  uint64
	WrittenBytes uint64
	Timeouts     uint64
}

// Session is the shared state of one modem device: the transports, the
// active command queue, accumulated statistics and the cooperative
// terminate flag.
//
// A session is exclusively owned by one monitor loop at a time and
// lock-protected for cross-goroutine access: response, timeout and
// ping handlers run on the device's serializer and take the lock, and
// a stop request mutates the terminate flag from outside the loop.
type Session struct {
	mu sync.Mutex

	id        string
	dialer    Dialer
	transport Transport
	audio     AudioPort
	pcm       PCM

	terminate   bool
	initialized bool

	queue Queue
	stats Stats
}

// NewSession creates an unconnected session for the given device id.
func NewSession(id string, dialer Dialer) (*Session, error) {
	if dialer == nil {
		return nil, ErrNoDialer
	}
	return &Session{id: id, dialer: dialer}, nil
}

// ID returns the device identifier.
func (s *Session) ID() string { return s.id }

// SetAudio attaches the audio path probes used by the health checker.
func (s *Session) SetAudio(audio AudioPort, pcm PCM) {
	s.mu.Lock()
	s.audio = audio
	s.pcm = pcm
	s.mu.Unlock()
}

// Connect dials the data transport. The session must be connected
// before its monitor is started.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transport != nil {
		return nil
	}
	transport, err := s.dialer.Dial()
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.id, err)
	}
	s.transport = transport
	return nil
}

// Connected reports whether the data transport is open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport != nil
}

// Snapshot returns a copy of the session counters.
func (s *Session) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// MarkInitialized records that the device completed its initialization
// command sequence. Called by the response handler once the final init
// command is acknowledged.
func (s *Session) MarkInitialized() {
	s.initialized = true
}

// Enqueue appends a command to the session's queue and transmits it
// immediately when it becomes the queue head. Caller holds the session
// lock (handlers run under the serializer, the monitor enqueues during
// its locked start phase).
func (s *Session) Enqueue(cmds ...Command) error {
	for _, cmd := range cmds {
		wasEmpty := s.queue.Len() == 0
		s.queue.Push(cmd)
		if wasEmpty {
			if err := s.writeHead(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Advance drops the head command (its response or timeout has been
// handled) and transmits the next queued command, if any. Caller holds
// the session lock.
func (s *Session) Advance() error {
	s.queue.Pop()
	if s.queue.Len() == 0 {
		return nil
	}
	return s.writeHead()
}

// writeHead transmits the head command and starts its deadline clock.
func (s *Session) writeHead() error {
	if s.transport == nil {
		return ErrNotConnected
	}
	cmd := s.queue.Head()
	wire := cmd.Payload
	if cmd.Flags&CmdRaw == 0 {
		wire += "\r"
	}
	n, err := s.transport.Write([]byte(wire))
	s.stats.WrittenBytes += uint64(n)
	if err != nil {
		return fmt.Errorf("write command %q: %w", cmd.Payload, err)
	}
	s.queue.MarkSent()
	return nil
}

// Initialized reports whether the device completed its initialization
// sequence on the current connection.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Submit enqueues commands from outside the monitor's serializer, for
// callers like the submission API. The session must be initialized.
func (s *Session) Submit(cmds ...Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	return s.Enqueue(cmds...)
}

// RequestStop sets the cooperative terminate flag. The monitor loop
// observes it on its next locked pass.
func (s *Session) RequestStop() {
	s.mu.Lock()
	s.terminate = true
	s.mu.Unlock()
}

// disconnectLocked tears down the transports and resets the command
// queue. Caller holds the session lock.
func (s *Session) disconnectLocked() {
	if s.transport != nil {
		s.transport.Close()
		s.transport = nil
	}
	if s.audio != nil {
		s.audio.Close()
	}
	s.queue.Reset()
	s.initialized = false
}
