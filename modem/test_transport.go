package modem

import (
	"io"
	"sync"
)

// TestTransport simulates a blocking modem transport using channels.
// The monitor's reader goroutine blocks in Read until data is queued,
// like a real serial port would, and every Write is recorded so tests
// can assert on the command stream.
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	writeSig chan string
	writes   []string
	closed   bool
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 10),
		writeSig: make(chan string, 64),
	}
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	t.writes = append(t.writes, string(p))
	t.mu.Unlock()
	select {
	case t.writeSig <- string(p):
	default:
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Writes returns a copy of everything written so far.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// WriteSignal delivers each written payload; tests use it to wait for
// the next outgoing command.
func (t *TestTransport) WriteSignal() <-chan string {
	return t.writeSig
}
