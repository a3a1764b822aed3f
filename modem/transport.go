package modem

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -destination=transport_mock.go -package=modem . Transport

// Transport represents an established, bidirectional byte stream to a
// GSM modem.
//
// A Transport is assumed to be already connected and ready for use. It
// provides the low-level I/O primitives required to send AT commands
// and receive responses. Typical implementations include serial ports,
// TCP connections to emulators, or in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// LivenessProber is implemented by transports that can report whether
// the underlying connection is still alive without reading from it.
// The health checker uses it to detect a dead data path between
// responses.
type LivenessProber interface {
	Alive() error
}

// Dialer opens a Transport to a GSM modem.
//
// Dialer abstracts how the modem connection is created (for example,
// via a serial port, TCP-based emulator, or test double) and is used
// whenever a session connects or reconnects.
type Dialer interface {
	// Dial creates and returns a connected Transport. It may perform
	// blocking operations. Dial returns an error if the transport
	// cannot be established.
	Dial() (Transport, error)
}

// SerialDialer opens a GSM modem over a serial port.
type SerialDialer struct {
	PortName string
	BaudRate int
}

// Dial opens the configured serial port in 8N1 mode.
func (d SerialDialer) Dial() (Transport, error) {
	mode := &serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}
	return &serialTransport{port: port}, nil
}

// serialTransport adapts a serial.Port to Transport and exposes the
// modem status lines as a liveness probe.
type serialTransport struct {
	port serial.Port
}

func (t *serialTransport) Read(p []byte) (int, error)  { return t.port.Read(p) }
func (t *serialTransport) Write(p []byte) (int, error) { return t.port.Write(p) }
func (t *serialTransport) Close() error                { return t.port.Close() }

// Alive queries the modem status bits; a failing ioctl means the
// device node is gone (an unplugged USB dongle, for instance).
func (t *serialTransport) Alive() error {
	if _, err := t.port.GetModemStatusBits(); err != nil {
		return fmt.Errorf("serial status: %w", err)
	}
	return nil
}

// AudioPort is the audio-path analogue of Transport for sessions in
// software-duplex mode: a tty carrying voice frames that can die and
// be reopened independently of the data path.
type AudioPort interface {
	Alive() error
	Reopen() error
	Close() error
}

// PCM exposes the liveness of an internal-codec audio subsystem's
// playback and capture channels.
type PCM interface {
	PlaybackAlive() error
	CaptureAlive() error
}
