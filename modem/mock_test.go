package modem

import (
	"io"
	"log/slog"

	"github.com/telqo/gsmbridge/at"
)

// dialerFunc adapts a function to the Dialer interface for tests.
type dialerFunc func() (Transport, error)

func (f dialerFunc) Dial() (Transport, error) { return f() }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockSequenceBuilder accumulates ordered Write expectations for the
// command stream a session emits, one expectation per command hitting
// the wire. Responses are injected through the handler, so reads never
// touch the mock.
type MockSequenceBuilder struct {
	transport *MockTransport
	calls     []any
}

func NewMockSequence(transport *MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

func (b *MockSequenceBuilder) expectWrite(cmd string) *MockSequenceBuilder {
	wire := cmd + "\r"
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(wire)).Return(len(wire), nil),
	)
	return b
}

func (b *MockSequenceBuilder) Reset() *MockSequenceBuilder {
	return b.expectWrite(at.CmdReset)
}

func (b *MockSequenceBuilder) EchoOff() *MockSequenceBuilder {
	return b.expectWrite(at.CmdEchoOff)
}

func (b *MockSequenceBuilder) VerboseErrors() *MockSequenceBuilder {
	return b.expectWrite(at.CmdVerboseErrors)
}

func (b *MockSequenceBuilder) SimStatus() *MockSequenceBuilder {
	return b.expectWrite(at.CmdSimStatus)
}

func (b *MockSequenceBuilder) TextMode() *MockSequenceBuilder {
	return b.expectWrite(at.CmdSetTextMode)
}

func (b *MockSequenceBuilder) NewMessageIndications() *MockSequenceBuilder {
	return b.expectWrite(at.CmdNewMsgInd)
}

func (b *MockSequenceBuilder) Initialization() *MockSequenceBuilder {
	return b.Reset().
		EchoOff().
		VerboseErrors().
		SimStatus().
		TextMode().
		NewMessageIndications()
}

func (b *MockSequenceBuilder) Ping() *MockSequenceBuilder {
	return b.expectWrite(at.CmdAt)
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
