package modem

import (
	"fmt"
	"time"

	"github.com/telqo/gsmbridge/at"
)

// resetTimeout gives ATZ extra headroom: some modules take seconds to
// come back after a soft reset.
const resetTimeout = 15 * time.Second

// initializationCommands is the sequence queued when a monitor starts:
// soft reset, echo off, verbose errors, SIM probe, text mode and
// unsolicited delivery of new messages and status reports. The final
// command carries CmdFinishesInit so the response handler can mark the
// session initialized once the whole sequence is acknowledged.
func initializationCommands() []Command {
	return []Command{
		{Payload: at.CmdReset, Timeout: resetTimeout},
		{Payload: at.CmdEchoOff},
		{Payload: at.CmdVerboseErrors},
		{Payload: at.CmdSimStatus},
		{Payload: at.CmdSetTextMode},
		{Payload: at.CmdNewMsgInd, Flags: CmdFinishesInit},
	}
}

// pingCommand is the keepalive queued when the response timeout
// expires with nothing on the wire. A missing pong must not terminate
// the session by itself.
func pingCommand() Command {
	return Command{Payload: at.CmdAt, Flags: CmdIgnoreTimeout}
}

// sendTimeout is applied to message bodies; network submission can
// stall well beyond a regular command round trip.
const sendTimeout = 30 * time.Second

// SendSequence builds the command pairs that transmit the given parts
// to one destination in text mode: a submission header answered by the
// input prompt, then the raw part body terminated by Ctrl-Z. uid links
// each body's submission acknowledgement back to the outgoing message
// it belongs to.
func SendSequence(dst string, parts []string, uid int64) []Command {
	cmds := make([]Command, 0, 2*len(parts))
	for _, part := range parts {
		cmds = append(cmds,
			Command{Payload: fmt.Sprintf("%s=%q", at.CmdSendMsg, dst), Flags: CmdExpectPrompt},
			Command{Payload: part + at.CtrlZ, Flags: CmdRaw, Timeout: sendTimeout, UID: uid},
		)
	}
	return cmds
}
