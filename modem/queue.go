package modem

import (
	"time"

	"github.com/telqo/gsmbridge/at"
)

// CommandFlag modifies how the monitor reacts to a command's fate.
type CommandFlag uint8

const (
	// CmdIgnoreTimeout marks commands whose missing response must not
	// terminate the session, such as keepalive pings.
	CmdIgnoreTimeout CommandFlag = 1 << iota

	// CmdFinishesInit marks the last command of the initialization
	// sequence; its acknowledgement marks the session initialized.
	CmdFinishesInit

	// CmdExpectPrompt marks commands answered by the SMS input prompt
	// rather than a final response; the prompt completes them.
	CmdExpectPrompt

	// CmdRaw suppresses the trailing CR, for message bodies terminated
	// by Ctrl-Z.
	CmdRaw
)

// Command is one queued AT command awaiting its final response.
type Command struct {
	Payload string
	Timeout time.Duration
	Flags   CommandFlag

	// UID ties a message-body command to its tracked outgoing
	// message: the submission acknowledgement records the part under
	// the reference the modem assigned. Zero means untracked.
	UID int64

	deadline time.Time
	sent     bool
}

// Queue is the per-session command queue. Only the head command is on
// the wire; the rest wait for it to complete or time out. Mutated only
// by the monitor loop and by handlers running under the serializer,
// with the session lock held.
type Queue struct {
	cmds []Command
}

// Len returns the number of queued commands.
func (q *Queue) Len() int { return len(q.cmds) }

// Head returns the command currently on the wire, or nil.
func (q *Queue) Head() *Command {
	if len(q.cmds) == 0 {
		return nil
	}
	return &q.cmds[0]
}

// Push appends a command, applying the default response timeout when
// none is set.
func (q *Queue) Push(cmd Command) {
	if cmd.Timeout <= 0 {
		cmd.Timeout = at.DefaultTimeout
	}
	q.cmds = append(q.cmds, cmd)
}

// Pop removes the head command.
func (q *Queue) Pop() {
	if len(q.cmds) == 0 {
		return
	}
	q.cmds = q.cmds[1:]
}

// MarkSent records that the head command hit the wire and starts its
// deadline clock.
func (q *Queue) MarkSent() {
	if head := q.Head(); head != nil {
		head.sent = true
		head.deadline = time.Now().Add(head.Timeout)
	}
}

// TimeUntilDeadline returns the time remaining until the head
// command's deadline. pending is false when no sent command is
// awaiting a response, in which case the monitor waits its full
// response timeout instead.
func (q *Queue) TimeUntilDeadline(now time.Time) (remain time.Duration, pending bool) {
	head := q.Head()
	if head == nil || !head.sent {
		return 0, false
	}
	return head.deadline.Sub(now), true
}

// Reset drops all queued commands.
func (q *Queue) Reset() {
	q.cmds = nil
}
