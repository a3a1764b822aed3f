package modem

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/telqo/gsmbridge/at"
	"github.com/telqo/gsmbridge/smsdb"
)

// ResponseHandler is the boundary to the command-protocol layer. The
// monitor loop calls it from serializer tasks, so for a given session
// at most one method runs at a time and always under the session lock.
type ResponseHandler interface {
	// EnqueueInitialization queues the device initialization sequence.
	EnqueueInitialization(s *Session) error
	// EnqueuePing queues a keepalive after an idle response timeout.
	EnqueuePing(s *Session) error
	// HandleResponse processes one complete response record in
	// arrival order.
	HandleResponse(s *Session, record string) error
	// HandleTimeout is the respond-to-timeout entry point for the
	// head-of-queue command.
	HandleTimeout(s *Session) error
}

// Handler is the default ResponseHandler: it completes queued commands
// on final responses, reassembles incoming multipart messages through
// the SMS store, and aggregates delivery-status reports.
//
// A Handler serves exactly one session; the serializer's ordering
// contract makes its internal state safe without further locking.
type Handler struct {
	Store    *smsdb.Store
	Reporter Reporter
	// OnMessage receives assembled incoming messages. Optional.
	OnMessage func(Message)
	Logger    *slog.Logger

	// header of a +CMT URC whose payload line is still pending
	pending *incomingPart
}

type incomingPart struct {
	sender string
	ref    int
	parts  int
	order  int
}

func (h *Handler) EnqueueInitialization(s *Session) error {
	return s.Enqueue(initializationCommands()...)
}

func (h *Handler) EnqueuePing(s *Session) error {
	return s.Enqueue(pingCommand())
}

// HandleTimeout abandons the head command so the queue keeps moving.
// The monitor decides whether the timeout terminates the session.
func (h *Handler) HandleTimeout(s *Session) error {
	cmd := s.queue.Head()
	if cmd == nil {
		return nil
	}
	h.Logger.Warn("Command timed out", "device", s.id, "command", cmd.Payload)
	s.stats.Timeouts++
	return s.Advance()
}

func (h *Handler) HandleResponse(s *Session, record string) error {
	s.stats.ReadRecords++

	switch at.Classify(record) {
	case at.TypeFinal:
		return h.completeHead(s, record)

	case at.TypeURC:
		switch {
		case strings.HasPrefix(record, at.UrcMsg):
			part, err := parseCMT(record)
			if err != nil {
				h.Logger.Warn("Unparseable message indication", "device", s.id, "record", record, "error", err)
				return nil
			}
			h.pending = part
		case strings.HasPrefix(record, at.UrcStatusReport):
			return h.handleStatusReport(s, record)
		default:
			// RING, +CMTI and friends are handled by the call and
			// polling layers; nothing to do here.
		}
		return nil

	case at.TypeData:
		if h.pending != nil {
			part := h.pending
			h.pending = nil
			return h.handleIncomingPart(s, part, record)
		}
		if strings.HasPrefix(record, at.SendConfirm) {
			return h.handleSendConfirm(s, record)
		}
		// Intermediate output of the head command; final response
		// completes it.
		return nil

	case at.TypePrompt:
		// The prompt completes a submission header command and lets
		// the queued message body go out.
		if cmd := s.queue.Head(); cmd != nil && cmd.sent && cmd.Flags&CmdExpectPrompt != 0 {
			return s.Advance()
		}
		return nil
	}
	return nil
}

// completeHead finishes the head command on a final response.
func (h *Handler) completeHead(s *Session, record string) error {
	cmd := s.queue.Head()
	if cmd == nil || !cmd.sent {
		// Orphaned final response; nothing is waiting for it.
		return nil
	}
	if record != at.OK && record != at.Prompt {
		h.Logger.Warn("Command failed", "device", s.id, "command", cmd.Payload, "response", record)
	} else if cmd.Flags&CmdFinishesInit != 0 {
		s.MarkInitialized()
		h.Logger.Info("Device initialized", "device", s.id)
	}
	return s.Advance()
}

// handleIncomingPart stores one part of a concatenated message and
// surfaces the assembled text once the set completes.
func (h *Handler) handleIncomingPart(s *Session, part *incomingPart, payload string) error {
	res, err := h.Store.PutIncomingPart(s.id, part.sender, part.ref, part.parts, part.order, payload)
	if err != nil {
		// Store errors are local to the operation: the part is lost
		// until redelivered, the session keeps running.
		h.Logger.Error("Failed to store message part", "device", s.id, "sender", part.sender, "error", err)
		return nil
	}
	if !res.Complete {
		h.Logger.Debug("Stored message part", "device", s.id,
			"sender", part.sender, "order", part.order, "have", res.Count, "want", part.parts)
		return nil
	}

	h.Logger.Info("Received message", "device", s.id, "sender", part.sender, "length", len(res.Message))
	if h.OnMessage != nil {
		h.OnMessage(Message{Device: s.id, Sender: part.sender, Text: res.Message})
	}
	return nil
}

// handleSendConfirm records a submitted message part under the
// reference the modem assigned to it. Delivery status reports carry
// that same reference, so this is what later +CDS lookups match on.
func (h *Handler) handleSendConfirm(s *Session, record string) error {
	cmd := s.queue.Head()
	if cmd == nil || !cmd.sent || cmd.UID == 0 {
		return nil
	}

	ref, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(record, at.SendConfirm)))
	if err != nil {
		h.Logger.Warn("Unparseable submission acknowledgement", "device", s.id, "record", record)
		return nil
	}

	res, err := h.Store.PutOutgoingPart(cmd.UID, ref)
	if err != nil {
		h.Logger.Error("Failed to record submitted part", "device", s.id, "uid", cmd.UID, "ref", ref, "error", err)
		return nil
	}
	if res.State == smsdb.PartComplete {
		h.Logger.Debug("Message fully submitted", "device", s.id, "dst", res.Dst, "uid", cmd.UID)
	}
	return nil
}

// handleStatusReport applies a +CDS delivery report to the store and
// reports completion upstream once every part is terminal.
func (h *Handler) handleStatusReport(s *Session, record string) error {
	ref, addr, status, err := parseCDS(record)
	if err != nil {
		h.Logger.Warn("Unparseable status report", "device", s.id, "record", record, "error", err)
		return nil
	}

	res, err := h.Store.SetPartStatus(s.id, addr, ref, status)
	if err != nil {
		if errors.Is(err, smsdb.ErrPartNotFound) {
			// Late report for a purged or untracked message.
			h.Logger.Debug("Status report for unknown part", "device", s.id, "dst", addr, "ref", ref)
			return nil
		}
		h.Logger.Error("Failed to apply status report", "device", s.id, "dst", addr, "error", err)
		return nil
	}
	if !res.Complete {
		return nil
	}

	h.Logger.Info("Message delivery settled", "device", s.id, "dst", addr)
	if h.Reporter != nil {
		h.Reporter.Report(Report{
			Device:   s.id,
			Dst:      addr,
			Info:     "Delivery report",
			Statuses: res.Statuses,
		})
	}
	return nil
}

// splitFields splits a comma-separated AT parameter list, honoring
// double quotes so quoted timestamps keep their embedded commas.
// Quotes are stripped from the returned fields.
func splitFields(s string) []string {
	var fields []string
	var sb strings.Builder
	quoted := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			quoted = !quoted
		case ',':
			if quoted {
				sb.WriteByte(c)
				continue
			}
			fields = append(fields, strings.TrimSpace(sb.String()))
			sb.Reset()
		default:
			sb.WriteByte(c)
		}
	}
	return append(fields, strings.TrimSpace(sb.String()))
}

// parseCMT parses a message indication header of the form
//
//	+CMT: "<sender>",...[,<ref>,<total>,<seq>]
//
// The three trailing integers locate the part within a concatenated
// set; without them the line announces a single-part message.
func parseCMT(record string) (*incomingPart, error) {
	fields := splitFields(strings.TrimSpace(strings.TrimPrefix(record, at.UrcMsg)))
	if len(fields) == 0 || fields[0] == "" {
		return nil, fmt.Errorf("missing sender: %q", record)
	}

	part := &incomingPart{sender: fields[0], ref: 0, parts: 1, order: 1}
	if len(fields) < 5 {
		return part, nil
	}

	tail := fields[len(fields)-3:]
	nums := make([]int, 3)
	for i, f := range tail {
		n, err := strconv.Atoi(f)
		if err != nil {
			// Trailing fields are not a concat descriptor.
			return part, nil
		}
		nums[i] = n
	}
	part.ref, part.parts, part.order = nums[0], nums[1], nums[2]
	if part.parts < 1 || part.order < 1 || part.order > part.parts {
		return nil, fmt.Errorf("inconsistent part descriptor %v: %q", nums, record)
	}
	return part, nil
}

// parseCDS parses a delivery status report of the form
//
//	+CDS: <fo>,<mr>,"<ra>",<tora>,"<scts>","<dt>",<st>
func parseCDS(record string) (ref int, addr string, status int, err error) {
	fields := splitFields(strings.TrimSpace(strings.TrimPrefix(record, at.UrcStatusReport)))
	if len(fields) < 7 {
		return 0, "", 0, fmt.Errorf("expected 7 fields, got %d: %q", len(fields), record)
	}
	ref, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, "", 0, fmt.Errorf("bad message reference: %q", record)
	}
	status, err = strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, "", 0, fmt.Errorf("bad status: %q", record)
	}
	return ref, fields[2], status, nil
}
