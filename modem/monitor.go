// Package modem bridges one GSM/LTE modem session to the rest of the
// driver: a per-device monitor loop multiplexes blocking transport
// reads, command-deadline bookkeeping and health checks, and feeds
// every complete response record, in arrival order, to a per-device
// serializer for handling.
package modem

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/telqo/gsmbridge/at"
	"github.com/telqo/gsmbridge/dispatch"
	"github.com/telqo/gsmbridge/smsdb"
)

// readChunkSize is the per-read buffer of the transport reader
// goroutine. Smaller than the ring buffer so a single read always fits
// after extraction frees space.
const readChunkSize = 512

// waitResult classifies the outcome of one transport wait.
type waitResult int

const (
	waitData    waitResult = iota // bytes arrived
	waitTimeout                   // deadline expired with no data
	waitWake                      // out-of-band wake (stop request)
	waitClosed                    // transport error or EOF
)

// Monitor owns one session's read-wait-dispatch cycle.
//
// Start spawns the loop; Stop requests cooperative termination and
// joins it. Callers of Stop must not hold any lock the session's
// handlers need, since the loop acquires the session lock on its way
// to a clean stop.
type Monitor struct {
	session  *Session
	cfg      Config
	pool     *dispatch.Pool
	handler  ResponseHandler
	health   *HealthChecker
	store    *smsdb.Store
	reporter Reporter
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wake    chan struct{}
}

// NewMonitor wires a monitor for the given session. The store and
// reporter feed the expired-message tick; the handler is the
// command-protocol boundary.
func NewMonitor(session *Session, pool *dispatch.Pool, handler ResponseHandler,
	health *HealthChecker, store *smsdb.Store, reporter Reporter,
	logger *slog.Logger, cfg Config) *Monitor {

	cfg.setDefaults()
	return &Monitor{
		session:  session,
		cfg:      cfg,
		pool:     pool,
		handler:  handler,
		health:   health,
		store:    store,
		reporter: reporter,
		logger:   logger.With("device", session.ID()),
		wake:     make(chan struct{}, 1),
	}
}

// Start launches the monitor loop. The session must be connected. Any
// terminate request left behind by a self-restart exit is cleared so
// the new run begins clean.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}
	if !m.session.Connected() {
		return ErrNotConnected
	}

	s := m.session
	s.mu.Lock()
	s.terminate = false
	s.mu.Unlock()

	m.running = true
	m.done = make(chan struct{})
	go m.run(m.done)
	return nil
}

// Stop requests termination, wakes any blocking wait and joins the
// loop, then clears the terminate flag so a later Start begins clean.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	done := m.done
	m.mu.Unlock()

	m.session.RequestStop()
	select {
	case m.wake <- struct{}{}:
	default:
	}
	<-done

	s := m.session
	s.mu.Lock()
	s.terminate = false
	s.mu.Unlock()
}

// Done returns a channel closed when the current loop exits. Nil when
// the monitor never ran.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

func (m *Monitor) run(done chan struct{}) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(done)
	}()

	s := m.session
	rb := at.NewRingBuffer(m.cfg.RingBufferSize)

	s.mu.Lock()

	tps, err := m.pool.Serializer(s.id)
	if err != nil {
		m.logger.Error("Error initializing task queue", "error", err)
		m.cleanupLocked(s)
		s.disconnectLocked()
		s.mu.Unlock()
		return
	}
	defer tps.Close()

	// Copied once to keep the reader goroutine off the session lock.
	transport := s.transport

	if err := m.handler.EnqueueInitialization(s); err != nil {
		m.logger.Error("Error adding initialization commands to queue", "error", err)
		m.cleanupLocked(s)
		s.disconnectLocked()
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// The reader goroutine turns blocking reads into channel sends so
	// the loop can wait on data, deadlines and the wake signal in one
	// select. It exits when the transport is closed under it, or when
	// the run ends while it is waiting to hand off data.
	readCh := make(chan []byte, 8)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, readChunkSize)
		for {
			n, err := transport.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case readCh <- data:
				case <-done:
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		// Best-effort: one expired outgoing message surfaced per tick.
		if err := tps.Submit(m.purgeExpiredTask); err != nil {
			m.logger.Debug("Unable to handle expired reports", "error", err)
		}

		var data []byte
		var res waitResult

		if !s.mu.TryLock() { // session busy elsewhere
			data, res = m.wait(m.cfg.ResponseTimeout, readCh, readErr)
			switch res {
			case waitTimeout:
				m.submitAdvisory(tps, m.pingTask, "keepalive ping")
				continue
			case waitWake:
				continue
			case waitClosed:
				m.disconnect(s)
				return
			}
		} else {
			if err := m.health.Check(s); err != nil {
				m.cleanupLocked(s)
				s.disconnectLocked()
				s.mu.Unlock()
				return
			}
			if s.terminate {
				m.logger.Info("Stopping by request")
				s.disconnectLocked()
				s.mu.Unlock()
				return
			}

			remain, pending := s.queue.TimeUntilDeadline(time.Now())
			s.mu.Unlock()

			switch {
			case !pending:
				data, res = m.wait(m.cfg.ResponseTimeout, readCh, readErr)
				if res == waitTimeout {
					if m.congested(tps) {
						m.submitAdvisory(tps, m.restartTask, "restart monitor")
					}
					m.submitAdvisory(tps, m.pingTask, "keepalive ping")
					continue
				}

			case remain <= 0:
				// Deadline already passed: flag the timeout now, and
				// under congestion request a self-restart to shed
				// load, then give a late response one short chance.
				if m.congested(tps) {
					m.submitAdvisory(tps, m.restartTask, "restart monitor")
				}
				m.submitAdvisory(tps, m.timeoutTask, "command timeout")
				data, res = m.wait(m.cfg.UnhandledCommandTimeout, readCh, readErr)
				if res == waitTimeout {
					continue
				}

			default:
				data, res = m.wait(remain, readCh, readErr)
				if res == waitTimeout {
					m.submitAdvisory(tps, m.timeoutTask, "command timeout")
					continue
				}
			}

			if res == waitWake {
				continue
			}
			if res == waitClosed {
				m.disconnect(s)
				return
			}
		}

		// Data is ready: buffer it, note the bytes if the session lock
		// is free, then dispatch complete records in arrival order.
		if s.mu.TryLock() {
			s.stats.ReadBytes += uint64(len(data))
			s.mu.Unlock()
		}

		if err := m.pump(rb, data, tps); err != nil {
			if errors.Is(err, ErrLineTooLong) {
				m.logger.Error("Response framing error", "error", err)
				m.disconnect(s)
				return
			}
			// A rejected response submission loses the ordering
			// guarantee: restart without clearing the terminate flag.
			m.logger.Error("Fail to handle response", "error", err)
			s.mu.Lock()
			s.disconnectLocked()
			s.mu.Unlock()
			return
		}
	}
}

// wait blocks until data arrives, the timeout expires, a wake signal
// fires or the transport dies.
func (m *Monitor) wait(timeout time.Duration, readCh <-chan []byte, readErr <-chan error) ([]byte, waitResult) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-readCh:
		return data, waitData
	case err := <-readErr:
		m.logger.Error("Transport closed", "error", err)
		return nil, waitClosed
	case <-m.wake:
		return nil, waitWake
	case <-timer.C:
		return nil, waitTimeout
	}
}

// pump feeds raw bytes through the ring buffer and submits every
// complete record, in order, to the serializer. Submission failure is
// returned to the caller as fatal; a full buffer with no extractable
// record is a framing error.
func (m *Monitor) pump(rb *at.RingBuffer, data []byte, tps *dispatch.Serializer) error {
	for {
		n := rb.Free()
		if n > len(data) {
			n = len(data)
		}
		if n > 0 {
			rb.Write(data[:n])
			data = data[n:]
		}

		extracted := false
		for {
			rec, ok := rb.ExtractRecord()
			if !ok {
				break
			}
			extracted = true
			if err := tps.Submit(func() { m.handleRecordTask(rec) }); err != nil {
				return err
			}
		}

		if len(data) == 0 {
			return nil
		}
		if n == 0 && !extracted {
			return ErrLineTooLong
		}
	}
}

// submitAdvisory queues a best-effort task; rejection is logged and
// dropped without violating correctness, since these tasks are
// advisory.
func (m *Monitor) submitAdvisory(tps *dispatch.Serializer, task dispatch.Task, what string) {
	if err := tps.Submit(task); err != nil {
		m.logger.Debug("Unable to handle "+what, "error", err)
	}
}

// congested reports whether the serializer is at or above the
// high-water mark, logging any backlog.
func (m *Monitor) congested(tps *dispatch.Serializer) bool {
	size := tps.Len()
	suspended := tps.Suspended()
	if size > 0 || suspended {
		m.logger.Warn("Task queue backlog", "size", size, "suspended", suspended)
	}
	return size >= m.cfg.HighWater
}

// cleanupLocked handles the unsolicited-disconnect exit: an
// uninitialized session is an initialization failure, and the
// terminate flag is cleared to distinguish this from a requested stop.
// Caller holds the session lock.
func (m *Monitor) cleanupLocked(s *Session) {
	if !s.initialized {
		m.logger.Info("Error initializing device")
		if m.reporter != nil {
			m.reporter.Report(Report{Device: s.id, Info: "Initialization failed"})
		}
	}
	s.terminate = false
}

// disconnect is cleanupLocked plus teardown for exits that reach it
// without the session lock held.
func (m *Monitor) disconnect(s *Session) {
	s.mu.Lock()
	m.cleanupLocked(s)
	s.disconnectLocked()
	s.mu.Unlock()
}

// purgeExpiredTask surfaces at most one expired outgoing message per
// monitor tick and reports it upstream.
func (m *Monitor) purgeExpiredTask() {
	exp, err := m.store.PurgeOneExpired()
	if err != nil {
		m.logger.Warn("Failed to purge expired messages", "error", err)
		return
	}
	if exp == nil {
		return
	}
	m.logger.Info("Message expired", "uid", exp.UID, "dst", exp.Dst)
	if m.reporter != nil {
		m.reporter.Report(Report{
			Device:  m.session.ID(),
			Dst:     exp.Dst,
			UID:     exp.UID,
			Info:    "Message expired",
			Expired: true,
		})
	}
}

// pingTask queues a keepalive on an idle session.
func (m *Monitor) pingTask() {
	s := m.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := m.handler.EnqueuePing(s); err != nil {
		m.logger.Warn("Failed to enqueue ping", "error", err)
	}
}

// timeoutTask handles a head-of-queue command deadline. Commands still
// being transmitted are left alone; a failing timeout handler or a
// non-ignorable command terminates the session.
func (m *Monitor) timeoutTask() {
	s := m.session
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := s.queue.Head()
	if cmd == nil || !cmd.sent {
		return
	}
	flags := cmd.Flags

	if err := m.handler.HandleTimeout(s); err != nil {
		m.logger.Error("Fail to handle response", "error", err)
		s.terminate = true
		return
	}
	if flags&CmdIgnoreTimeout != 0 {
		return
	}
	s.terminate = true
}

// restartTask requests a self-restart; the loop observes the terminate
// flag on its next locked pass.
func (m *Monitor) restartTask() {
	m.session.RequestStop()
}

// handleRecordTask runs one response record through the handler under
// the session lock. Handler errors terminate the session.
func (m *Monitor) handleRecordTask(record string) {
	s := m.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := m.handler.HandleResponse(s, record); err != nil {
		m.logger.Error("Fail to handle response", "record", record, "error", err)
		s.terminate = true
	}
}
