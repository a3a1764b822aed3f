// Package smsdb persists SMS reassembly and delivery-tracking state in
// an embedded SQLite database.
//
// The store has two halves. Incoming: parts of concatenated messages
// are collected per (device, sender, reference, part count) key until
// the set is complete, then handed back assembled and cleared.
// Outgoing: rolling 8-bit reference counters per destination, plus one
// row per submitted message and per sent part so delivery status
// reports can be aggregated until every part reached a terminal
// outcome, and expired messages can be purged one at a time.
//
// Every public operation is one transaction under one process-wide
// lock. SMS volume is orders of magnitude below voice and data
// traffic, so a single-writer discipline buys correctness without a
// measurable cost. Statement or bind failures abort only the failing
// operation; the connection stays open until Close.
package smsdb

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	// Pure-Go SQLite driver, registered for database/sql. No CGO, so
	// the store cross-compiles and tests without a system sqlite3.
	_ "modernc.org/sqlite"
)

// Database name resolution. A configured path may designate an
// in-memory database, a non-persistent temporary database, or a named
// file that gets the SQLite suffix appended.
const (
	InMemoryName  = ":memory:"
	TemporaryName = ":temporary:"

	fileExt = ".sqlite3"
)

const maxKeyLen = 256

// Delivery status bits (GSM TP-Status). A part's outcome is terminal
// when the permanent-failure bit is set or the temporary bit is clear.
const (
	StatusTemporary = 0x20
	StatusFailed    = 0x40
)

// StatusSentinel terminates the status arrays returned by
// SetPartStatus. Report consumers parse the payload positionally, so
// the terminator is part of the observable format.
const StatusSentinel = -1

// DefaultIncomingTTL is how long incoming parts are retained while the
// rest of their message set is pending.
const DefaultIncomingTTL = 600 * time.Second

// Store owns the database connection and all prepared statements.
type Store struct {
	mu          sync.Mutex
	db          *sql.DB
	stmts       map[string]*sql.Stmt
	incomingTTL time.Duration
	closed      bool
}

// IncomingResult is the outcome of PutIncomingPart.
type IncomingResult struct {
	// Count is the number of parts now stored for the message key.
	Count int
	// Complete is set when the final part arrived and Message holds
	// the assembled text. The key's rows are already cleared.
	Complete bool
	Message  string
}

// PartState classifies the outcome of PutOutgoingPart.
type PartState int

const (
	// PartNotTracked: no delivery report was requested for the
	// message, completion is not checked.
	PartNotTracked PartState = iota
	// PartPending: more parts are expected before the message is
	// accounted for.
	PartPending
	// PartComplete: all parts are stored; the message was cleared and
	// Dst identifies the destination to report to.
	PartComplete
)

// PartResult is the outcome of PutOutgoingPart.
type PartResult struct {
	State PartState
	Dst   string
}

// StatusResult is the outcome of SetPartStatus.
type StatusResult struct {
	// Complete is set once every part of the message reached a
	// terminal outcome; the message and its parts are then cleared.
	Complete bool
	// Statuses holds every part's status in insertion (rowid) order,
	// terminated by StatusSentinel. Only populated when Complete.
	Statuses []int
}

// Expired identifies a purged outgoing message.
type Expired struct {
	UID int64
	Dst string
}

// resolveName maps a configured database path to the name passed to
// the driver.
func resolveName(path string) string {
	switch {
	case strings.HasPrefix(path, InMemoryName):
		return InMemoryName
	case strings.HasPrefix(path, TemporaryName):
		return ""
	default:
		return path + fileExt
	}
}

// Open creates or opens the SMS database at the given path and
// prepares all statements. incomingTTL bounds how long partial
// incoming messages are retained; zero selects DefaultIncomingTTL.
func Open(path string, incomingTTL time.Duration) (*Store, error) {
	if incomingTTL <= 0 {
		incomingTTL = DefaultIncomingTTL
	}

	db, err := sql.Open("sqlite", resolveName(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection only: transactions and prepared statements must
	// share it, and an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, ddl := range schema {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	s := &Store{
		db:          db,
		stmts:       make(map[string]*sql.Stmt, len(statements)),
		incomingTTL: incomingTTL,
	}
	for _, st := range statements {
		prepared, err := db.Prepare(st.sql)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("prepare %s: %w", st.name, err)
		}
		s.stmts[st.name] = prepared
	}

	return s, nil
}

// Close finalizes all prepared statements and closes the connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, stmt := range s.stmts {
		stmt.Close()
	}
	return s.db.Close()
}

// withTx runs fn inside one transaction under the store lock. The lock
// spans begin through commit so commit and rollback stay atomic with
// respect to concurrent callers from any device.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// stmt binds a prepared statement to the given transaction.
func (s *Store) stmt(tx *sql.Tx, name string) *sql.Stmt {
	return tx.Stmt(s.stmts[name])
}

func makeKey(parts ...any) (string, error) {
	elems := make([]string, len(parts))
	for i, p := range parts {
		elems[i] = fmt.Sprint(p)
	}
	key := strings.Join(elems, "/")
	if len(key) > maxKeyLen {
		return "", ErrKeyTooLong
	}
	return key, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	return int64(ttl / time.Second)
}

// PutIncomingPart stores one part of a concatenated incoming message
// and reports how many parts of the set are present. Once every part
// of the set is present, in whatever delivery order, the parts are
// concatenated in sequence order, the key's rows are cleared and the
// assembled message is returned.
//
// A re-delivered part replaces its previous row, so duplicates never
// inflate the count.
func (s *Store) PutIncomingPart(device, sender string, ref, parts, order int, message string) (IncomingResult, error) {
	var res IncomingResult

	key, err := makeKey(device, sender, ref, parts)
	if err != nil {
		return res, err
	}

	err = s.withTx(func(tx *sql.Tx) error {
		if _, err := s.stmt(tx, stmtPutMessage).Exec(key, order, ttlSeconds(s.incomingTTL), message); err != nil {
			return fmt.Errorf("store part: %w", err)
		}

		if err := s.stmt(tx, stmtGetCnt).QueryRow(key).Scan(&res.Count); err != nil {
			return fmt.Errorf("count parts: %w", err)
		}

		if res.Count != parts {
			return nil
		}

		rows, err := s.stmt(tx, stmtGetFullMessage).Query(key)
		if err != nil {
			return fmt.Errorf("read parts: %w", err)
		}
		defer rows.Close()

		var sb strings.Builder
		for rows.Next() {
			var part string
			if err := rows.Scan(&part); err != nil {
				return fmt.Errorf("scan part: %w", err)
			}
			sb.WriteString(part)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("read parts: %w", err)
		}

		if _, err := s.stmt(tx, stmtClearMessages).Exec(key); err != nil {
			return fmt.Errorf("clear parts: %w", err)
		}

		res.Complete = true
		res.Message = sb.String()
		return nil
	})
	return res, err
}

// AllocateRef returns the next SMS reference number for the given
// destination, always in [0,255]. The first allocation for a
// destination yields 0; the counter increments on every call and wraps
// past 255 back to 0.
//
// The increment happens before the wrap check, so 255 is handed out as
// a value and the wrap to 0 is the following allocation. Callers
// depend on this exact sequence; do not "fix" it.
func (s *Store) AllocateRef(device, addr string) (int, error) {
	key, err := makeKey(device, addr)
	if err != nil {
		return 0, err
	}

	ref := 0
	err = s.withTx(func(tx *sql.Tx) error {
		insert := false
		err := s.stmt(tx, stmtGetOutgoingRef).QueryRow(key).Scan(&ref)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			ref = 255 // incremented below, first allocation is 0
			insert = true
		case err != nil:
			return fmt.Errorf("read reference: %w", err)
		}

		ref++
		if ref >= 256 {
			ref = 0
		}

		name := stmtSetOutgoingRef
		if insert {
			name = stmtInsOutgoingRef
		}
		if _, err := s.stmt(tx, name).Exec(ref, key); err != nil {
			return fmt.Errorf("write reference: %w", err)
		}
		return nil
	})
	return ref, err
}

// CreateOutgoing records a new outgoing multipart message with the
// expected part count, a TTL-derived expiration and the
// status-report-request flag, returning its generated uid.
func (s *Store) CreateOutgoing(device, addr string, count int, ttl time.Duration, srr bool) (int64, error) {
	var uid int64
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := s.stmt(tx, stmtPutOutgoingMsg).Exec(device, addr, count, ttlSeconds(ttl), srr)
		if err != nil {
			return fmt.Errorf("store message: %w", err)
		}
		uid, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("message uid: %w", err)
		}
		return nil
	})
	return uid, err
}

// clearOutgoing deletes a message and all its parts. Caller holds the
// transaction.
func (s *Store) clearOutgoing(tx *sql.Tx, uid int64) error {
	if _, err := s.stmt(tx, stmtDelOutgoingMsg).Exec(uid); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if _, err := s.stmt(tx, stmtDelOutgoingPrt).Exec(uid); err != nil {
		return fmt.Errorf("delete parts: %w", err)
	}
	return nil
}

// ClearOutgoing removes a message and its parts regardless of state,
// returning the destination address for reporting. Used when
// submission of a later part fails and tracking must be abandoned.
func (s *Store) ClearOutgoing(uid int64) (string, error) {
	var dst string
	err := s.withTx(func(tx *sql.Tx) error {
		if err := s.stmt(tx, stmtGetDst).QueryRow(uid).Scan(&dst); err != nil {
			return fmt.Errorf("read destination: %w", err)
		}
		return s.clearOutgoing(tx, uid)
	})
	return dst, err
}

// PutOutgoingPart records one submitted part of an outgoing message,
// keyed by the reference number allocated for it.
//
// If the message did not request delivery reports (or is unknown), the
// part is not tracked further. Otherwise, once the number of recorded
// parts equals the message's expected count, PartComplete is returned
// together with the destination address; the rows stay behind for
// SetPartStatus, which clears them when delivery settles.
func (s *Store) PutOutgoingPart(uid int64, ref int) (PartResult, error) {
	res := PartResult{State: PartPending}

	err := s.withTx(func(tx *sql.Tx) error {
		var dev, dst string
		var srr bool
		err := s.stmt(tx, stmtGetOutgoingMsg).QueryRow(uid).Scan(&dev, &dst, &srr)
		if errors.Is(err, sql.ErrNoRows) {
			res.State = PartNotTracked
			return nil
		}
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		key, err := makeKey(dev, dst, ref)
		if err != nil {
			return err
		}
		if _, err := s.stmt(tx, stmtPutOutgoingPrt).Exec(key, uid); err != nil {
			return fmt.Errorf("store part: %w", err)
		}

		if !srr {
			res.State = PartNotTracked
			return nil
		}

		var want, have int
		if err := s.stmt(tx, stmtCntAllParts).QueryRow(uid).Scan(&want, &have); err != nil {
			return fmt.Errorf("count parts: %w", err)
		}
		if want != have {
			return nil // still pending
		}

		if err := s.stmt(tx, stmtGetDst).QueryRow(uid).Scan(&res.Dst); err != nil {
			return fmt.Errorf("read destination: %w", err)
		}
		res.State = PartComplete
		return nil
	})
	return res, err
}

// SetPartStatus applies a delivery status report to the part matching
// (device, address, reference) and recomputes completion for its
// message. Completion counts parts whose status is terminal: the
// permanent-failure bit set, or the temporary bit clear. Once every
// part is terminal, the statuses are collected in insertion order
// (StatusSentinel-terminated), the message and parts are cleared, and
// Complete is set.
func (s *Store) SetPartStatus(device, addr string, ref, status int) (StatusResult, error) {
	var res StatusResult

	key, err := makeKey(device, addr, ref)
	if err != nil {
		return res, err
	}

	err = s.withTx(func(tx *sql.Tx) error {
		var rowid, uid int64
		err := s.stmt(tx, stmtGetOutgoingPrt).QueryRow(key).Scan(&rowid, &uid)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPartNotFound
		}
		if err != nil {
			return fmt.Errorf("read part: %w", err)
		}

		if _, err := s.stmt(tx, stmtSetOutgoingPrt).Exec(status, rowid); err != nil {
			return fmt.Errorf("set status: %w", err)
		}

		var want, terminal int
		if err := s.stmt(tx, stmtCntOutgoingPrt).QueryRow(uid).Scan(&want, &terminal); err != nil {
			return fmt.Errorf("count terminal parts: %w", err)
		}
		if want != terminal {
			return nil // still pending
		}

		rows, err := s.stmt(tx, stmtGetAllStatus).Query(uid)
		if err != nil {
			return fmt.Errorf("read statuses: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var st sql.NullInt64
			if err := rows.Scan(&st); err != nil {
				return fmt.Errorf("scan status: %w", err)
			}
			res.Statuses = append(res.Statuses, int(st.Int64))
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("read statuses: %w", err)
		}
		res.Statuses = append(res.Statuses, StatusSentinel)

		if err := s.clearOutgoing(tx, uid); err != nil {
			return err
		}
		res.Complete = true
		return nil
	})
	return res, err
}

// PurgeOneExpired removes at most one outgoing message whose
// expiration is strictly in the past, returning its uid and
// destination, or nil when nothing has expired. One row per call keeps
// cleanup from competing with live traffic inside a single monitor
// tick; the monitor loop calls this every iteration.
func (s *Store) PurgeOneExpired() (*Expired, error) {
	var exp *Expired
	err := s.withTx(func(tx *sql.Tx) error {
		var uid int64
		var dst string
		err := s.stmt(tx, stmtGetExpired).QueryRow().Scan(&uid, &dst)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read expired: %w", err)
		}
		if err := s.clearOutgoing(tx, uid); err != nil {
			return err
		}
		exp = &Expired{UID: uid, Dst: dst}
		return nil
	})
	return exp, err
}
