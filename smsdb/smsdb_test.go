package smsdb_test

import (
	"errors"
	"testing"
	"time"

	"github.com/telqo/gsmbridge/smsdb"
)

func newStore(t *testing.T) *smsdb.Store {
	t.Helper()
	store, err := smsdb.Open(smsdb.InMemoryName, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutIncomingPartReassembly(t *testing.T) {
	tests := []struct {
		name     string
		orders   []int
		payloads []string
		want     string
	}{
		{
			name:     "In order",
			orders:   []int{1, 2, 3},
			payloads: []string{"A", "B", "C"},
			want:     "ABC",
		},
		{
			name:     "Reverse order",
			orders:   []int{3, 2, 1},
			payloads: []string{"C", "B", "A"},
			want:     "ABC",
		},
		{
			name:     "Mixed order",
			orders:   []int{2, 3, 1},
			payloads: []string{"bb", "cc", "aa"},
			want:     "aabbcc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			parts := len(tt.orders)

			var last smsdb.IncomingResult
			seen := 0
			for i, order := range tt.orders {
				res, err := store.PutIncomingPart("imsi1", "+15555550123", 7, parts, order, tt.payloads[i])
				if err != nil {
					t.Fatalf("PutIncomingPart(order=%d) failed: %v", order, err)
				}
				seen++
				if res.Count != seen {
					t.Errorf("Part %d: expected count %d, got %d", order, seen, res.Count)
				}
				last = res
			}

			if !last.Complete {
				t.Fatal("Expected message to be complete after final part")
			}
			if last.Message != tt.want {
				t.Errorf("Expected assembled message %q, got %q", tt.want, last.Message)
			}

			// The key's rows must be gone: the same first part starts
			// a fresh set with count 1.
			res, err := store.PutIncomingPart("imsi1", "+15555550123", 7, parts, 1, "A")
			if err != nil {
				t.Fatalf("PutIncomingPart after completion failed: %v", err)
			}
			if res.Count != 1 || res.Complete {
				t.Errorf("Expected fresh set with count 1, got count=%d complete=%v", res.Count, res.Complete)
			}
		})
	}
}

func TestPutIncomingPartReplacesDuplicate(t *testing.T) {
	store := newStore(t)

	if _, err := store.PutIncomingPart("imsi1", "+1555", 1, 2, 1, "first"); err != nil {
		t.Fatalf("PutIncomingPart failed: %v", err)
	}
	res, err := store.PutIncomingPart("imsi1", "+1555", 1, 2, 1, "redelivered")
	if err != nil {
		t.Fatalf("PutIncomingPart failed: %v", err)
	}
	if res.Count != 1 {
		t.Errorf("Duplicate part must replace, not add: count=%d", res.Count)
	}

	res, err = store.PutIncomingPart("imsi1", "+1555", 1, 2, 2, "!")
	if err != nil {
		t.Fatalf("PutIncomingPart failed: %v", err)
	}
	if !res.Complete || res.Message != "redelivered!" {
		t.Errorf("Expected %q, got complete=%v %q", "redelivered!", res.Complete, res.Message)
	}
}

func TestPutIncomingPartSingle(t *testing.T) {
	store := newStore(t)

	res, err := store.PutIncomingPart("imsi1", "+1555", 0, 1, 1, "short")
	if err != nil {
		t.Fatalf("PutIncomingPart failed: %v", err)
	}
	if !res.Complete || res.Message != "short" {
		t.Errorf("One-part message must complete immediately, got complete=%v %q", res.Complete, res.Message)
	}
}

func TestPutIncomingPartDistinctKeys(t *testing.T) {
	store := newStore(t)

	// Same reference, different senders: independent sets.
	if _, err := store.PutIncomingPart("imsi1", "+1111", 9, 2, 1, "x"); err != nil {
		t.Fatalf("PutIncomingPart failed: %v", err)
	}
	res, err := store.PutIncomingPart("imsi1", "+2222", 9, 2, 1, "y")
	if err != nil {
		t.Fatalf("PutIncomingPart failed: %v", err)
	}
	if res.Count != 1 {
		t.Errorf("Expected independent count 1, got %d", res.Count)
	}
}

func TestAllocateRefSequenceAndWrap(t *testing.T) {
	store := newStore(t)

	first, err := store.AllocateRef("imsi1", "+15555550123")
	if err != nil {
		t.Fatalf("AllocateRef failed: %v", err)
	}
	if first != 0 {
		t.Fatalf("First allocation must be 0, got %d", first)
	}

	// 256 more allocations walk the full space and wrap: call 257
	// yields the same value as call 1.
	var last int
	for i := 0; i < 256; i++ {
		ref, err := store.AllocateRef("imsi1", "+15555550123")
		if err != nil {
			t.Fatalf("AllocateRef %d failed: %v", i, err)
		}
		if ref < 0 || ref > 255 {
			t.Fatalf("Reference %d out of range [0,255]", ref)
		}
		last = ref
	}
	if last != first {
		t.Errorf("Call 257 should wrap to %d, got %d", first, last)
	}

	// 255 is handed out as a value before wrapping.
	seen255 := false
	for i := 0; i < 256; i++ {
		ref, err := store.AllocateRef("imsi1", "+15555550123")
		if err != nil {
			t.Fatalf("AllocateRef failed: %v", err)
		}
		if ref == 255 {
			seen255 = true
		}
	}
	if !seen255 {
		t.Error("Expected 255 to appear in a full cycle")
	}
}

func TestAllocateRefPerDestination(t *testing.T) {
	store := newStore(t)

	for i := 0; i < 3; i++ {
		if _, err := store.AllocateRef("imsi1", "+1111"); err != nil {
			t.Fatalf("AllocateRef failed: %v", err)
		}
	}
	ref, err := store.AllocateRef("imsi1", "+2222")
	if err != nil {
		t.Fatalf("AllocateRef failed: %v", err)
	}
	if ref != 0 {
		t.Errorf("Counters are per destination; expected 0, got %d", ref)
	}
}

func TestPutOutgoingPartWithoutReports(t *testing.T) {
	store := newStore(t)

	uid, err := store.CreateOutgoing("imsi1", "+1555", 2, time.Hour, false)
	if err != nil {
		t.Fatalf("CreateOutgoing failed: %v", err)
	}

	for ref := 0; ref < 2; ref++ {
		res, err := store.PutOutgoingPart(uid, ref)
		if err != nil {
			t.Fatalf("PutOutgoingPart failed: %v", err)
		}
		if res.State != smsdb.PartNotTracked {
			t.Errorf("srr=false must never report complete, got state %v", res.State)
		}
	}
}

func TestPutOutgoingPartCompletion(t *testing.T) {
	store := newStore(t)

	uid, err := store.CreateOutgoing("imsi1", "+1555", 3, time.Hour, true)
	if err != nil {
		t.Fatalf("CreateOutgoing failed: %v", err)
	}

	for ref := 0; ref < 2; ref++ {
		res, err := store.PutOutgoingPart(uid, ref)
		if err != nil {
			t.Fatalf("PutOutgoingPart failed: %v", err)
		}
		if res.State != smsdb.PartPending {
			t.Errorf("Part %d: expected pending, got %v", ref, res.State)
		}
	}

	res, err := store.PutOutgoingPart(uid, 2)
	if err != nil {
		t.Fatalf("PutOutgoingPart failed: %v", err)
	}
	if res.State != smsdb.PartComplete {
		t.Fatalf("Expected complete after final part, got %v", res.State)
	}
	if res.Dst != "+1555" {
		t.Errorf("Expected destination +1555, got %q", res.Dst)
	}

	// The rows stay behind for delivery tracking.
	for ref := 0; ref < 3; ref++ {
		sres, err := store.SetPartStatus("imsi1", "+1555", ref, 0)
		if err != nil {
			t.Fatalf("SetPartStatus failed: %v", err)
		}
		if want := ref == 2; sres.Complete != want {
			t.Errorf("Report %d: expected complete=%v, got %v", ref, want, sres.Complete)
		}
	}
}

func TestSetPartStatusAggregation(t *testing.T) {
	store := newStore(t)

	uid, err := store.CreateOutgoing("imsi1", "+1555", 2, time.Hour, true)
	if err != nil {
		t.Fatalf("CreateOutgoing failed: %v", err)
	}
	refA, err := store.AllocateRef("imsi1", "+1555")
	if err != nil {
		t.Fatalf("AllocateRef failed: %v", err)
	}
	refB, err := store.AllocateRef("imsi1", "+1555")
	if err != nil {
		t.Fatalf("AllocateRef failed: %v", err)
	}
	for _, ref := range []int{refA, refB} {
		if _, err := store.PutOutgoingPart(uid, ref); err != nil {
			t.Fatalf("PutOutgoingPart failed: %v", err)
		}
	}

	// First terminal status: still pending.
	res, err := store.SetPartStatus("imsi1", "+1555", refA, 0)
	if err != nil {
		t.Fatalf("SetPartStatus failed: %v", err)
	}
	if res.Complete {
		t.Fatal("Message with cnt=2 must not complete after one report")
	}

	// A temporary (non-terminal) status on the second part keeps it pending.
	res, err = store.SetPartStatus("imsi1", "+1555", refB, smsdb.StatusTemporary)
	if err != nil {
		t.Fatalf("SetPartStatus failed: %v", err)
	}
	if res.Complete {
		t.Fatal("Temporary status is not terminal")
	}

	// Permanent failure is terminal and completes the message.
	res, err = store.SetPartStatus("imsi1", "+1555", refB, smsdb.StatusFailed)
	if err != nil {
		t.Fatalf("SetPartStatus failed: %v", err)
	}
	if !res.Complete {
		t.Fatal("Expected completion once both parts are terminal")
	}

	want := []int{0, smsdb.StatusFailed, smsdb.StatusSentinel}
	if len(res.Statuses) != len(want) {
		t.Fatalf("Expected statuses %v, got %v", want, res.Statuses)
	}
	for i, st := range want {
		if res.Statuses[i] != st {
			t.Errorf("Status %d: expected %d, got %d", i, st, res.Statuses[i])
		}
	}

	// Cleared: a late report no longer finds the part.
	if _, err := store.SetPartStatus("imsi1", "+1555", refA, 0); !errors.Is(err, smsdb.ErrPartNotFound) {
		t.Errorf("Expected ErrPartNotFound after clear, got %v", err)
	}
}

func TestSetPartStatusUnknownPart(t *testing.T) {
	store := newStore(t)
	if _, err := store.SetPartStatus("imsi1", "+1555", 42, 0); !errors.Is(err, smsdb.ErrPartNotFound) {
		t.Errorf("Expected ErrPartNotFound, got %v", err)
	}
}

func TestPurgeOneExpired(t *testing.T) {
	store := newStore(t)

	// Two already-expired messages and one live one.
	var expired []int64
	for i := 0; i < 2; i++ {
		uid, err := store.CreateOutgoing("imsi1", "+1555", 1, -time.Hour, true)
		if err != nil {
			t.Fatalf("CreateOutgoing failed: %v", err)
		}
		expired = append(expired, uid)
	}
	live, err := store.CreateOutgoing("imsi1", "+1555", 1, time.Hour, true)
	if err != nil {
		t.Fatalf("CreateOutgoing failed: %v", err)
	}

	// Drained strictly one per call.
	seen := make(map[int64]bool)
	for i := 0; i < 2; i++ {
		exp, err := store.PurgeOneExpired()
		if err != nil {
			t.Fatalf("PurgeOneExpired failed: %v", err)
		}
		if exp == nil {
			t.Fatalf("Call %d: expected an expired message", i)
		}
		if exp.UID == live {
			t.Fatal("Purged a message whose expiration is in the future")
		}
		if seen[exp.UID] {
			t.Fatalf("Message %d purged twice", exp.UID)
		}
		seen[exp.UID] = true
		if exp.Dst != "+1555" {
			t.Errorf("Expected destination +1555, got %q", exp.Dst)
		}
	}
	for _, uid := range expired {
		if !seen[uid] {
			t.Errorf("Expired message %d never purged", uid)
		}
	}

	// Nothing further to purge.
	exp, err := store.PurgeOneExpired()
	if err != nil {
		t.Fatalf("PurgeOneExpired failed: %v", err)
	}
	if exp != nil {
		t.Errorf("Expected no expired rows, got uid %d", exp.UID)
	}
}

func TestClearOutgoing(t *testing.T) {
	store := newStore(t)

	uid, err := store.CreateOutgoing("imsi1", "+1555", 2, time.Hour, true)
	if err != nil {
		t.Fatalf("CreateOutgoing failed: %v", err)
	}
	if _, err := store.PutOutgoingPart(uid, 0); err != nil {
		t.Fatalf("PutOutgoingPart failed: %v", err)
	}

	dst, err := store.ClearOutgoing(uid)
	if err != nil {
		t.Fatalf("ClearOutgoing failed: %v", err)
	}
	if dst != "+1555" {
		t.Errorf("Expected destination +1555, got %q", dst)
	}

	res, err := store.PutOutgoingPart(uid, 1)
	if err != nil {
		t.Fatalf("PutOutgoingPart failed: %v", err)
	}
	if res.State != smsdb.PartNotTracked {
		t.Errorf("Expected cleared uid to be untracked, got %v", res.State)
	}
}

func TestStoreUsableAfterOperationError(t *testing.T) {
	store := newStore(t)

	// A failing operation must not poison the connection.
	if _, err := store.SetPartStatus("imsi1", "+1555", 1, 0); err == nil {
		t.Fatal("Expected error for unknown part")
	}

	if _, err := store.AllocateRef("imsi1", "+1555"); err != nil {
		t.Fatalf("Store unusable after failed operation: %v", err)
	}
}

func TestOpenAfterClose(t *testing.T) {
	store, err := smsdb.Open(smsdb.InMemoryName, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := store.AllocateRef("imsi1", "+1555"); !errors.Is(err, smsdb.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
