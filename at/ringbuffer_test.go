package at_test

import (
	"errors"
	"testing"

	"github.com/telqo/gsmbridge/at"
)

func TestRingBufferExtractRecord(t *testing.T) {
	tests := []struct {
		name     string
		input    []string // successive writes
		expected []string
	}{
		{
			name:     "Simple response",
			input:    []string{"+CSQ: 15,99\r\nOK\r\n"},
			expected: []string{"+CSQ: 15,99", "OK"},
		},
		{
			name:     "Record split across reads",
			input:    []string{"+CMT: \"+155555", "50123\",,\"24/01/01\"\r\nhello\r\n"},
			expected: []string{"+CMT: \"+15555550123\",,\"24/01/01\"", "hello"},
		},
		{
			name:     "Empty lines skipped",
			input:    []string{"\r\n\r\nOK\r\n\r\n"},
			expected: []string{"OK"},
		},
		{
			name:     "SMS prompt",
			input:    []string{"> "},
			expected: []string{"> "},
		},
		{
			name:     "Prompt after final response",
			input:    []string{"OK\r\n> "},
			expected: []string{"OK", "> "},
		},
		{
			name:     "Incomplete record stays buffered",
			input:    []string{"+CSQ: 15"},
			expected: nil,
		},
		{
			name:     "Send sequence with prompt mid-stream",
			input:    []string{"> ", "+CMGS: 123\r\nOK\r\n"},
			expected: []string{"> ", "+CMGS: 123", "OK"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := at.NewRingBuffer(64)
			var records []string
			for _, chunk := range tt.input {
				if _, err := rb.Write([]byte(chunk)); err != nil {
					t.Fatalf("Write failed: %v", err)
				}
				for {
					rec, ok := rb.ExtractRecord()
					if !ok {
						break
					}
					records = append(records, rec)
				}
			}

			if len(records) != len(tt.expected) {
				t.Fatalf("Expected %d records, got %d.\nExpected: %v\nGot: %v",
					len(tt.expected), len(records), tt.expected, records)
			}
			for i, expected := range tt.expected {
				if records[i] != expected {
					t.Errorf("Record %d: expected %q, got %q", i, expected, records[i])
				}
			}
		})
	}
}

func TestRingBufferWrap(t *testing.T) {
	rb := at.NewRingBuffer(16)

	// Fill and drain repeatedly so the cursors wrap around the capacity.
	for i := 0; i < 10; i++ {
		if _, err := rb.Write([]byte("RING\r\n")); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
		rec, ok := rb.ExtractRecord()
		if !ok {
			t.Fatalf("Expected record on iteration %d", i)
		}
		if rec != "RING" {
			t.Errorf("Iteration %d: expected RING, got %q", i, rec)
		}
		if rb.Len() != 0 {
			t.Errorf("Iteration %d: expected empty buffer, got %d bytes", i, rb.Len())
		}
	}
}

func TestRingBufferFull(t *testing.T) {
	rb := at.NewRingBuffer(8)
	if _, err := rb.Write([]byte("12345678")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := rb.Write([]byte("9")); !errors.Is(err, at.ErrBufferFull) {
		t.Fatalf("Expected ErrBufferFull, got %v", err)
	}
	if rb.Free() != 0 {
		t.Errorf("Expected no free space, got %d", rb.Free())
	}
}
