package types

import (
	"testing"
)

func TestParseID(t *testing.T) {
	id, err := ParseID("6BA7B810-9DAD-11D1-80B4-00C04FD430C8")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if id.String() != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("Expected canonical form, got %s", id)
	}

	if _, err := ParseID("not-a-uuid"); err == nil {
		t.Error("Expected error for invalid ID")
	}
}

func TestIDScan(t *testing.T) {
	var id ID
	raw := [16]byte{0x6b, 0xa7, 0xb8, 0x10, 0x9d, 0xad, 0x11, 0xd1, 0x80, 0xb4, 0x00, 0xc0, 0x4f, 0xd4, 0x30, 0xc8}
	if err := id.Scan(raw); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if id != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("Unexpected scan result %s", id)
	}

	if err := id.Scan(nil); err != nil || !id.IsZero() {
		t.Error("Expected nil to scan into zero ID")
	}

	if err := id.Scan(42); err == nil {
		t.Error("Expected error scanning int")
	}
}
