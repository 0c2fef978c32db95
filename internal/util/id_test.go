package util

import (
	"strings"
	"testing"
)

func TestNewUUIDIsParseable(t *testing.T) {
	id := NewUUID()
	if !IsUUID(id) {
		t.Fatalf("expected uuid, got %q", id)
	}
	if NewUUID() == id {
		t.Fatalf("expected distinct ids")
	}
}

func TestNewIDPrefix(t *testing.T) {
	id := NewID("jti")
	if !strings.HasPrefix(id, "jti_") {
		t.Fatalf("expected jti_ prefix, got %q", id)
	}
	if len(id) != len("jti_")+32 {
		t.Fatalf("unexpected length for %q", id)
	}
	if strings.Contains(NewID(""), "_") {
		t.Fatalf("unprefixed id should not contain underscore")
	}
}

func TestIsUUIDRejectsGarbage(t *testing.T) {
	for _, value := range []string{"", "abc", "thread-1:slug"} {
		if IsUUID(value) {
			t.Fatalf("expected %q to be rejected", value)
		}
	}
}
