package storage

import (
	"context"
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, time.May, 2, 14, 3, 9, 0, time.FixedZone("CEST", 2*3600))
	got := ObjectKey("3f1c", ".pdf", at)
	if got != "exports/3f1c/20260502T120309Z.pdf" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := ObjectKey("3f1c", "html", at); got != "exports/3f1c/20260502T120309Z.html" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestNewArchiveRequiresEndpointAndBucket(t *testing.T) {
	if _, err := NewArchive(context.Background(), Config{Bucket: "wisdom-exports"}); err == nil {
		t.Fatal("expected error without endpoint")
	}
	if _, err := NewArchive(context.Background(), Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}
