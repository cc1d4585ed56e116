package ids

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewAtIsSortableWithinSameMillisecond(t *testing.T) {
	at := time.Date(2026, 5, 3, 10, 0, 0, 0, time.UTC)
	a, b := NewAt(at), NewAt(at)
	if a >= b {
		t.Fatalf("expected monotonic ids, got %s then %s", a, b)
	}
	parsed, err := ulid.Parse(a)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := ulid.Time(parsed.Time()); !got.Equal(at) {
		t.Fatalf("timestamp = %v, want %v", got, at)
	}
}

func TestSecretLengthAndUniqueness(t *testing.T) {
	a, err := Secret(32)
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	b, _ := Secret(32)
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == b {
		t.Fatal("secrets must differ")
	}
}
