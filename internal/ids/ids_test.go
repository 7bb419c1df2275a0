package ids

import (
	"testing"
	"time"
)

func TestNewIsMonotonic(t *testing.T) {
	now := time.Now()
	prev := NewAt(now)
	for i := 0; i < 100; i++ {
		next := NewAt(now)
		if next <= prev {
			t.Fatalf("ids not increasing: %s <= %s", next, prev)
		}
		prev = next
	}
}

func TestNewAtOrdersByTimestamp(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	later := NewAt(at.Add(time.Millisecond))
	earlier := NewAt(at)
	if earlier >= later {
		t.Fatalf("expected %s < %s", earlier, later)
	}
	if len(earlier) != 26 {
		t.Fatalf("unexpected id length %d", len(earlier))
	}
}
