package dedup

import (
	"context"
	"testing"
	"time"
)

func TestMemoryDeduperFirstSeen(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduper(time.Hour)

	first, err := d.FirstSeen(ctx, -100, 1001, false, "BUY @ 3345")
	if err != nil || !first {
		t.Fatalf("first sight = (%v, %v)", first, err)
	}
	again, _ := d.FirstSeen(ctx, -100, 1001, false, "BUY @ 3345")
	if again {
		t.Error("duplicate not detected")
	}

	// An edit of the same message is its own event.
	edit, _ := d.FirstSeen(ctx, -100, 1001, true, "BUY @ 3345\nSL 3330")
	if !edit {
		t.Error("edit event conflated with original")
	}

	// Different chat, same message id.
	other, _ := d.FirstSeen(ctx, -200, 1001, false, "BUY @ 3345")
	if !other {
		t.Error("chat id not part of the key")
	}
}

func TestMemoryDeduperSuccessiveEdits(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduper(time.Hour)

	if first, _ := d.FirstSeen(ctx, -100, 1001, false, "BUY @ 3345"); !first {
		t.Fatal("original rejected")
	}
	if first, _ := d.FirstSeen(ctx, -100, 1001, true, "BUY @ 3345\nSL 3332"); !first {
		t.Fatal("first edit rejected")
	}

	// A later edit with a different body is a new event.
	second, _ := d.FirstSeen(ctx, -100, 1001, true, "BUY @ 3345\nSL 3335")
	if !second {
		t.Error("second edit conflated with the first")
	}

	// A replay of an already-seen edit body is still a duplicate.
	replay, _ := d.FirstSeen(ctx, -100, 1001, true, "BUY @ 3345\nSL 3332")
	if replay {
		t.Error("replayed edit not detected")
	}
}

func TestMemoryDeduperExpiry(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduper(10 * time.Millisecond)

	if first, _ := d.FirstSeen(ctx, -100, 1, false, "x"); !first {
		t.Fatal("first sight rejected")
	}
	time.Sleep(20 * time.Millisecond)
	if again, _ := d.FirstSeen(ctx, -100, 1, false, "x"); !again {
		t.Error("expired entry still deduplicates")
	}
}
