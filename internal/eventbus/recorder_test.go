package eventbus

import "testing"

func TestRecorderRetainsInOrder(t *testing.T) {
	b := New()
	r := NewRecorder(b, 8)
	defer r.Close()

	b.Publish(Event{Type: TypeScheduled, RecordID: "a"})
	b.Publish(Event{Type: TypeReminded, RecordID: "a"})
	b.Publish(Event{Type: TypeExecuted, RecordID: "a"})

	got := r.Recent()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Type != TypeScheduled || got[2].Type != TypeExecuted {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Time.IsZero() {
		t.Fatal("publish must stamp the event time")
	}
}

func TestRecorderDropsOldestBeyondCapacity(t *testing.T) {
	b := New()
	r := NewRecorder(b, 2)
	defer r.Close()

	b.Publish(Event{Type: TypeScheduled})
	b.Publish(Event{Type: TypeReminded})
	// Drain into the ring so the buffered subscription has room again.
	_ = r.Recent()
	b.Publish(Event{Type: TypeExecuted})

	got := r.Recent()
	if len(got) != 2 {
		t.Fatalf("expected 2 retained events, got %d", len(got))
	}
	if got[0].Type != TypeReminded || got[1].Type != TypeExecuted {
		t.Fatalf("expected oldest dropped, got %+v", got)
	}
}

func TestRecorderAfterClose(t *testing.T) {
	b := New()
	r := NewRecorder(b, 4)

	b.Publish(Event{Type: TypeScheduled})
	_ = r.Recent()
	r.Close()

	b.Publish(Event{Type: TypeExecuted}) // no longer subscribed
	got := r.Recent()
	if len(got) != 1 || got[0].Type != TypeScheduled {
		t.Fatalf("expected only pre-close events, got %+v", got)
	}
}
