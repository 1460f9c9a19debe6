package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "reaperd/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []string
	fail  int // fail this many sends before succeeding
	calls int
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) Send(ctx context.Context, dest, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail > 0 {
		f.fail--
		return errors.New("boom")
	}
	f.sent = append(f.sent, dest+": "+text)
	return nil
}

func (f *fakeAdapter) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestNotifyDelivers(t *testing.T) {
	ad := &fakeAdapter{}
	s := New(Config{Enabled: true, RatePerSec: 100}, ad, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), "#ops", "hello"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { return ad.sentCount() == 1 })
}

func TestNotifyRetries(t *testing.T) {
	ad := &fakeAdapter{fail: 2}
	cfg := Config{
		Enabled:    true,
		RatePerSec: 100,
		RetryMax:   3,
		RetryBase:  time.Millisecond,
	}
	s := New(cfg, ad, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), "#ops", "retry me"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { return ad.sentCount() == 1 })
}

func TestNotifyDedup(t *testing.T) {
	ad := &fakeAdapter{}
	cfg := Config{Enabled: true, RatePerSec: 100, DedupWindow: time.Minute}
	s := New(cfg, ad, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	for i := 0; i < 3; i++ {
		if err := s.Notify(context.Background(), "#ops", "same text"); err != nil {
			t.Fatalf("Notify %d: %v", i, err)
		}
	}
	waitFor(t, func() bool { return ad.sentCount() == 1 })
	time.Sleep(50 * time.Millisecond)
	if n := ad.sentCount(); n != 1 {
		t.Fatalf("expected 1 delivery after dedup, got %d", n)
	}
}

func TestNotifyDisabled(t *testing.T) {
	s := New(Config{Enabled: false}, &fakeAdapter{}, logx.Nop(), nil)
	if err := s.Notify(context.Background(), "#ops", "x"); err != ErrDisabled {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestNotifyStopped(t *testing.T) {
	s := New(Config{Enabled: true}, &fakeAdapter{}, logx.Nop(), nil)
	// Never started.
	if err := s.Notify(context.Background(), "#ops", "x"); err != ErrStopped {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestStopDrainsQueue(t *testing.T) {
	ad := &fakeAdapter{}
	s := New(Config{Enabled: true, RatePerSec: 1000, Workers: 1}, ad, logx.Nop(), nil)
	s.Start(context.Background())

	for i := 0; i < 5; i++ {
		if err := s.Enqueue(context.Background(), Notification{Destination: "#ops", Text: time.Now().Add(time.Duration(i)).String()}); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	s.Stop(context.Background())
	if n := ad.sentCount(); n != 5 {
		t.Fatalf("expected 5 deliveries after drain, got %d", n)
	}
}
