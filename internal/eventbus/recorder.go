package eventbus

import "sync"

// Recorder subscribes to a bus and retains the most recent events for the
// status surface. It owns no goroutine: pending events are drained on read,
// and bursts beyond the subscription buffer are dropped by the bus (same
// bounded-backpressure contract every subscriber gets).
type Recorder struct {
	mu   sync.Mutex
	ch   <-chan Event
	stop func()
	buf  []Event
	max  int
}

func NewRecorder(b Bus, capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 128
	}
	ch, stop := b.Subscribe(capacity)
	return &Recorder{ch: ch, stop: stop, max: capacity}
}

// Recent drains pending events and returns the retained tail, oldest first.
func (r *Recorder) Recent() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		select {
		case e, ok := <-r.ch:
			if !ok {
				return r.snapshotLocked()
			}
			r.buf = append(r.buf, e)
			if len(r.buf) > r.max {
				r.buf = r.buf[len(r.buf)-r.max:]
			}
		default:
			return r.snapshotLocked()
		}
	}
}

func (r *Recorder) snapshotLocked() []Event {
	out := make([]Event, len(r.buf))
	copy(out, r.buf)
	return out
}

// Close unsubscribes from the bus. Recent keeps returning what was retained.
func (r *Recorder) Close() { r.stop() }
