package broadcast

import (
	"errors"
	"sync"
	"testing"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Send(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) received() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestBroadcastFanOut(t *testing.T) {
	hub := NewHub()
	observers := []*recorder{{}, {}, {}}
	for _, o := range observers {
		hub.Add(o)
	}

	if delivered := hub.Broadcast(FeedsUpdateFinished); delivered != 3 {
		t.Errorf("Expected 3 deliveries, got %d", delivered)
	}

	for i, o := range observers {
		events := o.received()
		if len(events) != 1 || events[0] != FeedsUpdateFinished {
			t.Errorf("Observer %d: expected [%s], got %v", i, FeedsUpdateFinished, events)
		}
	}
}

func TestBroadcastSkipsRemovedObserver(t *testing.T) {
	hub := NewHub()
	a, b, c := &recorder{}, &recorder{}, &recorder{}
	hub.Add(a)
	hub.Add(b)
	hub.Add(c)

	hub.Remove(b)

	if delivered := hub.Broadcast(FeedsUpdateFinished); delivered != 2 {
		t.Errorf("Expected 2 deliveries, got %d", delivered)
	}
	if len(b.received()) != 0 {
		t.Errorf("Expected removed observer to receive nothing, got %v", b.received())
	}
	if len(a.received()) != 1 || len(c.received()) != 1 {
		t.Error("Expected remaining observers to receive the event")
	}
	if hub.Count() != 2 {
		t.Errorf("Expected 2 observers, got %d", hub.Count())
	}
}

func TestBroadcastToleratesFailingObserver(t *testing.T) {
	hub := NewHub()
	broken := &recorder{err: errors.New("connection closed")}
	healthy := &recorder{}
	hub.Add(broken)
	hub.Add(healthy)

	if delivered := hub.Broadcast(FeedUpdateStarted); delivered != 1 {
		t.Errorf("Expected 1 delivery, got %d", delivered)
	}
	if events := healthy.received(); len(events) != 1 || events[0] != FeedUpdateStarted {
		t.Errorf("Expected healthy observer to receive the event, got %v", events)
	}
	if hub.Count() != 2 {
		t.Errorf("Expected failing observer to stay registered until removed, got %d observers", hub.Count())
	}
}

func TestBroadcastWithoutObservers(t *testing.T) {
	if delivered := NewHub().Broadcast(Connected); delivered != 0 {
		t.Errorf("Expected 0 deliveries, got %d", delivered)
	}
}

func TestConcurrentAddRemoveBroadcast(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		o := &recorder{}
		go func() {
			defer wg.Done()
			hub.Add(o)
			hub.Remove(o)
		}()
		go func() {
			defer wg.Done()
			hub.Broadcast(FeedsUpdateRunning)
		}()
	}

	wg.Wait()

	if hub.Count() != 0 {
		t.Errorf("Expected all observers to be removed, got %d", hub.Count())
	}
}
