package events

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestDispatchFansOut(t *testing.T) {
	b := NewBus(testLogger())

	var calls atomic.Int32
	b.Subscribe(TaskCreated, func(ev Event) error {
		calls.Add(1)
		return nil
	})
	b.Subscribe(TaskCreated, func(ev Event) error {
		calls.Add(1)
		return nil
	})

	if !b.Dispatch(Event{Type: TaskCreated, EntityID: "t1"}) {
		t.Fatal("dispatch suppressed, want delivered")
	}
	b.Wait()
	if got := calls.Load(); got != 2 {
		t.Errorf("handler calls = %d, want 2", got)
	}
}

func TestDispatchDedupInsideWindow(t *testing.T) {
	b := NewBus(testLogger())

	var calls atomic.Int32
	b.Subscribe(TaskAssigned, func(ev Event) error {
		calls.Add(1)
		return nil
	})

	if !b.Dispatch(Event{Type: TaskAssigned, EntityID: "t1"}) {
		t.Fatal("first dispatch suppressed")
	}
	if b.Dispatch(Event{Type: TaskAssigned, EntityID: "t1"}) {
		t.Error("duplicate inside window delivered, want suppressed")
	}
	// Same entity, different type is a different key.
	if !b.Dispatch(Event{Type: TaskBlocked, EntityID: "t1"}) {
		t.Error("different type suppressed, want delivered")
	}
	// Same type, different entity is a different key.
	if !b.Dispatch(Event{Type: TaskAssigned, EntityID: "t2"}) {
		t.Error("different entity suppressed, want delivered")
	}

	b.Wait()
	if got := calls.Load(); got != 2 {
		t.Errorf("handler calls = %d, want 2", got)
	}
}

func TestDispatchDedupExpiresAfterWindow(t *testing.T) {
	b := NewBusWithWindow(testLogger(), 20*time.Millisecond)

	var calls atomic.Int32
	b.Subscribe(TaskCreated, func(ev Event) error {
		calls.Add(1)
		return nil
	})

	b.Dispatch(Event{Type: TaskCreated, EntityID: "t1"})
	time.Sleep(60 * time.Millisecond)
	if !b.Dispatch(Event{Type: TaskCreated, EntityID: "t1"}) {
		t.Fatal("dispatch after window suppressed, want delivered")
	}
	b.Wait()
	if got := calls.Load(); got != 2 {
		t.Errorf("handler calls = %d, want 2", got)
	}
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	b := NewBus(testLogger())

	var mu sync.Mutex
	var seen []string
	b.Subscribe(TaskCreated, func(ev Event) error {
		return errors.New("boom")
	})
	b.Subscribe(TaskCreated, func(ev Event) error {
		mu.Lock()
		seen = append(seen, ev.EntityID)
		mu.Unlock()
		return nil
	})
	b.Subscribe(TaskCreated, func(ev Event) error {
		panic("handler panic")
	})

	b.Dispatch(Event{Type: TaskCreated, EntityID: "t1"})
	b.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "t1" {
		t.Errorf("healthy handler saw %v, want [t1]", seen)
	}
}

func TestDispatchNoSubscribers(t *testing.T) {
	b := NewBus(testLogger())
	if !b.Dispatch(Event{Type: AgentIdle, EntityID: "a1"}) {
		t.Error("dispatch with no subscribers suppressed, want delivered")
	}
	b.Wait()
}
