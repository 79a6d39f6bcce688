package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New(2)
	t.Cleanup(bus.Close)

	var got ResetEventData
	err := bus.Subscribe(EventSessionReset, func(data ResetEventData) {
		got = data
	})
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	bus.Publish(EventSessionReset, ResetEventData{
		SessionID: "s-1",
		Reason:    "timeout",
		ClearSink: true,
	})

	if got.SessionID != "s-1" || got.Reason != "timeout" || !got.ClearSink {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestBus_AsyncDelivery(t *testing.T) {
	bus := New(4)
	t.Cleanup(bus.Close)

	var count atomic.Int32
	var mu sync.Mutex
	seen := make(map[string]bool)

	err := bus.SubscribeAsync(EventBufferUpdated, func(data BufferUpdatedData) {
		mu.Lock()
		seen[data.Text] = true
		mu.Unlock()
		count.Add(1)
	})
	if err != nil {
		t.Fatalf("SubscribeAsync error: %v", err)
	}

	bus.PublishAsync(EventBufferUpdated, BufferUpdatedData{Owner: "a", Text: "one"})
	bus.PublishAsync(EventBufferUpdated, BufferUpdatedData{Owner: "a", Text: "two"})

	bus.WaitAsync()

	deadline := time.Now().Add(time.Second)
	for count.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if count.Load() != 2 {
		t.Fatalf("expected 2 async deliveries, got %d", count.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if !seen["one"] || !seen["two"] {
		t.Errorf("missing async payloads: %v", seen)
	}
}

func TestBus_AsyncPanicContained(t *testing.T) {
	bus := New(1)
	t.Cleanup(bus.Close)

	if err := bus.SubscribeAsync(EventSourceError, func(data SourceErrorData) {
		panic("subscriber exploded")
	}); err != nil {
		t.Fatalf("SubscribeAsync error: %v", err)
	}

	var delivered atomic.Bool
	if err := bus.SubscribeAsync(EventSinkCleared, func() {
		delivered.Store(true)
	}); err != nil {
		t.Fatalf("SubscribeAsync error: %v", err)
	}

	bus.PublishAsync(EventSourceError, SourceErrorData{SessionID: "s", Message: "boom"})
	bus.PublishAsync(EventSinkCleared)

	bus.WaitAsync()
	deadline := time.Now().Add(time.Second)
	for !delivered.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if !delivered.Load() {
		t.Error("worker should survive a panicking subscriber")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New(1)
	t.Cleanup(bus.Close)

	calls := 0
	handler := func(data ListeningEventData) { calls++ }

	if err := bus.Subscribe(EventListeningChanged, handler); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	bus.Publish(EventListeningChanged, ListeningEventData{Listening: true})

	if err := bus.Unsubscribe(EventListeningChanged, handler); err != nil {
		t.Fatalf("Unsubscribe error: %v", err)
	}
	bus.Publish(EventListeningChanged, ListeningEventData{Listening: false})

	if calls != 1 {
		t.Errorf("expected exactly one delivery, got %d", calls)
	}
}
