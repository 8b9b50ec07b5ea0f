package eventbus

import "testing"

func TestTypedBusPublishSubscribe(t *testing.T) {
	bus := NewTyped[string]()
	ch := bus.Subscribe()
	bus.Publish("hello")
	v := <-ch
	if v != "hello" {
		t.Fatalf("expected hello got %v", v)
	}
	bus.Unsubscribe(ch)
}

func TestTypedBusClose(t *testing.T) {
	bus := NewTyped[int]()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
}

func TestTypedBusUnsubscribeAfterClose(t *testing.T) {
	bus := NewTyped[float64]()
	ch := bus.Subscribe()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Unsubscribe after Close: %v", r)
		}
	}()
	bus.Unsubscribe(ch)
}

func TestTypedBusCountsDrops(t *testing.T) {
	bus := NewTypedBuffered[int](1)
	ch := bus.Subscribe()
	bus.Publish(1)
	bus.Publish(2)
	bus.Publish(3)
	if got := bus.Dropped(); got != 2 {
		t.Fatalf("expected 2 dropped events, got %d", got)
	}
	if v := <-ch; v != 1 {
		t.Fatalf("expected first event kept, got %d", v)
	}
}

func TestTypedBusPublishAfterClose(t *testing.T) {
	bus := NewTyped[string]()
	bus.Close()
	bus.Publish("ignored")
	if _, ok := <-bus.Subscribe(); ok {
		t.Fatalf("subscribe after close must return a closed channel")
	}
}
