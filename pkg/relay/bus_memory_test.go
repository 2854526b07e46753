package relay

import (
	"testing"
	"time"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()
	events, unsub := bus.Subscribe("s1")
	defer unsub()

	bus.Publish("s1", BusEvent{Type: EventCallEnded, SessionID: "s1"})

	select {
	case ev := <-events:
		if ev.Type != EventCallEnded {
			t.Fatalf("expected call_ended, got %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMemoryBusNoDeliveryToOtherTopic(t *testing.T) {
	bus := NewMemoryBus()
	events, unsub := bus.Subscribe("s1")
	defer unsub()

	bus.Publish("s2", BusEvent{Type: EventCallEnded, SessionID: "s2"})

	select {
	case ev := <-events:
		t.Fatalf("unexpected event delivered to wrong topic: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewMemoryBus()
	events, unsub := bus.Subscribe("s1")
	unsub()

	_, ok := <-events
	if ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestMemoryBusMultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	e1, unsub1 := bus.Subscribe("s1")
	e2, unsub2 := bus.Subscribe("s1")
	defer unsub1()
	defer unsub2()

	bus.Publish("s1", BusEvent{Type: EventCallEnded, SessionID: "s1"})

	for _, ch := range []<-chan BusEvent{e1, e2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}
}
