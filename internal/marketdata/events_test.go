package marketdata

import (
	"sync"
	"testing"
	"time"

	"hyperliquid-trading-bot/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR"})
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	d := NewDispatcher(testLogger())
	defer d.Close()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	d.Subscribe(EventTrade, func(ev Event) {
		mu.Lock()
		got = append(got, ev.Data.(int))
		n := len(got)
		mu.Unlock()
		if n == 5 {
			close(done)
		}
	})

	for i := 1; i <= 5; i++ {
		d.Publish(Event{Type: EventTrade, Symbol: "BTC-PERP", Data: i})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i+1 {
			t.Fatalf("out of order delivery: %v", got)
		}
	}
}

func TestDispatcherUnsubscribeStopsDelivery(t *testing.T) {
	d := NewDispatcher(testLogger())
	defer d.Close()

	delivered := make(chan struct{}, 10)
	unsub := d.Subscribe(EventTrade, func(Event) { delivered <- struct{}{} })

	d.Publish(Event{Type: EventTrade})
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("first event not delivered")
	}

	unsub()
	d.Publish(Event{Type: EventTrade})

	select {
	case <-delivered:
		t.Fatal("event delivered after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatcherIsolatesPanickingSubscriber(t *testing.T) {
	d := NewDispatcher(testLogger())
	defer d.Close()

	healthy := make(chan struct{}, 2)
	d.Subscribe(EventTrade, func(Event) { panic("boom") })
	d.Subscribe(EventTrade, func(Event) { healthy <- struct{}{} })

	d.Publish(Event{Type: EventTrade})
	d.Publish(Event{Type: EventTrade})

	for i := 0; i < 2; i++ {
		select {
		case <-healthy:
		case <-time.After(2 * time.Second):
			t.Fatal("healthy subscriber starved by panicking one")
		}
	}
}

func TestDispatcherTypeFiltering(t *testing.T) {
	d := NewDispatcher(testLogger())
	defer d.Close()

	trades := make(chan struct{}, 1)
	d.Subscribe(EventTrade, func(Event) { trades <- struct{}{} })

	d.Publish(Event{Type: EventOrderBook})
	select {
	case <-trades:
		t.Fatal("trade subscriber received orderBook event")
	case <-time.After(100 * time.Millisecond):
	}
}
