package marketdata

import (
	"sync"

	"hyperliquid-trading-bot/internal/logging"
)

// EventType selects a fan-out channel.
type EventType string

const (
	EventOrderBook   EventType = "orderBook"
	EventTrade       EventType = "trade"
	EventFunding     EventType = "funding"
	EventLiquidation EventType = "liquidation"
	EventStatus      EventType = "status"
)

// ConnectionStatus is published on EventStatus transitions.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// Event is one fan-out notification. Data is the parsed structure for the
// event type: *hyperliquid.OrderBook, hyperliquid.Trade, hyperliquid.Funding,
// hyperliquid.Liquidation, or ConnectionStatus.
type Event struct {
	Type   EventType
	Symbol string
	Data   interface{}
}

// subscriberQueueSize bounds each subscriber's private queue. Overflow drops
// the oldest event so a slow subscriber never blocks the wire loop.
const subscriberQueueSize = 256

type subscriber struct {
	id    int
	event EventType
	queue chan Event
	done  chan struct{}
}

// Dispatcher fans events out to typed subscribers. Each subscriber gets its
// own goroutine and bounded queue; enqueue order follows publish order, so
// per-symbol wire ordering is preserved end to end.
type Dispatcher struct {
	log *logging.Logger

	mu     sync.RWMutex
	subs   map[EventType]map[int]*subscriber
	nextID int
	closed bool
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		log:  log.WithComponent("dispatcher"),
		subs: make(map[EventType]map[int]*subscriber),
	}
}

// Subscribe registers a callback for an event type and returns its
// unsubscribe function. The callback runs on the subscriber's own goroutine;
// panics are recovered and logged, never propagated to the wire loop.
func (d *Dispatcher) Subscribe(event EventType, callback func(Event)) func() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return func() {}
	}

	d.nextID++
	sub := &subscriber{
		id:    d.nextID,
		event: event,
		queue: make(chan Event, subscriberQueueSize),
		done:  make(chan struct{}),
	}
	if d.subs[event] == nil {
		d.subs[event] = make(map[int]*subscriber)
	}
	d.subs[event][sub.id] = sub
	d.mu.Unlock()

	go d.drain(sub, callback)

	return func() { d.remove(sub) }
}

func (d *Dispatcher) remove(sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if m, ok := d.subs[sub.event]; ok {
		if _, live := m[sub.id]; live {
			delete(m, sub.id)
			close(sub.done)
		}
	}
}

// drain delivers queued events to one subscriber until unsubscribed.
func (d *Dispatcher) drain(sub *subscriber, callback func(Event)) {
	for {
		select {
		case <-sub.done:
			return
		case ev := <-sub.queue:
			d.deliver(sub, callback, ev)
		}
	}
}

func (d *Dispatcher) deliver(sub *subscriber, callback func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("subscriber callback panicked",
				"event", string(sub.event), "symbol", ev.Symbol, "panic", r)
		}
	}()
	callback(ev)
}

// Publish enqueues an event to every subscriber of its type. A full queue
// drops its oldest entry first.
func (d *Dispatcher) Publish(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, sub := range d.subs[ev.Type] {
		select {
		case sub.queue <- ev:
		default:
			select {
			case <-sub.queue:
			default:
			}
			select {
			case sub.queue <- ev:
			default:
			}
		}
	}
}

// Close unsubscribes everyone. Subsequent Subscribe calls are no-ops.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for _, m := range d.subs {
		for id, sub := range m {
			delete(m, id)
			close(sub.done)
		}
	}
}
