package marketdata

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hyperliquid-trading-bot/internal/logging"
)

// Reconnect policy: exponential backoff from 1s capped at 30s; after 5
// consecutive failures the client gives up and surfaces Disconnected.
const (
	reconnectBase = 1 * time.Second
	reconnectCap  = 30 * time.Second
	maxReconnects = 5
	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
	dialTimeout   = 15 * time.Second
)

// wsSubscription is the venue's subscribe envelope.
type wsSubscription struct {
	Type string `json:"type"`
	Coin string `json:"coin,omitempty"`
}

// WSClient maintains one long-lived connection to the venue's websocket and
// replays the subscription set on every (re)connect. Raw frames are handed to
// onMessage in wire order; parse errors are the handler's concern.
type WSClient struct {
	url       string
	log       *logging.Logger
	onMessage func([]byte)
	onStatus  func(ConnectionStatus)

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[wsSubscription]struct{}
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewWSClient creates a client. onMessage receives every raw frame; onStatus
// receives connection transitions.
func NewWSClient(url string, onMessage func([]byte), onStatus func(ConnectionStatus), log *logging.Logger) *WSClient {
	return &WSClient{
		url:       url,
		log:       log.WithComponent("ws-client"),
		onMessage: onMessage,
		onStatus:  onStatus,
		subs:      make(map[wsSubscription]struct{}),
	}
}

// Subscribe adds a subscription and sends it immediately when connected.
func (c *WSClient) Subscribe(subType, coin string) error {
	sub := wsSubscription{Type: subType, Coin: coin}

	c.mu.Lock()
	c.subs[sub] = struct{}{}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.send(conn, map[string]interface{}{"method": "subscribe", "subscription": sub})
}

// Unsubscribe removes a subscription and tells the venue when connected.
func (c *WSClient) Unsubscribe(subType, coin string) error {
	sub := wsSubscription{Type: subType, Coin: coin}

	c.mu.Lock()
	delete(c.subs, sub)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.send(conn, map[string]interface{}{"method": "unsubscribe", "subscription": sub})
}

// Start launches the connection loop. Safe to call once per client.
func (c *WSClient) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("ws client already running")
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run()
	return nil
}

// Stop closes the connection and waits for the loop to exit.
func (c *WSClient) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	if c.conn != nil {
		c.conn.Close()
	}
	done := c.done
	c.mu.Unlock()

	<-done
}

// run is the connect/read/reconnect loop.
func (c *WSClient) run() {
	defer close(c.done)

	failures := 0
	backoff := reconnectBase

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		conn, err := c.connect()
		if err != nil {
			failures++
			c.log.Warn("websocket connect failed",
				"attempt", failures, "backoff", backoff.String(), "error", err.Error())
			if failures >= maxReconnects {
				c.log.Error("websocket giving up", "failures", failures)
				c.notify(StatusDisconnected)
				return
			}
			c.notify(StatusReconnecting)
			select {
			case <-time.After(backoff):
			case <-c.stop:
				return
			}
			backoff *= 2
			if backoff > reconnectCap {
				backoff = reconnectCap
			}
			continue
		}

		failures = 0
		backoff = reconnectBase
		c.notify(StatusConnected)

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		stopped := !c.running
		c.mu.Unlock()
		if stopped {
			return
		}
		c.notify(StatusReconnecting)
	}
}

// connect dials and replays the subscription set.
func (c *WSClient) connect() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	subs := make([]wsSubscription, 0, len(c.subs))
	for sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		if err := c.send(conn, map[string]interface{}{"method": "subscribe", "subscription": sub}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("resubscribe %s/%s: %w", sub.Type, sub.Coin, err)
		}
	}

	c.log.Info("websocket connected", "subscriptions", len(subs))
	return conn, nil
}

// readLoop pumps frames until the connection dies. Pings keep the venue from
// idling us out.
func (c *WSClient) readLoop(conn *websocket.Conn) {
	pingStop := make(chan struct{})
	defer close(pingStop)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingStop:
				return
			case <-ticker.C:
				if err := c.send(conn, map[string]string{"method": "ping"}); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stop:
			default:
				c.log.Warn("websocket read failed", "error", err.Error())
			}
			return
		}
		c.onMessage(message)
	}
}

func (c *WSClient) send(conn *websocket.Conn, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode ws payload: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSClient) notify(status ConnectionStatus) {
	if c.onStatus != nil {
		c.onStatus(status)
	}
}
