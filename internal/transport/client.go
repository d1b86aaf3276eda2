package transport

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultInitialDelay = 2 * time.Second
	defaultMaxDelay     = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
	TLS      bool

	Keepalive time.Duration

	// InitialReconnectDelay is the backoff after the first failure; it
	// doubles on each consecutive failure up to MaxReconnectDelay and
	// resets on a successful connection.
	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration

	// NewWire builds the underlying broker connection. Defaults to the
	// paho MQTT wire; tests inject a FakeWire factory.
	NewWire WireFactory
}

// ClientStatus is a point-in-time view of the client.
type ClientStatus struct {
	State          State
	Broker         string
	ClientID       string
	Subscriptions  []Subscription
	ReconnectDelay time.Duration
}

// Client drives one broker connection. All operations are non-blocking:
// Connect returns immediately and reports the outcome through status
// events, and a lost connection schedules its own reconnect.
type Client struct {
	mu sync.Mutex

	opts  Options
	wire  Wire
	state State

	// subs is the desired-subscription set, replayed on every successful
	// (re)connection with the last-known QoS per topic.
	subs map[string]byte

	consumer Consumer
	onStatus []func(StatusEvent)

	currentDelay   time.Duration
	reconnectTimer *time.Timer
	closed         bool
}

// NewClient creates a Client. The wire is not built until Connect.
func NewClient(opts Options) *Client {
	if opts.InitialReconnectDelay <= 0 {
		opts.InitialReconnectDelay = defaultInitialDelay
	}
	if opts.MaxReconnectDelay <= 0 {
		opts.MaxReconnectDelay = defaultMaxDelay
	}
	if opts.Keepalive <= 0 {
		opts.Keepalive = 60 * time.Second
	}
	if opts.ClientID == "" {
		// Per-run id avoids broker-side collisions when multiple
		// instances point at the same broker.
		opts.ClientID = fmt.Sprintf("tankmon-%s", uuid.NewString()[:8])
	}
	if opts.NewWire == nil {
		opts.NewWire = PahoWire(opts)
	}
	return &Client{
		opts:         opts,
		state:        StateDisconnected,
		subs:         make(map[string]byte),
		currentDelay: opts.InitialReconnectDelay,
	}
}

// OnMessage registers the consumer for inbound messages.
func (c *Client) OnMessage(fn Consumer) {
	c.mu.Lock()
	c.consumer = fn
	c.mu.Unlock()
}

// OnStatus registers an observer for connection status events. Observers
// are invoked outside the client lock, so they may call back into the
// client (for example to subscribe once connected).
func (c *Client) OnStatus(fn func(StatusEvent)) {
	c.mu.Lock()
	c.onStatus = append(c.onStatus, fn)
	c.mu.Unlock()
}

// Connect validates the broker address and starts an asynchronous
// connection attempt. The outcome arrives as a status event. Calling
// Connect while connecting or connected is a no-op.
func (c *Client) Connect() error {
	if c.opts.Host == "" {
		return fmt.Errorf("broker host must not be empty")
	}
	if c.opts.Port < 1 || c.opts.Port > 65535 {
		return fmt.Errorf("broker port %d outside [1, 65535]", c.opts.Port)
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.closed = false
	c.cancelReconnectLocked()
	if c.wire == nil {
		c.wire = c.opts.NewWire(WireHandlers{
			OnMessage:        c.deliver,
			OnConnectionLost: c.connectionLost,
		})
	}
	c.state = StateConnecting
	c.mu.Unlock()

	c.emit(StatusEvent{State: StateConnecting, Time: time.Now()})
	go c.attempt()
	return nil
}

// Disconnect forces the client to Disconnected and cancels any pending
// reconnect. In-flight messages are simply no longer delivered.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.cancelReconnectLocked()
	wasConnected := c.state == StateConnected
	c.state = StateDisconnected
	c.currentDelay = c.opts.InitialReconnectDelay
	wire := c.wire
	c.mu.Unlock()

	if wire != nil && wasConnected {
		wire.Disconnect()
	}
	log.Printf("transport: disconnected from %s", c.broker())
	c.emit(StatusEvent{State: StateDisconnected, Time: time.Now()})
}

// Subscribe issues a subscription and records it in the desired set,
// replacing any existing entry for the topic. Fails without side effects
// when not connected.
func (c *Client) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	wire := c.wire
	c.mu.Unlock()

	if err := wire.Subscribe(topic, qos); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	c.mu.Lock()
	c.subs[topic] = qos
	c.mu.Unlock()

	log.Printf("transport: subscribed to %s (qos %d)", topic, qos)
	return nil
}

// Unsubscribe removes the topic from the desired set regardless of
// connection state; the wire unsubscribe is only issued while connected.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	c.mu.Lock()
	delete(c.subs, topic)
	connected := c.state == StateConnected
	wire := c.wire
	c.mu.Unlock()

	if !connected {
		return nil
	}
	if err := wire.Unsubscribe(topic); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	log.Printf("transport: unsubscribed from %s", topic)
	return nil
}

// Publish sends a payload to the broker. Structured payloads are marshaled
// to JSON; strings and byte slices pass through unchanged. Fails when not
// connected.
func (c *Client) Publish(topic string, payload any, qos byte, retain bool) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	wire := c.wire
	c.mu.Unlock()

	data, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", topic, err)
	}
	if err := wire.Publish(topic, qos, retain, data); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Status returns the current state, broker identity, desired-subscription
// set and reconnect backoff.
func (c *Client) Status() ClientStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := make([]Subscription, 0, len(c.subs))
	for topic, qos := range c.subs {
		subs = append(subs, Subscription{Topic: topic, QoS: qos})
	}
	return ClientStatus{
		State:          c.state,
		Broker:         c.broker(),
		ClientID:       c.opts.ClientID,
		Subscriptions:  subs,
		ReconnectDelay: c.currentDelay,
	}
}

// IsConnected reports whether the client is currently connected.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// attempt runs one connection attempt and handles its outcome.
func (c *Client) attempt() {
	c.mu.Lock()
	wire := c.wire
	c.mu.Unlock()

	err := wire.Connect()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.state = StateDisconnected
		delay := c.scheduleReconnectLocked()
		c.mu.Unlock()

		log.Printf("transport: connect to %s failed: %v (retry in %v)", c.broker(), err, delay)
		c.emit(StatusEvent{State: StateDisconnected, Err: err, Time: time.Now()})
		return
	}

	c.state = StateConnected
	c.currentDelay = c.opts.InitialReconnectDelay
	subs := make(map[string]byte, len(c.subs))
	for topic, qos := range c.subs {
		subs[topic] = qos
	}
	c.mu.Unlock()

	// Replay the desired-subscription set before signaling ready, so a
	// network flap never silently drops a topic.
	for topic, qos := range subs {
		if err := wire.Subscribe(topic, qos); err != nil {
			log.Printf("transport: resubscribe %s failed: %v", topic, err)
		} else {
			log.Printf("transport: resubscribed to %s (qos %d)", topic, qos)
		}
	}

	log.Printf("transport: connected to %s", c.broker())
	c.emit(StatusEvent{State: StateConnected, Time: time.Now()})
}

// connectionLost is invoked by the wire on an unexpected disconnect.
func (c *Client) connectionLost(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	delay := c.scheduleReconnectLocked()
	c.mu.Unlock()

	log.Printf("transport: connection to %s lost: %v (reconnect in %v)", c.broker(), err, delay)
	c.emit(StatusEvent{State: StateDisconnected, Err: err, Time: time.Now()})
}

// scheduleReconnectLocked arms the reconnect timer with the current backoff
// and doubles it for the next failure. Returns the delay used.
func (c *Client) scheduleReconnectLocked() time.Duration {
	delay := c.currentDelay
	c.currentDelay *= 2
	if c.currentDelay > c.opts.MaxReconnectDelay {
		c.currentDelay = c.opts.MaxReconnectDelay
	}
	c.cancelReconnectLocked()
	c.reconnectTimer = time.AfterFunc(delay, c.reconnect)
	return delay
}

func (c *Client) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.closed || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	c.emit(StatusEvent{State: StateConnecting, Time: time.Now()})
	c.attempt()
}

func (c *Client) deliver(msg Message) {
	c.mu.Lock()
	consumer := c.consumer
	c.mu.Unlock()

	if consumer != nil {
		consumer(msg)
	}
}

func (c *Client) emit(ev StatusEvent) {
	c.mu.Lock()
	observers := make([]func(StatusEvent), len(c.onStatus))
	copy(observers, c.onStatus)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(ev)
	}
}

func (c *Client) broker() string {
	return fmt.Sprintf("%s:%d", c.opts.Host, c.opts.Port)
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return json.Marshal(p)
	}
}
