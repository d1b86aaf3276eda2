// Package transport owns the MQTT connection: a connect/reconnect state
// machine with exponential backoff, a desired-subscription set that is
// replayed after every successful (re)connection, and delivery of inbound
// messages to a registered consumer. The broker wire protocol sits behind
// the Wire interface so the state machine is testable without a network.
package transport

import (
	"errors"
	"time"
)

// State is the connection state of the client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Message is one inbound publication from the broker.
type Message struct {
	Topic   string
	Payload []byte
}

// Consumer receives each inbound message, once per wire delivery.
type Consumer func(Message)

// StatusEvent is emitted on every connection state transition.
type StatusEvent struct {
	State State
	// Err is set when the transition was caused by a failed connect
	// attempt or an unexpected disconnect.
	Err  error
	Time time.Time
}

// Wire is the raw broker connection beneath the Client. Implementations
// must deliver inbound messages and connection-loss notifications through
// the handlers given at construction.
type Wire interface {
	// Connect performs one blocking connection attempt.
	Connect() error

	// Disconnect tears the connection down. Safe to call when not
	// connected.
	Disconnect()

	Subscribe(topic string, qos byte) error
	Unsubscribe(topic string) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// WireHandlers are the callbacks a Wire must invoke.
type WireHandlers struct {
	OnMessage        func(Message)
	OnConnectionLost func(err error)
}

// WireFactory builds a Wire bound to the given handlers.
type WireFactory func(WireHandlers) Wire

// Subscription is one entry of the desired-subscription set.
type Subscription struct {
	Topic string
	QoS   byte
}

// ErrNotConnected is returned by operations that require a live connection.
var ErrNotConnected = errors.New("not connected to broker")

// ErrEmptyTopic is returned for subscribe/unsubscribe/publish with no topic.
var ErrEmptyTopic = errors.New("topic must not be empty")
