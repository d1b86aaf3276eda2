package transport

import "sync"

// FakeWire is a Wire for tests: it records calls, returns scripted errors,
// and can simulate inbound messages and connection loss.
type FakeWire struct {
	mu sync.Mutex

	handlers WireHandlers

	// ConnectErrs holds results for successive Connect calls; once
	// exhausted, Connect succeeds.
	ConnectErrs []error

	// SubscribeErr, UnsubscribeErr and PublishErr, if set, are returned
	// by the corresponding calls.
	SubscribeErr   error
	UnsubscribeErr error
	PublishErr     error

	ConnectCalls int
	Subscribed   []Subscription
	Unsubscribed []string
	Published    []FakePublish
	Disconnected bool
}

// FakePublish records one Publish call.
type FakePublish struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// NewFakeWire creates a FakeWire for testing.
func NewFakeWire() *FakeWire {
	return &FakeWire{}
}

// Factory returns a WireFactory that binds the client's handlers to this
// fake and hands it back.
func (f *FakeWire) Factory() WireFactory {
	return func(h WireHandlers) Wire {
		f.mu.Lock()
		f.handlers = h
		f.mu.Unlock()
		return f
	}
}

func (f *FakeWire) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ConnectCalls++
	if len(f.ConnectErrs) > 0 {
		err := f.ConnectErrs[0]
		f.ConnectErrs = f.ConnectErrs[1:]
		return err
	}
	return nil
}

func (f *FakeWire) Disconnect() {
	f.mu.Lock()
	f.Disconnected = true
	f.mu.Unlock()
}

func (f *FakeWire) Subscribe(topic string, qos byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SubscribeErr != nil {
		return f.SubscribeErr
	}
	f.Subscribed = append(f.Subscribed, Subscription{Topic: topic, QoS: qos})
	return nil
}

func (f *FakeWire) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.UnsubscribeErr != nil {
		return f.UnsubscribeErr
	}
	f.Unsubscribed = append(f.Unsubscribed, topic)
	return nil
}

func (f *FakeWire) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishErr != nil {
		return f.PublishErr
	}
	f.Published = append(f.Published, FakePublish{
		Topic:    topic,
		QoS:      qos,
		Retained: retained,
		Payload:  append([]byte(nil), payload...),
	})
	return nil
}

// Deliver simulates an inbound message from the broker.
func (f *FakeWire) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()

	if h.OnMessage != nil {
		h.OnMessage(Message{Topic: topic, Payload: payload})
	}
}

// LoseConnection simulates an unexpected disconnect with the given reason.
func (f *FakeWire) LoseConnection(err error) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()

	if h.OnConnectionLost != nil {
		h.OnConnectionLost(err)
	}
}

// SubscribedTopics returns the wire-level subscribe calls seen so far.
func (f *FakeWire) SubscribedTopics() []Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Subscription(nil), f.Subscribed...)
}

// PublishedMessages returns the wire-level publish calls seen so far.
func (f *FakeWire) PublishedMessages() []FakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakePublish(nil), f.Published...)
}
