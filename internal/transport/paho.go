package transport

import (
	"crypto/tls"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 10 * time.Second
	opTimeout      = 5 * time.Second
)

// PahoWire returns a factory for the real MQTT wire. The client's own
// reconnect state machine is in charge, so paho's auto-reconnect and
// connect-retry are disabled.
func PahoWire(opts Options) WireFactory {
	return func(h WireHandlers) Wire {
		scheme := "tcp"
		if opts.TLS {
			scheme = "ssl"
		}
		po := paho.NewClientOptions().
			AddBroker(fmt.Sprintf("%s://%s:%d", scheme, opts.Host, opts.Port)).
			SetClientID(opts.ClientID).
			SetCleanSession(true).
			SetKeepAlive(opts.Keepalive).
			SetAutoReconnect(false).
			SetConnectRetry(false)

		if opts.Username != "" {
			po.SetUsername(opts.Username)
			po.SetPassword(opts.Password)
		}
		if opts.TLS {
			// Managed brokers commonly present certs that fail local
			// chain validation; the original deployment accepts them.
			po.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
		}

		po.SetConnectionLostHandler(func(_ paho.Client, err error) {
			h.OnConnectionLost(err)
		})
		po.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
			h.OnMessage(Message{Topic: msg.Topic(), Payload: msg.Payload()})
		})

		return &pahoWire{client: paho.NewClient(po)}
	}
}

// pahoWire adapts a paho client to the Wire interface.
type pahoWire struct {
	client paho.Client
}

func (w *pahoWire) Connect() error {
	token := w.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

func (w *pahoWire) Disconnect() {
	w.client.Disconnect(1000) // 1 second to flush in-flight work
}

func (w *pahoWire) Subscribe(topic string, qos byte) error {
	token := w.client.Subscribe(topic, qos, nil)
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("subscribe timeout")
	}
	return token.Error()
}

func (w *pahoWire) Unsubscribe(topic string) error {
	token := w.client.Unsubscribe(topic)
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("unsubscribe timeout")
	}
	return token.Error()
}

func (w *pahoWire) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := w.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}
