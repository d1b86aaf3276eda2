package web

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/sweeney/tank-monitor/internal/transport"
)

// AdjustmentsPayload is the outbound adjustments echo: one entry per tank
// in id order.
type AdjustmentsPayload struct {
	Adjustments []AdjustmentEntry `json:"adjustments"`
}

// AdjustmentEntry carries one tank's error adjustment.
type AdjustmentEntry struct {
	AdjustmentFactor float64 `json:"adjustmentFactor"`
}

// FormatAdjustments builds the adjustments echo from the per-tank error
// values in id order.
func FormatAdjustments(errors []float64) AdjustmentsPayload {
	entries := make([]AdjustmentEntry, len(errors))
	for i, e := range errors {
		entries[i] = AdjustmentEntry{AdjustmentFactor: e}
	}
	return AdjustmentsPayload{Adjustments: entries}
}

// mqttStatusJSON is the JSON representation of the transport status.
type mqttStatusJSON struct {
	Connected        bool        `json:"connected"`
	State            string      `json:"state"`
	Broker           string      `json:"broker"`
	Topics           []topicJSON `json:"topics"`
	ReconnectDelayMS int64       `json:"reconnect_delay_ms"`
}

// topicJSON is one desired subscription.
type topicJSON struct {
	Topic string `json:"topic"`
	QoS   byte   `json:"qos"`
}

func formatMQTTStatus(st transport.ClientStatus) mqttStatusJSON {
	topics := make([]topicJSON, 0, len(st.Subscriptions))
	for _, sub := range st.Subscriptions {
		topics = append(topics, topicJSON{Topic: sub.Topic, QoS: sub.QoS})
	}
	return mqttStatusJSON{
		Connected:        st.State == transport.StateConnected,
		State:            string(st.State),
		Broker:           st.Broker,
		Topics:           topics,
		ReconnectDelayMS: st.ReconnectDelay.Milliseconds(),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}
