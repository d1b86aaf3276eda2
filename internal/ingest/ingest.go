// Package ingest turns raw MQTT messages into normalized store updates.
// Inbound payloads arrive in several shapes (wrapped collections,
// positional arrays, id-keyed arrays, single objects) and with variant
// field names; classification and extraction are explicit so a malformed
// message, element or field is dropped at exactly that granularity without
// taking the pipeline down.
package ingest

import (
	"encoding/json"
	"log"

	"github.com/sweeney/tank-monitor/internal/store"
	"github.com/sweeney/tank-monitor/internal/transport"
)

// Processor consumes decoded (topic, payload) pairs and applies them to the
// store. Register HandleMessage as the transport consumer.
type Processor struct {
	store            *store.Store
	dataTopic        string
	adjustmentsTopic string
}

// New creates a Processor feeding the given store.
func New(st *store.Store, dataTopic, adjustmentsTopic string) *Processor {
	return &Processor{
		store:            st,
		dataTopic:        dataTopic,
		adjustmentsTopic: adjustmentsTopic,
	}
}

// HandleMessage decodes and routes one inbound message. Malformed JSON
// discards the message; it never propagates an error into the transport.
func (p *Processor) HandleMessage(msg transport.Message) {
	var data any
	if err := json.Unmarshal(msg.Payload, &data); err != nil {
		log.Printf("ingest: discarding malformed JSON on %s: %v", msg.Topic, err)
		return
	}

	switch msg.Topic {
	case p.dataTopic:
		p.applyTankData(data)
	case p.adjustmentsTopic:
		p.applyAdjustments(data)
	default:
		log.Printf("ingest: ignoring message on unexpected topic %s", msg.Topic)
	}
}

// applyTankData walks the classified payload shape and applies each tank
// element independently; a bad element never aborts its siblings.
func (p *Processor) applyTankData(data any) {
	switch shape := classify(data).(type) {
	case wrappedCollection:
		p.applyTankData(shape.inner)
	case positionalArray:
		for i, el := range shape.elements {
			obj, ok := el.(map[string]any)
			if !ok {
				log.Printf("ingest: skipping non-object element at index %d", i)
				continue
			}
			// Position i maps to tank i+1; malformed elements do
			// not shift later indices.
			p.applyTank(obj, i+1)
		}
	case idArray:
		for i, el := range shape.elements {
			obj, ok := el.(map[string]any)
			if !ok {
				log.Printf("ingest: skipping non-object element at index %d", i)
				continue
			}
			p.applyTank(obj, 0)
		}
	case singleObject:
		p.applyTank(shape.fields, 0)
	default:
		log.Printf("ingest: discarding unrecognized payload shape %T", data)
	}
}

// applyTank normalizes one tank object and upserts it. forcedID > 0 comes
// from positional mapping and overrides any embedded id.
func (p *Processor) applyTank(obj map[string]any, forcedID int) {
	id := forcedID
	if id == 0 {
		v, ok := coerceInt(obj["id"])
		if !ok {
			log.Printf("ingest: skipping tank object without usable id")
			return
		}
		id = v
	}

	if _, err := p.store.Upsert(id, extractUpdate(obj)); err != nil {
		log.Printf("ingest: skipping tank %d: %v", id, err)
	}
}

// applyAdjustments handles the positional error-adjustment message
// {"adjustments":[{"adjustmentFactor":x}, ...]}. Malformed elements leave
// their tank untouched without shifting later positions.
func (p *Processor) applyAdjustments(data any) {
	obj, ok := data.(map[string]any)
	if !ok {
		log.Printf("ingest: discarding adjustments payload of type %T", data)
		return
	}
	list, ok := obj["adjustments"].([]any)
	if !ok {
		log.Printf("ingest: adjustments payload missing adjustments list")
		return
	}

	factors := make([]*float64, len(list))
	for i, el := range list {
		entry, ok := el.(map[string]any)
		if !ok {
			log.Printf("ingest: skipping non-object adjustment at index %d", i)
			continue
		}
		f := 0.0
		if raw, present := entry["adjustmentFactor"]; present {
			v, ok := coerceFloat(raw)
			if !ok {
				log.Printf("ingest: skipping non-numeric adjustmentFactor at index %d", i)
				continue
			}
			f = v
		}
		factors[i] = &f
	}

	applied := p.store.ApplyAdjustments(factors)
	log.Printf("ingest: applied %d error adjustments", applied)
}

// extractUpdate pulls normalized fields out of a tank object. Field aliases
// are tried in precedence order; a field that fails coercion is dropped on
// its own, the rest of the update survives.
func extractUpdate(obj map[string]any) store.Update {
	var u store.Update

	if v, ok := firstFloat(obj, "temperature", "temp"); ok {
		u.Temperature = &v
	}
	if v, ok := firstFloat(obj, "level", "height"); ok {
		u.Level = &v
	} else if v, ok := firstFloat(obj, "liquid_level"); ok {
		// liquid_level is kept under its own key, never merged into
		// level.
		u.LiquidLevel = &v
	}
	if v, ok := firstFloat(obj, "weight"); ok {
		u.Weight = &v
	}
	if v, ok := firstFloat(obj, "pressure"); ok {
		u.Pressure = &v
	}
	if v, ok := firstFloat(obj, "high_limit", "levelHighLimit"); ok {
		u.HighLimit = &v
	}
	if v, ok := firstFloat(obj, "error"); ok {
		u.Error = &v
	}
	return u
}

// firstFloat returns the first key that is present and coercible.
func firstFloat(obj map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		raw, present := obj[key]
		if !present {
			continue
		}
		v, ok := coerceFloat(raw)
		if !ok {
			log.Printf("ingest: dropping non-numeric field %q (%v)", key, raw)
			continue
		}
		return v, true
	}
	return 0, false
}
