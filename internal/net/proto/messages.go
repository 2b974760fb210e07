// Package proto defines the wire message set carried over the websocket:
// JSON envelopes of the form {"type": ..., "data": ...}. The server sends,
// the viewer decodes; omitted fields serialize as null, never as absent.
package proto

import (
	"encoding/json"
	"fmt"

	"live-results/dashboard/internal/model"
)

// Message type identifiers.
const (
	TypeStatus           = "status"
	TypeError            = "error"
	TypeEventName        = "event_name"
	TypeDistanceMeta     = "distance_meta"
	TypeCompetitorUpdate = "competitor_update"
)

// Envelope is the outer frame of every message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Status carries connection metadata, sent once per connection on open.
type Status struct {
	DataSourceURL      string  `json:"data_source_url"`
	DataSourceInterval float64 `json:"data_source_interval"`
}

// EventName carries the event title, sent on replay and whenever it changes.
type EventName struct {
	Name string `json:"name"`
}

func encode(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Data: raw})
}

// EncodeStatus renders a status message.
func EncodeStatus(status Status) ([]byte, error) {
	return encode(TypeStatus, status)
}

// EncodeError renders an error broadcast with a human-readable reason.
func EncodeError(reason string) ([]byte, error) {
	return encode(TypeError, reason)
}

// EncodeEventName renders an event_name message.
func EncodeEventName(name string) ([]byte, error) {
	return encode(TypeEventName, EventName{Name: name})
}

// EncodeDistanceMeta renders one distance's scalar fields. Standings groups
// and other viewer-only fields are never transmitted.
func EncodeDistanceMeta(dist *model.Distance) ([]byte, error) {
	return encode(TypeDistanceMeta, dist)
}

// EncodeCompetitorUpdate renders one changed competitor record.
func EncodeCompetitorUpdate(comp *model.Competitor) ([]byte, error) {
	return encode(TypeCompetitorUpdate, comp)
}

// Decode parses the outer envelope without touching the payload.
func Decode(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// DecodeStatus parses a status payload.
func (e Envelope) DecodeStatus() (Status, error) {
	var status Status
	if err := json.Unmarshal(e.Data, &status); err != nil {
		return status, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}

// DecodeError parses an error payload.
func (e Envelope) DecodeError() (string, error) {
	var reason string
	if err := json.Unmarshal(e.Data, &reason); err != nil {
		return "", fmt.Errorf("decode error payload: %w", err)
	}
	return reason, nil
}

// DecodeEventName parses an event_name payload.
func (e Envelope) DecodeEventName() (string, error) {
	var name EventName
	if err := json.Unmarshal(e.Data, &name); err != nil {
		return "", fmt.Errorf("decode event_name: %w", err)
	}
	return name.Name, nil
}

// DecodeDistanceMeta parses a distance_meta payload.
func (e Envelope) DecodeDistanceMeta() (*model.Distance, error) {
	var dist model.Distance
	if err := json.Unmarshal(e.Data, &dist); err != nil {
		return nil, fmt.Errorf("decode distance_meta: %w", err)
	}
	if dist.ID == "" {
		return nil, fmt.Errorf("decode distance_meta: missing id")
	}
	return &dist, nil
}

// DecodeCompetitorUpdate parses a competitor_update payload.
func (e Envelope) DecodeCompetitorUpdate() (*model.Competitor, error) {
	var comp model.Competitor
	if err := json.Unmarshal(e.Data, &comp); err != nil {
		return nil, fmt.Errorf("decode competitor_update: %w", err)
	}
	if comp.ID == "" || comp.DistanceID == "" {
		return nil, fmt.Errorf("decode competitor_update: missing id")
	}
	return &comp, nil
}
