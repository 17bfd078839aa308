package booking

import (
	"encoding/json"
	"fmt"
)

// EventName identifies the kind of payload carried by an Envelope.
type EventName string

const (
	// EventUpdateBookings is sent by a client to replace the whole Map.
	EventUpdateBookings EventName = "update_bookings"

	// EventBookingsUpdated carries the full Map to a client, on join and after every applied update.
	EventBookingsUpdated EventName = "bookings_updated"

	// EventUpdateFailed tells the originating client its update was not applied.
	EventUpdateFailed EventName = "update_failed"
)

// Envelope is a single frame on the real-time channel.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// UpdateFailure is the payload of an EventUpdateFailed frame.
type UpdateFailure struct {
	Error string `json:"error"`
}

// NewEnvelope marshals data into an envelope for the given event.
func NewEnvelope(event EventName, data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return &Envelope{Event: event, Data: raw}, nil
}

// DecodeMap decodes the envelope payload as a Map.
// A JSON null payload decodes to an empty Map.
func (e *Envelope) DecodeMap() (Map, error) {
	var m Map
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", e.Event, err)
	}
	if m == nil {
		m = Map{}
	}
	return m, nil
}
