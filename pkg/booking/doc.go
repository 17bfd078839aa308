// Package booking provides the shared data model for the Rota booking board.
//
// # Overview
//
// The booking board is a single shared document: a mapping of calendar date to
// the person assigned to that date. Every component (the sync hub, the
// connection gateway, the stores and the CLI) exchanges the whole document as a
// Map. There is no partial update; an update replaces the entire Map and the
// last update to be persisted wins.
//
// # Wire Protocol
//
// Clients talk to the server over a WebSocket using JSON envelopes:
//
//	{"event": "update_bookings", "data": {"2024-01-01": "Alice"}}
//
// Client to server:
//
//	update_bookings   data = full Map replacing the shared state
//
// Server to client:
//
//	bookings_updated  data = full Map (sent on join and after every applied update)
//	update_failed     data = {"error": "..."} (sent only to the client whose update failed)
//
// # Redis Schema
//
// The Redis-backed store keeps the whole Map as one JSON string:
//
//	rota:{namespace}:bookings
//
// # Usage Example
//
//	m := booking.Map{"2024-01-01": "Alice"}
//	if err := m.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
//	frame, err := booking.NewEnvelope(booking.EventBookingsUpdated, m)
//	if err != nil {
//		log.Fatal(err)
//	}
package booking
