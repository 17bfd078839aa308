// Package watch follows a running rota server over its WebSocket and reports
// each bookings_updated snapshot as it arrives.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/dyluth/rota/pkg/booking"
	"github.com/gorilla/websocket"
)

// OutputFormat selects how updates are written.
type OutputFormat string

const (
	// OutputFormatDefault prints a timestamped summary and per-date changes.
	OutputFormatDefault OutputFormat = "default"
	// OutputFormatJSON prints one JSON object per update (line-delimited).
	OutputFormatJSON OutputFormat = "json"
)

const (
	handshakeTimeout = 10 * time.Second
	closeGrace       = time.Second
)

// ChangeKind describes how a single date changed between two snapshots.
type ChangeKind string

const (
	ChangeAdded      ChangeKind = "added"
	ChangeRemoved    ChangeKind = "removed"
	ChangeReassigned ChangeKind = "reassigned"
)

// Change is one date whose booking differs between two snapshots.
type Change struct {
	Kind ChangeKind `json:"kind"`
	Date string     `json:"date"`
	From string     `json:"from,omitempty"`
	To   string     `json:"to,omitempty"`
}

// Diff returns the changes that turn prev into next, ordered by date.
func Diff(prev, next booking.Map) []Change {
	changes := make([]Change, 0)

	union := booking.Map{}
	for date := range prev {
		union[date] = ""
	}
	for date := range next {
		union[date] = ""
	}

	for _, date := range union.Dates() {
		before, hadBefore := prev[date]
		after, hasAfter := next[date]
		switch {
		case !hadBefore && hasAfter:
			changes = append(changes, Change{Kind: ChangeAdded, Date: date, To: after})
		case hadBefore && !hasAfter:
			changes = append(changes, Change{Kind: ChangeRemoved, Date: date, From: before})
		case before != after:
			changes = append(changes, Change{Kind: ChangeReassigned, Date: date, From: before, To: after})
		}
	}

	return changes
}

// SocketURL turns a server base URL (http, https, ws or wss) into the URL of
// its booking socket. A URL with no path gets /socket appended.
func SocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q", base)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported URL scheme %q (use http, https, ws or wss)", u.Scheme)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket"
	}
	return u.String(), nil
}

// StreamBookings connects to the server at serverURL and writes every
// snapshot it broadcasts to w, starting with the one sent on join.
// Returns nil when ctx is cancelled or the server closes the connection normally.
func StreamBookings(ctx context.Context, serverURL string, format OutputFormat, w io.Writer) error {
	if format != OutputFormatDefault && format != OutputFormatJSON {
		return fmt.Errorf("unknown output format: %s", format)
	}

	wsURL, err := SocketURL(serverURL)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
			conn.Close()
		case <-done:
		}
	}()

	var prev booking.Map
	for {
		var env booking.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		if env.Event != booking.EventBookingsUpdated {
			continue
		}

		m, err := env.DecodeMap()
		if err != nil {
			return err
		}

		if err := writeUpdate(w, format, prev, m, time.Now()); err != nil {
			return fmt.Errorf("failed to write update: %w", err)
		}
		prev = m
	}
}

type jsonUpdate struct {
	Timestamp string      `json:"timestamp"`
	Bookings  booking.Map `json:"bookings"`
	Changes   []Change    `json:"changes,omitempty"`
}

func writeUpdate(w io.Writer, format OutputFormat, prev, next booking.Map, at time.Time) error {
	if format == OutputFormatJSON {
		update := jsonUpdate{Timestamp: at.UTC().Format(time.RFC3339), Bookings: next.Clone()}
		if prev != nil {
			update.Changes = Diff(prev, next)
		}
		return json.NewEncoder(w).Encode(update)
	}

	stamp := at.Format("15:04:05")

	if prev == nil {
		if _, err := fmt.Fprintf(w, "[%s] snapshot: %s\n", stamp, countBookings(len(next))); err != nil {
			return err
		}
		for _, date := range next.Dates() {
			if _, err := fmt.Fprintf(w, "  %s  %s\n", date, next[date]); err != nil {
				return err
			}
		}
		return nil
	}

	if _, err := fmt.Fprintf(w, "[%s] update: %s\n", stamp, countBookings(len(next))); err != nil {
		return err
	}

	changes := Diff(prev, next)
	if len(changes) == 0 {
		_, err := fmt.Fprintf(w, "  (no changes)\n")
		return err
	}

	for _, c := range changes {
		var err error
		switch c.Kind {
		case ChangeAdded:
			_, err = fmt.Fprintf(w, "  + %s  %s\n", c.Date, c.To)
		case ChangeRemoved:
			_, err = fmt.Fprintf(w, "  - %s  %s\n", c.Date, c.From)
		case ChangeReassigned:
			_, err = fmt.Fprintf(w, "  ~ %s  %s -> %s\n", c.Date, c.From, c.To)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func countBookings(n int) string {
	if n == 1 {
		return "1 booking"
	}
	return fmt.Sprintf("%d bookings", n)
}
