// Package gateway bridges WebSocket clients to the sync hub.
//
// Each connection moves Connected → Active → Disconnected. On connect the
// current snapshot is sent as bookings_updated; while active, every
// update_bookings frame is handed to the hub verbatim and every broadcast is
// written back as bookings_updated.
package gateway

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dyluth/rota/internal/hub"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the client.
	writeWait = 10 * time.Second

	// Time allowed between pongs before the client is considered gone.
	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Largest accepted client frame. A year of bookings is well under this.
	maxMessageSize = 1 << 20
)

// Gateway accepts WebSocket connections and runs one Connection per client.
type Gateway struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader

	wg sync.WaitGroup
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithCheckOrigin sets the upgrader's origin check. By default every origin is accepted.
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(g *Gateway) {
		g.upgrader.CheckOrigin = check
	}
}

// AllowOrigins returns an origin check accepting requests whose Origin header
// matches one of origins (scheme://host[:port], case-insensitive). Requests
// without an Origin header come from non-browser clients and are accepted.
// An empty list or a "*" entry accepts every origin.
func AllowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		if !ok {
			log.Printf("[Gateway] Rejected connection from origin %q", origin)
		}
		return ok
	}
}

// New creates a gateway in front of h.
func New(h *hub.Hub, opts ...Option) *Gateway {
	g := &Gateway{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ServeHTTP upgrades the request and serves the connection until the client leaves.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		log.Printf("[Gateway] Failed to upgrade connection from %s: %v", r.RemoteAddr, err)
		return
	}

	g.wg.Add(1)
	defer g.wg.Done()

	c := newConnection(conn, g.hub)
	c.run(r.Context())
}

// Wait blocks until every connection served so far has finished. Call it
// after closing the hub during shutdown.
func (g *Gateway) Wait() {
	g.wg.Wait()
}
