package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/dyluth/rota/internal/gateway"
	"github.com/dyluth/rota/internal/hub"
	"github.com/dyluth/rota/internal/store"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
)

// Server exposes the booking board over HTTP:
//
//	GET /bookings  current Map as JSON
//	GET /socket    WebSocket upgrade into the gateway
//	GET /healthz   store connectivity and observer count
//	GET /*         static client files
type Server struct {
	hub     *hub.Hub
	store   store.Store
	gateway *gateway.Gateway
	server  *http.Server
}

// New wires the routes. staticDir may be empty to disable static serving.
// gatewayOpts configure the socket endpoint.
func New(addr string, h *hub.Hub, s store.Store, staticDir string, gatewayOpts ...gateway.Option) *Server {
	srv := &Server{
		hub:     h,
		store:   s,
		gateway: gateway.New(h, gatewayOpts...),
	}

	r := mux.NewRouter()
	r.Use(accessLog)
	r.Methods(http.MethodGet).Path("/bookings").HandlerFunc(srv.getBookings)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(srv.healthz)
	r.Methods(http.MethodGet).Path("/socket").Handler(srv.gateway)
	if staticDir != "" {
		r.Methods(http.MethodGet).PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	}

	srv.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

// Handler returns the router, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe blocks serving on the configured address until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve blocks serving on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	log.Printf("[Server] Listening on http://%s", ln.Addr())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes every WebSocket session via the
// hub and waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Printf("[Server] Shutting down...")
	err := s.server.Shutdown(ctx)
	s.hub.Close()

	done := make(chan struct{})
	go func() {
		s.gateway.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		log.Printf("[Server] %s %s %d %s", r.Method, r.URL, m.Code, m.Duration)
	})
}
