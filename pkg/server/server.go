package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corvid/scrawl/pkg/protocol"
)

// Server wires the registries, router, and HTTP transport together. All
// shared mutable state lives in the two registries; every connection runs in
// its own goroutine and touches them only through their synchronized
// methods.
type Server struct {
	config     ServerConfig
	clients    *ClientRegistry
	rooms      *RoomRegistry
	router     *Router
	metrics    *Metrics
	listener   net.Listener
	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates a new server instance
func NewServer(config ServerConfig) *Server {
	metrics := NewMetrics()
	clients := NewClientRegistry(metrics)
	rooms := NewRoomRegistry(metrics)

	s := &Server{
		config:  config,
		clients: clients,
		rooms:   rooms,
		router:  NewRouter(clients, rooms, metrics),
		metrics: metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/health", s.HealthHandler)
	mux.HandleFunc("/stats", s.StatsHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{Handler: mux}
	return s
}

// Start binds the listener and begins serving. Port 0 picks a random free
// port; Addr reports the bound address.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.startTime = time.Now()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errorLog.Printf("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or "" before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the server and closes all live connections
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.clients.CloseAll()
	return err
}

// sendConnectionMessage pushes the assigned id to a fresh connection
func (s *Server) sendConnectionMessage(clientID string) error {
	conn, ok := s.clients.Lookup(clientID)
	if !ok {
		return fmt.Errorf("client %s not registered", clientID)
	}

	payload, err := protocol.NewConnection(clientID)
	if err != nil {
		return fmt.Errorf("encoding connection message: %w", err)
	}

	if err := conn.Send(payload); err != nil {
		return fmt.Errorf("sending connection message: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordMessageSent(protocol.TypeConnection)
	}
	return nil
}
