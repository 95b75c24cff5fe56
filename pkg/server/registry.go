package server

import (
	"sync"

	"github.com/corvid/scrawl/pkg/protocol"
)

// Conn is the transport handle stored for each client. The registry only
// ever reads it to push bytes; the transport layer owns its lifecycle.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// ClientRegistry maps client ids to their live transport handles. It is the
// sole owner of the id→connection mapping; every mutation goes through its
// lock.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]Conn
	metrics *Metrics
}

// NewClientRegistry creates an empty client registry
func NewClientRegistry(metrics *Metrics) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]Conn),
		metrics: metrics,
	}
}

// Register mints a fresh client id and stores the connection under it. The
// id is never reused; a closed transport still gets an id and later sends to
// it fail at the transport, not here.
func (r *ClientRegistry) Register(conn Conn) string {
	clientID := protocol.NewID()

	r.mu.Lock()
	r.clients[clientID] = conn
	count := len(r.clients)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordActiveConnections(count)
		r.metrics.RecordConnectionOpened()
	}

	return clientID
}

// Lookup returns the connection for a client id. A miss means the client
// disconnected or never existed; callers skip that recipient rather than
// abort.
func (r *ClientRegistry) Lookup(clientID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.clients[clientID]
	return conn, ok
}

// Unregister removes a client. Must be called when the transport closes or
// errors so the map does not grow without bound.
func (r *ClientRegistry) Unregister(clientID string) {
	r.mu.Lock()
	_, ok := r.clients[clientID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.clients, clientID)
	count := len(r.clients)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordActiveConnections(count)
		r.metrics.RecordConnectionClosed()
	}
}

// Count returns the number of live connections
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

// CloseAll closes every live connection and empties the registry. Used
// during shutdown.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, conn := range r.clients {
		conn.Close()
	}
	r.clients = make(map[string]Conn)
}
