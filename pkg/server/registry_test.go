package server

import (
	"sync"
	"testing"
)

// mockConn is a Conn that records everything sent to it
type mockConn struct {
	mu       sync.Mutex
	received [][]byte
	closed   bool
	sendErr  error
}

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.received))
	copy(out, m.received)
	return out
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func TestClientRegistryRegisterLookup(t *testing.T) {
	reg := NewClientRegistry(nil)
	conn := &mockConn{}

	clientID := reg.Register(conn)
	if clientID == "" {
		t.Fatal("Register returned empty client id")
	}

	got, ok := reg.Lookup(clientID)
	if !ok {
		t.Fatal("Lookup should find registered client")
	}
	if got != conn {
		t.Error("Lookup returned wrong connection")
	}
}

func TestClientRegistryUniqueIDs(t *testing.T) {
	reg := NewClientRegistry(nil)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := reg.Register(&mockConn{})
		if seen[id] {
			t.Fatalf("duplicate client id %s", id)
		}
		seen[id] = true
	}

	if reg.Count() != 100 {
		t.Errorf("Expected 100 clients, got %d", reg.Count())
	}
}

func TestClientRegistryUnregister(t *testing.T) {
	reg := NewClientRegistry(nil)

	clientID := reg.Register(&mockConn{})
	reg.Unregister(clientID)

	if _, ok := reg.Lookup(clientID); ok {
		t.Error("Lookup should miss after Unregister")
	}
	if reg.Count() != 0 {
		t.Errorf("Expected 0 clients, got %d", reg.Count())
	}

	// Unregistering twice is a no-op, not a panic
	reg.Unregister(clientID)
}

func TestClientRegistryLookupUnknown(t *testing.T) {
	reg := NewClientRegistry(nil)

	if _, ok := reg.Lookup("never-registered"); ok {
		t.Error("Lookup should miss for unknown client id")
	}
}

func TestClientRegistryCloseAll(t *testing.T) {
	reg := NewClientRegistry(nil)

	conns := make([]*mockConn, 5)
	for i := range conns {
		conns[i] = &mockConn{}
		reg.Register(conns[i])
	}

	reg.CloseAll()

	if reg.Count() != 0 {
		t.Errorf("Expected 0 clients after CloseAll, got %d", reg.Count())
	}
	for i, conn := range conns {
		if !conn.isClosed() {
			t.Errorf("Connection %d should be closed", i)
		}
	}
}

func TestClientRegistryConcurrentRegister(t *testing.T) {
	reg := NewClientRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := reg.Register(&mockConn{})
			reg.Lookup(id)
		}()
	}
	wg.Wait()

	if reg.Count() != 50 {
		t.Errorf("Expected 50 clients, got %d", reg.Count())
	}
}
