package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid/scrawl/pkg/protocol"
)

func newTestRouter() (*Router, *ClientRegistry, *RoomRegistry) {
	clients := NewClientRegistry(nil)
	rooms := NewRoomRegistry(nil)
	return NewRouter(clients, rooms, nil), clients, rooms
}

// lastMessage unmarshals the most recent payload sent to a connection
func lastMessage(t *testing.T, conn *mockConn) map[string]any {
	t.Helper()
	received := conn.getReceived()
	require.NotEmpty(t, received, "expected at least one delivered message")

	var msg map[string]any
	require.NoError(t, json.Unmarshal(received[len(received)-1], &msg))
	return msg
}

func TestRouterCreateRoom(t *testing.T) {
	router, clients, rooms := newTestRouter()
	conn := &mockConn{}
	clientID := clients.Register(conn)

	router.HandleMessage(clientID, []byte(`{"type":"create_room","clientId":"`+clientID+`"}`))

	reply := lastMessage(t, conn)
	assert.Equal(t, "create_room", reply["type"])

	roomID, ok := reply["roomId"].(string)
	require.True(t, ok, "reply should carry a roomId")

	members, err := rooms.Members(roomID)
	require.NoError(t, err)
	assert.Empty(t, members, "created room starts empty")
}

func TestRouterJoinRoom(t *testing.T) {
	router, clients, rooms := newTestRouter()

	connA := &mockConn{}
	connB := &mockConn{}
	clientA := clients.Register(connA)
	clientB := clients.Register(connB)
	roomID := rooms.Create()

	router.HandleMessage(clientA, joinPayload(clientA, roomID))

	// The joiner itself receives the broadcast
	msgA := lastMessage(t, connA)
	assert.Equal(t, "join_room", msgA["type"])
	assert.Equal(t, []any{clientA}, msgA["members"])

	router.HandleMessage(clientB, joinPayload(clientB, roomID))

	// Both members receive the refreshed list
	for name, conn := range map[string]*mockConn{"A": connA, "B": connB} {
		msg := lastMessage(t, conn)
		assert.Equal(t, "join_room", msg["type"], "member %s", name)
		assert.Equal(t, []any{clientA, clientB}, msg["members"], "member %s", name)

		room, ok := msg["room"].(map[string]any)
		require.True(t, ok, "member %s payload should embed room", name)
		assert.Equal(t, roomID, room["roomId"], "member %s", name)
	}
}

func TestRouterJoinRoomNotFound(t *testing.T) {
	router, clients, _ := newTestRouter()
	conn := &mockConn{}
	clientID := clients.Register(conn)

	router.HandleMessage(clientID, joinPayload(clientID, "no-such-room"))

	reply := lastMessage(t, conn)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, protocol.ErrCodeRoomNotFound, reply["error"])
}

func TestRouterJoinRoomMissingRoomID(t *testing.T) {
	router, clients, _ := newTestRouter()
	conn := &mockConn{}
	clientID := clients.Register(conn)

	router.HandleMessage(clientID, []byte(`{"type":"join_room","clientId":"`+clientID+`"}`))

	reply := lastMessage(t, conn)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, protocol.ErrCodeInvalidMessage, reply["error"])
}

func TestRouterDrawExcludesSender(t *testing.T) {
	router, clients, rooms := newTestRouter()

	connA := &mockConn{}
	connB := &mockConn{}
	connC := &mockConn{}
	clientA := clients.Register(connA)
	clientB := clients.Register(connB)
	clientC := clients.Register(connC)

	roomID := rooms.Create()
	for _, id := range []string{clientA, clientB, clientC} {
		require.NoError(t, rooms.Join(roomID, id))
	}

	sentBefore := len(connA.getReceived())
	router.HandleMessage(clientA, drawPayload("begin_draw", clientA, roomID, 10, 20))

	assert.Len(t, connA.getReceived(), sentBefore, "sender must not receive its own stroke")

	for name, conn := range map[string]*mockConn{"B": connB, "C": connC} {
		msg := lastMessage(t, conn)
		assert.Equal(t, "begin_draw", msg["type"], "member %s", name)
		assert.Equal(t, clientA, msg["clientId"], "member %s", name)

		point, ok := msg["point"].(map[string]any)
		require.True(t, ok, "member %s payload should carry point", name)
		assert.Equal(t, 10.0, point["x"], "member %s", name)
		assert.Equal(t, 20.0, point["y"], "member %s", name)
	}
}

func TestRouterDrawAloneInRoom(t *testing.T) {
	router, clients, rooms := newTestRouter()
	conn := &mockConn{}
	clientID := clients.Register(conn)

	roomID := rooms.Create()
	require.NoError(t, rooms.Join(roomID, clientID))

	sentBefore := len(conn.getReceived())
	router.HandleMessage(clientID, drawPayload("begin_draw", clientID, roomID, 1, 2))

	// Exclude-sender fan-out over a single-member room delivers nothing
	assert.Len(t, conn.getReceived(), sentBefore)
}

func TestRouterDrawUnknownRoom(t *testing.T) {
	router, clients, rooms := newTestRouter()

	connA := &mockConn{}
	connB := &mockConn{}
	clientA := clients.Register(connA)
	clientB := clients.Register(connB)

	// A healthy room that must stay untouched
	otherRoom := rooms.Create()
	require.NoError(t, rooms.Join(otherRoom, clientB))
	sentBefore := len(connB.getReceived())

	router.HandleMessage(clientA, drawPayload("update_draw", clientA, "no-such-room", 1, 2))

	reply := lastMessage(t, connA)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, protocol.ErrCodeRoomNotFound, reply["error"])

	// The unrelated room and client are unaffected
	assert.Len(t, connB.getReceived(), sentBefore)
	members, err := rooms.Members(otherRoom)
	require.NoError(t, err)
	assert.Equal(t, []string{clientB}, members)
}

func TestRouterDrawMissingPoint(t *testing.T) {
	router, clients, rooms := newTestRouter()
	conn := &mockConn{}
	clientID := clients.Register(conn)
	roomID := rooms.Create()
	require.NoError(t, rooms.Join(roomID, clientID))

	router.HandleMessage(clientID, []byte(fmt.Sprintf(
		`{"type":"begin_draw","clientId":%q,"roomId":%q}`, clientID, roomID)))

	reply := lastMessage(t, conn)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, protocol.ErrCodeInvalidMessage, reply["error"])
}

func TestRouterClearCanvas(t *testing.T) {
	router, clients, rooms := newTestRouter()

	connA := &mockConn{}
	connB := &mockConn{}
	connC := &mockConn{}
	clientA := clients.Register(connA)
	clientB := clients.Register(connB)
	clientC := clients.Register(connC)

	roomID := rooms.Create()
	for _, id := range []string{clientA, clientB, clientC} {
		require.NoError(t, rooms.Join(roomID, id))
	}

	router.HandleMessage(clientA, []byte(fmt.Sprintf(
		`{"type":"clear_canvas","clientId":%q,"roomId":%q}`, clientA, roomID)))

	// Sender gets isRemote=false, everyone else isRemote=true; clientId is
	// the sender's id on every copy
	msgA := lastMessage(t, connA)
	assert.Equal(t, "clear_canvas", msgA["type"])
	assert.Equal(t, false, msgA["isRemote"])
	assert.Equal(t, clientA, msgA["clientId"])

	for name, conn := range map[string]*mockConn{"B": connB, "C": connC} {
		msg := lastMessage(t, conn)
		assert.Equal(t, "clear_canvas", msg["type"], "member %s", name)
		assert.Equal(t, true, msg["isRemote"], "member %s", name)
		assert.Equal(t, clientA, msg["clientId"], "member %s", name)
	}
}

func TestRouterUnknownType(t *testing.T) {
	router, clients, _ := newTestRouter()
	conn := &mockConn{}
	clientID := clients.Register(conn)

	router.HandleMessage(clientID, []byte(`{"type":"teleport","clientId":"`+clientID+`"}`))

	reply := lastMessage(t, conn)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, protocol.ErrCodeUnknownType, reply["error"])
}

func TestRouterMalformedMessage(t *testing.T) {
	router, clients, _ := newTestRouter()
	conn := &mockConn{}
	clientID := clients.Register(conn)

	router.HandleMessage(clientID, []byte("this is not json"))

	// DecodeError: dropped without a reply
	assert.Empty(t, conn.getReceived())
}

func TestRouterSkipsStaleRecipient(t *testing.T) {
	router, clients, rooms := newTestRouter()

	connA := &mockConn{}
	connB := &mockConn{}
	clientA := clients.Register(connA)
	clientB := clients.Register(connB)
	clientGone := clients.Register(&mockConn{})

	roomID := rooms.Create()
	for _, id := range []string{clientA, clientB, clientGone} {
		require.NoError(t, rooms.Join(roomID, id))
	}

	// Simulate a torn-down transport whose room entry is still around
	clients.Unregister(clientGone)

	router.HandleMessage(clientA, drawPayload("begin_draw", clientA, roomID, 3, 4))

	// The stale reference is skipped; the healthy member still gets it
	msg := lastMessage(t, connB)
	assert.Equal(t, "begin_draw", msg["type"])
}

func TestRouterContinuesPastSendFailure(t *testing.T) {
	router, clients, rooms := newTestRouter()

	connA := &mockConn{}
	connBroken := &mockConn{sendErr: errors.New("connection reset")}
	connC := &mockConn{}
	clientA := clients.Register(connA)
	clientBroken := clients.Register(connBroken)
	clientC := clients.Register(connC)

	roomID := rooms.Create()
	for _, id := range []string{clientA, clientBroken, clientC} {
		require.NoError(t, rooms.Join(roomID, id))
	}

	router.HandleMessage(clientA, drawPayload("update_draw", clientA, roomID, 5, 6))

	// One recipient failing must not abort delivery to the rest
	msg := lastMessage(t, connC)
	assert.Equal(t, "update_draw", msg["type"])
}

func TestRouterIgnoresSpoofedClientID(t *testing.T) {
	router, clients, rooms := newTestRouter()

	connA := &mockConn{}
	connB := &mockConn{}
	clientA := clients.Register(connA)
	clientB := clients.Register(connB)

	roomID := rooms.Create()
	require.NoError(t, rooms.Join(roomID, clientA))
	require.NoError(t, rooms.Join(roomID, clientB))

	// A claims to be B; the connection id wins, so B still receives the
	// stroke and the payload names A
	router.HandleMessage(clientA, drawPayload("begin_draw", clientB, roomID, 7, 8))

	msg := lastMessage(t, connB)
	assert.Equal(t, clientA, msg["clientId"])
}

func joinPayload(clientID, roomID string) []byte {
	return []byte(fmt.Sprintf(`{"type":"join_room","clientId":%q,"roomId":%q}`, clientID, roomID))
}

func drawPayload(msgType, clientID, roomID string, x, y float64) []byte {
	return []byte(fmt.Sprintf(
		`{"type":%q,"clientId":%q,"roomId":%q,"point":{"x":%g,"y":%g}}`,
		msgType, clientID, roomID, x, y))
}
