package server

import (
	"errors"

	"github.com/corvid/scrawl/pkg/protocol"
)

// Router decodes inbound messages, mutates the registries, and computes the
// fan-out set for each message type. It keeps no state of its own between
// messages; rooms and connections live in the registries.
//
// The sender id is the registry-minted id for the connection the bytes
// arrived on. It is authoritative: a clientId field inside the message that
// disagrees with it is logged and ignored, so one client cannot speak or
// silence broadcasts on behalf of another.
type Router struct {
	clients *ClientRegistry
	rooms   *RoomRegistry
	metrics *Metrics
}

// NewRouter creates a router operating on the given registries
func NewRouter(clients *ClientRegistry, rooms *RoomRegistry, metrics *Metrics) *Router {
	return &Router{
		clients: clients,
		rooms:   rooms,
		metrics: metrics,
	}
}

// HandleMessage processes one inbound message from senderID. Nothing in here
// is fatal: malformed input is dropped, bad references get an error reply,
// and per-recipient delivery failures never abort the rest of a fan-out.
func (r *Router) HandleMessage(senderID string, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		debugLog.Printf("Client %s: dropping undecodable message: %v", senderID, err)
		if r.metrics != nil {
			r.metrics.RecordDecodeError()
		}
		return
	}

	if r.metrics != nil {
		r.metrics.RecordMessageReceived(msg.Type)
	}
	if msg.ClientID != "" && msg.ClientID != senderID {
		debugLog.Printf("Client %s: message claims clientId %s, using connection id", senderID, msg.ClientID)
	}

	switch msg.Type {
	case protocol.TypeCreateRoom:
		r.handleCreateRoom(senderID)
	case protocol.TypeJoinRoom:
		r.handleJoinRoom(senderID, msg)
	case protocol.TypeBeginDraw, protocol.TypeUpdateDraw:
		r.handleDraw(senderID, msg)
	case protocol.TypeClearCanvas:
		r.handleClearCanvas(senderID, msg)
	default:
		debugLog.Printf("Client %s: unknown message type %q", senderID, msg.Type)
		r.sendError(senderID, protocol.ErrCodeUnknownType, "unknown message type: "+msg.Type)
	}
}

// handleCreateRoom creates an empty room and replies only to the requester
func (r *Router) handleCreateRoom(senderID string) {
	roomID := r.rooms.Create()
	debugLog.Printf("Client %s created room %s", senderID, roomID)

	payload, err := protocol.NewRoomCreated(roomID)
	if err != nil {
		errorLog.Printf("Client %s: encoding create_room reply: %v", senderID, err)
		return
	}
	r.deliver(senderID, protocol.TypeCreateRoom, payload)
}

// handleJoinRoom appends the sender to the room and broadcasts the updated
// member list to every member, the joiner included.
func (r *Router) handleJoinRoom(senderID string, msg *protocol.Message) {
	if msg.RoomID == "" {
		r.sendError(senderID, protocol.ErrCodeInvalidMessage, "join_room requires roomId")
		return
	}

	if err := r.rooms.Join(msg.RoomID, senderID); err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			debugLog.Printf("Client %s: join_room for unknown room %s", senderID, msg.RoomID)
			r.sendError(senderID, protocol.ErrCodeRoomNotFound, "room not found: "+msg.RoomID)
			return
		}
		errorLog.Printf("Client %s: join_room %s: %v", senderID, msg.RoomID, err)
		return
	}

	members, err := r.rooms.Members(msg.RoomID)
	if err != nil {
		errorLog.Printf("Client %s: room %s vanished after join: %v", senderID, msg.RoomID, err)
		return
	}

	payload, err := protocol.NewJoinRoom(msg.RoomID, members)
	if err != nil {
		errorLog.Printf("Client %s: encoding join_room broadcast: %v", senderID, err)
		return
	}

	delivered := 0
	for _, memberID := range members {
		if r.deliver(memberID, protocol.TypeJoinRoom, payload) {
			delivered++
		}
	}
	if r.metrics != nil {
		r.metrics.RecordBroadcastFanout(delivered)
	}
}

// handleDraw relays begin_draw and update_draw to every member except the
// sender, who already rendered the stroke locally.
func (r *Router) handleDraw(senderID string, msg *protocol.Message) {
	if msg.RoomID == "" || msg.Point == nil {
		r.sendError(senderID, protocol.ErrCodeInvalidMessage, msg.Type+" requires roomId and point")
		return
	}

	members, err := r.rooms.Members(msg.RoomID)
	if err != nil {
		debugLog.Printf("Client %s: %s for unknown room %s", senderID, msg.Type, msg.RoomID)
		r.sendError(senderID, protocol.ErrCodeRoomNotFound, "room not found: "+msg.RoomID)
		return
	}

	room := protocol.RoomInfo{RoomID: msg.RoomID, Clients: members}
	payload, err := protocol.NewDraw(msg.Type, senderID, *msg.Point, room)
	if err != nil {
		errorLog.Printf("Client %s: encoding %s broadcast: %v", senderID, msg.Type, err)
		return
	}

	delivered := 0
	for _, memberID := range members {
		if memberID == senderID {
			continue
		}
		if r.deliver(memberID, msg.Type, payload) {
			delivered++
		}
	}
	if r.metrics != nil {
		r.metrics.RecordBroadcastFanout(delivered)
	}
}

// handleClearCanvas relays a clear to the whole room. The sender's copy
// carries isRemote=false so the client can skip its redundant local clear;
// the payload is otherwise identical for every recipient.
func (r *Router) handleClearCanvas(senderID string, msg *protocol.Message) {
	if msg.RoomID == "" {
		r.sendError(senderID, protocol.ErrCodeInvalidMessage, "clear_canvas requires roomId")
		return
	}

	members, err := r.rooms.Members(msg.RoomID)
	if err != nil {
		debugLog.Printf("Client %s: clear_canvas for unknown room %s", senderID, msg.RoomID)
		r.sendError(senderID, protocol.ErrCodeRoomNotFound, "room not found: "+msg.RoomID)
		return
	}

	room := protocol.RoomInfo{RoomID: msg.RoomID, Clients: members}
	localPayload, err := protocol.NewClearCanvas(senderID, room, false)
	if err != nil {
		errorLog.Printf("Client %s: encoding clear_canvas: %v", senderID, err)
		return
	}
	remotePayload, err := protocol.NewClearCanvas(senderID, room, true)
	if err != nil {
		errorLog.Printf("Client %s: encoding clear_canvas: %v", senderID, err)
		return
	}

	delivered := 0
	for _, memberID := range members {
		payload := remotePayload
		if memberID == senderID {
			payload = localPayload
		}
		if r.deliver(memberID, protocol.TypeClearCanvas, payload) {
			delivered++
		}
	}
	if r.metrics != nil {
		r.metrics.RecordBroadcastFanout(delivered)
	}
}

// deliver writes one payload to one recipient. A registry miss or a
// transport failure only skips that recipient; the caller continues with the
// rest of the fan-out.
func (r *Router) deliver(clientID, msgType string, payload []byte) bool {
	conn, ok := r.clients.Lookup(clientID)
	if !ok {
		debugLog.Printf("Client %s: no live connection, skipping delivery", clientID)
		if r.metrics != nil {
			r.metrics.RecordRecipientSkipped()
		}
		return false
	}

	if err := conn.Send(payload); err != nil {
		errorLog.Printf("Client %s: send failed (%s): %v", clientID, msgType, err)
		if r.metrics != nil {
			r.metrics.RecordSendFailure()
		}
		return false
	}

	if r.metrics != nil {
		r.metrics.RecordMessageSent(msgType)
	}
	return true
}

// sendError reports a rejected request back to its sender. Best effort: if
// the sender is already gone there is nobody to tell.
func (r *Router) sendError(clientID, code, message string) {
	payload, err := protocol.NewError(code, message)
	if err != nil {
		errorLog.Printf("Client %s: encoding error reply: %v", clientID, err)
		return
	}
	r.deliver(clientID, protocol.TypeError, payload)
}
