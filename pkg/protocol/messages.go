package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message type constants (Client → Server)
const (
	TypeCreateRoom  = "create_room"
	TypeJoinRoom    = "join_room"
	TypeBeginDraw   = "begin_draw"
	TypeUpdateDraw  = "update_draw"
	TypeClearCanvas = "clear_canvas"
)

// Message type constants (Server → Client)
const (
	TypeConnection = "connection"
	TypeError      = "error"
)

// Error codes carried in the `error` field of an ErrorMessage
const (
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeUnknownType    = "unknown_type"
	ErrCodeRoomNotFound   = "room_not_found"
)

var (
	ErrEmptyMessage = errors.New("empty message")
	ErrMissingType  = errors.New("missing type field")
)

// Point is a single canvas coordinate carried by draw events.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Message is the decoded form of every client→server message. Fields not
// relevant to a given type are left at their zero value; the router
// validates per type.
type Message struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId,omitempty"`
	RoomID   string `json:"roomId,omitempty"`
	Point    *Point `json:"point,omitempty"`
}

// RoomInfo is the room snapshot embedded in broadcast payloads. Clients holds
// the member list in join order; duplicate joins appear more than once.
type RoomInfo struct {
	RoomID  string   `json:"roomId"`
	Clients []string `json:"clients"`
}

// ConnectionMessage tells a freshly accepted client its assigned id. Sent
// exactly once, before any other traffic for that connection.
type ConnectionMessage struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
}

// RoomCreatedMessage is the reply to a create_room request.
type RoomCreatedMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// JoinRoomMessage is broadcast to every member (including the joiner) after a
// successful join, carrying the refreshed member list.
type JoinRoomMessage struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Members []string `json:"members"`
	Room    RoomInfo `json:"room"`
}

// DrawMessage relays a begin_draw or update_draw event to every room member
// except the sender, who already rendered the stroke locally.
type DrawMessage struct {
	Type     string   `json:"type"`
	Point    Point    `json:"point"`
	ClientID string   `json:"clientId"`
	Room     RoomInfo `json:"room"`
}

// ClearCanvasMessage relays a clear to the whole room. IsRemote is false only
// on the copy delivered back to the sender, so the client can skip the
// redundant local clear.
type ClearCanvasMessage struct {
	Type     string   `json:"type"`
	ClientID string   `json:"clientId"`
	Room     RoomInfo `json:"room"`
	IsRemote bool     `json:"isRemote"`
}

// ErrorMessage reports a rejected request back to its sender.
type ErrorMessage struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Decode parses a single inbound message. Malformed JSON or a missing type
// field is a DecodeError: the caller drops the message without a reply.
func Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMessage
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	if msg.Type == "" {
		return nil, ErrMissingType
	}

	return &msg, nil
}

// NewConnection builds the initial identity payload for a new connection.
func NewConnection(clientID string) ([]byte, error) {
	return json.Marshal(ConnectionMessage{
		Type:     TypeConnection,
		ClientID: clientID,
	})
}

// NewRoomCreated builds the create_room reply.
func NewRoomCreated(roomID string) ([]byte, error) {
	return json.Marshal(RoomCreatedMessage{
		Type:   TypeCreateRoom,
		RoomID: roomID,
	})
}

// NewJoinRoom builds the join broadcast carrying the updated member list.
func NewJoinRoom(roomID string, members []string) ([]byte, error) {
	return json.Marshal(JoinRoomMessage{
		Type:    TypeJoinRoom,
		Message: "joined room",
		Members: members,
		Room:    RoomInfo{RoomID: roomID, Clients: members},
	})
}

// NewDraw builds a begin_draw or update_draw relay payload.
func NewDraw(msgType, clientID string, point Point, room RoomInfo) ([]byte, error) {
	return json.Marshal(DrawMessage{
		Type:     msgType,
		Point:    point,
		ClientID: clientID,
		Room:     room,
	})
}

// NewClearCanvas builds a clear_canvas relay payload.
func NewClearCanvas(clientID string, room RoomInfo, isRemote bool) ([]byte, error) {
	return json.Marshal(ClearCanvasMessage{
		Type:     TypeClearCanvas,
		ClientID: clientID,
		Room:     room,
		IsRemote: isRemote,
	})
}

// NewError builds an error reply with a machine-readable code and a
// human-readable description.
func NewError(code, message string) ([]byte, error) {
	return json.Marshal(ErrorMessage{
		Type:    TypeError,
		Error:   code,
		Message: message,
	})
}
