// Package client implements a Go client for the scrawl drawing protocol.
// It is used by the loadtest binary and by anything else that wants to drive
// a room without a browser.
package client

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corvid/scrawl/pkg/protocol"
)

// ServerMessage is the decoded form of any server→client payload. Fields not
// relevant to a given type are left at their zero value; IsRemote is a
// pointer so clear_canvas payloads can be told apart from types that omit
// the field.
type ServerMessage struct {
	Type     string             `json:"type"`
	ClientID string             `json:"clientId,omitempty"`
	RoomID   string             `json:"roomId,omitempty"`
	Message  string             `json:"message,omitempty"`
	Members  []string           `json:"members,omitempty"`
	Room     *protocol.RoomInfo `json:"room,omitempty"`
	Point    *protocol.Point    `json:"point,omitempty"`
	IsRemote *bool              `json:"isRemote,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Client is one WebSocket connection to a scrawl server. Writes are
// synchronized; reads are expected from a single goroutine.
type Client struct {
	ws      *websocket.Conn
	id      string
	writeMu sync.Mutex
}

// Connect dials a server and waits for the identity message that carries the
// assigned client id.
func Connect(addr string) (*Client, error) {
	url := fmt.Sprintf("ws://%s/ws", addr)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{ws: ws}
	ident, err := c.Next(5 * time.Second)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("reading identity message: %w", err)
	}
	if ident.Type != protocol.TypeConnection || ident.ClientID == "" {
		ws.Close()
		return nil, fmt.Errorf("expected connection message, got %q", ident.Type)
	}

	c.id = ident.ClientID
	return c, nil
}

// ClientID returns the server-assigned id for this connection
func (c *Client) ClientID() string {
	return c.id
}

// Close closes the underlying connection
func (c *Client) Close() error {
	return c.ws.Close()
}

// Next reads and decodes the next server message. A zero timeout waits
// forever.
func (c *Client) Next(timeout time.Duration) (*ServerMessage, error) {
	if timeout > 0 {
		c.ws.SetReadDeadline(time.Now().Add(timeout))
	} else {
		c.ws.SetReadDeadline(time.Time{})
	}

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}

	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode server message %q: %w", data, err)
	}
	return &msg, nil
}

// CreateRoom requests a new room and waits for the reply carrying its id.
// Broadcasts that arrive before the reply are discarded, so use it only when
// the connection is otherwise quiet.
func (c *Client) CreateRoom() (string, error) {
	if err := c.send(protocol.Message{Type: protocol.TypeCreateRoom, ClientID: c.id}); err != nil {
		return "", err
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msg, err := c.Next(time.Until(deadline))
		if err != nil {
			return "", fmt.Errorf("reading create_room reply: %w", err)
		}
		if msg.Type == protocol.TypeError {
			return "", fmt.Errorf("server rejected create_room: %s", msg.Message)
		}
		if msg.Type == protocol.TypeCreateRoom && msg.RoomID != "" {
			return msg.RoomID, nil
		}
	}
	return "", fmt.Errorf("no create_room reply before deadline")
}

// JoinRoom asks to join a room. The membership broadcast arrives via Next.
func (c *Client) JoinRoom(roomID string) error {
	return c.send(protocol.Message{Type: protocol.TypeJoinRoom, ClientID: c.id, RoomID: roomID})
}

// BeginDraw sends the first point of a stroke
func (c *Client) BeginDraw(roomID string, point protocol.Point) error {
	return c.send(protocol.Message{Type: protocol.TypeBeginDraw, ClientID: c.id, RoomID: roomID, Point: &point})
}

// UpdateDraw sends a stroke continuation point
func (c *Client) UpdateDraw(roomID string, point protocol.Point) error {
	return c.send(protocol.Message{Type: protocol.TypeUpdateDraw, ClientID: c.id, RoomID: roomID, Point: &point})
}

// ClearCanvas asks the room to wipe its canvas
func (c *Client) ClearCanvas(roomID string) error {
	return c.send(protocol.Message{Type: protocol.TypeClearCanvas, ClientID: c.id, RoomID: roomID})
}

func (c *Client) send(msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}
