// Package protocol defines the WebSocket event types and payload structures
// exchanged between chat clients and the coordination server. All events are
// serialized as JSON and share a consistent envelope format with a type
// discriminator. The set of client events is closed: ParseClientMessage
// rejects anything outside it.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Event type constants
// ---------------------------------------------------------------------------

// Client -> Server event types.
const (
	TypeRegister    = "user:register"
	TypeChatRequest = "chat:request"
	TypeChatAccept  = "chat:accept"
	TypeChatDecline = "chat:declined"
	TypeChatCancel  = "chat:request-cancelled"
	TypeMessageSend = "message:send"
	TypeTyping      = "typing"
	TypeChatEnd     = "chat:end"
	TypePing        = "ping"
)

// Server -> Client event types. Decline, cancel, and typing events reuse the
// same wire name in both directions; the payload shape differs.
const (
	TypeRegistered          = "user:registered"
	TypeChatRequestReceived = "chat:request-received"
	TypeChatStarted         = "chat:started"
	TypeChatDeclined        = "chat:declined"
	TypeChatCancelled       = "chat:request-cancelled"
	TypeMessageReceived     = "message:received"
	TypeChatEnded           = "chat:ended"
	TypeError               = "error"
	TypePong                = "pong"
)

// Reasons carried by a chat:ended event.
const (
	EndReasonManual       = "manual"
	EndReasonDisconnected = "disconnected"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the event type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server event structs
// ---------------------------------------------------------------------------

// RegisterMsg announces a user identity on the current connection.
type RegisterMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// ChatRequestMsg asks the server to forward a chat invitation to another user.
type ChatRequestMsg struct {
	Type       string `json:"type"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

// ChatAcceptMsg accepts a previously received chat invitation. FromUserID is
// the original requester, ToUserID the accepting user.
type ChatAcceptMsg struct {
	Type       string `json:"type"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

// ChatDeclineMsg declines a chat invitation. FromUserID is the original
// requester to be notified, ToUserID the declining user.
type ChatDeclineMsg struct {
	Type       string `json:"type"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

// ChatCancelMsg withdraws a pending chat invitation before the target has
// responded. ToUserID is the invited user to be notified.
type ChatCancelMsg struct {
	Type       string `json:"type"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

// MessageSendMsg carries a chat message from the sender to their current
// partner. The declared recipient is validated against the sender's active
// pairing before relay.
type MessageSendMsg struct {
	Type       string `json:"type"`
	ChatID     string `json:"chatId"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
	Message    string `json:"message"`
}

// TypingMsg signals whether the sender is currently typing in the chat.
type TypingMsg struct {
	Type       string `json:"type"`
	ChatID     string `json:"chatId"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
	IsTyping   bool   `json:"isTyping"`
}

// ChatEndMsg ends the acting connection's current chat. It carries no
// payload; the acting user is resolved from the connection.
type ChatEndMsg struct {
	Type string `json:"type"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client event structs
// ---------------------------------------------------------------------------

// RegisteredMsg confirms a registration, echoing the user ID and the opaque
// connection ID assigned by the transport.
type RegisteredMsg struct {
	Type         string `json:"type"`
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

// ChatRequestReceivedMsg is the chat invitation forwarded to the target user.
// The payload mirrors the original request verbatim.
type ChatRequestReceivedMsg struct {
	Type       string `json:"type"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

// ChatStartedMsg tells a participant that the chat is live. PartnerID is the
// recipient's own partner, so the two participants receive different payloads
// carrying the same ChatID.
type ChatStartedMsg struct {
	Type      string `json:"type"`
	ChatID    string `json:"chatId"`
	PartnerID string `json:"partnerId"`
}

// ChatDeclinedNoticeMsg tells the requester that their invitation was declined.
type ChatDeclinedNoticeMsg struct {
	Type       string `json:"type"`
	DeclinedBy string `json:"declinedBy"`
}

// ChatCancelledNoticeMsg tells the invited user that the invitation was
// withdrawn.
type ChatCancelledNoticeMsg struct {
	Type        string `json:"type"`
	CancelledBy string `json:"cancelledBy"`
}

// MessageReceivedMsg is a chat message relayed to the recipient. The payload
// mirrors the sender's message:send verbatim.
type MessageReceivedMsg struct {
	Type       string `json:"type"`
	ChatID     string `json:"chatId"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
	Message    string `json:"message"`
}

// PartnerTypingMsg relays the partner's typing indicator.
type PartnerTypingMsg struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"isTyping"`
}

// ChatEndedMsg tells the remaining participant that the chat is over.
type ChatEndedMsg struct {
	Type    string `json:"type"`
	ChatID  string `json:"chatId"`
	EndedBy string `json:"endedBy"`
	Reason  string `json:"reason"`
}

// ErrorMsg communicates an error condition to the acting connection.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client event.
// It returns the event type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only event types, which keeps the inbound event set closed.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeRegister:
		var m RegisterMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatRequest:
		var m ChatRequestMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatAccept:
		var m ChatAcceptMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatDecline:
		var m ChatDeclineMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatCancel:
		var m ChatCancelMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessageSend:
		var m MessageSendMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatEnd:
		var m ChatEndMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client event type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server event.
// The msgType is injected into the payload under the "type" key so callers
// never have to fill the Type field on the payload structs themselves.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
