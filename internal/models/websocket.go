package models

import "encoding/json"

// Envelope types carried over the WebSocket.
const (
	WSConnection      = "connection"
	WSChatMessage     = "chat_message"
	WSOperationUpdate = "operation_update"
	WSError           = "error"
	WSPing            = "ping"
	WSPong            = "pong"
)

// WebSocketMessage is the JSON envelope exchanged in both directions.
type WebSocketMessage struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	Message  string          `json:"message,omitempty"`
	ClientID string          `json:"client_id,omitempty"`
}

// NewWebSocketMessage builds an envelope with data marshaled into Data.
func NewWebSocketMessage(msgType string, data any) (WebSocketMessage, error) {
	msg := WebSocketMessage{Type: msgType}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return msg, err
	}
	msg.Data = raw
	return msg, nil
}

// DecodeData unmarshals the envelope payload into v.
func (m WebSocketMessage) DecodeData(v any) error {
	if len(m.Data) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(m.Data, v)
}

// OperationUpdate is the payload of an operation_update envelope.
type OperationUpdate struct {
	OperationID   string          `json:"operation_id"`
	OperationType OperationType   `json:"operation_type,omitempty"`
	Status        OperationStatus `json:"status"`
	Message       string          `json:"message,omitempty"`
}

// InboundChat is the payload a client sends with a chat_message envelope.
type InboundChat struct {
	Content string `json:"content"`
}
