package domain

import "encoding/json"

// Message is an incoming messaging-channel event enriched for the UI.
type Message struct {
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	TimestampMs int64           `json:"timestampMs"`
	Name        string          `json:"name,omitempty"`
}

// Envelope is the wire shape of a messaging frame: {type, payload}.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SendMessageAction is what clients write to the messaging socket.
type SendMessageAction struct {
	Message string `json:"message"`
	Data    string `json:"data"`
}

const ActionSendMessage = "sendmessage"
