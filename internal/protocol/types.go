package protocol

import (
	"encoding/json"

	"github.com/mcoot/playerhub/internal/model"
)

// Greeting is the client hello payload
type Greeting struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Chat is the client chat payload
type Chat struct {
	Message string `json:"message"`
}

// Welcome is sent to a connection once it has been registered
type Welcome struct {
	PlayerID     string `json:"playerId"`
	Message      string `json:"message"`
	TotalPlayers int    `json:"totalPlayers"`
}

// WelcomeFromModel converts a model.Welcome
func WelcomeFromModel(w model.Welcome) Welcome {
	return Welcome{
		PlayerID:     string(w.PlayerID),
		Message:      w.Message,
		TotalPlayers: w.TotalPlayers,
	}
}

// Presence is the payload of playerJoined and playerLeft
type Presence struct {
	PlayerID     string `json:"playerId"`
	TotalPlayers int    `json:"totalPlayers"`
}

// GreetingAck answers a greeting
type GreetingAck struct {
	Message         string          `json:"message"`
	PlayerID        string          `json:"playerId"`
	Timestamp       string          `json:"timestamp"`
	OriginalPayload json.RawMessage `json:"originalPayload"`
}

// GreetingAckFromModel converts a model.GreetingAck
func GreetingAckFromModel(a model.GreetingAck) GreetingAck {
	payload := a.OriginalPayload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return GreetingAck{
		Message:         a.Message,
		PlayerID:        string(a.PlayerID),
		Timestamp:       FormatTimestamp(a.Timestamp),
		OriginalPayload: payload,
	}
}

// ChatMessage is a broadcast chat line
type ChatMessage struct {
	PlayerID  string `json:"playerId"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ChatMessageFromModel converts a model.ChatMessage
func ChatMessageFromModel(c model.ChatMessage) ChatMessage {
	return ChatMessage{
		PlayerID:  string(c.PlayerID),
		Message:   c.Message,
		Timestamp: FormatTimestamp(c.Timestamp),
	}
}

// ServerShutdown tells clients the server is going away
type ServerShutdown struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
