package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcoot/playerhub/internal/model"
)

// TimestampLayout is ISO-8601 in UTC with millisecond precision
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in the wire format
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Envelope is the frame shape for every message in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode converts an outbound event into a wire frame
func Encode(event model.OutboundEvent) ([]byte, error) {
	var data any
	switch e := event.(type) {
	case model.Welcome:
		data = WelcomeFromModel(e)
	case model.PlayerJoined:
		data = Presence{PlayerID: string(e.PlayerID), TotalPlayers: e.TotalPlayers}
	case model.PlayerLeft:
		data = Presence{PlayerID: string(e.PlayerID), TotalPlayers: e.TotalPlayers}
	case model.GreetingAck:
		data = GreetingAckFromModel(e)
	case model.ChatMessage:
		data = ChatMessageFromModel(e)
	case model.ServerShutdown:
		data = ServerShutdown{Message: e.Message, Timestamp: FormatTimestamp(e.Timestamp)}
	default:
		return nil, fmt.Errorf("encode %T: %w", event, model.ErrUnknownEvent)
	}
	return marshalEnvelope(string(event.Type()), data)
}

// Decode parses a client frame into an inbound event attributed to source.
// Frames that are not valid JSON, name an unknown event or lack the fields the
// event requires return an error wrapping ErrMalformedFrame or ErrUnknownEvent.
func Decode(frame []byte, source model.ConnectionID) (model.InboundEvent, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedFrame, err)
	}

	switch model.EventType(env.Event) {
	case model.EventGreeting:
		if !isJSONObject(env.Data) {
			return nil, fmt.Errorf("%w: greeting data must be an object", model.ErrMalformedFrame)
		}
		payload := make(json.RawMessage, len(env.Data))
		copy(payload, env.Data)
		return model.GreetingReceived{Source: source, Payload: payload}, nil

	case model.EventChat:
		var chat struct {
			Message *string `json:"message"`
		}
		if err := json.Unmarshal(env.Data, &chat); err != nil {
			return nil, fmt.Errorf("%w: chat: %v", model.ErrMalformedFrame, err)
		}
		if chat.Message == nil {
			return nil, fmt.Errorf("%w: chat message is required", model.ErrMalformedFrame)
		}
		return model.ChatReceived{Source: source, Message: *chat.Message}, nil

	case "":
		return nil, fmt.Errorf("%w: missing event name", model.ErrMalformedFrame)

	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownEvent, env.Event)
	}
}

// DecodeOutbound parses a server frame back into an outbound event.
// Used by clients of the protocol.
func DecodeOutbound(frame []byte) (model.OutboundEvent, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedFrame, err)
	}

	switch model.EventType(env.Event) {
	case model.EventWelcome:
		var w Welcome
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("%w: welcome: %v", model.ErrMalformedFrame, err)
		}
		return model.Welcome{PlayerID: model.PlayerID(w.PlayerID), Message: w.Message, TotalPlayers: w.TotalPlayers}, nil

	case model.EventPlayerJoined, model.EventPlayerLeft:
		var p Presence
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", model.ErrMalformedFrame, env.Event, err)
		}
		if model.EventType(env.Event) == model.EventPlayerJoined {
			return model.PlayerJoined{PlayerID: model.PlayerID(p.PlayerID), TotalPlayers: p.TotalPlayers}, nil
		}
		return model.PlayerLeft{PlayerID: model.PlayerID(p.PlayerID), TotalPlayers: p.TotalPlayers}, nil

	case model.EventGreetingAck:
		var a GreetingAck
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("%w: greeting-ack: %v", model.ErrMalformedFrame, err)
		}
		ts, err := parseTimestamp(a.Timestamp)
		if err != nil {
			return nil, err
		}
		return model.GreetingAck{
			Message:         a.Message,
			PlayerID:        model.PlayerID(a.PlayerID),
			Timestamp:       ts,
			OriginalPayload: a.OriginalPayload,
		}, nil

	case model.EventChatMessage:
		var c ChatMessage
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return nil, fmt.Errorf("%w: chatMessage: %v", model.ErrMalformedFrame, err)
		}
		ts, err := parseTimestamp(c.Timestamp)
		if err != nil {
			return nil, err
		}
		return model.ChatMessage{PlayerID: model.PlayerID(c.PlayerID), Message: c.Message, Timestamp: ts}, nil

	case model.EventServerShutdown:
		var s ServerShutdown
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return nil, fmt.Errorf("%w: serverShutdown: %v", model.ErrMalformedFrame, err)
		}
		ts, err := parseTimestamp(s.Timestamp)
		if err != nil {
			return nil, err
		}
		return model.ServerShutdown{Message: s.Message, Timestamp: ts}, nil

	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownEvent, env.Event)
	}
}

// EncodeGreeting builds the client hello frame
func EncodeGreeting(message string, at time.Time) ([]byte, error) {
	return marshalEnvelope(string(model.EventGreeting), Greeting{Message: message, Timestamp: FormatTimestamp(at)})
}

// EncodeChat builds a client chat frame
func EncodeChat(message string) ([]byte, error) {
	return marshalEnvelope(string(model.EventChat), Chat{Message: message})
}

func marshalEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func parseTimestamp(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", model.ErrMalformedFrame, s)
	}
	return ts, nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal(trimmed, &obj) == nil
}
