package model

import (
	"encoding/json"
	"time"
)

// EventType identifies the type of event
type EventType string

const (
	// Inbound events
	EventConnectionEstablished EventType = "connection"
	EventGreeting              EventType = "greeting"
	EventChat                  EventType = "chatMessage"
	EventConnectionClosed      EventType = "disconnect"
	EventTransportError        EventType = "error"
	EventShutdownRequested     EventType = "shutdown"

	// Outbound events
	EventWelcome        EventType = "welcome"
	EventPlayerJoined   EventType = "playerJoined"
	EventPlayerLeft     EventType = "playerLeft"
	EventGreetingAck    EventType = "greeting-ack"
	EventChatMessage    EventType = "chatMessage"
	EventServerShutdown EventType = "serverShutdown"
)

// Outbox is the outbound handle for one live connection
type Outbox interface {
	ID() ConnectionID
	// Send queues an event for delivery. It must not block.
	Send(event OutboundEvent) error
	// Close closes the connection and waits for the transport to confirm.
	Close() error
}

// InboundEvent is one of the connection-scoped or lifecycle events the
// broadcaster consumes. The set is closed: only types in this package implement it.
type InboundEvent interface {
	Type() EventType
	inbound()
}

// ConnectionEstablished is emitted when the transport accepts a new connection
type ConnectionEstablished struct {
	Outbox Outbox
}

// GreetingReceived is the client hello
type GreetingReceived struct {
	Source ConnectionID
	// Payload is the client-supplied greeting, echoed back verbatim
	Payload json.RawMessage
}

// ChatReceived is a chat line sent by a client
type ChatReceived struct {
	Source  ConnectionID
	Message string
}

// ConnectionClosed is emitted when the transport tears a connection down
type ConnectionClosed struct {
	Source ConnectionID
	// Outbox is the handle that closed, if known. A close from a handle the
	// broadcaster is not tracking for Source is ignored.
	Outbox Outbox
}

// TransportError reports a connection-scoped transport failure
type TransportError struct {
	Source ConnectionID
	Err    error
}

// ShutdownRequested asks the broadcaster to notify everyone and close all connections
type ShutdownRequested struct {
	// Done is closed once shutdown handling has completed (optional)
	Done chan struct{}
}

func (ConnectionEstablished) Type() EventType { return EventConnectionEstablished }
func (GreetingReceived) Type() EventType      { return EventGreeting }
func (ChatReceived) Type() EventType          { return EventChat }
func (ConnectionClosed) Type() EventType      { return EventConnectionClosed }
func (TransportError) Type() EventType        { return EventTransportError }
func (ShutdownRequested) Type() EventType     { return EventShutdownRequested }

func (ConnectionEstablished) inbound() {}
func (GreetingReceived) inbound()      {}
func (ChatReceived) inbound()          {}
func (ConnectionClosed) inbound()      {}
func (TransportError) inbound()        {}
func (ShutdownRequested) inbound()     {}

// OutboundEvent is one of the events delivered to clients
type OutboundEvent interface {
	Type() EventType
	outbound()
}

// Welcome is unicast to a newly registered connection
type Welcome struct {
	PlayerID     PlayerID
	Message      string
	TotalPlayers int
}

// PlayerJoined announces a new player to everyone else
type PlayerJoined struct {
	PlayerID     PlayerID
	TotalPlayers int
}

// PlayerLeft announces a departed player to everyone else
type PlayerLeft struct {
	PlayerID     PlayerID
	TotalPlayers int
}

// GreetingAck answers a greeting, to the sender only
type GreetingAck struct {
	Message         string
	PlayerID        PlayerID
	Timestamp       time.Time
	OriginalPayload json.RawMessage
}

// ChatMessage is a chat line broadcast to every connection, sender included
type ChatMessage struct {
	PlayerID  PlayerID
	Message   string
	Timestamp time.Time
}

// ServerShutdown is broadcast to every connection before the server closes them
type ServerShutdown struct {
	Message   string
	Timestamp time.Time
}

func (Welcome) Type() EventType        { return EventWelcome }
func (PlayerJoined) Type() EventType   { return EventPlayerJoined }
func (PlayerLeft) Type() EventType     { return EventPlayerLeft }
func (GreetingAck) Type() EventType    { return EventGreetingAck }
func (ChatMessage) Type() EventType    { return EventChatMessage }
func (ServerShutdown) Type() EventType { return EventServerShutdown }

func (Welcome) outbound()        {}
func (PlayerJoined) outbound()   {}
func (PlayerLeft) outbound()     {}
func (GreetingAck) outbound()    {}
func (ChatMessage) outbound()    {}
func (ServerShutdown) outbound() {}
