package types

import (
	"time"
)

type PresenceKind string

const (
	PresenceConnected    PresenceKind = "connected"
	PresenceDisconnected PresenceKind = "disconnected"
)

// Connection is one live transport session known to the relay.
type Connection struct {
	Id          string    `json:"connectionId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

type ChatEvent struct {
	ConnectionId string    `json:"connectionId"`
	SenderId     int64     `json:"senderId"`
	RecipientId  int64     `json:"recipientId"`
	Message      string    `json:"message"`
	Date         time.Time `json:"date"`
}

type PresenceEvent struct {
	ConnectionId string       `json:"connectionId"`
	Kind         PresenceKind `json:"-"`
	Date         time.Time    `json:"date"`
}
